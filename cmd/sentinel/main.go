package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/de-tools/cloud-sentinel/pkg/runtime/terminal"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx = logger.WithContext(ctx)

	cli := terminal.NewCLI(terminal.Options{Output: os.Stdout})
	err := cli.Execute(ctx)
	stop()

	if err != nil {
		logger.Error().Err(err).Msg("command failed")
	}
	os.Exit(terminal.ExitCode(err))
}
