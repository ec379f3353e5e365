package commands

import (
	"net"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/de-tools/cloud-sentinel/pkg/runtime/app"
	"github.com/de-tools/cloud-sentinel/pkg/server"
)

type ServeCmd struct {
	host    string
	port    int
	demo    bool
	runtime Runtime
}

func NewServeCmd(runtime Runtime) *cobra.Command {
	sc := &ServeCmd{runtime: runtime}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the findings HTTP API",
		Args:  args(cobra.NoArgs),
		RunE:  sc.run,
	}

	cmd.Flags().StringVar(&sc.host, "host", "", "Listen host (default: server.host)")
	cmd.Flags().IntVar(&sc.port, "port", 0, "Listen port (default: server.port)")
	cmd.Flags().BoolVar(&sc.demo, "demo", false, "Serve demo findings without connecting to cloud providers")

	return cmd
}

func (sc *ServeCmd) run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := sc.runtime.Open(ctx, app.Options{Offline: sc.demo})
	if err != nil {
		return err
	}
	defer a.Close()

	host, port := a.Config.Server.Host, a.Config.Server.Port
	if sc.host != "" {
		host = sc.host
	}
	if sc.port > 0 {
		port = sc.port
	}

	logger := zerolog.Ctx(ctx)
	api := server.NewWebAPI(*logger, server.Config{
		Addr: net.JoinHostPort(host, strconv.Itoa(port)),
		Dependencies: server.Dependencies{
			Service: a.Service,
			Metrics: a.Metrics.Handler(),
		},
	})
	return api.Start(ctx)
}
