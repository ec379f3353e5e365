package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/de-tools/cloud-sentinel/pkg/runtime/app"
)

type SuppressCmd struct {
	runtime Runtime
}

func NewSuppressCmd(runtime Runtime) *cobra.Command {
	sc := &SuppressCmd{runtime: runtime}
	return &cobra.Command{
		Use:   "suppress <finding_id>",
		Short: "Mark an open finding as suppressed",
		Args:  args(cobra.ExactArgs(1)),
		RunE:  sc.run,
	}
}

func (sc *SuppressCmd) run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := sc.runtime.Open(ctx, app.Options{Offline: true})
	if err != nil {
		return err
	}
	defer a.Close()

	applied, found, err := a.Service.Suppress(ctx, args[0])
	if err != nil {
		return err
	}

	out := sc.runtime.Reporter().Writer()
	switch {
	case !found:
		_, err = fmt.Fprintf(out, "Finding %s not found.\n", args[0])
	case !applied:
		_, err = fmt.Fprintf(out, "Finding %s is not open, status unchanged.\n", args[0])
	default:
		_, err = fmt.Fprintf(out, "Finding %s suppressed.\n", args[0])
	}
	return err
}
