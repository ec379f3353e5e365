package commands

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/de-tools/cloud-sentinel/pkg/runtime/app"
	"github.com/de-tools/cloud-sentinel/pkg/services/alerts"
)

type AlertCmd struct {
	runtime Runtime
}

func NewAlertCmd(runtime Runtime) *cobra.Command {
	ac := &AlertCmd{runtime: runtime}
	return &cobra.Command{
		Use:   "alert <finding_id>",
		Short: "Send an alert for a stored finding through every configured channel",
		Args:  args(cobra.ExactArgs(1)),
		RunE:  ac.run,
	}
}

func (ac *AlertCmd) run(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := ac.runtime.Open(ctx, app.Options{Offline: true})
	if err != nil {
		return err
	}
	defer a.Close()

	sent, found, err := a.Service.Alert(ctx, args[0])
	if err != nil {
		return err
	}

	out := ac.runtime.Reporter().Writer()
	if !found {
		_, err := fmt.Fprintf(out, "Finding %s not found.\n", args[0])
		return err
	}

	channels := make([]string, 0, len(sent))
	for ch := range sent {
		channels = append(channels, string(ch))
	}
	sort.Strings(channels)
	for _, ch := range channels {
		state := "sent"
		if !sent[alerts.Channel(ch)] {
			state = "skipped"
		}
		if _, err := fmt.Fprintf(out, "%s: %s\n", ch, state); err != nil {
			return err
		}
	}
	return nil
}
