package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
	"github.com/de-tools/cloud-sentinel/pkg/runtime/app"
)

type CleanupCmd struct {
	olderThanDays int
	runtime       Runtime
}

func NewCleanupCmd(runtime Runtime) *cobra.Command {
	cc := &CleanupCmd{runtime: runtime}
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete findings, reports and remediation records older than the retention period",
		Args:  args(cobra.NoArgs),
		RunE:  cc.run,
	}

	cmd.Flags().IntVar(&cc.olderThanDays, "older-than-days", -1, "Retention in days (default: store.retention_days)")

	return cmd
}

func (cc *CleanupCmd) run(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := cc.runtime.Open(ctx, app.Options{Offline: true})
	if err != nil {
		return err
	}
	defer a.Close()

	days := cc.olderThanDays
	if !cmd.Flags().Changed("older-than-days") {
		days = a.Config.Store.RetentionDays
	}
	if days < 0 {
		return domain.NewSetupError("parse --older-than-days", fmt.Errorf("days must not be negative, got %d", days))
	}

	res, err := a.Service.Cleanup(ctx, days)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cc.runtime.Reporter().Writer(),
		"Removed %d findings, %d reports and %d remediation records older than %d days.\n",
		res.Findings, res.Reports, res.Remediations, days)
	return err
}
