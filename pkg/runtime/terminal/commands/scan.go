package commands

import (
	"github.com/spf13/cobra"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
	"github.com/de-tools/cloud-sentinel/pkg/runtime/app"
	"github.com/de-tools/cloud-sentinel/pkg/services/lifecycle"
	"github.com/de-tools/cloud-sentinel/pkg/services/scan"
)

type ScanCmd struct {
	provider string
	demo     bool
	alert    bool
	runtime  Runtime
}

func NewScanCmd(runtime Runtime) *cobra.Command {
	sc := &ScanCmd{runtime: runtime}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan cloud resources for security issues",
		Args:  args(cobra.NoArgs),
		RunE:  sc.run,
	}

	cmd.Flags().StringVar(&sc.provider, "cloud-provider", string(domain.ProviderAWS), "Cloud provider to scan (AWS or ALL)")
	cmd.Flags().BoolVar(&sc.demo, "demo", false, "Use demo findings instead of live provider calls")
	cmd.Flags().BoolVar(&sc.alert, "alert", false, "Send a compliance summary through every configured channel")

	return cmd
}

func (sc *ScanCmd) run(cmd *cobra.Command, _ []string) error {
	provider, err := domain.ParseProvider(sc.provider)
	if err != nil {
		return domain.NewSetupError("parse --cloud-provider", err)
	}

	ctx := cmd.Context()
	a, err := sc.runtime.Open(ctx, app.Options{Offline: sc.demo})
	if err != nil {
		return err
	}
	defer a.Close()

	outcome, err := a.Service.Scan(ctx, lifecycle.ScanRequest{
		Provider: provider,
		Mode:     scan.ParseMode(sc.demo),
		Alert:    sc.alert,
	})
	if err != nil {
		return err
	}
	return sc.runtime.Reporter().ScanSummary(outcome, sc.runtime.Verbose())
}
