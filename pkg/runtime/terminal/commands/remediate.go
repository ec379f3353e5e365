package commands

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
	"github.com/de-tools/cloud-sentinel/pkg/runtime/app"
	"github.com/de-tools/cloud-sentinel/pkg/services/lifecycle"
	"github.com/de-tools/cloud-sentinel/pkg/services/workflow"
)

type RemediateCmd struct {
	all      bool
	severity string
	live     bool
	runtime  Runtime
}

func NewRemediateCmd(runtime Runtime) *cobra.Command {
	rc := &RemediateCmd{runtime: runtime}
	cmd := &cobra.Command{
		Use:   "remediate [finding_id]",
		Short: "Remediate one finding, or every open finding with --all",
		Args:  args(cobra.MaximumNArgs(1)),
		RunE:  rc.run,
	}

	cmd.Flags().BoolVar(&rc.all, "all", false, "Remediate every open finding")
	cmd.Flags().StringVar(&rc.severity, "severity", "", "Restrict --all to one severity")
	cmd.Flags().BoolVar(&rc.live, "live", false, "Apply the actions instead of simulating them")

	return cmd
}

func (rc *RemediateCmd) run(cmd *cobra.Command, args []string) error {
	switch {
	case rc.all && len(args) > 0:
		return domain.NewSetupError("parse arguments", errors.New("a finding id cannot be combined with --all"))
	case !rc.all && len(args) == 0:
		return domain.NewSetupError("parse arguments", errors.New("a finding id or --all is required"))
	case !rc.all && rc.severity != "":
		return domain.NewSetupError("parse arguments", errors.New("--severity requires --all"))
	}

	var severity *domain.Severity
	if rc.severity != "" {
		s, err := domain.ParseSeverity(rc.severity)
		if err != nil {
			return domain.NewSetupError("parse --severity", err)
		}
		severity = &s
	}

	ctx := cmd.Context()
	a, err := rc.runtime.Open(ctx, app.Options{Offline: true, LiveRemediation: rc.live})
	if err != nil {
		return err
	}
	defer a.Close()

	if a.Service.Simulated() {
		zerolog.Ctx(ctx).Info().Msg("remediation runs in simulated mode, no changes are applied")
	}

	reporter := rc.runtime.Reporter()
	if rc.all {
		results, err := a.Service.RemediateAll(ctx, lifecycle.RemediateAllRequest{
			Severity: severity,
			Progress: func(p workflow.RunnerProgress) {
				zerolog.Ctx(ctx).Debug().
					Int("processed", p.Processed).
					Int("total", p.Total).
					Str("finding", p.Last.FindingID).
					Str("outcome", string(p.Last.Outcome)).
					Msg("remediation progress")
			},
		})
		if err != nil {
			return err
		}
		return reporter.Remediations(results)
	}

	outcome, found, err := a.Service.Remediate(ctx, args[0])
	if err != nil {
		return err
	}
	if !found {
		_, err := fmt.Fprintf(reporter.Writer(), "Finding %s not found.\n", args[0])
		return err
	}
	return reporter.Remediation(outcome)
}
