package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
	"github.com/de-tools/cloud-sentinel/pkg/models/store"
	"github.com/de-tools/cloud-sentinel/pkg/runtime/app"
)

type FindingsCmd struct {
	status   string
	severity string
	provider string
	limit    int
	runtime  Runtime
}

func NewFindingsCmd(runtime Runtime) *cobra.Command {
	fc := &FindingsCmd{runtime: runtime}
	cmd := &cobra.Command{
		Use:   "findings [finding_id]",
		Short: "List stored findings, or show one finding with its remediation history",
		Args:  args(cobra.MaximumNArgs(1)),
		RunE:  fc.run,
	}

	cmd.Flags().StringVar(&fc.status, "status", "", "Filter by status (OPEN, REMEDIATED, SUPPRESSED)")
	cmd.Flags().StringVar(&fc.severity, "severity", "", "Filter by severity")
	cmd.Flags().StringVar(&fc.provider, "cloud-provider", "", "Filter by cloud provider")
	cmd.Flags().IntVar(&fc.limit, "limit", 100, "Maximum number of findings to list")

	return cmd
}

func (fc *FindingsCmd) filter() (store.FindingFilter, error) {
	var filter store.FindingFilter
	if fc.status != "" {
		s, err := domain.ParseStatus(fc.status)
		if err != nil {
			return filter, err
		}
		filter.Status = string(s)
	}
	if fc.severity != "" {
		s, err := domain.ParseSeverity(fc.severity)
		if err != nil {
			return filter, err
		}
		filter.Severity = s.String()
	}
	if fc.provider != "" {
		p, err := domain.ParseProvider(fc.provider)
		if err != nil {
			return filter, err
		}
		if p != domain.ProviderAll {
			filter.Provider = string(p)
		}
	}
	return filter, nil
}

func (fc *FindingsCmd) run(cmd *cobra.Command, args []string) error {
	filter, err := fc.filter()
	if err != nil {
		return domain.NewSetupError("parse filter", err)
	}
	if fc.limit <= 0 {
		return domain.NewSetupError("parse --limit", fmt.Errorf("limit must be positive, got %d", fc.limit))
	}

	ctx := cmd.Context()
	a, err := fc.runtime.Open(ctx, app.Options{Offline: true})
	if err != nil {
		return err
	}
	defer a.Close()

	reporter := fc.runtime.Reporter()
	if len(args) == 1 {
		f, found, err := a.Service.Finding(ctx, args[0])
		if err != nil {
			return err
		}
		if !found {
			_, err := fmt.Fprintf(reporter.Writer(), "Finding %s not found.\n", args[0])
			return err
		}
		if err := reporter.Finding(f); err != nil {
			return err
		}
		history, err := a.Service.Remediations(ctx, f.ID)
		if err != nil {
			return err
		}
		return reporter.History(history)
	}

	findings, err := a.Service.Findings(ctx, filter, fc.limit)
	if err != nil {
		return err
	}
	return reporter.Findings(findings)
}
