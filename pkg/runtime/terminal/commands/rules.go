package commands

import (
	"github.com/spf13/cobra"

	"github.com/de-tools/cloud-sentinel/pkg/services/rules"
)

func NewRulesCmd(runtime Runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "List the security rules evaluated by a scan",
		Args:  args(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runtime.Reporter().Rules(rules.Catalog())
		},
	}
}
