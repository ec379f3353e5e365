package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
	"github.com/de-tools/cloud-sentinel/pkg/runtime/app"
	"github.com/de-tools/cloud-sentinel/pkg/runtime/terminal/export"
	"github.com/de-tools/cloud-sentinel/pkg/services/config"
)

// Runtime is what a command needs from the CLI around it.
type Runtime interface {
	// Open loads the configuration and builds the application. The caller closes it.
	Open(ctx context.Context, opts app.Options) (*app.App, error)
	Profiles() (config.ProfileRegistry, error)
	Reporter() *export.Reporter
	Verbose() bool
}

// args reports positional argument mistakes as setup errors.
func args(validate cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, a []string) error {
		if err := validate(cmd, a); err != nil {
			return domain.NewSetupError("parse arguments", err)
		}
		return nil
	}
}
