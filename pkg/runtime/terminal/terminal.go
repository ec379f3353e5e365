package terminal

import (
	"context"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
	"github.com/de-tools/cloud-sentinel/pkg/runtime/app"
	"github.com/de-tools/cloud-sentinel/pkg/runtime/terminal/commands"
	"github.com/de-tools/cloud-sentinel/pkg/runtime/terminal/export"
	"github.com/de-tools/cloud-sentinel/pkg/services/config"
)

// CLI represents the command-line interface
type CLI struct {
	reporter *export.Reporter
	rootCmd  *cobra.Command
	opts     Options

	configPath string
	profile    string
	envFile    string
	verbose    bool
}

// Options contain configuration for the CLI
type Options struct {
	Output io.Writer
	// Profiles replaces the registry built from the shared AWS files.
	Profiles config.ProfileRegistry
	// AppOptions are merged into the options of every command.
	AppOptions app.Options
}

// NewCLI creates a new CLI instance
func NewCLI(opts Options) *CLI {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	cli := &CLI{
		reporter: export.NewReporter(opts.Output),
		opts:     opts,
	}

	cli.rootCmd = cli.newRootCmd()
	return cli
}

func (cli *CLI) Execute(ctx context.Context) error {
	return cli.rootCmd.ExecuteContext(ctx)
}

func (cli *CLI) SetArgs(args []string) {
	cli.rootCmd.SetArgs(args)
}

func (cli *CLI) Reporter() *export.Reporter {
	return cli.reporter
}

func (cli *CLI) Verbose() bool {
	return cli.verbose
}

func (cli *CLI) Profiles() (config.ProfileRegistry, error) {
	if cli.opts.Profiles != nil {
		return cli.opts.Profiles, nil
	}
	return config.NewProfileRegistry(config.DefaultProfilePaths())
}

func (cli *CLI) Open(ctx context.Context, opts app.Options) (*app.App, error) {
	cfg, err := config.Load(ctx, config.Options{
		Path:     cli.configPath,
		Profile:  cli.profile,
		EnvFile:  cli.envFile,
		Profiles: cli.opts.Profiles,
	})
	if err != nil {
		return nil, err
	}

	base := cli.opts.AppOptions
	opts.Offline = opts.Offline || base.Offline
	opts.LiveRemediation = opts.LiveRemediation || base.LiveRemediation
	if opts.Clock == nil {
		opts.Clock = base.Clock
	}
	if opts.Factories == nil {
		opts.Factories = base.Factories
	}
	return app.New(ctx, cfg, opts)
}

func (cli *CLI) newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sentinel",
		Short:         "Cloud security finding scanner",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := zerolog.InfoLevel
			if cli.verbose {
				level = zerolog.DebugLevel
			}
			logger := zerolog.Ctx(cmd.Context()).Level(level)
			cmd.SetContext(logger.WithContext(cmd.Context()))
		},
	}
	cmd.SetOut(cli.reporter.Writer())
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return domain.NewSetupError("parse flags", err)
	})

	cmd.PersistentFlags().StringVar(&cli.configPath, "config", "", "Path to the configuration file (default: ./sentinel.yaml when present)")
	cmd.PersistentFlags().StringVar(&cli.profile, "profile", "", "AWS profile from the shared credentials file")
	cmd.PersistentFlags().StringVar(&cli.envFile, "env-file", "", "Environment file loaded before the configuration (default: .env)")
	cmd.PersistentFlags().BoolVarP(&cli.verbose, "verbose", "v", false, "Enable debug logging and resource summaries")

	cmd.AddCommand(commands.NewScanCmd(cli))
	cmd.AddCommand(commands.NewRemediateCmd(cli))
	cmd.AddCommand(commands.NewSuppressCmd(cli))
	cmd.AddCommand(commands.NewFindingsCmd(cli))
	cmd.AddCommand(commands.NewAlertCmd(cli))
	cmd.AddCommand(commands.NewCleanupCmd(cli))
	cmd.AddCommand(commands.NewRulesCmd(cli))
	cmd.AddCommand(commands.NewProfilesCmd(cli))
	cmd.AddCommand(commands.NewServeCmd(cli))

	return cmd
}

// ExitCode maps a command error to the process exit code: only setup
// errors are fatal, every other failure has already been reported.
func ExitCode(err error) int {
	if domain.IsSetupError(err) {
		return 1
	}
	return 0
}
