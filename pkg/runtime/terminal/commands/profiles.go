package commands

import (
	"github.com/spf13/cobra"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
)

type ProfilesCmd struct {
	runtime Runtime
}

func NewProfilesCmd(runtime Runtime) *cobra.Command {
	pc := &ProfilesCmd{runtime: runtime}
	return &cobra.Command{
		Use:   "profiles",
		Short: "List the AWS profiles found in the shared credentials and config files",
		Args:  args(cobra.NoArgs),
		RunE:  pc.run,
	}
}

func (pc *ProfilesCmd) run(cmd *cobra.Command, _ []string) error {
	registry, err := pc.runtime.Profiles()
	if err != nil {
		return domain.NewSetupError("load aws profiles", err)
	}
	profiles, err := registry.GetProfiles(cmd.Context())
	if err != nil {
		return err
	}
	return pc.runtime.Reporter().Profiles(profiles)
}
