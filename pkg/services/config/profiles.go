package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
)

const configProfilePrefix = "profile "

// ProfileRegistry lists the named profiles of the shared AWS credentials and
// config files.
type ProfileRegistry interface {
	GetProfiles(ctx context.Context) ([]domain.ConfigProfile, error)
	GetProfile(ctx context.Context, name string) (domain.ConfigProfile, error)
}

type cfgRegistry struct {
	profiles map[string]domain.ConfigProfile
}

// DefaultProfilePaths honours AWS_SHARED_CREDENTIALS_FILE and AWS_CONFIG_FILE
// and falls back to ~/.aws.
func DefaultProfilePaths() (credentials string, config string) {
	home, _ := os.UserHomeDir()
	credentials = os.Getenv("AWS_SHARED_CREDENTIALS_FILE")
	if credentials == "" {
		credentials = filepath.Join(home, ".aws", "credentials")
	}
	config = os.Getenv("AWS_CONFIG_FILE")
	if config == "" {
		config = filepath.Join(home, ".aws", "config")
	}
	return credentials, config
}

// NewProfileRegistry loads both files; a missing file contributes no profile.
func NewProfileRegistry(credentialsPath, configPath string) (ProfileRegistry, error) {
	cr := &cfgRegistry{profiles: make(map[string]domain.ConfigProfile)}

	if credentialsPath != "" {
		cfg, err := ini.LooseLoad(credentialsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", credentialsPath, err)
		}
		for _, section := range cfg.Sections() {
			if len(section.Keys()) == 0 {
				continue
			}
			cr.merge(section.Name(), section)
		}
	}

	if configPath != "" {
		cfg, err := ini.LooseLoad(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", configPath, err)
		}
		for _, section := range cfg.Sections() {
			name := section.Name()
			switch {
			case name == ini.DefaultSection:
				continue
			case name == "default":
			case strings.HasPrefix(name, configProfilePrefix):
				name = strings.TrimSpace(strings.TrimPrefix(name, configProfilePrefix))
			default:
				// sso-session and services sections are not profiles
				continue
			}
			cr.merge(name, section)
		}
	}

	return cr, nil
}

func (cr *cfgRegistry) merge(name string, section *ini.Section) {
	profile, ok := cr.profiles[name]
	if !ok {
		profile = domain.ConfigProfile{Name: name, Type: domain.ProfileTypeStatic}
	}
	if section.HasKey("sso_start_url") || section.HasKey("sso_session") {
		profile.Type = domain.ProfileTypeSSO
	} else if section.HasKey("role_arn") {
		profile.Type = domain.ProfileTypeRole
	}
	if region := section.Key("region").String(); region != "" {
		profile.Region = region
	}
	cr.profiles[name] = profile
}

func (cr *cfgRegistry) GetProfiles(_ context.Context) ([]domain.ConfigProfile, error) {
	profiles := make([]domain.ConfigProfile, 0, len(cr.profiles))
	for _, p := range cr.profiles {
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Name < profiles[j].Name })
	return profiles, nil
}

var ErrProfileNotFound = errors.New("profile not found")

func (cr *cfgRegistry) GetProfile(_ context.Context, name string) (domain.ConfigProfile, error) {
	profile, ok := cr.profiles[name]
	if !ok {
		return domain.ConfigProfile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, name)
	}
	return profile, nil
}
