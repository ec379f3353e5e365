package aws

import (
	"context"
	"errors"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
)

const (
	DefaultRegion = "us-east-1" // Default region if not specified in AWS profile
)

// Settings selects the credentials used for live calls. An empty Profile uses
// the default credential chain.
type Settings struct {
	Profile string
	Region  string
}

// LoadConfig resolves the SDK configuration and probes the credentials once.
// A profile that was asked for explicitly but does not exist is a setup error;
// any other failure means "no usable credentials".
func LoadConfig(ctx context.Context, settings Settings) (*awssdk.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithDefaultRegion(DefaultRegion),
	}
	if settings.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(settings.Profile))
	}
	if settings.Region != "" {
		opts = append(opts, config.WithRegion(settings.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		var notExist config.SharedConfigProfileNotExistError
		if errors.As(err, &notExist) {
			return nil, domain.NewSetupError("load aws profile", err)
		}
		return nil, fmt.Errorf("unable to load AWS SDK config: %w", err)
	}

	// Test the credentials
	if _, err = awsCfg.Credentials.Retrieve(ctx); err != nil {
		return nil, fmt.Errorf("invalid AWS credentials for profile %q: %w", settings.Profile, err)
	}

	return &awsCfg, nil
}
