package app

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
	"github.com/de-tools/cloud-sentinel/pkg/services/config"
	"github.com/de-tools/cloud-sentinel/pkg/services/lifecycle"
	"github.com/de-tools/cloud-sentinel/pkg/services/provider"
	"github.com/de-tools/cloud-sentinel/pkg/services/scan"
)

func loadConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("SENTINEL_STORE_DRIVER", "memory")
	t.Setenv("SENTINEL_REPORT_DIR", dir)
	t.Setenv("SENTINEL_AWS_PROFILE", "")

	cfg, err := config.Load(context.Background(), config.Options{EnvFile: filepath.Join(dir, "missing.env")})
	require.NoError(t, err)
	return cfg
}

func TestNew_Offline(t *testing.T) {
	cfg := loadConfig(t)
	ctx := zerolog.Nop().WithContext(context.Background())

	a, err := New(ctx, cfg, Options{Offline: true})
	require.NoError(t, err)
	defer a.Close()

	caps := a.Service.Capabilities()
	assert.True(t, caps["store"].IsLive())
	assert.False(t, caps["scanner.AWS"].IsLive())
	assert.True(t, a.Service.Simulated())
	assert.NotEmpty(t, a.Rules)

	outcome, err := a.Service.Scan(ctx, lifecycle.ScanRequest{Provider: domain.ProviderAWS, Mode: scan.ModeDemo})
	require.NoError(t, err)
	assert.Equal(t, 3, outcome.Report.FindingsCount())
}

func TestNew_UnreachableProviderDegrades(t *testing.T) {
	cfg := loadConfig(t)
	ctx := zerolog.Nop().WithContext(context.Background())

	a, err := New(ctx, cfg, Options{
		Factories: map[domain.Provider]provider.Factory{
			domain.ProviderAWS: func(context.Context) (provider.ResourceProvider, error) {
				return nil, assert.AnError
			},
		},
	})
	require.NoError(t, err)
	defer a.Close()

	c := a.Service.Capabilities()["scanner.AWS"]
	assert.False(t, c.IsLive())
	assert.Equal(t, assert.AnError.Error(), c.Reason)
}

func TestNew_SetupErrorFromFactory(t *testing.T) {
	cfg := loadConfig(t)
	ctx := zerolog.Nop().WithContext(context.Background())

	_, err := New(ctx, cfg, Options{
		Factories: map[domain.Provider]provider.Factory{
			domain.ProviderAWS: func(context.Context) (provider.ResourceProvider, error) {
				return nil, domain.NewSetupError("load aws profile", assert.AnError)
			},
		},
	})
	require.Error(t, err)
	assert.True(t, domain.IsSetupError(err))
}

func TestNew_ArchiveUnavailableIsNotFatal(t *testing.T) {
	cfg := loadConfig(t)
	cfg.Report.Archive.Endpoint = "127.0.0.1:1"
	cfg.Report.Archive.Bucket = "reports"
	cfg.Report.Archive.AccessKey = "minio"
	cfg.Report.Archive.SecretKey = "minio123"
	cfg.Store.ConnectTimeout = 500 * time.Millisecond
	ctx := zerolog.Nop().WithContext(context.Background())

	a, err := New(ctx, cfg, Options{Offline: true})
	require.NoError(t, err)
	a.Close()
}
