package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
	"github.com/de-tools/cloud-sentinel/pkg/store/findings"
)

const EnvPrefix = "SENTINEL"

// Config is built once at start-up and passed to every component; nothing
// mutates it afterwards.
type Config struct {
	AWS         AWSConfig         `mapstructure:"aws"`
	Scan        ScanConfig        `mapstructure:"scan"`
	Store       StoreConfig       `mapstructure:"store"`
	Remediation RemediationConfig `mapstructure:"remediation"`
	Alerts      AlertsConfig      `mapstructure:"alerts"`
	Report      ReportConfig      `mapstructure:"report"`
	Server      ServerConfig      `mapstructure:"server"`
}

type AWSConfig struct {
	Profile string `mapstructure:"profile"`
	Region  string `mapstructure:"region"`
}

type ScanConfig struct {
	KindTimeout  time.Duration `mapstructure:"kind_timeout"`
	Workers      int           `mapstructure:"workers"`
	StaleKeyDays int           `mapstructure:"stale_key_days"`
}

type StoreConfig struct {
	Driver         string        `mapstructure:"driver"`
	DuckDBPath     string        `mapstructure:"duckdb_path"`
	MongoURI       string        `mapstructure:"mongodb_uri"`
	MongoDatabase  string        `mapstructure:"mongodb_database"`
	OpTimeout      time.Duration `mapstructure:"op_timeout"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	RetentionDays  int           `mapstructure:"retention_days"`
}

type RemediationConfig struct {
	Live        bool          `mapstructure:"live"`
	Timeout     time.Duration `mapstructure:"timeout"`
	Parallelism int           `mapstructure:"parallelism"`
}

type AlertsConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	Recipients      []string      `mapstructure:"recipients"`
	SlackWebhookURL string        `mapstructure:"slack_webhook_url"`
	SMTP            SMTPConfig    `mapstructure:"smtp"`
	NATS            NATSConfig    `mapstructure:"nats"`
}

type SMTPConfig struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Username   string `mapstructure:"username"`
	Password   string `mapstructure:"password"`
	From       string `mapstructure:"from"`
	RequireTLS bool   `mapstructure:"require_tls"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type ReportConfig struct {
	Dir     string        `mapstructure:"dir"`
	Archive ArchiveConfig `mapstructure:"archive"`
}

type ArchiveConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Options are the command line inputs of Load.
type Options struct {
	// Path is an explicit config file; a missing file is a setup error.
	Path string
	// Profile overrides aws.profile and must exist in the shared AWS files.
	Profile string
	// EnvFile is loaded into the environment first (default: .env, optional).
	EnvFile string
	// Profiles resolves explicit profiles; defaults to the shared AWS files.
	Profiles ProfileRegistry
}

var defaults = map[string]any{
	"aws.profile":               "",
	"aws.region":                "",
	"scan.kind_timeout":         60 * time.Second,
	"scan.workers":              3,
	"scan.stale_key_days":       90,
	"store.driver":              findings.DriverDuckDB,
	"store.duckdb_path":         "sentinel.db",
	"store.mongodb_uri":         "",
	"store.mongodb_database":    "cloud_security_scanner",
	"store.op_timeout":          5 * time.Second,
	"store.connect_timeout":     5 * time.Second,
	"store.retention_days":      90,
	"remediation.live":          false,
	"remediation.timeout":       30 * time.Second,
	"remediation.parallelism":   4,
	"alerts.timeout":            10 * time.Second,
	"alerts.recipients":         []string{},
	"alerts.slack_webhook_url":  "",
	"alerts.smtp.host":          "smtp.gmail.com",
	"alerts.smtp.port":          587,
	"alerts.smtp.username":      "",
	"alerts.smtp.password":      "",
	"alerts.smtp.from":          "",
	"alerts.smtp.require_tls":   true,
	"alerts.nats.url":           "",
	"alerts.nats.subject":       "sentinel.findings",
	"report.dir":                ".",
	"report.archive.endpoint":   "",
	"report.archive.region":     "",
	"report.archive.bucket":     "",
	"report.archive.access_key": "",
	"report.archive.secret_key": "",
	"report.archive.prefix":     "reports",
	"report.archive.use_ssl":    false,
	"server.host":               "0.0.0.0",
	"server.port":               8000,
}

// legacyEnv maps keys to the unprefixed variable names also accepted.
var legacyEnv = map[string]string{
	"aws.region":               "AWS_REGION",
	"store.mongodb_uri":        "MONGODB_URI",
	"store.mongodb_database":   "MONGODB_DB_NAME",
	"alerts.slack_webhook_url": "SLACK_WEBHOOK_URL",
	"alerts.smtp.host":         "SMTP_HOST",
	"alerts.smtp.port":         "SMTP_PORT",
	"alerts.smtp.username":     "SMTP_USERNAME",
	"alerts.smtp.password":     "SMTP_PASSWORD",
	"server.host":              "API_HOST",
	"server.port":              "API_PORT",
}

// Load reads defaults, then the optional config file, then the environment.
func Load(ctx context.Context, opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, domain.NewSetupError("load env file", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, legacy := range legacyEnv {
		if err := v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.NewReplacer(".", "_").Replace(key)), legacy); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if opts.Path != "" {
		if _, err := os.Stat(opts.Path); err != nil {
			return nil, domain.NewSetupError("read config", err)
		}
		v.SetConfigFile(opts.Path)
		if err := v.ReadInConfig(); err != nil {
			return nil, domain.NewSetupError("read config", err)
		}
	} else {
		v.SetConfigName("sentinel")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, domain.NewSetupError("read config", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, domain.NewSetupError("parse config", err)
	}
	if opts.Profile != "" {
		cfg.AWS.Profile = opts.Profile
	}
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))

	if err := cfg.Validate(); err != nil {
		return nil, domain.NewSetupError("validate config", err)
	}

	if cfg.AWS.Profile != "" {
		profiles := opts.Profiles
		if profiles == nil {
			var err error
			if profiles, err = NewProfileRegistry(DefaultProfilePaths()); err != nil {
				return nil, domain.NewSetupError("load aws profiles", err)
			}
		}
		profile, err := profiles.GetProfile(ctx, cfg.AWS.Profile)
		if err != nil {
			return nil, domain.NewSetupError("load aws profile", err)
		}
		if cfg.AWS.Region == "" {
			cfg.AWS.Region = profile.Region
		}
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if !findings.ValidDriver(c.Store.Driver) {
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if c.Store.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("store.retention_days must not be negative, got %d", c.Store.RetentionDays))
	}
	if c.Scan.Workers <= 0 {
		errs = append(errs, fmt.Errorf("scan.workers must be positive, got %d", c.Scan.Workers))
	}
	if c.Scan.StaleKeyDays <= 0 {
		errs = append(errs, fmt.Errorf("scan.stale_key_days must be positive, got %d", c.Scan.StaleKeyDays))
	}
	if c.Remediation.Parallelism <= 0 {
		errs = append(errs, fmt.Errorf("remediation.parallelism must be positive, got %d", c.Remediation.Parallelism))
	}
	for _, d := range []struct {
		name  string
		value time.Duration
	}{
		{"scan.kind_timeout", c.Scan.KindTimeout},
		{"store.op_timeout", c.Store.OpTimeout},
		{"store.connect_timeout", c.Store.ConnectTimeout},
		{"remediation.timeout", c.Remediation.Timeout},
		{"alerts.timeout", c.Alerts.Timeout},
	} {
		if d.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", d.name, d.value))
		}
	}
	return errors.Join(errs...)
}
