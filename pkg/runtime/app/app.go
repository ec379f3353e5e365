package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
	"github.com/de-tools/cloud-sentinel/pkg/services/alerts"
	"github.com/de-tools/cloud-sentinel/pkg/services/alerts/email"
	"github.com/de-tools/cloud-sentinel/pkg/services/alerts/natsnotifier"
	"github.com/de-tools/cloud-sentinel/pkg/services/alerts/slack"
	"github.com/de-tools/cloud-sentinel/pkg/services/config"
	"github.com/de-tools/cloud-sentinel/pkg/services/lifecycle"
	"github.com/de-tools/cloud-sentinel/pkg/services/metrics"
	"github.com/de-tools/cloud-sentinel/pkg/services/provider"
	awsprovider "github.com/de-tools/cloud-sentinel/pkg/services/provider/aws"
	"github.com/de-tools/cloud-sentinel/pkg/services/remediation"
	awsremediation "github.com/de-tools/cloud-sentinel/pkg/services/remediation/aws"
	"github.com/de-tools/cloud-sentinel/pkg/services/report"
	"github.com/de-tools/cloud-sentinel/pkg/services/rules"
	"github.com/de-tools/cloud-sentinel/pkg/services/scan"
	"github.com/de-tools/cloud-sentinel/pkg/store/findings"
)

// Options are per-command overrides of the configuration.
type Options struct {
	// Offline skips connecting to live providers; scans serve demo findings.
	Offline bool
	// LiveRemediation applies remediation actions instead of simulating them.
	LiveRemediation bool
	Clock           domain.Clock
	// Factories replaces the built-in provider factories.
	Factories map[domain.Provider]provider.Factory
}

// App wires every component from one immutable configuration.
type App struct {
	Config  *config.Config
	Service lifecycle.Service
	Metrics *metrics.Metrics
	Rules   []rules.Rule

	closers []func()
}

func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	logger := zerolog.Ctx(ctx)
	if opts.Clock == nil {
		opts.Clock = domain.SystemClock{}
	}
	a := &App{Config: cfg, Metrics: metrics.New(), Rules: rules.Catalog()}

	st, err := findings.Open(ctx, findings.Settings{
		Driver:         cfg.Store.Driver,
		DuckDBPath:     cfg.Store.DuckDBPath,
		MongoURI:       cfg.Store.MongoURI,
		MongoDatabase:  cfg.Store.MongoDatabase,
		OpTimeout:      cfg.Store.OpTimeout,
		ConnectTimeout: cfg.Store.ConnectTimeout,
	}, opts.Clock)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() {
		if err := st.Close(); err != nil {
			logger.Warn().Err(err).Msg("failed to close finding store")
		}
	})

	awsSettings := awsprovider.Settings{Profile: cfg.AWS.Profile, Region: cfg.AWS.Region}
	factories := opts.Factories
	if factories == nil {
		factories = map[domain.Provider]provider.Factory{
			domain.ProviderAWS: awsprovider.NewFactory(awsSettings),
		}
	}
	registry, err := provider.NewRegistry(factories)
	if err != nil {
		a.Close()
		return nil, err
	}

	evaluator := rules.NewEvaluator(rules.Settings{
		Provider:     domain.ProviderAWS,
		StaleKeyDays: cfg.Scan.StaleKeyDays,
	}, opts.Clock)

	orchestrators := make(map[domain.Provider]scan.Orchestrator)
	for _, p := range registry.ListProviders() {
		var connect provider.Factory
		if !opts.Offline {
			if connect, err = registry.Factory(p); err != nil {
				a.Close()
				return nil, err
			}
		}
		o, err := scan.NewOrchestrator(ctx, connect, evaluator, scan.Settings{
			Provider:    p,
			KindTimeout: cfg.Scan.KindTimeout,
			Workers:     cfg.Scan.Workers,
		}, opts.Clock)
		if err != nil {
			a.Close()
			return nil, err
		}
		orchestrators[p] = o
	}

	live := cfg.Remediation.Live || opts.LiveRemediation
	var clients awsprovider.Clients
	if live {
		if clients, err = awsprovider.Connect(ctx, awsSettings); err != nil {
			a.Close()
			return nil, domain.NewSetupError("connect for live remediation", err)
		}
	}
	dispatcher := remediation.NewDispatcher(awsremediation.Handlers(clients), remediation.Settings{
		Live:    live,
		Timeout: cfg.Remediation.Timeout,
	})

	natsNotifier := natsnotifier.NewNotifier(natsnotifier.Settings{
		URL:     cfg.Alerts.NATS.URL,
		Subject: cfg.Alerts.NATS.Subject,
	})
	a.closers = append(a.closers, natsNotifier.Close)
	alertDispatcher := alerts.NewDispatcher([]alerts.Notifier{
		slack.NewNotifier(slack.Settings{WebhookURL: cfg.Alerts.SlackWebhookURL}),
		email.NewNotifier(email.Settings{
			Host:       cfg.Alerts.SMTP.Host,
			Port:       cfg.Alerts.SMTP.Port,
			Username:   cfg.Alerts.SMTP.Username,
			Password:   cfg.Alerts.SMTP.Password,
			From:       cfg.Alerts.SMTP.From,
			RequireTLS: cfg.Alerts.SMTP.RequireTLS,
		}),
		natsNotifier,
	}, alerts.Settings{Timeout: cfg.Alerts.Timeout})

	var archiver report.Archiver
	archiveSettings := report.ArchiveSettings{
		Endpoint:  cfg.Report.Archive.Endpoint,
		Region:    cfg.Report.Archive.Region,
		Bucket:    cfg.Report.Archive.Bucket,
		AccessKey: cfg.Report.Archive.AccessKey,
		SecretKey: cfg.Report.Archive.SecretKey,
		Prefix:    cfg.Report.Archive.Prefix,
		UseSSL:    cfg.Report.Archive.UseSSL,
	}
	if archiveSettings.Enabled() {
		archiveCtx, cancel := context.WithTimeout(ctx, cfg.Store.ConnectTimeout)
		archiver, err = report.NewArchiver(archiveCtx, archiveSettings)
		cancel()
		if err != nil {
			logger.Warn().Err(err).Str("endpoint", archiveSettings.Endpoint).Msg("report archive unavailable, reports stay local")
			archiver = nil
		}
	}

	a.Service, err = lifecycle.NewService(lifecycle.Dependencies{
		Store:         st,
		Orchestrators: orchestrators,
		Remediation:   dispatcher,
		Alerts:        alertDispatcher,
		Archiver:      archiver,
		Metrics:       a.Metrics,
		Clock:         opts.Clock,
	}, lifecycle.Settings{
		ReportDir:   cfg.Report.Dir,
		Recipients:  cfg.Alerts.Recipients,
		Parallelism: cfg.Remediation.Parallelism,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to build lifecycle service: %w", err)
	}

	for component, c := range a.Service.Capabilities() {
		if !c.IsLive() {
			logger.Warn().Str("component", component).Str("reason", c.Reason).Msg("running degraded")
		}
	}
	return a, nil
}

// Close releases resources in reverse construction order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
