package scan

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
	"github.com/de-tools/cloud-sentinel/pkg/services/provider"
	"github.com/de-tools/cloud-sentinel/pkg/services/rules"
)

type Mode string

const (
	ModeLive Mode = "live"
	ModeDemo Mode = "demo"
)

func ParseMode(demo bool) Mode {
	if demo {
		return ModeDemo
	}
	return ModeLive
}

// Settings contains the scan tuning knobs
type Settings struct {
	Provider domain.Provider
	// KindTimeout bounds the enumeration of one resource kind (default: 60s)
	KindTimeout time.Duration
	// Workers is the number of kinds enumerated in parallel (default: one per kind)
	Workers int
}

func DefaultSettings() Settings {
	return Settings{
		Provider:    domain.ProviderAWS,
		KindTimeout: 60 * time.Second,
		Workers:     len(domain.ResourceKinds()),
	}
}

// Result is the outcome of one scan pass.
type Result struct {
	Provider domain.Provider
	// Mode is the mode that actually produced the findings.
	Mode       Mode
	Capability domain.Capability
	// Fallback is set when every live kind failed and demo findings were served.
	Fallback bool
	// Findings keeps discovery order: buckets, ingress rules, identities.
	Findings   []domain.Finding
	Resources  map[domain.ResourceKind]int
	KindErrors map[domain.ResourceKind]error
}

type Orchestrator interface {
	Scan(ctx context.Context, mode Mode) Result
	Capability() domain.Capability
}

type orchestrator struct {
	settings   Settings
	evaluator  rules.Evaluator
	clock      domain.Clock
	provider   provider.ResourceProvider
	capability domain.Capability
}

// NewOrchestrator connects to the live provider once. A connection failure
// degrades the orchestrator to demo findings; only a setup error is returned.
// A nil factory yields a demo-only orchestrator.
func NewOrchestrator(
	ctx context.Context,
	connect provider.Factory,
	evaluator rules.Evaluator,
	settings Settings,
	clock domain.Clock,
) (Orchestrator, error) {
	defaults := DefaultSettings()
	if settings.Provider == "" {
		settings.Provider = defaults.Provider
	}
	if settings.KindTimeout <= 0 {
		settings.KindTimeout = defaults.KindTimeout
	}
	if settings.Workers <= 0 {
		settings.Workers = defaults.Workers
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}

	o := &orchestrator{
		settings:   settings,
		evaluator:  evaluator,
		clock:      clock,
		capability: domain.Degraded("no live provider configured"),
	}
	if connect == nil {
		return o, nil
	}

	p, err := connect(ctx)
	switch {
	case err == nil:
		o.provider = p
		o.capability = domain.Live()
	case domain.IsSetupError(err):
		return nil, err
	default:
		zerolog.Ctx(ctx).Warn().Err(err).
			Str("provider", string(settings.Provider)).
			Msg("live provider unavailable, scans will use demo findings")
		o.capability = domain.Degraded(err.Error())
	}
	return o, nil
}

func (o *orchestrator) Capability() domain.Capability {
	return o.capability
}

func (o *orchestrator) Scan(ctx context.Context, mode Mode) Result {
	logger := zerolog.Ctx(ctx)

	if mode == ModeDemo {
		return o.demoResult(false)
	}
	if !o.capability.IsLive() {
		logger.Warn().Str("reason", o.capability.Reason).Msg("scanning in demo mode")
		return o.demoResult(false)
	}

	kinds := domain.ResourceKinds()
	type slot struct {
		findings  []domain.Finding
		resources int
		err       error
	}
	slots := make([]slot, len(kinds))

	var g errgroup.Group
	g.SetLimit(o.settings.Workers)
	for i, kind := range kinds {
		g.Go(func() error {
			findings, resources, err := o.scanKind(ctx, kind)
			slots[i] = slot{findings: findings, resources: resources, err: err}
			return nil
		})
	}
	_ = g.Wait()

	res := Result{
		Provider:   o.settings.Provider,
		Mode:       ModeLive,
		Capability: o.capability,
		Resources:  make(map[domain.ResourceKind]int, len(kinds)),
		KindErrors: make(map[domain.ResourceKind]error),
	}
	for i, kind := range kinds {
		if slots[i].err != nil {
			logger.Error().Err(slots[i].err).Str("kind", string(kind)).Msg("resource enumeration failed")
			res.KindErrors[kind] = slots[i].err
			continue
		}
		res.Resources[kind] = slots[i].resources
		res.Findings = append(res.Findings, slots[i].findings...)
	}

	if len(res.KindErrors) == len(kinds) {
		logger.Warn().Msg("every resource kind failed, falling back to demo findings")
		fallback := o.demoResult(true)
		fallback.KindErrors = res.KindErrors
		return fallback
	}

	logger.Debug().
		Int("findings", len(res.Findings)).
		Int("failed_kinds", len(res.KindErrors)).
		Msg("live scan completed")
	return res
}

func (o *orchestrator) scanKind(ctx context.Context, kind domain.ResourceKind) ([]domain.Finding, int, error) {
	if !o.evaluator.Supports(kind) {
		return nil, 0, fmt.Errorf("no rules for resource kind %q", kind)
	}

	ctx, cancel := context.WithTimeout(ctx, o.settings.KindTimeout)
	defer cancel()

	descriptors, err := provider.Enumerate(ctx, o.provider, kind)
	if err != nil {
		return nil, 0, err
	}

	var findings []domain.Finding
	for _, d := range descriptors {
		findings = append(findings, o.evaluator.Evaluate(d)...)
	}
	return findings, len(descriptors), nil
}

func (o *orchestrator) demoResult(fallback bool) Result {
	return Result{
		Provider:   o.settings.Provider,
		Mode:       ModeDemo,
		Capability: o.capability,
		Fallback:   fallback,
		Findings:   DemoFindings(o.settings.Provider, o.clock.Now()),
		Resources:  map[domain.ResourceKind]int{},
		KindErrors: map[domain.ResourceKind]error{},
	}
}
