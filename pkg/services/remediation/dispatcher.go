package remediation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
)

// ErrUnsupported marks a finding no handler knows how to remediate.
var ErrUnsupported = errors.New("remediation not supported")

// Action is the narrowest corrective step for one finding.
type Action struct {
	Description string
	// Apply performs the action against the live API; nil when no narrow
	// automated action exists.
	Apply func(ctx context.Context) error
}

// Handler plans remediation actions for one resource kind.
type Handler interface {
	Plan(f domain.Finding) (Action, error)
}

type HandlerFunc func(f domain.Finding) (Action, error)

func (fn HandlerFunc) Plan(f domain.Finding) (Action, error) {
	return fn(f)
}

type Settings struct {
	// Live applies actions; otherwise every action is only simulated.
	Live bool
	// Timeout bounds one live action (default: 30s)
	Timeout time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		Live:    false,
		Timeout: 30 * time.Second,
	}
}

type Result struct {
	FindingID string
	Outcome   domain.Outcome
	Action    string
	Simulated bool
	// Err keeps the underlying cause of a FAILURE for logging.
	Err error
}

// Dispatcher routes a finding to the handler of its resource kind. It never
// returns an error: every failure is reported through the outcome.
type Dispatcher interface {
	Remediate(ctx context.Context, f domain.Finding) Result
	Simulated() bool
}

type dispatcher struct {
	handlers map[domain.ResourceKind]Handler
	settings Settings
	locks    *KeyedMutex
}

func NewDispatcher(handlers map[domain.ResourceKind]Handler, settings Settings) Dispatcher {
	if settings.Timeout <= 0 {
		settings.Timeout = DefaultSettings().Timeout
	}
	table := make(map[domain.ResourceKind]Handler, len(handlers))
	for kind, h := range handlers {
		if h != nil {
			table[kind] = h
		}
	}
	return &dispatcher{
		handlers: table,
		settings: settings,
		locks:    NewKeyedMutex(),
	}
}

func (d *dispatcher) Simulated() bool {
	return !d.settings.Live
}

// ResolveKind returns the resource kind of a finding, parsing the free-text
// resource type of records that predate the kind field.
func ResolveKind(f domain.Finding) domain.ResourceKind {
	if f.Resource.Kind != domain.KindUnknown {
		return f.Resource.Kind
	}
	return domain.ParseResourceKind(f.Resource.Type)
}

func (d *dispatcher) Remediate(ctx context.Context, f domain.Finding) Result {
	logger := zerolog.Ctx(ctx).With().Str("finding_id", f.ID).Logger()
	res := Result{FindingID: f.ID, Simulated: d.Simulated()}

	if f.Status.Terminal() {
		res.Outcome = domain.OutcomeSuccess
		res.Action = fmt.Sprintf("Finding already %s, nothing to do", f.Status)
		return res
	}

	kind := ResolveKind(f)
	handler, ok := d.handlers[kind]
	if !ok {
		res.Outcome = domain.OutcomeUnsupported
		res.Action = fmt.Sprintf("No remediation available for resource type %q", f.Resource.Type)
		return res
	}

	unlock := d.locks.Lock(string(kind) + "/" + f.Resource.ID)
	defer unlock()

	action, err := handler.Plan(f)
	switch {
	case errors.Is(err, ErrUnsupported):
		res.Outcome = domain.OutcomeUnsupported
		res.Action = err.Error()
		return res
	case err != nil:
		logger.Error().Err(err).Msg("failed to plan remediation")
		res.Outcome = domain.OutcomeFailure
		res.Err = err
		return res
	}

	if d.Simulated() {
		res.Outcome = domain.OutcomeSuccess
		res.Action = "Simulated: " + action.Description
		logger.Info().Str("action", res.Action).Msg("remediation simulated")
		return res
	}

	if action.Apply == nil {
		res.Outcome = domain.OutcomeUnsupported
		res.Action = "No automated remediation: " + action.Description
		return res
	}

	ctx, cancel := context.WithTimeout(ctx, d.settings.Timeout)
	defer cancel()

	res.Action = action.Description
	if err := action.Apply(ctx); err != nil {
		logger.Error().Err(err).Str("action", action.Description).Msg("remediation failed")
		res.Outcome = domain.OutcomeFailure
		res.Err = err
		return res
	}

	logger.Info().Str("action", action.Description).Msg("remediation applied")
	res.Outcome = domain.OutcomeSuccess
	return res
}
