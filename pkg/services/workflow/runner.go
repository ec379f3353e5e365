package workflow

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
	"github.com/de-tools/cloud-sentinel/pkg/services/remediation"
)

// Step remediates and records a single finding.
type Step func(ctx context.Context, f domain.Finding) remediation.Result

// Runner remediates a batch of findings with bounded parallelism. Findings on the
// same resource are still serialized by the dispatcher behind Step.
type Runner struct {
	findings []domain.Finding
	step     Step
	done     chan struct{}
	progress chan RunnerProgress
	results  []remediation.Result
	config   RunnerConfig
}

type RunnerConfig struct {
	Parallelism int
}

type RunnerProgress struct {
	Processed       int
	Total           int
	Last            remediation.Result
	LastProcessedAt time.Time
}

func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{Parallelism: 4}
}

func NewRunner(findings []domain.Finding, step Step, config RunnerConfig) *Runner {
	if config.Parallelism <= 0 {
		config.Parallelism = DefaultRunnerConfig().Parallelism
	}
	return &Runner{
		findings: findings,
		step:     step,
		done:     make(chan struct{}),
		// buffered for every finding so Run never blocks on a slow reader
		progress: make(chan RunnerProgress, len(findings)),
		config:   config,
	}
}

// Done is closed once Run has returned and Progress is closed.
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Results returns what Run returned; empty until Done is closed.
func (r *Runner) Results() []remediation.Result {
	select {
	case <-r.done:
		return r.results
	default:
		return nil
	}
}

func (r *Runner) Progress() <-chan RunnerProgress {
	return r.progress
}

// Run remediates every finding and returns the results in input order. Findings
// not started before ctx is cancelled are reported as FAILURE.
func (r *Runner) Run(ctx context.Context) []remediation.Result {
	logger := zerolog.Ctx(ctx)
	defer close(r.done)
	defer close(r.progress)

	results := make([]remediation.Result, len(r.findings))
	updates := make(chan remediation.Result)
	collected := make(chan struct{})

	go func() {
		defer close(collected)
		processed := 0
		for res := range updates {
			processed++
			r.progress <- RunnerProgress{
				Processed:       processed,
				Total:           len(r.findings),
				Last:            res,
				LastProcessedAt: time.Now().UTC(),
			}
		}
	}()

	g := new(errgroup.Group)
	g.SetLimit(r.config.Parallelism)
	for i, f := range r.findings {
		g.Go(func() error {
			var res remediation.Result
			if err := ctx.Err(); err != nil {
				res = remediation.Result{FindingID: f.ID, Outcome: domain.OutcomeFailure, Err: err}
			} else {
				res = r.step(ctx, f)
			}
			results[i] = res
			updates <- res
			return nil
		})
	}
	_ = g.Wait()
	close(updates)
	<-collected

	logger.Info().Int("findings", len(r.findings)).Msg("bulk remediation finished")
	r.results = results
	return results
}
