package lifecycle

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
	"github.com/de-tools/cloud-sentinel/pkg/models/store"
	"github.com/de-tools/cloud-sentinel/pkg/services/alerts"
	"github.com/de-tools/cloud-sentinel/pkg/services/metrics"
	"github.com/de-tools/cloud-sentinel/pkg/services/remediation"
	"github.com/de-tools/cloud-sentinel/pkg/services/report"
	"github.com/de-tools/cloud-sentinel/pkg/services/scan"
	"github.com/de-tools/cloud-sentinel/pkg/services/workflow"
	"github.com/de-tools/cloud-sentinel/pkg/store/findings"
)

type Dependencies struct {
	Store         findings.Store
	Orchestrators map[domain.Provider]scan.Orchestrator
	Remediation   remediation.Dispatcher
	// Alerts, Archiver and Metrics are optional.
	Alerts   alerts.Dispatcher
	Archiver report.Archiver
	Metrics  *metrics.Metrics
	Clock    domain.Clock
	IDs      *scan.IDGenerator
}

type Settings struct {
	// ReportDir receives security_report_<ts>.json; empty disables the file.
	ReportDir   string
	Recipients  []string
	Parallelism int
}

type ScanRequest struct {
	Provider domain.Provider
	Mode     scan.Mode
	// Alert sends the compliance summary after the scan.
	Alert bool
}

type ScanOutcome struct {
	Report  domain.ScanReport
	Results map[domain.Provider]scan.Result
	// Stored counts findings created or changed, Unchanged the identical
	// re-detections and Failed those the store rejected.
	Stored     int
	Unchanged  int
	Failed     int
	ReportPath string
	ArchiveURL string
	Alerts     map[alerts.Channel]bool
}

type RemediationOutcome struct {
	Finding domain.Finding
	Result  remediation.Result
	Record  domain.RemediationRecord
}

type RemediateAllRequest struct {
	// Severity restricts the batch to one severity when set.
	Severity *domain.Severity
	Progress func(workflow.RunnerProgress)
}

// Service runs the finding lifecycle: scan, persist, report, remediate, alert.
// Only setup problems surface as errors from construction; every operation
// degrades on external failures and reports them in its outcome.
type Service interface {
	Scan(ctx context.Context, req ScanRequest) (ScanOutcome, error)
	Remediate(ctx context.Context, id string) (RemediationOutcome, bool, error)
	RemediateAll(ctx context.Context, req RemediateAllRequest) ([]remediation.Result, error)
	Suppress(ctx context.Context, id string) (applied bool, found bool, err error)
	Alert(ctx context.Context, id string) (map[alerts.Channel]bool, bool, error)
	Finding(ctx context.Context, id string) (domain.Finding, bool, error)
	Findings(ctx context.Context, filter store.FindingFilter, limit int) ([]domain.Finding, error)
	Remediations(ctx context.Context, id string) ([]domain.RemediationRecord, error)
	Cleanup(ctx context.Context, olderThanDays int) (store.CleanupResult, error)
	Capabilities() map[string]domain.Capability
	Providers() []domain.Provider
	Simulated() bool
}

type service struct {
	deps     Dependencies
	settings Settings
	// serializes remediation attempts per finding id
	locks *remediation.KeyedMutex
}

func NewService(deps Dependencies, settings Settings) (Service, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("finding store is required")
	}
	if deps.Remediation == nil {
		return nil, fmt.Errorf("remediation dispatcher is required")
	}
	if deps.Clock == nil {
		deps.Clock = domain.SystemClock{}
	}
	if deps.IDs == nil {
		deps.IDs = scan.NewIDGenerator(deps.Clock)
	}
	if settings.Parallelism <= 0 {
		settings.Parallelism = workflow.DefaultRunnerConfig().Parallelism
	}

	s := &service{deps: deps, settings: settings, locks: remediation.NewKeyedMutex()}
	if m := deps.Metrics; m != nil {
		for component, c := range s.Capabilities() {
			m.SetCapability(component, c)
		}
	}
	return s, nil
}

func (s *service) Providers() []domain.Provider {
	providers := make([]domain.Provider, 0, len(s.deps.Orchestrators))
	for p := range s.deps.Orchestrators {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })
	return providers
}

func (s *service) Simulated() bool {
	return s.deps.Remediation.Simulated()
}

func (s *service) Capabilities() map[string]domain.Capability {
	caps := map[string]domain.Capability{
		"store": s.deps.Store.Capability(),
	}
	for p, o := range s.deps.Orchestrators {
		caps["scanner."+string(p)] = o.Capability()
	}
	return caps
}

func (s *service) Scan(ctx context.Context, req ScanRequest) (ScanOutcome, error) {
	logger := zerolog.Ctx(ctx)

	providers, err := s.resolve(req.Provider)
	if err != nil {
		return ScanOutcome{}, err
	}

	outcome := ScanOutcome{Results: make(map[domain.Provider]scan.Result, len(providers))}
	var detected []domain.Finding
	for _, p := range providers {
		res := s.deps.Orchestrators[p].Scan(ctx, req.Mode)
		outcome.Results[p] = res
		detected = append(detected, res.Findings...)
		if s.deps.Metrics != nil {
			s.deps.Metrics.ObserveScan(p, string(res.Mode), res.Findings, res.KindErrors)
		}
	}

	for _, f := range detected {
		changed, err := s.deps.Store.Upsert(ctx, f)
		switch {
		case err != nil:
			logger.Error().Err(err).Str("finding_id", f.ID).Msg("failed to store finding")
			outcome.Failed++
		case changed:
			outcome.Stored++
		default:
			outcome.Unchanged++
		}
	}

	requested := req.Provider
	if requested == "" {
		requested = domain.ProviderAWS
	}
	outcome.Report = domain.ScanReport{
		ScanID:    s.deps.IDs.Next(),
		Timestamp: domain.NormalizeTime(s.deps.Clock.Now()),
		Provider:  requested,
		Findings:  detected,
	}
	if err := s.deps.Store.AddReport(ctx, outcome.Report); err != nil {
		logger.Error().Err(err).Str("scan_id", outcome.Report.ScanID).Msg("failed to store scan report")
	}

	s.publishReport(ctx, &outcome)

	if req.Alert && s.deps.Alerts != nil {
		alert, err := alerts.FormatComplianceSummary(outcome.Report)
		if err != nil {
			logger.Error().Err(err).Msg("failed to format compliance summary")
		} else {
			outcome.Alerts = s.dispatch(ctx, alert)
		}
	}

	logger.Info().
		Str("scan_id", outcome.Report.ScanID).
		Int("findings", len(detected)).
		Int("stored", outcome.Stored).
		Int("unchanged", outcome.Unchanged).
		Msg("scan complete")

	return outcome, nil
}

func (s *service) resolve(requested domain.Provider) ([]domain.Provider, error) {
	switch requested {
	case domain.ProviderAll:
		return s.Providers(), nil
	case "":
		requested = domain.ProviderAWS
	}
	if _, ok := s.deps.Orchestrators[requested]; !ok {
		return nil, fmt.Errorf("unsupported cloud provider: %s", requested)
	}
	return []domain.Provider{requested}, nil
}

func (s *service) publishReport(ctx context.Context, outcome *ScanOutcome) {
	logger := zerolog.Ctx(ctx)
	if s.settings.ReportDir == "" && s.deps.Archiver == nil {
		return
	}

	var data []byte
	if s.settings.ReportDir != "" {
		path, written, err := report.WriteFile(s.settings.ReportDir, outcome.Report)
		if err != nil {
			logger.Error().Err(err).Msg("failed to write report file")
		} else {
			outcome.ReportPath = path
			data = written
		}
	}

	if s.deps.Archiver == nil {
		return
	}
	if data == nil {
		var err error
		if data, err = report.Encode(outcome.Report); err != nil {
			logger.Error().Err(err).Msg("failed to encode report")
			return
		}
	}
	url, err := s.deps.Archiver.Upload(ctx, report.FileName(outcome.Report), data)
	if err != nil {
		logger.Error().Err(err).Msg("failed to archive report")
		return
	}
	outcome.ArchiveURL = url
}

func (s *service) Remediate(ctx context.Context, id string) (RemediationOutcome, bool, error) {
	f, found, err := s.deps.Store.Get(ctx, id)
	if err != nil || !found {
		return RemediationOutcome{}, found, err
	}
	return s.remediate(ctx, f), true, nil
}

func (s *service) remediate(ctx context.Context, f domain.Finding) RemediationOutcome {
	logger := zerolog.Ctx(ctx).With().Str("finding_id", f.ID).Logger()

	unlock := s.locks.Lock(f.ID)
	defer unlock()

	// an attempt that held the lock before may have closed the finding
	current, found, err := s.deps.Store.Get(ctx, f.ID)
	switch {
	case err != nil:
		logger.Warn().Err(err).Msg("failed to reload finding, remediating the last known state")
	case found:
		f = current
	}

	res := s.deps.Remediation.Remediate(ctx, f)
	if f.Status.Terminal() {
		return RemediationOutcome{Finding: f, Result: res}
	}

	record := domain.RemediationRecord{
		ID:          uuid.NewString(),
		FindingID:   f.ID,
		ActionTaken: res.Action,
		Outcome:     res.Outcome,
		Simulated:   res.Simulated,
		Timestamp:   domain.NormalizeTime(s.deps.Clock.Now()),
	}
	if res.Err != nil {
		record.Error = res.Err.Error()
	}
	if err := s.deps.Store.AddRemediation(ctx, record); err != nil {
		logger.Error().Err(err).Msg("failed to record remediation")
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveRemediation(res.Outcome, res.Simulated)
	}

	if res.Outcome == domain.OutcomeSuccess {
		applied, err := s.deps.Store.UpdateStatus(ctx, f.ID, domain.StatusRemediated)
		switch {
		case err != nil:
			logger.Error().Err(err).Msg("failed to mark finding remediated")
		case !applied:
			logger.Warn().Msg("finding status changed concurrently, not marked remediated")
		}
		if updated, found, err := s.deps.Store.Get(ctx, f.ID); err == nil && found {
			f = updated
		}
	}

	return RemediationOutcome{Finding: f, Result: res, Record: record}
}

func (s *service) RemediateAll(ctx context.Context, req RemediateAllRequest) ([]remediation.Result, error) {
	filter := store.FindingFilter{Status: string(domain.StatusOpen)}
	if req.Severity != nil {
		filter.Severity = req.Severity.String()
	}
	open, err := s.deps.Store.Query(ctx, filter, 0)
	if err != nil {
		return nil, err
	}

	runner := workflow.NewRunner(open, func(ctx context.Context, f domain.Finding) remediation.Result {
		return s.remediate(ctx, f).Result
	}, workflow.RunnerConfig{Parallelism: s.settings.Parallelism})

	go runner.Run(ctx)
	for p := range runner.Progress() {
		if req.Progress != nil {
			req.Progress(p)
		}
	}
	<-runner.Done()
	return runner.Results(), nil
}

func (s *service) Suppress(ctx context.Context, id string) (bool, bool, error) {
	_, found, err := s.deps.Store.Get(ctx, id)
	if err != nil || !found {
		return false, found, err
	}
	applied, err := s.deps.Store.UpdateStatus(ctx, id, domain.StatusSuppressed)
	return applied, true, err
}

func (s *service) Alert(ctx context.Context, id string) (map[alerts.Channel]bool, bool, error) {
	f, found, err := s.deps.Store.Get(ctx, id)
	if err != nil || !found {
		return nil, found, err
	}
	if s.deps.Alerts == nil {
		return map[alerts.Channel]bool{}, true, nil
	}
	alert, err := alerts.FormatFinding(f)
	if err != nil {
		return nil, true, err
	}
	return s.dispatch(ctx, alert), true, nil
}

func (s *service) dispatch(ctx context.Context, alert alerts.Alert) map[alerts.Channel]bool {
	results := s.deps.Alerts.Dispatch(ctx, alert, s.settings.Recipients)
	if s.deps.Metrics != nil {
		byName := make(map[string]bool, len(results))
		for channel, ok := range results {
			byName[string(channel)] = ok
		}
		s.deps.Metrics.ObserveAlerts(byName)
	}
	return results
}

func (s *service) Finding(ctx context.Context, id string) (domain.Finding, bool, error) {
	return s.deps.Store.Get(ctx, id)
}

func (s *service) Findings(ctx context.Context, filter store.FindingFilter, limit int) ([]domain.Finding, error) {
	return s.deps.Store.Query(ctx, filter, limit)
}

func (s *service) Remediations(ctx context.Context, id string) ([]domain.RemediationRecord, error) {
	return s.deps.Store.ListRemediations(ctx, id)
}

func (s *service) Cleanup(ctx context.Context, olderThanDays int) (store.CleanupResult, error) {
	return s.deps.Store.Cleanup(ctx, olderThanDays)
}
