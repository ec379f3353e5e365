package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/cloud-sentinel/pkg/models/api"
	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
	"github.com/de-tools/cloud-sentinel/pkg/models/store"
	"github.com/de-tools/cloud-sentinel/pkg/services/alerts"
	"github.com/de-tools/cloud-sentinel/pkg/services/metrics"
	"github.com/de-tools/cloud-sentinel/pkg/services/remediation"
	"github.com/de-tools/cloud-sentinel/pkg/services/rules"
	"github.com/de-tools/cloud-sentinel/pkg/services/scan"
	"github.com/de-tools/cloud-sentinel/pkg/services/workflow"
	"github.com/de-tools/cloud-sentinel/pkg/store/findings"
	"github.com/de-tools/cloud-sentinel/pkg/store/memory"
)

type recordingNotifier struct {
	mu     sync.Mutex
	alerts []alerts.Alert
}

func (n *recordingNotifier) Channel() alerts.Channel { return alerts.ChannelNATS }
func (n *recordingNotifier) Configured() bool        { return true }

func (n *recordingNotifier) Send(_ context.Context, alert alerts.Alert, _ []string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, alert)
	return nil
}

type fakeArchiver struct {
	names []string
}

func (a *fakeArchiver) Upload(_ context.Context, name string, data []byte) (string, error) {
	a.names = append(a.names, name)
	return "http://minio:9000/reports/" + name, nil
}

type fixture struct {
	dir      string
	store    findings.Store
	notifier *recordingNotifier
	archiver *fakeArchiver
	service  Service
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := domain.ClockFunc(func() time.Time { return now })
	ctx := context.Background()

	st := findings.NewStore(memory.NewStore(), domain.Live(), time.Second, clock)
	orch, err := scan.NewOrchestrator(ctx, nil, rules.NewEvaluator(rules.DefaultSettings(), clock), scan.DefaultSettings(), clock)
	require.NoError(t, err)

	plan := remediation.HandlerFunc(func(f domain.Finding) (remediation.Action, error) {
		return remediation.Action{Description: "fix " + f.Resource.ID}, nil
	})
	dispatcher := remediation.NewDispatcher(map[domain.ResourceKind]remediation.Handler{
		domain.KindBucket:      plan,
		domain.KindIngressRule: plan,
		domain.KindIdentity:    plan,
	}, remediation.DefaultSettings())

	f := &fixture{
		dir:      t.TempDir(),
		store:    st,
		notifier: &recordingNotifier{},
		archiver: &fakeArchiver{},
	}
	f.service, err = NewService(Dependencies{
		Store:         st,
		Orchestrators: map[domain.Provider]scan.Orchestrator{domain.ProviderAWS: orch},
		Remediation:   dispatcher,
		Alerts:        alerts.NewDispatcher([]alerts.Notifier{f.notifier}, alerts.DefaultSettings()),
		Archiver:      f.archiver,
		Metrics:       metrics.New(),
		Clock:         clock,
	}, Settings{ReportDir: f.dir, Recipients: []string{"ops@example.com"}})
	require.NoError(t, err)
	return f
}

func TestService_Scan(t *testing.T) {
	ctx := context.Background()

	t.Run("demo scan stores, reports and archives", func(t *testing.T) {
		f := setupFixture(t)

		out, err := f.service.Scan(ctx, ScanRequest{Provider: domain.ProviderAWS, Mode: scan.ModeDemo, Alert: true})
		require.NoError(t, err)

		assert.Equal(t, 3, out.Stored)
		assert.Equal(t, 0, out.Unchanged)
		assert.Equal(t, "scan-20250301120000", out.Report.ScanID)
		assert.Equal(t, 3, out.Report.FindingsCount())
		assert.Equal(t, filepath.Join(f.dir, "security_report_20250301120000.json"), out.ReportPath)
		assert.Equal(t, "http://minio:9000/reports/security_report_20250301120000.json", out.ArchiveURL)
		assert.Equal(t, map[alerts.Channel]bool{alerts.ChannelNATS: true}, out.Alerts)

		data, err := os.ReadFile(out.ReportPath)
		require.NoError(t, err)
		var doc api.ScanReport
		require.NoError(t, json.Unmarshal(data, &doc))
		assert.Equal(t, 3, doc.FindingsCount)
		assert.Equal(t, "AWS", doc.CloudProvider)

		require.Len(t, f.notifier.alerts, 1)
		assert.Equal(t, alerts.EventComplianceSummary, f.notifier.alerts[0].Event.Type)
		assert.Equal(t, domain.SeverityCritical, f.notifier.alerts[0].Priority)

		stored, err := f.service.Findings(ctx, store.FindingFilter{}, 0)
		require.NoError(t, err)
		assert.Len(t, stored, 3)
	})

	t.Run("rescan is idempotent and ids stay unique", func(t *testing.T) {
		f := setupFixture(t)

		first, err := f.service.Scan(ctx, ScanRequest{Mode: scan.ModeDemo})
		require.NoError(t, err)
		second, err := f.service.Scan(ctx, ScanRequest{Mode: scan.ModeDemo})
		require.NoError(t, err)

		assert.Equal(t, 0, second.Stored)
		assert.Equal(t, 3, second.Unchanged)
		assert.NotEqual(t, first.Report.ScanID, second.Report.ScanID)
		assert.NotEqual(t, first.ReportPath, second.ReportPath)
		assert.Nil(t, second.Alerts)
	})

	t.Run("re-detection does not reopen a remediated finding", func(t *testing.T) {
		f := setupFixture(t)
		_, err := f.service.Scan(ctx, ScanRequest{Mode: scan.ModeDemo})
		require.NoError(t, err)

		_, found, err := f.service.Remediate(ctx, "aws-demo-001")
		require.NoError(t, err)
		require.True(t, found)

		_, err = f.service.Scan(ctx, ScanRequest{Mode: scan.ModeDemo})
		require.NoError(t, err)

		got, _, err := f.service.Finding(ctx, "aws-demo-001")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusRemediated, got.Status)
	})

	t.Run("unknown provider", func(t *testing.T) {
		f := setupFixture(t)
		_, err := f.service.Scan(ctx, ScanRequest{Provider: "GCP", Mode: scan.ModeDemo})
		assert.Error(t, err)

		out, err := f.service.Scan(ctx, ScanRequest{Provider: domain.ProviderAll, Mode: scan.ModeDemo})
		require.NoError(t, err)
		assert.Equal(t, domain.ProviderAll, out.Report.Provider)
		assert.Contains(t, out.Results, domain.ProviderAWS)
		assert.Equal(t, []domain.Provider{domain.ProviderAWS}, f.service.Providers())
	})
}

func TestService_Remediate(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t)
	_, err := f.service.Scan(ctx, ScanRequest{Mode: scan.ModeDemo})
	require.NoError(t, err)

	t.Run("simulated success marks the finding remediated", func(t *testing.T) {
		out, found, err := f.service.Remediate(ctx, "aws-demo-002")
		require.NoError(t, err)
		require.True(t, found)

		assert.Equal(t, domain.OutcomeSuccess, out.Result.Outcome)
		assert.Equal(t, "Simulated: fix sg-12345", out.Result.Action)
		assert.Equal(t, domain.StatusRemediated, out.Finding.Status)
		assert.True(t, out.Finding.UpdatedAt.After(out.Finding.CreatedAt))
		assert.NotEmpty(t, out.Record.ID)
		assert.True(t, out.Record.Simulated)
	})

	t.Run("already remediated is a no-op", func(t *testing.T) {
		out, found, err := f.service.Remediate(ctx, "aws-demo-002")
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, domain.OutcomeSuccess, out.Result.Outcome)
		assert.Contains(t, out.Result.Action, "already REMEDIATED")

		assert.Empty(t, out.Record.ID)

		records, err := f.service.Remediations(ctx, "aws-demo-002")
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})

	t.Run("unknown id is not found", func(t *testing.T) {
		_, found, err := f.service.Remediate(ctx, "aws-missing")
		require.NoError(t, err)
		assert.False(t, found)
	})
}

func TestService_RemediateAll(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t)
	_, err := f.service.Scan(ctx, ScanRequest{Mode: scan.ModeDemo})
	require.NoError(t, err)

	critical := domain.SeverityCritical
	results, err := f.service.RemediateAll(ctx, RemediateAllRequest{Severity: &critical})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "aws-demo-003", results[0].FindingID)

	var progress []workflow.RunnerProgress
	results, err = f.service.RemediateAll(ctx, RemediateAllRequest{
		Progress: func(p workflow.RunnerProgress) { progress = append(progress, p) },
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.ElementsMatch(t, []string{"aws-demo-001", "aws-demo-002"},
		[]string{results[0].FindingID, results[1].FindingID})
	require.Len(t, progress, 2)
	assert.Equal(t, 2, progress[1].Processed)
	assert.Equal(t, 2, progress[1].Total)

	open, err := f.service.Findings(ctx, store.FindingFilter{Status: string(domain.StatusOpen)}, 0)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestService_Suppress(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t)
	_, err := f.service.Scan(ctx, ScanRequest{Mode: scan.ModeDemo})
	require.NoError(t, err)

	applied, found, err := f.service.Suppress(ctx, "aws-demo-001")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, applied)

	applied, found, err = f.service.Suppress(ctx, "aws-demo-001")
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, applied)

	_, found, err = f.service.Suppress(ctx, "aws-missing")
	require.NoError(t, err)
	assert.False(t, found)

	out, _, err := f.service.Remediate(ctx, "aws-demo-001")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusSuppressed, out.Finding.Status)
}

func TestService_Alert(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t)
	_, err := f.service.Scan(ctx, ScanRequest{Mode: scan.ModeDemo})
	require.NoError(t, err)

	results, found, err := f.service.Alert(ctx, "aws-demo-003")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, map[alerts.Channel]bool{alerts.ChannelNATS: true}, results)
	require.Len(t, f.notifier.alerts, 1)
	assert.Equal(t, "#FF0000", f.notifier.alerts[0].Color)

	_, found, err = f.service.Alert(ctx, "aws-missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestService_Cleanup(t *testing.T) {
	ctx := context.Background()
	f := setupFixture(t)
	_, err := f.service.Scan(ctx, ScanRequest{Mode: scan.ModeDemo})
	require.NoError(t, err)

	res, err := f.service.Cleanup(ctx, 30)
	require.NoError(t, err)
	assert.Zero(t, res.Findings)

	res, err = f.service.Cleanup(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, res.Findings, "cutoff equal to createdAt keeps the finding")

	_, err = f.service.Cleanup(ctx, -1)
	assert.Error(t, err)
}

func TestService_Capabilities(t *testing.T) {
	f := setupFixture(t)
	caps := f.service.Capabilities()

	assert.True(t, caps["store"].IsLive())
	assert.False(t, caps["scanner.AWS"].IsLive())
	assert.True(t, f.service.Simulated())
}

func TestService_RemediateConcurrentAttemptsApplyOnce(t *testing.T) {
	ctx := context.Background()
	clock := domain.ClockFunc(func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) })

	st := findings.NewStore(memory.NewStore(), domain.Live(), time.Second, clock)
	orch, err := scan.NewOrchestrator(ctx, nil, rules.NewEvaluator(rules.DefaultSettings(), clock), scan.DefaultSettings(), clock)
	require.NoError(t, err)

	var applied int32
	revoke := remediation.HandlerFunc(func(f domain.Finding) (remediation.Action, error) {
		return remediation.Action{
			Description: "revoke ingress on " + f.Resource.ID,
			Apply: func(context.Context) error {
				if atomic.AddInt32(&applied, 1) > 1 {
					return errors.New("InvalidPermission.NotFound")
				}
				time.Sleep(20 * time.Millisecond)
				return nil
			},
		}, nil
	})
	svc, err := NewService(Dependencies{
		Store:         st,
		Orchestrators: map[domain.Provider]scan.Orchestrator{domain.ProviderAWS: orch},
		Remediation: remediation.NewDispatcher(map[domain.ResourceKind]remediation.Handler{
			domain.KindIngressRule: revoke,
		}, remediation.Settings{Live: true, Timeout: time.Second}),
		Clock: clock,
	}, Settings{})
	require.NoError(t, err)

	_, err = svc.Scan(ctx, ScanRequest{Mode: scan.ModeDemo})
	require.NoError(t, err)

	var wg sync.WaitGroup
	outcomes := make([]RemediationOutcome, 2)
	for i := range outcomes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, found, err := svc.Remediate(ctx, "aws-demo-002")
			assert.NoError(t, err)
			assert.True(t, found)
			outcomes[i] = out
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&applied))
	for _, out := range outcomes {
		assert.Equal(t, domain.OutcomeSuccess, out.Result.Outcome)
		assert.Equal(t, domain.StatusRemediated, out.Finding.Status)
	}

	records, err := svc.Remediations(ctx, "aws-demo-002")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.OutcomeSuccess, records[0].Outcome)
	assert.False(t, records[0].Simulated)
}
