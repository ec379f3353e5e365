package findings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
	"github.com/de-tools/cloud-sentinel/pkg/models/store"
	"github.com/de-tools/cloud-sentinel/pkg/store/duckdb"
	"github.com/de-tools/cloud-sentinel/pkg/store/memory"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newFinding(id string, sev domain.Severity, createdAt time.Time) domain.Finding {
	return domain.Finding{
		ID:          id,
		Provider:    domain.ProviderAWS,
		Rule:        "s3-public",
		Severity:    sev,
		Status:      domain.StatusOpen,
		Title:       "S3 Bucket Public Access Not Blocked",
		Description: "bucket " + id,
		Remediation: "Enable all public access block settings for the S3 bucket",
		Resource: domain.ResourceRef{
			ID:     id,
			Name:   id,
			Type:   "S3 Bucket",
			Kind:   domain.KindBucket,
			Region: "us-east-1",
		},
		Attributes: map[string]string{"block_public_acls": "false"},
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
}

type backendFactory struct {
	name string
	new  func(t *testing.T) Backend
}

func backends() []backendFactory {
	return []backendFactory{
		{
			name: "memory",
			new: func(t *testing.T) Backend {
				return memory.NewStore()
			},
		},
		{
			name: "duckdb",
			new: func(t *testing.T) Backend {
				db, err := duckdb.NewDB(duckdb.Settings{DbPath: ":memory:"})
				require.NoError(t, err)
				b, err := duckdb.NewFindingStore(db)
				require.NoError(t, err)
				return b
			},
		},
	}
}

// observation is everything a caller can see from one run of the scenario.
type observation struct {
	Upserts       []bool
	Found         bool
	Fetched       domain.Finding
	Applied       []bool
	AfterUpdate   domain.Finding
	AfterRescan   domain.Finding
	Queried       []string
	HighOnly      []string
	Cleanup       store.CleanupResult
	AfterCleanup  []string
	Remediations  []string
	MissingExists bool
}

func runScenario(t *testing.T, s Store, clock *testClock) observation {
	ctx := context.Background()
	var obs observation
	base := clock.now

	first := newFinding("aws-s3-public-b1", domain.SeverityHigh, base.Add(123456789*time.Nanosecond))
	second := newFinding("aws-s3-public-b2", domain.SeverityMedium, base.Add(time.Minute))
	old := newFinding("aws-s3-public-b0", domain.SeverityHigh, base.AddDate(0, 0, -40))

	for _, f := range []domain.Finding{first, first, second, old} {
		stored, err := s.Upsert(ctx, f)
		require.NoError(t, err)
		obs.Upserts = append(obs.Upserts, stored)
	}

	changed := first
	changed.Description = "changed"
	changed.CreatedAt = base.Add(time.Hour)
	stored, err := s.Upsert(ctx, changed)
	require.NoError(t, err)
	obs.Upserts = append(obs.Upserts, stored)

	obs.Fetched, obs.Found, err = s.Get(ctx, first.ID)
	require.NoError(t, err)

	_, obs.MissingExists, err = s.Get(ctx, "missing")
	require.NoError(t, err)

	clock.advance(time.Minute)
	for _, call := range []struct {
		id     string
		status domain.Status
	}{
		{first.ID, domain.StatusRemediated},
		{first.ID, domain.StatusRemediated},
		{"missing", domain.StatusRemediated},
		{first.ID, domain.StatusOpen},
	} {
		applied, err := s.UpdateStatus(ctx, call.id, call.status)
		require.NoError(t, err)
		obs.Applied = append(obs.Applied, applied)
	}

	obs.AfterUpdate, _, err = s.Get(ctx, first.ID)
	require.NoError(t, err)

	// re-detection of a remediated finding
	_, err = s.Upsert(ctx, first)
	require.NoError(t, err)
	obs.AfterRescan, _, err = s.Get(ctx, first.ID)
	require.NoError(t, err)

	queried, err := s.Query(ctx, store.FindingFilter{}, 10)
	require.NoError(t, err)
	for _, f := range queried {
		obs.Queried = append(obs.Queried, f.ID)
	}

	high, err := s.Query(ctx, store.FindingFilter{Severity: "HIGH", Status: "OPEN"}, 0)
	require.NoError(t, err)
	for _, f := range high {
		obs.HighOnly = append(obs.HighOnly, f.ID)
	}

	require.NoError(t, s.AddRemediation(ctx, domain.RemediationRecord{
		ID: "r1", FindingID: first.ID, ActionTaken: "simulated", Outcome: domain.OutcomeSuccess, Simulated: true, Timestamp: clock.now,
	}))
	remediations, err := s.ListRemediations(ctx, first.ID)
	require.NoError(t, err)
	for _, r := range remediations {
		obs.Remediations = append(obs.Remediations, r.ID+":"+string(r.Outcome))
	}

	require.NoError(t, s.AddReport(ctx, domain.ScanReport{
		ScanID: "scan-1", Timestamp: base.AddDate(0, 0, -40), Provider: domain.ProviderAWS, Findings: []domain.Finding{old},
	}))

	obs.Cleanup, err = s.Cleanup(ctx, 30)
	require.NoError(t, err)

	remaining, err := s.Query(ctx, store.FindingFilter{}, 0)
	require.NoError(t, err)
	for _, f := range remaining {
		obs.AfterCleanup = append(obs.AfterCleanup, f.ID)
	}
	return obs
}

func TestStore_BackendSymmetry(t *testing.T) {
	start := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	results := make(map[string]observation)

	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			clock := &testClock{now: start}
			s := NewStore(b.new(t), domain.Live(), time.Second, clock)
			t.Cleanup(func() { _ = s.Close() })

			obs := runScenario(t, s, clock)
			results[b.name] = obs

			assert.Equal(t, []bool{true, false, true, true, true}, obs.Upserts)
			assert.True(t, obs.Found)
			assert.False(t, obs.MissingExists)
			assert.Equal(t, "changed", obs.Fetched.Description)
			assert.Equal(t, start.Add(123*time.Millisecond), obs.Fetched.CreatedAt)

			assert.Equal(t, []bool{true, false, false, false}, obs.Applied)
			assert.Equal(t, domain.StatusRemediated, obs.AfterUpdate.Status)
			assert.Equal(t, start.Add(time.Minute), obs.AfterUpdate.UpdatedAt)

			assert.Equal(t, domain.StatusRemediated, obs.AfterRescan.Status)
			assert.Equal(t, "bucket aws-s3-public-b1", obs.AfterRescan.Description)

			assert.Equal(t, []string{"aws-s3-public-b2", "aws-s3-public-b1", "aws-s3-public-b0"}, obs.Queried)
			assert.Equal(t, []string{"aws-s3-public-b0"}, obs.HighOnly)
			assert.Equal(t, []string{"r1:SUCCESS"}, obs.Remediations)
			assert.Equal(t, store.CleanupResult{Findings: 1, Reports: 1}, obs.Cleanup)
			assert.Equal(t, []string{"aws-s3-public-b2", "aws-s3-public-b1"}, obs.AfterCleanup)
		})
	}

	if len(results) == 2 {
		assert.Equal(t, results["memory"], results["duckdb"])
	}
}

func TestStore_UpsertValidation(t *testing.T) {
	s := NewStore(memory.NewStore(), domain.Live(), time.Second, nil)
	_, err := s.Upsert(context.Background(), domain.Finding{})
	assert.Error(t, err)

	_, err = s.Cleanup(context.Background(), -1)
	assert.Error(t, err)
}

type mockBackend struct {
	mock.Mock
	*memory.Store
}

func (m *mockBackend) Name() string { return "mock" }

func (m *mockBackend) GetFinding(ctx context.Context, id string) (*store.FindingRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.FindingRecord), args.Error(1)
}

func TestStore_TransportErrors(t *testing.T) {
	t.Run("backend failure is wrapped", func(t *testing.T) {
		b := &mockBackend{Store: memory.NewStore()}
		b.On("GetFinding", mock.Anything, "x").Return(nil, errors.New("connection refused"))

		s := NewStore(b, domain.Live(), time.Second, nil)
		_, _, err := s.Get(context.Background(), "x")
		require.Error(t, err)

		var te *domain.TransportError
		require.ErrorAs(t, err, &te)
		assert.Equal(t, "mock", te.System)
		assert.Equal(t, "get finding", te.Op)
	})

	t.Run("backend call is bounded", func(t *testing.T) {
		b := &mockBackend{Store: memory.NewStore()}
		b.On("GetFinding", mock.Anything, "slow").
			Run(func(args mock.Arguments) {
				<-args.Get(0).(context.Context).Done()
			}).
			Return(nil, context.DeadlineExceeded)

		s := NewStore(b, domain.Live(), 20*time.Millisecond, nil)
		_, err := s.Upsert(context.Background(), newFinding("slow", domain.SeverityLow, time.Now()))
		require.Error(t, err)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("memory driver is live", func(t *testing.T) {
		s, err := Open(ctx, Settings{Driver: DriverMemory}, nil)
		require.NoError(t, err)
		assert.True(t, s.Capability().IsLive())
		assert.Equal(t, "memory", s.Backend())
	})

	t.Run("duckdb driver", func(t *testing.T) {
		s, err := Open(ctx, Settings{Driver: DriverDuckDB, DuckDBPath: ":memory:"}, nil)
		require.NoError(t, err)
		defer s.Close()
		assert.True(t, s.Capability().IsLive())
		assert.Equal(t, "duckdb", s.Backend())
	})

	t.Run("unreachable mongodb falls back to memory", func(t *testing.T) {
		s, err := Open(ctx, Settings{
			Driver:         DriverMongoDB,
			MongoURI:       "mongodb://127.0.0.1:1/?directConnection=true",
			ConnectTimeout: 200 * time.Millisecond,
		}, nil)
		require.NoError(t, err)
		assert.False(t, s.Capability().IsLive())
		assert.NotEmpty(t, s.Capability().Reason)
		assert.Equal(t, "memory", s.Backend())

		stored, err := s.Upsert(ctx, newFinding("f1", domain.SeverityHigh, time.Now()))
		require.NoError(t, err)
		assert.True(t, stored)
	})

	t.Run("unknown driver is a setup error", func(t *testing.T) {
		_, err := Open(ctx, Settings{Driver: "oracle"}, nil)
		assert.True(t, domain.IsSetupError(err))
	})
}
