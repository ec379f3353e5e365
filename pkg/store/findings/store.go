package findings

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/de-tools/cloud-sentinel/pkg/adapters"
	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
	"github.com/de-tools/cloud-sentinel/pkg/models/store"
)

// Backend is the raw persistence contract every driver implements. GetFinding
// returns nil, nil for an unknown id. QueryFindings orders by createdAt
// descending with id ascending as tie-break.
type Backend interface {
	Name() string
	GetFinding(ctx context.Context, id string) (*store.FindingRecord, error)
	PutFinding(ctx context.Context, rec store.FindingRecord) error
	QueryFindings(ctx context.Context, filter store.FindingFilter, limit int) ([]store.FindingRecord, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (store.CleanupResult, error)
	InsertReport(ctx context.Context, rec store.ReportRecord) error
	InsertRemediation(ctx context.Context, rec store.RemediationRecord) error
	ListRemediations(ctx context.Context, findingID string) ([]store.RemediationRecord, error)
	Close() error
}

// Store is the finding lifecycle store. Its semantics are identical for every backend.
type Store interface {
	// Upsert creates or merges a finding and reports whether anything changed.
	Upsert(ctx context.Context, f domain.Finding) (bool, error)
	Get(ctx context.Context, id string) (domain.Finding, bool, error)
	Query(ctx context.Context, filter store.FindingFilter, limit int) ([]domain.Finding, error)
	// UpdateStatus applies a status transition. It returns false when the id is
	// unknown or the transition is not allowed from the current status.
	UpdateStatus(ctx context.Context, id string, status domain.Status) (bool, error)
	Cleanup(ctx context.Context, olderThanDays int) (store.CleanupResult, error)
	AddReport(ctx context.Context, r domain.ScanReport) error
	AddRemediation(ctx context.Context, r domain.RemediationRecord) error
	ListRemediations(ctx context.Context, findingID string) ([]domain.RemediationRecord, error)
	Capability() domain.Capability
	Backend() string
	Close() error
}

type findingStore struct {
	backend    Backend
	capability domain.Capability
	opTimeout  time.Duration
	clock      domain.Clock

	// serializes read-merge-write sequences
	mu sync.Mutex
}

func NewStore(backend Backend, capability domain.Capability, opTimeout time.Duration, clock domain.Clock) Store {
	if clock == nil {
		clock = domain.SystemClock{}
	}
	if opTimeout <= 0 {
		opTimeout = DefaultSettings().OpTimeout
	}
	return &findingStore{
		backend:    backend,
		capability: capability,
		opTimeout:  opTimeout,
		clock:      clock,
	}
}

func (s *findingStore) Capability() domain.Capability {
	return s.capability
}

func (s *findingStore) Backend() string {
	return s.backend.Name()
}

// call runs one backend operation under the store timeout.
func (s *findingStore) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return domain.NewTransportError(s.backend.Name(), op, fn(ctx))
}

func (s *findingStore) Upsert(ctx context.Context, f domain.Finding) (bool, error) {
	if f.ID == "" {
		return false, fmt.Errorf("finding id is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.get(ctx, f.ID)
	if err != nil {
		return false, err
	}

	merged, changed := domain.MergeFinding(stored, f, s.clock.Now())
	if !changed {
		return false, nil
	}

	err = s.call(ctx, "put finding", func(ctx context.Context) error {
		return s.backend.PutFinding(ctx, adapters.MapFindingDomainToStore(merged))
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *findingStore) get(ctx context.Context, id string) (*domain.Finding, error) {
	var rec *store.FindingRecord
	err := s.call(ctx, "get finding", func(ctx context.Context) error {
		var err error
		rec, err = s.backend.GetFinding(ctx, id)
		return err
	})
	if err != nil || rec == nil {
		return nil, err
	}
	f := adapters.MapFindingStoreToDomain(*rec)
	return &f, nil
}

func (s *findingStore) Get(ctx context.Context, id string) (domain.Finding, bool, error) {
	f, err := s.get(ctx, id)
	if err != nil {
		return domain.Finding{}, false, err
	}
	if f == nil {
		return domain.Finding{}, false, nil
	}
	return *f, true, nil
}

func (s *findingStore) Query(ctx context.Context, filter store.FindingFilter, limit int) ([]domain.Finding, error) {
	var records []store.FindingRecord
	err := s.call(ctx, "query findings", func(ctx context.Context) error {
		var err error
		records, err = s.backend.QueryFindings(ctx, filter, limit)
		return err
	})
	if err != nil {
		return nil, err
	}

	res := make([]domain.Finding, 0, len(records))
	for _, rec := range records {
		res = append(res, adapters.MapFindingStoreToDomain(rec))
	}
	return res, nil
}

func (s *findingStore) UpdateStatus(ctx context.Context, id string, status domain.Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.get(ctx, id)
	if err != nil || stored == nil {
		return false, err
	}
	if !domain.CanTransition(stored.Status, status) {
		return false, nil
	}

	updated := *stored
	updated.Status = status
	updated.UpdatedAt = domain.NormalizeTime(s.clock.Now())
	if !updated.UpdatedAt.After(stored.UpdatedAt) {
		updated.UpdatedAt = stored.UpdatedAt.Add(time.Millisecond)
	}

	err = s.call(ctx, "update status", func(ctx context.Context) error {
		return s.backend.PutFinding(ctx, adapters.MapFindingDomainToStore(updated))
	})
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *findingStore) Cleanup(ctx context.Context, olderThanDays int) (store.CleanupResult, error) {
	if olderThanDays < 0 {
		return store.CleanupResult{}, fmt.Errorf("retention must not be negative: %d", olderThanDays)
	}
	cutoff := s.clock.Now().UTC().Add(-time.Duration(olderThanDays) * 24 * time.Hour)

	var result store.CleanupResult
	err := s.call(ctx, "cleanup", func(ctx context.Context) error {
		var err error
		result, err = s.backend.DeleteBefore(ctx, cutoff)
		return err
	})
	return result, err
}

func (s *findingStore) AddReport(ctx context.Context, r domain.ScanReport) error {
	rec, err := adapters.MapScanReportDomainToStore(r)
	if err != nil {
		return err
	}
	return s.call(ctx, "insert report", func(ctx context.Context) error {
		return s.backend.InsertReport(ctx, rec)
	})
}

func (s *findingStore) AddRemediation(ctx context.Context, r domain.RemediationRecord) error {
	return s.call(ctx, "insert remediation", func(ctx context.Context) error {
		return s.backend.InsertRemediation(ctx, adapters.MapRemediationDomainToStore(r))
	})
}

func (s *findingStore) ListRemediations(ctx context.Context, findingID string) ([]domain.RemediationRecord, error) {
	var records []store.RemediationRecord
	err := s.call(ctx, "list remediations", func(ctx context.Context) error {
		var err error
		records, err = s.backend.ListRemediations(ctx, findingID)
		return err
	})
	if err != nil {
		return nil, err
	}

	res := make([]domain.RemediationRecord, 0, len(records))
	for _, rec := range records {
		res = append(res, adapters.MapRemediationStoreToDomain(rec))
	}
	return res, nil
}

func (s *findingStore) Close() error {
	return s.backend.Close()
}
