package memory

import (
	"context"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/de-tools/cloud-sentinel/pkg/models/store"
)

// Store is the in-process backend: findings keyed by id, reports and
// remediation records appended in order. It is safe for concurrent use.
type Store struct {
	mu           sync.RWMutex
	findings     map[string]store.FindingRecord
	reports      []store.ReportRecord
	remediations []store.RemediationRecord
}

func NewStore() *Store {
	return &Store{
		findings: make(map[string]store.FindingRecord),
	}
}

func (s *Store) Name() string {
	return "memory"
}

func (s *Store) GetFinding(_ context.Context, id string) (*store.FindingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.findings[id]
	if !ok {
		return nil, nil
	}
	rec = cloneFinding(rec)
	return &rec, nil
}

func (s *Store) PutFinding(_ context.Context, rec store.FindingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.findings[rec.ID] = cloneFinding(rec)
	return nil
}

func (s *Store) QueryFindings(_ context.Context, filter store.FindingFilter, limit int) ([]store.FindingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]store.FindingRecord, 0, len(s.findings))
	for _, rec := range s.findings {
		if matches(rec, filter) {
			res = append(res, cloneFinding(rec))
		}
	}

	sort.Slice(res, func(i, j int) bool {
		if !res[i].CreatedAt.Equal(res[j].CreatedAt) {
			return res[i].CreatedAt.After(res[j].CreatedAt)
		}
		return res[i].ID < res[j].ID
	})

	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (s *Store) DeleteBefore(_ context.Context, cutoff time.Time) (store.CleanupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result store.CleanupResult
	for id, rec := range s.findings {
		if rec.CreatedAt.Before(cutoff) {
			delete(s.findings, id)
			result.Findings++
		}
	}

	reports := s.reports[:0]
	for _, r := range s.reports {
		if r.CreatedAt.Before(cutoff) {
			result.Reports++
			continue
		}
		reports = append(reports, r)
	}
	s.reports = reports

	remediations := s.remediations[:0]
	for _, r := range s.remediations {
		if r.CreatedAt.Before(cutoff) {
			result.Remediations++
			continue
		}
		remediations = append(remediations, r)
	}
	s.remediations = remediations

	return result, nil
}

func (s *Store) InsertReport(_ context.Context, rec store.ReportRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec.FindingIDs = slices.Clone(rec.FindingIDs)
	rec.Payload = slices.Clone(rec.Payload)
	s.reports = append(s.reports, rec)
	return nil
}

func (s *Store) InsertRemediation(_ context.Context, rec store.RemediationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.remediations = append(s.remediations, rec)
	return nil
}

func (s *Store) ListRemediations(_ context.Context, findingID string) ([]store.RemediationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make([]store.RemediationRecord, 0)
	for _, r := range s.remediations {
		if findingID == "" || r.FindingID == findingID {
			res = append(res, r)
		}
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt.Before(res[j].CreatedAt)
	})
	return res, nil
}

func (s *Store) Close() error {
	return nil
}

func matches(rec store.FindingRecord, filter store.FindingFilter) bool {
	if filter.Provider != "" && rec.Provider != filter.Provider {
		return false
	}
	if filter.Severity != "" && rec.Severity != filter.Severity {
		return false
	}
	if filter.Status != "" && rec.Status != filter.Status {
		return false
	}
	if filter.ResourceKind != "" && rec.ResourceKind != filter.ResourceKind {
		return false
	}
	return true
}

func cloneFinding(rec store.FindingRecord) store.FindingRecord {
	if rec.Attributes != nil {
		rec.Attributes = maps.Clone(rec.Attributes)
	}
	return rec
}
