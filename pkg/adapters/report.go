package adapters

import (
	"encoding/json"
	"fmt"

	"github.com/de-tools/cloud-sentinel/pkg/models/api"
	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
	"github.com/de-tools/cloud-sentinel/pkg/models/store"
)

func MapScanReportDomainToApi(r domain.ScanReport) api.ScanReport {
	return api.ScanReport{
		ScanID:        r.ScanID,
		Timestamp:     r.Timestamp,
		CloudProvider: string(r.Provider),
		FindingsCount: r.FindingsCount(),
		Findings:      MapFindingsDomainToApi(r.Findings),
	}
}

func MapScanReportDomainToStore(r domain.ScanReport) (store.ReportRecord, error) {
	payload, err := json.Marshal(MapScanReportDomainToApi(r))
	if err != nil {
		return store.ReportRecord{}, fmt.Errorf("marshal report %s: %w", r.ScanID, err)
	}

	ids := make([]string, 0, len(r.Findings))
	for _, f := range r.Findings {
		ids = append(ids, f.ID)
	}

	return store.ReportRecord{
		ScanID:        r.ScanID,
		Provider:      string(r.Provider),
		FindingsCount: r.FindingsCount(),
		FindingIDs:    ids,
		Payload:       payload,
		CreatedAt:     domain.NormalizeTime(r.Timestamp),
	}, nil
}

func MapRemediationDomainToStore(r domain.RemediationRecord) store.RemediationRecord {
	return store.RemediationRecord{
		ID:          r.ID,
		FindingID:   r.FindingID,
		ActionTaken: r.ActionTaken,
		Outcome:     string(r.Outcome),
		Error:       r.Error,
		Simulated:   r.Simulated,
		CreatedAt:   domain.NormalizeTime(r.Timestamp),
	}
}

func MapRemediationStoreToDomain(r store.RemediationRecord) domain.RemediationRecord {
	return domain.RemediationRecord{
		ID:          r.ID,
		FindingID:   r.FindingID,
		ActionTaken: r.ActionTaken,
		Outcome:     domain.Outcome(r.Outcome),
		Error:       r.Error,
		Simulated:   r.Simulated,
		Timestamp:   domain.NormalizeTime(r.CreatedAt),
	}
}

func MapRemediationDomainToApi(r domain.RemediationRecord) api.RemediationRecord {
	return api.RemediationRecord{
		ID:          r.ID,
		FindingID:   r.FindingID,
		ActionTaken: r.ActionTaken,
		Outcome:     string(r.Outcome),
		Error:       r.Error,
		Simulated:   r.Simulated,
		Timestamp:   r.Timestamp,
	}
}
