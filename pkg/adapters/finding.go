package adapters

import (
	"maps"

	"github.com/de-tools/cloud-sentinel/pkg/models/api"
	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
	"github.com/de-tools/cloud-sentinel/pkg/models/store"
)

func MapSeverityDomainToApi(s domain.Severity) api.Severity {
	switch s {
	case domain.SeverityCritical:
		return api.SeverityCritical
	case domain.SeverityHigh:
		return api.SeverityHigh
	case domain.SeverityMedium:
		return api.SeverityMedium
	case domain.SeverityLow:
		return api.SeverityLow
	default:
		return api.SeverityInfo
	}
}

func MapFindingDomainToApi(f domain.Finding) api.Finding {
	return api.Finding{
		ID:          f.ID,
		Provider:    string(f.Provider),
		Rule:        f.Rule,
		Severity:    MapSeverityDomainToApi(f.Severity),
		Status:      string(f.Status),
		Title:       f.Title,
		Description: f.Description,
		Remediation: f.Remediation,
		Resource: api.Resource{
			ID:     f.Resource.ID,
			Name:   f.Resource.Name,
			Type:   f.Resource.Type,
			Kind:   string(f.Resource.Kind),
			Region: f.Resource.Region,
		},
		Attributes: maps.Clone(f.Attributes),
		CreatedAt:  f.CreatedAt,
		UpdatedAt:  f.UpdatedAt,
	}
}

func MapFindingsDomainToApi(findings []domain.Finding) []api.Finding {
	res := make([]api.Finding, 0, len(findings))
	for _, f := range findings {
		res = append(res, MapFindingDomainToApi(f))
	}
	return res
}

func MapFindingDomainToStore(f domain.Finding) store.FindingRecord {
	return store.FindingRecord{
		ID:           f.ID,
		Provider:     string(f.Provider),
		Rule:         f.Rule,
		Severity:     f.Severity.String(),
		Status:       string(f.Status),
		Title:        f.Title,
		Description:  f.Description,
		Remediation:  f.Remediation,
		ResourceID:   f.Resource.ID,
		ResourceName: f.Resource.Name,
		ResourceType: f.Resource.Type,
		ResourceKind: string(f.Resource.Kind),
		Region:       f.Resource.Region,
		Attributes:   maps.Clone(f.Attributes),
		CreatedAt:    domain.NormalizeTime(f.CreatedAt),
		UpdatedAt:    domain.NormalizeTime(f.UpdatedAt),
	}
}

// MapFindingStoreToDomain tolerates unknown severities from legacy records by
// falling back to INFO.
func MapFindingStoreToDomain(r store.FindingRecord) domain.Finding {
	severity, err := domain.ParseSeverity(r.Severity)
	if err != nil {
		severity = domain.SeverityInfo
	}
	kind := domain.ResourceKind(r.ResourceKind)
	if kind == domain.KindUnknown {
		kind = domain.ParseResourceKind(r.ResourceType)
	}
	var attrs map[string]string
	if len(r.Attributes) > 0 {
		attrs = maps.Clone(r.Attributes)
	}
	return domain.Finding{
		ID:          r.ID,
		Provider:    domain.Provider(r.Provider),
		Rule:        r.Rule,
		Severity:    severity,
		Status:      domain.Status(r.Status),
		Title:       r.Title,
		Description: r.Description,
		Remediation: r.Remediation,
		Resource: domain.ResourceRef{
			ID:     r.ResourceID,
			Name:   r.ResourceName,
			Type:   r.ResourceType,
			Kind:   kind,
			Region: r.Region,
		},
		Attributes: attrs,
		CreatedAt:  domain.NormalizeTime(r.CreatedAt),
		UpdatedAt:  domain.NormalizeTime(r.UpdatedAt),
	}
}

func MapCapabilitiesDomainToApi(caps map[string]domain.Capability) map[string]api.Capability {
	res := make(map[string]api.Capability, len(caps))
	for name, c := range caps {
		res[name] = api.Capability{State: string(c.State), Reason: c.Reason}
	}
	return res
}
