package domain

import (
	"fmt"
	"maps"
	"strings"
	"time"
)

// Severity is totally ordered: SeverityInfo < SeverityLow < ... < SeverityCritical.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityLow
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityInfo:     "INFO",
	SeverityLow:      "LOW",
	SeverityMedium:   "MEDIUM",
	SeverityHigh:     "HIGH",
	SeverityCritical: "CRITICAL",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

func ParseSeverity(value string) (Severity, error) {
	v := strings.ToUpper(strings.TrimSpace(value))
	for sev, name := range severityNames {
		if name == v {
			return sev, nil
		}
	}
	return SeverityInfo, fmt.Errorf("unknown severity: %q", value)
}

// Severities returns all severities from the highest to the lowest.
func Severities() []Severity {
	return []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow, SeverityInfo}
}

type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusRemediated Status = "REMEDIATED"
	StatusSuppressed Status = "SUPPRESSED"
)

// Terminal reports whether no further transition is defined from s.
func (s Status) Terminal() bool {
	return s == StatusRemediated || s == StatusSuppressed
}

// CanTransition reports whether from -> to is an allowed status transition.
func CanTransition(from, to Status) bool {
	return from == StatusOpen && (to == StatusRemediated || to == StatusSuppressed)
}

func ParseStatus(value string) (Status, error) {
	switch s := Status(strings.ToUpper(strings.TrimSpace(value))); s {
	case StatusOpen, StatusRemediated, StatusSuppressed:
		return s, nil
	default:
		return "", fmt.Errorf("unknown status: %q", value)
	}
}

type Provider string

const (
	ProviderAWS Provider = "AWS"
	ProviderAll Provider = "ALL"
)

func ParseProvider(value string) (Provider, error) {
	switch p := Provider(strings.ToUpper(strings.TrimSpace(value))); p {
	case ProviderAWS, ProviderAll:
		return p, nil
	default:
		return "", fmt.Errorf("unsupported cloud provider: %q", value)
	}
}

type ResourceRef struct {
	ID     string
	Name   string
	Type   string // S3 Bucket, Security Group, IAM User
	Kind   ResourceKind
	Region string
}

type Finding struct {
	ID          string
	Provider    Provider
	Rule        string
	Severity    Severity
	Status      Status
	Title       string
	Description string
	Remediation string
	Resource    ResourceRef
	Attributes  map[string]string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// FindingID builds the dedup key of a finding: {provider}-{rule}-{resource}.
func FindingID(provider Provider, rule, resourceID string) string {
	return fmt.Sprintf("%s-%s-%s", strings.ToLower(string(provider)), rule, resourceID)
}

func (f Finding) Clone() Finding {
	c := f
	if f.Attributes != nil {
		c.Attributes = maps.Clone(f.Attributes)
	}
	return c
}

// Equal compares every field, timestamps included, at the store precision.
func (f Finding) Equal(o Finding) bool {
	if f.ID != o.ID || f.Provider != o.Provider || f.Rule != o.Rule ||
		f.Severity != o.Severity || f.Status != o.Status ||
		f.Title != o.Title || f.Description != o.Description || f.Remediation != o.Remediation ||
		f.Resource != o.Resource {
		return false
	}
	if len(f.Attributes) != len(o.Attributes) {
		return false
	}
	for k, v := range f.Attributes {
		if ov, ok := o.Attributes[k]; !ok || ov != v {
			return false
		}
	}
	return NormalizeTime(f.CreatedAt).Equal(NormalizeTime(o.CreatedAt)) &&
		NormalizeTime(f.UpdatedAt).Equal(NormalizeTime(o.UpdatedAt))
}

// NormalizeTime brings a timestamp to the precision every store backend can hold.
func NormalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Time{}
	}
	return t.UTC().Truncate(time.Millisecond)
}

// Normalize returns a copy with normalized timestamps and a resolved resource kind.
func (f Finding) Normalize() Finding {
	c := f.Clone()
	c.CreatedAt = NormalizeTime(f.CreatedAt)
	c.UpdatedAt = NormalizeTime(f.UpdatedAt)
	if c.Resource.Kind == KindUnknown {
		c.Resource.Kind = ParseResourceKind(c.Resource.Type)
	}
	if c.Status == "" {
		c.Status = StatusOpen
	}
	return c
}

// MergeFinding applies an incoming scan result on top of the stored record.
// Content fields are overwritten. CreatedAt is always preserved, and Status and
// UpdatedAt belong to status transitions, so a re-detection never reopens a
// remediated or suppressed finding. The boolean reports whether the merged record
// differs from the stored one.
func MergeFinding(stored *Finding, incoming Finding, now time.Time) (Finding, bool) {
	in := incoming.Normalize()
	if stored == nil {
		if in.CreatedAt.IsZero() {
			in.CreatedAt = NormalizeTime(now)
		}
		if in.UpdatedAt.IsZero() {
			in.UpdatedAt = in.CreatedAt
		}
		return in, true
	}

	prev := stored.Normalize()
	merged := in
	merged.CreatedAt = prev.CreatedAt
	merged.Status = prev.Status
	merged.UpdatedAt = prev.UpdatedAt

	return merged, !merged.Equal(prev)
}
