package api

import "time"

type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
	SeverityInfo     Severity = "INFO"
)

type Resource struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"`
	Kind   string `json:"kind,omitempty"`
	Region string `json:"region"`
}

type Finding struct {
	ID          string            `json:"id"`
	Provider    string            `json:"provider"`
	Rule        string            `json:"rule,omitempty"`
	Severity    Severity          `json:"severity"`
	Status      string            `json:"status"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	Remediation string            `json:"remediation"`
	Resource    Resource          `json:"resource"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// ScanReport is the document written to security_report_<timestamp>.json.
type ScanReport struct {
	ScanID        string    `json:"scan_id"`
	Timestamp     time.Time `json:"timestamp"`
	CloudProvider string    `json:"cloud_provider"`
	FindingsCount int       `json:"findings_count"`
	Findings      []Finding `json:"findings"`
}

type RemediationRecord struct {
	ID          string    `json:"id"`
	FindingID   string    `json:"finding_id"`
	ActionTaken string    `json:"action_taken"`
	Outcome     string    `json:"outcome"`
	Error       string    `json:"error,omitempty"`
	Simulated   bool      `json:"simulated"`
	Timestamp   time.Time `json:"timestamp"`
}

type RemediationResponse struct {
	FindingID string `json:"finding_id"`
	Outcome   string `json:"outcome"`
	Message   string `json:"message"`
	Status    string `json:"status"`
}

type ScanResponse struct {
	Report    ScanReport `json:"report"`
	Stored    int        `json:"stored"`
	Unchanged int        `json:"unchanged"`
	Mode      string     `json:"mode"`
	Reason    string     `json:"reason,omitempty"`
}

type Error struct {
	Message string `json:"error"`
}

type Capability struct {
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

type Health struct {
	Status       string                `json:"status"`
	Capabilities map[string]Capability `json:"capabilities"`
}
