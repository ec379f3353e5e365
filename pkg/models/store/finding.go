package store

import "time"

// FindingRecord is the persisted shape of a finding, shared by the SQL and document backends.
type FindingRecord struct {
	ID           string            `bson:"id"`
	Provider     string            `bson:"provider"`
	Rule         string            `bson:"rule"`
	Severity     string            `bson:"severity"`
	Status       string            `bson:"status"`
	Title        string            `bson:"title"`
	Description  string            `bson:"description"`
	Remediation  string            `bson:"remediation"`
	ResourceID   string            `bson:"resource_id"`
	ResourceName string            `bson:"resource_name"`
	ResourceType string            `bson:"resource_type"`
	ResourceKind string            `bson:"resource_kind"`
	Region       string            `bson:"region"`
	Attributes   map[string]string `bson:"attributes,omitempty"`
	CreatedAt    time.Time         `bson:"createdAt"`
	UpdatedAt    time.Time         `bson:"updatedAt"`
}

// FindingFilter selects findings by exact match; empty fields match everything.
type FindingFilter struct {
	Provider     string
	Severity     string
	Status       string
	ResourceKind string
}

type ReportRecord struct {
	ScanID        string    `bson:"scan_id"`
	Provider      string    `bson:"cloud_provider"`
	FindingsCount int       `bson:"findings_count"`
	FindingIDs    []string  `bson:"finding_ids"`
	Payload       []byte    `bson:"payload"`
	CreatedAt     time.Time `bson:"timestamp"`
}

type RemediationRecord struct {
	ID          string    `bson:"id"`
	FindingID   string    `bson:"finding_id"`
	ActionTaken string    `bson:"action_taken"`
	Outcome     string    `bson:"outcome"`
	Error       string    `bson:"error,omitempty"`
	Simulated   bool      `bson:"simulated"`
	CreatedAt   time.Time `bson:"timestamp"`
}

type CleanupResult struct {
	Findings     int64
	Reports      int64
	Remediations int64
}
