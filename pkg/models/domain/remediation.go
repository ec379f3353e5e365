package domain

import "time"

type Outcome string

const (
	OutcomeSuccess     Outcome = "SUCCESS"
	OutcomeFailure     Outcome = "FAILURE"
	OutcomeUnsupported Outcome = "UNSUPPORTED"
)

// RemediationRecord is one entry of the append-only remediation audit trail.
type RemediationRecord struct {
	ID          string
	FindingID   string
	ActionTaken string
	Outcome     Outcome
	Error       string
	Simulated   bool
	Timestamp   time.Time
}
