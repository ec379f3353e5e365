package domain

import "time"

// ScanReport is the immutable aggregate produced by one scan pass.
type ScanReport struct {
	ScanID    string
	Timestamp time.Time
	Provider  Provider
	// Findings keeps discovery order.
	Findings []Finding
}

func (r ScanReport) FindingsCount() int {
	return len(r.Findings)
}

// SeverityCounts returns the number of findings per severity.
func (r ScanReport) SeverityCounts() map[Severity]int {
	counts := make(map[Severity]int, len(severityNames))
	for _, sev := range Severities() {
		counts[sev] = 0
	}
	for _, f := range r.Findings {
		counts[f.Severity]++
	}
	return counts
}

// HighestSeverity returns the most severe finding level, or SeverityInfo for a clean report.
func (r ScanReport) HighestSeverity() Severity {
	highest := SeverityInfo
	for _, f := range r.Findings {
		if f.Severity > highest {
			highest = f.Severity
		}
	}
	return highest
}

// FailedRules lists distinct rules with at least one finding, in discovery order.
func (r ScanReport) FailedRules() []string {
	seen := make(map[string]struct{})
	var rules []string
	for _, f := range r.Findings {
		rule := f.Rule
		if rule == "" {
			rule = f.Title
		}
		if _, ok := seen[rule]; ok {
			continue
		}
		seen[rule] = struct{}{}
		rules = append(rules, rule)
	}
	return rules
}
