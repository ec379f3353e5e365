package alerts

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/de-tools/cloud-sentinel/pkg/adapters"
	"github.com/de-tools/cloud-sentinel/pkg/models/api"
	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
)

type Channel string

const (
	ChannelSlack Channel = "slack"
	ChannelEmail Channel = "email"
	ChannelNATS  Channel = "nats"
)

const (
	EventFinding           = "finding"
	EventComplianceSummary = "compliance_summary"
)

// chatRuleLimit caps the failed rules listed in a chat summary; email lists all.
const chatRuleLimit = 5

// severityColors is shared by finding and compliance-summary alerts.
var severityColors = map[domain.Severity]string{
	domain.SeverityCritical: "#FF0000",
	domain.SeverityHigh:     "#FFA500",
	domain.SeverityMedium:   "#FFFF00",
	domain.SeverityLow:      "#00FF00",
	domain.SeverityInfo:     "#0000FF",
}

func SeverityColor(s domain.Severity) string {
	if color, ok := severityColors[s]; ok {
		return color
	}
	return severityColors[domain.SeverityInfo]
}

// Alert is one alert rendered for every channel.
type Alert struct {
	Priority domain.Severity
	Color    string
	Chat     string
	Subject  string
	Body     string
	Event    Event
}

// Event is the structured form published on the event channel.
type Event struct {
	Type     string       `json:"type"`
	Severity api.Severity `json:"severity"`
	Color    string       `json:"color"`
	Title    string       `json:"title"`
	Finding  *api.Finding `json:"finding,omitempty"`
	Summary  *Summary     `json:"summary,omitempty"`
}

type Summary struct {
	ScanID         string         `json:"scan_id"`
	CloudProvider  string         `json:"cloud_provider"`
	FindingsCount  int            `json:"findings_count"`
	SeverityCounts map[string]int `json:"severity_counts"`
	FailedRules    []string       `json:"failed_rules"`
}

var (
	findingChatTmpl = template.Must(template.New("finding_chat").Parse(
		`*Security Issue Detected*
Severity: {{.Severity}}
Title: {{.Title}}
Resource: {{.Resource.Name}} ({{.Resource.Type}})
Region: {{.Resource.Region}}
Description: {{.Description}}`))

	findingEmailTmpl = template.Must(template.New("finding_email").Parse(
		`Security Issue Detected

Severity: {{.Severity}}
Title: {{.Title}}
Resource: {{.Resource.Name}} ({{.Resource.Type}})
Region: {{.Resource.Region}}

Description:
{{.Description}}
{{- if .Remediation}}

Remediation:
{{.Remediation}}
{{- end}}

Please take immediate action if required.`))

	summaryChatTmpl = template.Must(template.New("summary_chat").Parse(
		`*Compliance Status Update*
Provider: {{.CloudProvider}}
Scan: {{.ScanID}}
Status: {{len .FailedRules}} rules failed, {{.FindingsCount}} findings
{{.Counts}}
{{- if .Rules}}

Failed Rules:
{{- range .Rules}}
• {{.}}
{{- end}}
{{- if .More}}
…and {{.More}} more
{{- end}}
{{- end}}`))

	summaryEmailTmpl = template.Must(template.New("summary_email").Parse(
		`Compliance Status Update

Provider: {{.CloudProvider}}
Scan: {{.ScanID}}
Status: {{len .FailedRules}} rules failed, {{.FindingsCount}} findings
{{.Counts}}
{{- if .FailedRules}}

Failed Rules:
{{- range .FailedRules}}
- {{.}}
{{- end}}

Please review and address these compliance issues.
{{- else}}

No rule failed.
{{- end}}`))
)

// FormatFinding renders a single finding alert.
func FormatFinding(f domain.Finding) (Alert, error) {
	view := struct {
		domain.Finding
		Severity string
	}{Finding: f, Severity: f.Severity.String()}

	chat, err := render(findingChatTmpl, view)
	if err != nil {
		return Alert{}, err
	}
	body, err := render(findingEmailTmpl, view)
	if err != nil {
		return Alert{}, err
	}

	apiFinding := adapters.MapFindingDomainToApi(f)
	color := SeverityColor(f.Severity)
	return Alert{
		Priority: f.Severity,
		Color:    color,
		Chat:     chat,
		Subject:  fmt.Sprintf("[%s] Security Issue Detected - %s", f.Severity, f.Title),
		Body:     body,
		Event: Event{
			Type:     EventFinding,
			Severity: apiFinding.Severity,
			Color:    color,
			Title:    f.Title,
			Finding:  &apiFinding,
		},
	}, nil
}

// FormatComplianceSummary renders the per-scan summary. Its priority is the
// highest severity present in the report, INFO for a clean one.
func FormatComplianceSummary(r domain.ScanReport) (Alert, error) {
	summary := Summary{
		ScanID:         r.ScanID,
		CloudProvider:  string(r.Provider),
		FindingsCount:  r.FindingsCount(),
		SeverityCounts: make(map[string]int),
		FailedRules:    r.FailedRules(),
	}
	counts := r.SeverityCounts()
	parts := make([]string, 0, len(counts))
	for _, sev := range domain.Severities() {
		summary.SeverityCounts[sev.String()] = counts[sev]
		parts = append(parts, fmt.Sprintf("%s: %d", sev, counts[sev]))
	}

	view := struct {
		Summary
		Counts string
		Rules  []string
		More   int
	}{Summary: summary, Counts: strings.Join(parts, ", "), Rules: summary.FailedRules}
	if len(view.Rules) > chatRuleLimit {
		view.More = len(view.Rules) - chatRuleLimit
		view.Rules = view.Rules[:chatRuleLimit]
	}

	chat, err := render(summaryChatTmpl, view)
	if err != nil {
		return Alert{}, err
	}
	body, err := render(summaryEmailTmpl, view)
	if err != nil {
		return Alert{}, err
	}

	priority := r.HighestSeverity()
	color := SeverityColor(priority)
	return Alert{
		Priority: priority,
		Color:    color,
		Chat:     chat,
		Subject:  fmt.Sprintf("[%s] Compliance Status Update - %s", priority, r.Provider),
		Body:     body,
		Event: Event{
			Type:     EventComplianceSummary,
			Severity: adapters.MapSeverityDomainToApi(priority),
			Color:    color,
			Title:    "Compliance Status Update",
			Summary:  &summary,
		},
	}, nil
}

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
