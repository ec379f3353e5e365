package export

import (
	"fmt"
	"sort"
	"strings"
	"text/template"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
	"github.com/de-tools/cloud-sentinel/pkg/services/lifecycle"
)

type providerView struct {
	Name       string
	Mode       string
	Reason     string
	Resources  []string
	KindErrors []string
}

type scanView struct {
	ScanID     string
	Timestamp  string
	Provider   string
	Count      int
	Stored     int
	Unchanged  int
	Failed     int
	Severities []string
	Rules      []string
	Providers  []providerView
	ReportPath string
	ArchiveURL string
	Alerts     []string
	Verbose    bool
}

var scanTemplate = template.Must(template.New("scan").Funcs(template.FuncMap{"join": strings.Join}).Parse(`
Security scan {{.ScanID}} ({{.Provider}})
Timestamp: {{.Timestamp}}
{{range .Providers}}
=== {{.Name}}: {{.Mode}}{{if .Reason}} ({{.Reason}}){{end}} ===
{{- if $.Verbose}}{{range .Resources}}
{{.}}{{end}}{{end}}{{range .KindErrors}}
! {{.}}{{end}}
{{end}}
Findings: {{.Count}} (stored: {{.Stored}}, unchanged: {{.Unchanged}}, failed: {{.Failed}})
{{range .Severities}}  {{.}}
{{end}}{{if .Rules}}Failed rules: {{join .Rules ", "}}
{{end}}{{if .ReportPath}}Report: {{.ReportPath}}
{{end}}{{if .ArchiveURL}}Archived: {{.ArchiveURL}}
{{end}}{{if .Alerts}}Alerts: {{join .Alerts ", "}}
{{end}}`))

// ScanSummary prints the outcome of one scan; verbose adds resource counts per kind.
func (c *Reporter) ScanSummary(outcome lifecycle.ScanOutcome, verbose bool) error {
	r := outcome.Report
	view := scanView{
		ScanID:     r.ScanID,
		Timestamp:  r.Timestamp.Format("2006-01-02 15:04:05 MST"),
		Provider:   string(r.Provider),
		Count:      r.FindingsCount(),
		Stored:     outcome.Stored,
		Unchanged:  outcome.Unchanged,
		Failed:     outcome.Failed,
		Rules:      r.FailedRules(),
		ReportPath: outcome.ReportPath,
		ArchiveURL: outcome.ArchiveURL,
		Verbose:    verbose,
	}

	counts := r.SeverityCounts()
	for _, sev := range domain.Severities() {
		if counts[sev] > 0 {
			view.Severities = append(view.Severities, fmt.Sprintf("%s: %d", sev, counts[sev]))
		}
	}

	providers := make([]domain.Provider, 0, len(outcome.Results))
	for p := range outcome.Results {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i] < providers[j] })
	for _, p := range providers {
		res := outcome.Results[p]
		pv := providerView{Name: string(p), Mode: string(res.Mode)}
		if !res.Capability.IsLive() {
			pv.Reason = res.Capability.Reason
		}
		for _, kind := range domain.ResourceKinds() {
			if n, ok := res.Resources[kind]; ok {
				pv.Resources = append(pv.Resources, fmt.Sprintf("%s: %d", kind.DisplayType(), n))
			}
			if err := res.KindErrors[kind]; err != nil {
				pv.KindErrors = append(pv.KindErrors, fmt.Sprintf("%s: %v", kind.DisplayType(), err))
			}
		}
		view.Providers = append(view.Providers, pv)
	}

	channels := make([]string, 0, len(outcome.Alerts))
	for ch, ok := range outcome.Alerts {
		state := "sent"
		if !ok {
			state = "skipped"
		}
		channels = append(channels, fmt.Sprintf("%s=%s", ch, state))
	}
	sort.Strings(channels)
	view.Alerts = channels

	return scanTemplate.Execute(c.writer, view)
}

var findingTemplate = template.Must(template.New("finding").Parse(`
{{.ID}} [{{.Severity}}] {{.Status}}
{{.Title}}
Resource: {{.Resource.Name}} ({{.Resource.Type}}) in {{.Resource.Region}}
Description: {{.Description}}
{{if .Remediation}}Remediation: {{.Remediation}}
{{end}}Detected: {{.CreatedAt.Format "2006-01-02 15:04:05"}}, updated: {{.UpdatedAt.Format "2006-01-02 15:04:05"}}
{{range $key, $value := .Attributes}}  {{$key}}: {{$value}}
{{end}}`))

func (c *Reporter) Finding(f domain.Finding) error {
	return findingTemplate.Execute(c.writer, f)
}

// Remediation prints the result of one remediation attempt.
func (c *Reporter) Remediation(outcome lifecycle.RemediationOutcome) error {
	res := outcome.Result
	line := fmt.Sprintf("%s: %s", res.FindingID, res.Outcome)
	if res.Action != "" {
		line += " - " + res.Action
	}
	if res.Err != nil {
		line += fmt.Sprintf(" (%v)", res.Err)
	}
	_, err := fmt.Fprintf(c.writer, "%s\nStatus: %s\n", line, outcome.Finding.Status)
	return err
}
