package export

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/de-tools/cloud-sentinel/pkg/models/domain"
	"github.com/de-tools/cloud-sentinel/pkg/services/remediation"
	"github.com/de-tools/cloud-sentinel/pkg/services/rules"
)

type TableConfig struct {
	// MaxColumnWidth truncates longer cells with an ellipsis.
	MaxColumnWidth int
}

func DefaultTableConfig() TableConfig {
	return TableConfig{
		MaxColumnWidth: 60,
	}
}

type Reporter struct {
	writer io.Writer
	config TableConfig
}

func NewReporter(writer io.Writer) *Reporter {
	if writer == nil {
		writer = os.Stdout
	}
	return &Reporter{
		writer: writer,
		config: DefaultTableConfig(),
	}
}

func (c *Reporter) Writer() io.Writer {
	return c.writer
}

type table struct {
	Headers []string
	Rows    [][]string
	Empty   string
}

const tableTemplate = `{{if not .Rows}}{{.Empty}}
{{else}}{{separator}}
{{formatRow .Headers}}
{{separator}}
{{range .Rows}}{{formatRow .}}
{{end}}{{separator}}
{{end}}`

func (c *Reporter) truncate(value string) string {
	if utf8.RuneCountInString(value) <= c.config.MaxColumnWidth {
		return value
	}
	runes := []rune(value)
	return string(runes[:c.config.MaxColumnWidth-1]) + "…"
}

func (c *Reporter) render(t table) error {
	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = utf8.RuneCountInString(h)
	}
	for r, row := range t.Rows {
		for i := range row {
			row[i] = c.truncate(row[i])
			if n := utf8.RuneCountInString(row[i]); n > widths[i] {
				widths[i] = n
			}
		}
		t.Rows[r] = row
	}

	funcMap := template.FuncMap{
		"formatRow": func(cells []string) string {
			var b strings.Builder
			b.WriteString("|")
			for i, cell := range cells {
				pad := widths[i] - utf8.RuneCountInString(cell)
				fmt.Fprintf(&b, " %s%s |", cell, strings.Repeat(" ", pad))
			}
			return b.String()
		},
		"separator": func() string {
			var b strings.Builder
			b.WriteString("+")
			for _, w := range widths {
				b.WriteString(strings.Repeat("-", w+2))
				b.WriteString("+")
			}
			return b.String()
		},
	}

	tmpl, err := template.New("table").Funcs(funcMap).Parse(tableTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}
	return tmpl.Execute(c.writer, t)
}

func (c *Reporter) Findings(findings []domain.Finding) error {
	t := table{
		Headers: []string{"ID", "Severity", "Status", "Resource", "Region", "Title"},
		Empty:   "No findings.",
	}
	for _, f := range findings {
		t.Rows = append(t.Rows, []string{
			f.ID,
			f.Severity.String(),
			string(f.Status),
			fmt.Sprintf("%s (%s)", f.Resource.Name, f.Resource.Type),
			f.Resource.Region,
			f.Title,
		})
	}
	return c.render(t)
}

func (c *Reporter) Remediations(results []remediation.Result) error {
	t := table{
		Headers: []string{"Finding", "Outcome", "Action", "Error"},
		Empty:   "No open findings to remediate.",
	}
	for _, r := range results {
		var errText string
		if r.Err != nil {
			errText = r.Err.Error()
		}
		t.Rows = append(t.Rows, []string{r.FindingID, string(r.Outcome), r.Action, errText})
	}
	return c.render(t)
}

func (c *Reporter) History(records []domain.RemediationRecord) error {
	t := table{
		Headers: []string{"Timestamp", "Outcome", "Simulated", "Action", "Error"},
		Empty:   "No remediation attempts recorded.",
	}
	for _, r := range records {
		t.Rows = append(t.Rows, []string{
			r.Timestamp.Format("2006-01-02 15:04:05"),
			string(r.Outcome),
			fmt.Sprintf("%t", r.Simulated),
			r.ActionTaken,
			r.Error,
		})
	}
	return c.render(t)
}

func (c *Reporter) Rules(catalog []rules.Rule) error {
	t := table{
		Headers: []string{"Rule", "Kind", "Severity", "Title"},
		Empty:   "No rules.",
	}
	for _, r := range catalog {
		t.Rows = append(t.Rows, []string{r.ID, string(r.Kind), r.Severity.String(), r.Title})
	}
	return c.render(t)
}

func (c *Reporter) Profiles(profiles []domain.ConfigProfile) error {
	t := table{
		Headers: []string{"Profile", "Type", "Region"},
		Empty:   "No AWS profiles found.",
	}
	for _, p := range profiles {
		t.Rows = append(t.Rows, []string{p.Name, string(p.Type), p.Region})
	}
	return c.render(t)
}
