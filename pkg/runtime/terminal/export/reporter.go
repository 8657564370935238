package export

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/template"

	"github.com/de-tools/market-atlas/pkg/models/domain"
	"github.com/de-tools/market-atlas/pkg/services/kpi"
)

type TableConfig struct {
	LabelWidth int
	CellWidth  int
}

func DefaultTableConfig() TableConfig {
	return TableConfig{
		LabelWidth: 28,
		CellWidth:  16,
	}
}

// Reporter prints reports and KPI tables to the console.
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

func (c *Reporter) funcs(columns int) template.FuncMap {
	return template.FuncMap{
		"separator": func() string {
			var b strings.Builder
			b.WriteString("+" + strings.Repeat("-", c.config.LabelWidth+2))
			for i := 0; i < columns; i++ {
				b.WriteString("+" + strings.Repeat("-", c.config.CellWidth+2))
			}
			return b.String() + "+"
		},
		"header": func(cols []domain.Column) string {
			var b strings.Builder
			fmt.Fprintf(&b, "| %-*s ", c.config.LabelWidth, "KPI")
			for _, col := range cols {
				fmt.Fprintf(&b, "| %*s ", c.config.CellWidth, truncate(col.Name, c.config.CellWidth))
			}
			return b.String() + "|"
		},
		"row": func(r domain.Row) string {
			var b strings.Builder
			fmt.Fprintf(&b, "| %-*s ", c.config.LabelWidth, truncate(r.Label, c.config.LabelWidth))
			for _, v := range r.Cells {
				fmt.Fprintf(&b, "| %*s ", c.config.CellWidth, FormatValue(v))
			}
			return b.String() + "|"
		},
	}
}

const tableTemplate = `{{separator}}
{{header .Columns}}
{{separator}}
{{range .Rows}}{{row .}}
{{end}}{{separator}}
`

func (c *Reporter) Table(table domain.Table) error {
	t, err := template.New("table").Funcs(c.funcs(len(table.Columns))).Parse(tableTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}
	return t.Execute(c.writer, table)
}

const reportTemplate = `Report:    {{.ID}}
Owner:     {{.OwnerID}} ({{.OwnerSite}})
Status:    {{.Status}}
Created:   {{.CreatedAt.Format "2006-01-02 15:04:05"}}
{{- if .ArtifactLocation}}
Artifact:  {{.ArtifactLocation}}{{end}}
{{- if .Error}}
Error:     {{deref .Error}}{{end}}
{{- if .AIInsight}}

{{.AIInsight}}{{end}}
`

func (c *Reporter) Report(report *domain.Report) error {
	t, err := template.New("report").Funcs(template.FuncMap{
		"deref": func(s *string) string { return *s },
	}).Parse(reportTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}
	return t.Execute(c.writer, report)
}

func (c *Reporter) Collect(res domain.CollectResult) error {
	_, err := fmt.Fprintf(c.writer,
		"Collected %s phase for %s at %s: %d written, %d rejected\n  succeeded: %s\n  failed:    %s\n  skipped:   %s\n",
		res.Phase, res.SubjectID, res.CapturedAt.Format("2006-01-02 15:04:05"), res.Written, res.Rejected,
		joinProviders(res.Succeeded), joinProviders(res.Failed), joinProviders(res.Skipped))
	return err
}

func (c *Reporter) Registry(defs []kpi.Definition) error {
	for _, d := range defs {
		if _, err := fmt.Fprintf(c.writer, "%-24s %s\n", d.Key, d.Label); err != nil {
			return err
		}
	}
	return nil
}

// FormatValue prints a cell with trailing zeros trimmed, or "n/a" when missing.
func FormatValue(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func joinProviders(ps []domain.Provider) string {
	if len(ps) == 0 {
		return "-"
	}
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return strings.Join(out, ", ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
