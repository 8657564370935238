package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strconv"
	"strings"
	"time"

	"github.com/de-tools/market-atlas/pkg/models/domain"
)

// RenderError marks a failure to produce or store the report artifact.
type RenderError struct {
	ReportID string
	Err      error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render report %s: %v", e.ReportID, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

type Input struct {
	ReportID    string
	Brand       string
	OwnerSite   string
	Table       domain.Table
	GeneratedAt time.Time
}

// Renderer turns a KPI table into an HTML document and hands it to a sink.
type Renderer interface {
	Render(ctx context.Context, in Input) (string, error)
}

type htmlRenderer struct {
	tmpl *template.Template
	sink Sink
}

func NewRenderer(sink Sink) (Renderer, error) {
	if sink == nil {
		return nil, fmt.Errorf("sink is nil")
	}
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"cell": formatCell,
	}).Parse(reportTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	return &htmlRenderer{tmpl: tmpl, sink: sink}, nil
}

func (r *htmlRenderer) Render(ctx context.Context, in Input) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, in); err != nil {
		return "", &RenderError{ReportID: in.ReportID, Err: err}
	}

	location, err := r.sink.Put(ctx, ArtifactKey(in.ReportID), buf.Bytes(), "text/html; charset=utf-8")
	if err != nil {
		return "", &RenderError{ReportID: in.ReportID, Err: err}
	}
	return location, nil
}

func ArtifactKey(reportID string) string {
	return "reports/" + reportID + ".html"
}

func formatCell(v *float64) string {
	if v == nil {
		return "n/a"
	}
	s := strconv.FormatFloat(*v, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

const reportTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Brand}} competitive KPI report</title>
<style>
body { font-family: sans-serif; margin: 2rem; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 0.4rem 0.8rem; text-align: right; }
th:first-child, td:first-child { text-align: left; }
td.missing { color: #999; }
</style>
</head>
<body>
<h1>{{.Brand}}</h1>
<p>{{.OwnerSite}} &middot; generated {{.GeneratedAt.Format "2006-01-02 15:04 MST"}}</p>
<table>
<thead>
<tr><th>KPI</th>{{range .Table.Columns}}<th>{{.Name}}</th>{{end}}</tr>
</thead>
<tbody>
{{range .Table.Rows}}<tr><td>{{.Label}}</td>{{range .Cells}}<td{{if not .}} class="missing"{{end}}>{{cell .}}</td>{{end}}</tr>
{{end}}</tbody>
</table>
</body>
</html>
`
