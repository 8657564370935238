package export

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/market-atlas/pkg/models/domain"
	"github.com/de-tools/market-atlas/pkg/services/kpi"
)

func TestReporter_Table(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(&buf)

	err := r.Table(domain.Table{
		Columns: []domain.Column{{SubjectID: "o", Name: "Acme"}, {SubjectID: "c", Name: "b.com"}},
		Rows: []domain.Row{
			{Key: "domain_authority", Label: "Domain Authority", Cells: []*float64{domain.Float(42), nil}},
			{Key: "avg_rating", Label: "Google Rating", Cells: []*float64{domain.Float(4.5), domain.Float(3)}},
		},
	})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 6)
	assert.True(t, strings.HasPrefix(lines[0], "+---"))
	assert.Contains(t, lines[1], "Acme")
	assert.Contains(t, lines[1], "b.com")
	assert.Contains(t, lines[3], "Domain Authority")
	assert.Contains(t, lines[3], "42")
	assert.Contains(t, lines[3], "n/a")
	assert.Contains(t, lines[4], "4.5")
	assert.Equal(t, len(lines[0]), len(lines[3]))
}

func TestReporter_Report(t *testing.T) {
	var buf bytes.Buffer
	reason := "render report r1: disk full"

	err := NewReporter(&buf).Report(&domain.Report{
		ID:        "r1",
		OwnerID:   "o1",
		OwnerSite: "https://acme.com",
		Status:    domain.ReportStatusError,
		Error:     &reason,
		CreatedAt: time.Date(2025, 6, 2, 3, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Status:    error")
	assert.Contains(t, out, "Error:     render report r1: disk full")
	assert.NotContains(t, out, "Artifact")
}

func TestReporter_Registry(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewReporter(&buf).Registry(kpi.DefaultRegistry().Definitions()))
	assert.Equal(t, kpi.DefaultRegistry().Len(), strings.Count(buf.String(), "\n"))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "n/a", FormatValue(nil))
	assert.Equal(t, "1200", FormatValue(domain.Float(1200)))
	assert.Equal(t, "3.25", FormatValue(domain.Float(3.25)))
}
