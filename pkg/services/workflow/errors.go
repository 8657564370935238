package workflow

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/de-tools/market-atlas/pkg/models/domain"
	"github.com/de-tools/market-atlas/pkg/store/duckdb/report"
)

var (
	ErrNotFound     = report.ErrNotFound
	ErrNotQueued    = errors.New("report is not queued")
	ErrReportFailed = errors.New("report failed")
	ErrNotReady     = errors.New("report is not ready")
)

// ValidationError rejects a submission before anything is stored.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid submission: " + strings.Join(parts, "; ")
}

// PhaseSchedulingError is a failure to create or dispatch a stage's tasks.
type PhaseSchedulingError struct {
	ReportID string
	Stage    domain.Stage
	Err      error
}

func (e *PhaseSchedulingError) Error() string {
	return fmt.Sprintf("schedule %s stage of report %s: %v", e.Stage, e.ReportID, e.Err)
}

func (e *PhaseSchedulingError) Unwrap() error {
	return e.Err
}
