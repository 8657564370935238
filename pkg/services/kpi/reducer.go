package kpi

import (
	"math"

	"github.com/de-tools/market-atlas/pkg/models/domain"
)

type Reducer struct {
	registry *Registry
}

func NewReducer(registry *Registry) *Reducer {
	return &Reducer{registry: registry}
}

func (r *Reducer) Registry() *Registry {
	return r.registry
}

type cellKey struct {
	subject string
	metric  string
}

// Latest picks the most recent snapshot per (subject, metric), ordering by capture time then id.
func Latest(snapshots []domain.Snapshot) map[cellKey]domain.Snapshot {
	latest := make(map[cellKey]domain.Snapshot, len(snapshots))
	for _, s := range snapshots {
		k := cellKey{subject: s.SubjectID, metric: s.Metric}
		cur, ok := latest[k]
		if !ok || newer(s, cur) {
			latest[k] = s
		}
	}
	return latest
}

func newer(a, b domain.Snapshot) bool {
	if !a.CapturedAt.Equal(b.CapturedAt) {
		return a.CapturedAt.After(b.CapturedAt)
	}
	return a.ID > b.ID
}

// Reduce builds the comparison table: one row per registry KPI, one cell per column.
// It never fails; a cell with no usable reading or a failing aggregator is nil.
func (r *Reducer) Reduce(columns []domain.Column, snapshots []domain.Snapshot) domain.Table {
	latest := Latest(snapshots)

	table := domain.Table{
		Columns: append([]domain.Column(nil), columns...),
		Rows:    make([]domain.Row, 0, r.registry.Len()),
	}
	for _, def := range r.registry.defs {
		row := domain.Row{
			Key:   def.Key,
			Label: def.Label,
			Cells: make([]*float64, len(columns)),
		}
		for i, col := range columns {
			snap, ok := latest[cellKey{subject: col.SubjectID, metric: def.Key}]
			if !ok || snap.Value == nil {
				continue
			}
			row.Cells[i] = aggregate(def.Aggregate, []float64{*snap.Value})
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

func aggregate(agg Aggregator, values []float64) (cell *float64) {
	defer func() {
		if recover() != nil {
			cell = nil
		}
	}()

	v, err := agg(values)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}
