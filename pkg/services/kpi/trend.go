package kpi

import (
	"math"

	"github.com/de-tools/market-atlas/pkg/models/domain"
)

const deadBandPct = 0.5

// PctDelta returns the direction and percentage change from old to new, rounded to one decimal.
// Changes within half a percent are flat; a zero or unknown baseline is flat with no delta.
func PctDelta(newValue, oldValue float64) domain.Trend {
	if oldValue == 0 || math.IsNaN(oldValue) || math.IsNaN(newValue) {
		return domain.Trend{Direction: domain.DirectionFlat}
	}

	delta := (newValue - oldValue) / oldValue * 100
	dir := domain.DirectionFlat
	switch {
	case delta > deadBandPct:
		dir = domain.DirectionUp
	case delta < -deadBandPct:
		dir = domain.DirectionDown
	}
	return domain.Trend{Direction: dir, DeltaPct: Round(delta, 1)}
}

// Compare lines up two tables of the same owner. Columns are matched by subject id,
// then by display name, since competitor subjects are recreated with every report.
func Compare(previous, current domain.Table) []domain.TrendRow {
	prevCol := make([]int, len(current.Columns))
	for i, c := range current.Columns {
		prevCol[i] = matchColumn(previous.Columns, c)
	}

	prevRows := make(map[string]domain.Row, len(previous.Rows))
	for _, r := range previous.Rows {
		prevRows[r.Key] = r
	}

	out := make([]domain.TrendRow, 0, len(current.Rows)*len(current.Columns))
	for _, row := range current.Rows {
		prev, hasPrev := prevRows[row.Key]
		for i, col := range current.Columns {
			tr := domain.TrendRow{
				Key:       row.Key,
				Label:     row.Label,
				SubjectID: col.SubjectID,
				Subject:   col.Name,
				Current:   row.Cells[i],
				Trend:     domain.Trend{Direction: domain.DirectionFlat},
			}
			if hasPrev && prevCol[i] >= 0 && prevCol[i] < len(prev.Cells) {
				tr.Previous = prev.Cells[prevCol[i]]
			}
			if tr.Previous != nil && tr.Current != nil {
				tr.Trend = PctDelta(*tr.Current, *tr.Previous)
			}
			out = append(out, tr)
		}
	}
	return out
}

func matchColumn(columns []domain.Column, c domain.Column) int {
	for i, p := range columns {
		if p.SubjectID == c.SubjectID {
			return i
		}
	}
	for i, p := range columns {
		if p.Name != "" && p.Name == c.Name {
			return i
		}
	}
	return -1
}
