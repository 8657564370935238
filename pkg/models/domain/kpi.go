package domain

// Column is one subject in a comparison table. The owner is always first.
type Column struct {
	SubjectID string
	Name      string
}

// Row is one KPI. Cells follow the table's column order; a nil cell is missing.
type Row struct {
	Key   string
	Label string
	Cells []*float64
}

type Table struct {
	Columns []Column
	Rows    []Row
}

func (t Table) Cell(key, subjectID string) (*float64, bool) {
	col := -1
	for i, c := range t.Columns {
		if c.SubjectID == subjectID {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, false
	}
	for _, r := range t.Rows {
		if r.Key == key {
			return r.Cells[col], true
		}
	}
	return nil, false
}

type Direction string

const (
	DirectionUp   Direction = "↑"
	DirectionDown Direction = "↓"
	DirectionFlat Direction = "→"
)

type Trend struct {
	Direction Direction
	DeltaPct  float64
}

// TrendRow compares one KPI for one subject between two reports.
type TrendRow struct {
	Key       string
	Label     string
	SubjectID string
	Subject   string
	Previous  *float64
	Current   *float64
	Trend     Trend
}
