package snapshot

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/de-tools/market-atlas/pkg/models/store"
	"github.com/de-tools/market-atlas/pkg/store/duckdb"
)

// ErrDuplicate is returned when a reading for the same subject, metric and instant already exists.
var ErrDuplicate = errors.New("snapshot already recorded for subject, metric and capture time")

// Store is the append-only snapshot ledger. Rows are never updated or deleted.
type Store interface {
	Append(ctx context.Context, snap store.Snapshot) (int64, error)
	ListForReport(ctx context.Context, reportID string) ([]store.Snapshot, error)
	History(ctx context.Context, subjectID, metric string, limit int) ([]store.Snapshot, error)
}

type snapshotStore struct {
	db *sql.DB
}

func NewStore(db *sql.DB) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return &snapshotStore{db: db}, nil
}

func (s *snapshotStore) Append(ctx context.Context, snap store.Snapshot) (int64, error) {
	query := `
		INSERT INTO snapshots (report_id, subject_id, metric_name, value, raw, captured_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
		RETURNING id`

	var id int64
	err := duckdb.Conn(ctx, s.db).QueryRowContext(ctx, query,
		snap.ReportID,
		snap.SubjectID,
		snap.MetricName,
		snap.Value,
		snap.Raw,
		snap.CapturedAt.UTC(),
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: subject=%s metric=%s", ErrDuplicate, snap.SubjectID, snap.MetricName)
	}
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	return id, nil
}

// ListForReport returns every snapshot tagged with the report, oldest first.
func (s *snapshotStore) ListForReport(ctx context.Context, reportID string) ([]store.Snapshot, error) {
	query := `
		SELECT id, report_id, subject_id, metric_name, value, raw, captured_at
		FROM snapshots
		WHERE report_id = ?
		ORDER BY captured_at, id`

	rows, err := duckdb.Conn(ctx, s.db).QueryContext(ctx, query, reportID)
	if err != nil {
		return nil, fmt.Errorf("query report snapshots: %w", err)
	}
	defer rows.Close()
	return scanSnapshotRows(rows)
}

// History returns the most recent readings of one metric for a subject across all reports, newest first.
func (s *snapshotStore) History(ctx context.Context, subjectID, metric string, limit int) ([]store.Snapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT id, report_id, subject_id, metric_name, value, raw, captured_at
		FROM snapshots
		WHERE subject_id = ? AND metric_name = ?
		ORDER BY captured_at DESC, id DESC
		LIMIT ?`

	rows, err := duckdb.Conn(ctx, s.db).QueryContext(ctx, query, subjectID, metric, limit)
	if err != nil {
		return nil, fmt.Errorf("query metric history: %w", err)
	}
	defer rows.Close()
	return scanSnapshotRows(rows)
}

func scanSnapshotRows(rows *sql.Rows) ([]store.Snapshot, error) {
	snapshots := make([]store.Snapshot, 0)
	for rows.Next() {
		var (
			snap     store.Snapshot
			reportID sql.NullString
			value    sql.NullFloat64
			raw      sql.NullString
		)
		if err := rows.Scan(
			&snap.ID, &reportID, &snap.SubjectID, &snap.MetricName, &value, &raw, &snap.CapturedAt,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		if reportID.Valid {
			snap.ReportID = &reportID.String
		}
		if value.Valid {
			snap.Value = &value.Float64
		}
		if raw.Valid {
			snap.Raw = &raw.String
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}
