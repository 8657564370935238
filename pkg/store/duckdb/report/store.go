package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	json "github.com/goccy/go-json"

	"github.com/de-tools/market-atlas/pkg/models/store"
	"github.com/de-tools/market-atlas/pkg/store/duckdb"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrStatusConflict = errors.New("report status changed concurrently")
)

// Store persists reports and the subjects they compare.
type Store interface {
	// CreateReport writes the report and its competitors atomically. The owner subject is created only if absent.
	CreateReport(ctx context.Context, owner store.Subject, report store.Report, competitors []store.Subject) error
	GetReport(ctx context.Context, id string) (*store.Report, error)
	ListReports(ctx context.Context, status string) ([]store.Report, error)
	LatestReadyPerOwner(ctx context.Context) ([]store.Report, error)
	PreviousReady(ctx context.Context, ownerID string, before time.Time) (*store.Report, error)
	// TransitionStatus moves a report from one status to another, failing with ErrStatusConflict if it is not in from.
	TransitionStatus(ctx context.Context, id, from, to string, reason *string) error
	SetResult(ctx context.Context, id, result string) error
	SetArtifact(ctx context.Context, id, location string) error
	SetInsight(ctx context.Context, id, insight string) error

	GetSubject(ctx context.Context, id string) (*store.Subject, error)
	// ListSubjects returns the owner first, then competitors in creation order.
	ListSubjects(ctx context.Context, reportID string) ([]store.Subject, error)
	UpdateCredentials(ctx context.Context, subjectID string, creds map[string]string) error
}

type reportStore struct {
	db *sql.DB
}

func NewStore(db *sql.DB) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return &reportStore{db: db}, nil
}

const reportColumns = `id, owner_id, owner_site, status, ai_insight, result, artifact_location, error, created_at, updated_at`

const subjectColumns = `id, name, kind, report_id, position, credentials, created_at`

func (s *reportStore) CreateReport(
	ctx context.Context,
	owner store.Subject,
	report store.Report,
	competitors []store.Subject,
) error {
	return duckdb.RunInTx(ctx, s.db, func(ctx context.Context) error {
		q := duckdb.Conn(ctx, s.db)

		ownerCreds, err := encodeCredentials(owner.Credentials)
		if err != nil {
			return err
		}
		_, err = q.ExecContext(ctx, `
			INSERT INTO subjects (id, name, kind, report_id, position, credentials, created_at)
			VALUES (?, ?, ?, NULL, 0, ?, ?)
			ON CONFLICT (id) DO NOTHING`,
			owner.ID, owner.Name, owner.Kind, ownerCreds, owner.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert owner subject: %w", err)
		}

		_, err = q.ExecContext(ctx, `
			INSERT INTO reports (id, owner_id, owner_site, status, ai_insight, created_at, updated_at)
			VALUES (?, ?, ?, ?, '', ?, ?)`,
			report.ID, report.OwnerID, report.OwnerSite, report.Status,
			report.CreatedAt.UTC(), report.CreatedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert report: %w", err)
		}

		for _, c := range competitors {
			creds, err := encodeCredentials(c.Credentials)
			if err != nil {
				return err
			}
			_, err = q.ExecContext(ctx, `
				INSERT INTO subjects (id, name, kind, report_id, position, credentials, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				c.ID, c.Name, c.Kind, report.ID, c.Position, creds, c.CreatedAt.UTC(),
			)
			if err != nil {
				return fmt.Errorf("insert competitor %s: %w", c.Name, err)
			}
		}
		return nil
	})
}

func (s *reportStore) GetReport(ctx context.Context, id string) (*store.Report, error) {
	row := duckdb.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE id = ?`, id)

	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return r, nil
}

func (s *reportStore) ListReports(ctx context.Context, status string) ([]store.Report, error) {
	query := `SELECT ` + reportColumns + ` FROM reports`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at`

	rows, err := duckdb.Conn(ctx, s.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()
	return scanReports(rows)
}

func (s *reportStore) LatestReadyPerOwner(ctx context.Context) ([]store.Report, error) {
	rows, err := duckdb.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT `+reportColumns+`
		FROM reports
		WHERE status = 'ready'
		QUALIFY row_number() OVER (PARTITION BY owner_id ORDER BY created_at DESC) = 1
		ORDER BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("list latest ready reports: %w", err)
	}
	defer rows.Close()
	return scanReports(rows)
}

func (s *reportStore) PreviousReady(ctx context.Context, ownerID string, before time.Time) (*store.Report, error) {
	row := duckdb.Conn(ctx, s.db).QueryRowContext(ctx, `
		SELECT `+reportColumns+`
		FROM reports
		WHERE owner_id = ? AND status = 'ready' AND created_at < ?
		ORDER BY created_at DESC
		LIMIT 1`, ownerID, before.UTC())

	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("previous report for %s: %w", ownerID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get previous report: %w", err)
	}
	return r, nil
}

func (s *reportStore) TransitionStatus(ctx context.Context, id, from, to string, reason *string) error {
	res, err := duckdb.Conn(ctx, s.db).ExecContext(ctx, `
		UPDATE reports SET status = ?, error = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		to, reason, time.Now().UTC(), id, from,
	)
	if err != nil {
		return fmt.Errorf("update report status: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update report status: %w", err)
	}
	if n == 1 {
		return nil
	}

	if _, err := s.GetReport(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("report %s is not %s: %w", id, from, ErrStatusConflict)
}

func (s *reportStore) SetResult(ctx context.Context, id, result string) error {
	return s.updateColumn(ctx, id, "result", result)
}

func (s *reportStore) SetArtifact(ctx context.Context, id, location string) error {
	return s.updateColumn(ctx, id, "artifact_location", location)
}

func (s *reportStore) SetInsight(ctx context.Context, id, insight string) error {
	return s.updateColumn(ctx, id, "ai_insight", insight)
}

func (s *reportStore) updateColumn(ctx context.Context, id, column string, value any) error {
	res, err := duckdb.Conn(ctx, s.db).ExecContext(ctx,
		fmt.Sprintf(`UPDATE reports SET %s = ?, updated_at = ? WHERE id = ?`, column),
		value, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update report %s: %w", column, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update report %s: %w", column, err)
	}
	if n == 0 {
		return fmt.Errorf("report %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *reportStore) GetSubject(ctx context.Context, id string) (*store.Subject, error) {
	row := duckdb.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+subjectColumns+` FROM subjects WHERE id = ?`, id)

	subject, err := scanSubject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("subject %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get subject: %w", err)
	}
	return subject, nil
}

func (s *reportStore) ListSubjects(ctx context.Context, reportID string) ([]store.Subject, error) {
	rows, err := duckdb.Conn(ctx, s.db).QueryContext(ctx, `
		SELECT `+subjectColumns+`
		FROM subjects
		WHERE id = (SELECT owner_id FROM reports WHERE id = ?) OR report_id = ?
		ORDER BY CASE WHEN kind = 'owner' THEN 0 ELSE 1 END, position, created_at`,
		reportID, reportID,
	)
	if err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	defer rows.Close()

	subjects := make([]store.Subject, 0)
	for rows.Next() {
		subject, err := scanSubject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subject: %w", err)
		}
		subjects = append(subjects, *subject)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(subjects) == 0 {
		return nil, fmt.Errorf("report %s: %w", reportID, ErrNotFound)
	}
	return subjects, nil
}

func (s *reportStore) UpdateCredentials(ctx context.Context, subjectID string, creds map[string]string) error {
	return duckdb.RunInTx(ctx, s.db, func(ctx context.Context) error {
		subject, err := s.GetSubject(ctx, subjectID)
		if err != nil {
			return err
		}

		merged := make(map[string]string, len(subject.Credentials)+len(creds))
		for k, v := range subject.Credentials {
			merged[k] = v
		}
		for k, v := range creds {
			if v == "" {
				delete(merged, k)
				continue
			}
			merged[k] = v
		}

		encoded, err := encodeCredentials(merged)
		if err != nil {
			return err
		}
		_, err = duckdb.Conn(ctx, s.db).ExecContext(ctx,
			`UPDATE subjects SET credentials = ? WHERE id = ?`, encoded, subjectID)
		if err != nil {
			return fmt.Errorf("update credentials: %w", err)
		}
		return nil
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(row scanner) (*store.Report, error) {
	var (
		r        store.Report
		result   sql.NullString
		artifact sql.NullString
		reason   sql.NullString
	)
	if err := row.Scan(
		&r.ID, &r.OwnerID, &r.OwnerSite, &r.Status, &r.AIInsight,
		&result, &artifact, &reason, &r.CreatedAt, &r.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if result.Valid {
		r.Result = &result.String
	}
	if artifact.Valid {
		r.ArtifactLocation = &artifact.String
	}
	if reason.Valid {
		r.Error = &reason.String
	}
	return &r, nil
}

func scanReports(rows *sql.Rows) ([]store.Report, error) {
	reports := make([]store.Report, 0)
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

func scanSubject(row scanner) (*store.Subject, error) {
	var (
		subject  store.Subject
		reportID sql.NullString
		creds    sql.NullString
	)
	if err := row.Scan(
		&subject.ID, &subject.Name, &subject.Kind, &reportID, &subject.Position, &creds, &subject.CreatedAt,
	); err != nil {
		return nil, err
	}
	if reportID.Valid {
		subject.ReportID = &reportID.String
	}
	subject.Credentials = map[string]string{}
	if creds.Valid && creds.String != "" {
		if err := json.Unmarshal([]byte(creds.String), &subject.Credentials); err != nil {
			return nil, fmt.Errorf("decode credentials: %w", err)
		}
	}
	return &subject, nil
}

func encodeCredentials(creds map[string]string) (string, error) {
	if creds == nil {
		creds = map[string]string{}
	}
	b, err := json.Marshal(creds)
	if err != nil {
		return "", fmt.Errorf("encode credentials: %w", err)
	}
	return string(b), nil
}
