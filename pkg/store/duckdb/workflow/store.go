package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/de-tools/market-atlas/pkg/models/store"
	"github.com/de-tools/market-atlas/pkg/store/duckdb"
)

var ErrTaskNotFound = errors.New("workflow task not found")

// Progress is the state of a group after one of its tasks completed.
type Progress struct {
	GroupID  string
	ReportID string
	Stage    string
	Pending  int
	Counted  bool
}

// Store keeps the durable join counters that chain report stages.
// A group holds a pending count; each task decrements it exactly once.
type Store interface {
	// CreateGroup inserts the group and its tasks. If the report already has a group for the stage,
	// the existing group is returned with created=false and nothing is written.
	CreateGroup(ctx context.Context, group store.WorkflowGroup, tasks []store.WorkflowTask) (*store.WorkflowGroup, bool, error)
	CompleteTask(ctx context.Context, taskID string) (Progress, error)
	GetTask(ctx context.Context, taskID string) (*store.WorkflowTask, error)
	ListGroups(ctx context.Context, reportID string) ([]store.WorkflowGroup, error)
	ListOpenTasks(ctx context.Context, reportID string) ([]store.WorkflowTask, error)
}

type defaultStore struct {
	db *sql.DB
	// DuckDB rejects concurrent updates of the same row, so decrements are serialised in-process.
	mu sync.Mutex
}

func NewStore(db *sql.DB) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return &defaultStore{
		db: db,
	}, nil
}

const groupColumns = `id, report_id, stage, total, pending, created_at, completed_at`

const taskColumns = `id, group_id, report_id, kind, stage, subject_id, phase, done, finished_at`

func (s *defaultStore) CreateGroup(
	ctx context.Context,
	group store.WorkflowGroup,
	tasks []store.WorkflowTask,
) (*store.WorkflowGroup, bool, error) {
	if len(tasks) == 0 {
		return nil, false, fmt.Errorf("group %s has no tasks", group.Stage)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		result  *store.WorkflowGroup
		created bool
	)
	err := duckdb.RunInTx(ctx, s.db, func(ctx context.Context) error {
		q := duckdb.Conn(ctx, s.db)

		existing, err := scanGroup(q.QueryRowContext(ctx,
			`SELECT `+groupColumns+` FROM workflow_groups WHERE report_id = ? AND stage = ?`,
			group.ReportID, group.Stage,
		))
		if err == nil {
			result = existing
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("lookup group: %w", err)
		}

		now := time.Now().UTC()
		_, err = q.ExecContext(ctx, `
			INSERT INTO workflow_groups (id, report_id, stage, total, pending, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			group.ID, group.ReportID, group.Stage, len(tasks), len(tasks), now,
		)
		if err != nil {
			return fmt.Errorf("insert group: %w", err)
		}

		for _, t := range tasks {
			_, err = q.ExecContext(ctx, `
				INSERT INTO workflow_tasks (id, group_id, report_id, kind, stage, subject_id, phase, done)
				VALUES (?, ?, ?, ?, ?, ?, ?, false)`,
				t.ID, group.ID, group.ReportID, t.Kind, group.Stage, t.SubjectID, t.Phase,
			)
			if err != nil {
				return fmt.Errorf("insert task: %w", err)
			}
		}

		group.Total = len(tasks)
		group.Pending = len(tasks)
		group.CreatedAt = now
		result = &group
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

func (s *defaultStore) CompleteTask(ctx context.Context, taskID string) (Progress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var progress Progress
	err := duckdb.RunInTx(ctx, s.db, func(ctx context.Context) error {
		q := duckdb.Conn(ctx, s.db)
		now := time.Now().UTC()

		var groupID string
		err := q.QueryRowContext(ctx,
			`SELECT group_id FROM workflow_tasks WHERE id = ?`, taskID,
		).Scan(&groupID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
		}
		if err != nil {
			return fmt.Errorf("lookup task: %w", err)
		}

		res, err := q.ExecContext(ctx,
			`UPDATE workflow_tasks SET done = true, finished_at = ? WHERE id = ? AND done = false`,
			now, taskID,
		)
		if err != nil {
			return fmt.Errorf("mark task done: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("mark task done: %w", err)
		}

		if n == 1 {
			_, err = q.ExecContext(ctx, `
				UPDATE workflow_groups
				SET pending = pending - 1,
					completed_at = CASE WHEN pending - 1 = 0 THEN ? ELSE completed_at END
				WHERE id = ?`,
				now, groupID,
			)
			if err != nil {
				return fmt.Errorf("decrement group: %w", err)
			}
			progress.Counted = true
		}

		err = q.QueryRowContext(ctx,
			`SELECT id, report_id, stage, pending FROM workflow_groups WHERE id = ?`, groupID,
		).Scan(&progress.GroupID, &progress.ReportID, &progress.Stage, &progress.Pending)
		if err != nil {
			return fmt.Errorf("read group: %w", err)
		}
		return nil
	})
	if err != nil {
		return Progress{}, err
	}
	return progress, nil
}

func (s *defaultStore) GetTask(ctx context.Context, taskID string) (*store.WorkflowTask, error) {
	task, err := scanTask(duckdb.Conn(ctx, s.db).QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM workflow_tasks WHERE id = ?`, taskID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

func (s *defaultStore) ListGroups(ctx context.Context, reportID string) ([]store.WorkflowGroup, error) {
	rows, err := duckdb.Conn(ctx, s.db).QueryContext(ctx,
		`SELECT `+groupColumns+` FROM workflow_groups WHERE report_id = ? ORDER BY created_at`, reportID)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	groups := make([]store.WorkflowGroup, 0)
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, *g)
	}
	return groups, rows.Err()
}

func (s *defaultStore) ListOpenTasks(ctx context.Context, reportID string) ([]store.WorkflowTask, error) {
	rows, err := duckdb.Conn(ctx, s.db).QueryContext(ctx,
		`SELECT `+taskColumns+` FROM workflow_tasks WHERE report_id = ? AND done = false ORDER BY id`, reportID)
	if err != nil {
		return nil, fmt.Errorf("list open tasks: %w", err)
	}
	defer rows.Close()

	tasks := make([]store.WorkflowTask, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGroup(row scanner) (*store.WorkflowGroup, error) {
	var (
		g         store.WorkflowGroup
		completed sql.NullTime
	)
	if err := row.Scan(&g.ID, &g.ReportID, &g.Stage, &g.Total, &g.Pending, &g.CreatedAt, &completed); err != nil {
		return nil, err
	}
	if completed.Valid {
		g.CompletedAt = &completed.Time
	}
	return &g, nil
}

func scanTask(row scanner) (*store.WorkflowTask, error) {
	var (
		t         store.WorkflowTask
		subjectID sql.NullString
		phase     sql.NullString
		finished  sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.GroupID, &t.ReportID, &t.Kind, &t.Stage, &subjectID, &phase, &t.Done, &finished); err != nil {
		return nil, err
	}
	if subjectID.Valid {
		t.SubjectID = &subjectID.String
	}
	if phase.Valid {
		t.Phase = &phase.String
	}
	if finished.Valid {
		t.FinishedAt = &finished.Time
	}
	return &t, nil
}
