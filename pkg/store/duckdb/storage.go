package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/duckdb/duckdb-go/v2"
)

const SubjectsTableSchema = `
	CREATE TABLE IF NOT EXISTS subjects (
		id VARCHAR PRIMARY KEY,
		name VARCHAR NOT NULL,
		kind VARCHAR NOT NULL,
		report_id VARCHAR,
		position INTEGER NOT NULL DEFAULT 0,
		credentials VARCHAR,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
`

const ReportsTableSchema = `
	CREATE TABLE IF NOT EXISTS reports (
		id VARCHAR PRIMARY KEY,
		owner_id VARCHAR NOT NULL,
		owner_site VARCHAR NOT NULL,
		status VARCHAR NOT NULL,
		ai_insight VARCHAR NOT NULL DEFAULT '',
		result VARCHAR,
		artifact_location VARCHAR,
		error VARCHAR,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
`

const SnapshotsSequence = `CREATE SEQUENCE IF NOT EXISTS snapshots_id_seq START 1;`

const SnapshotsTableSchema = `
	CREATE TABLE IF NOT EXISTS snapshots (
		id BIGINT PRIMARY KEY DEFAULT nextval('snapshots_id_seq'),
		report_id VARCHAR,
		subject_id VARCHAR NOT NULL,
		metric_name VARCHAR NOT NULL,
		value DOUBLE,
		raw VARCHAR,
		captured_at TIMESTAMP NOT NULL,
		UNIQUE (subject_id, metric_name, captured_at)
	);
`

const WorkflowGroupsTableSchema = `
	CREATE TABLE IF NOT EXISTS workflow_groups (
		id VARCHAR PRIMARY KEY,
		report_id VARCHAR NOT NULL,
		stage VARCHAR NOT NULL,
		total INTEGER NOT NULL,
		pending INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		completed_at TIMESTAMP,
		UNIQUE (report_id, stage)
	);
`

const WorkflowTasksTableSchema = `
	CREATE TABLE IF NOT EXISTS workflow_tasks (
		id VARCHAR PRIMARY KEY,
		group_id VARCHAR NOT NULL,
		report_id VARCHAR NOT NULL,
		kind VARCHAR NOT NULL,
		stage VARCHAR NOT NULL,
		subject_id VARCHAR,
		phase VARCHAR,
		done BOOLEAN NOT NULL DEFAULT false,
		finished_at TIMESTAMP
	);
`

const TokensTableSchema = `
	CREATE TABLE IF NOT EXISTS oauth_tokens (
		subject_id VARCHAR NOT NULL,
		provider VARCHAR NOT NULL,
		access_token VARCHAR NOT NULL,
		refresh_token VARCHAR,
		expires_at TIMESTAMP,
		scope VARCHAR NOT NULL DEFAULT '',
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (subject_id, provider)
	);
`

var bootQueries = []string{
	SubjectsTableSchema,
	ReportsTableSchema,
	SnapshotsSequence,
	SnapshotsTableSchema,
	WorkflowGroupsTableSchema,
	WorkflowTasksTableSchema,
	TokensTableSchema,
}

type Settings struct {
	DbPath  string
	Threads int
}

func NewDB(settings Settings) (*sql.DB, error) {
	threads := settings.Threads
	if threads <= 0 {
		threads = 4
	}

	c, err := duckdb.NewConnector(fmt.Sprintf("%s?threads=%d", settings.DbPath, threads), nil)
	if err != nil {
		return nil, err
	}

	db := sql.OpenDB(c)
	if err := boot(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// boot creates the schema once for the whole pool; pooled connections share the connector's database.
func boot(ctx context.Context, db *sql.DB) error {
	for _, query := range bootQueries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("boot schema: %w", err)
		}
	}
	return nil
}
