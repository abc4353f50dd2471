// Package store provides SQLite-backed persistence for projects,
// constraint lists, and the run journal.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// schemaV1 defines the initial database schema.
const schemaV1 = `
CREATE TABLE IF NOT EXISTS projects (
	name       TEXT PRIMARY KEY,
	dir        TEXT NOT NULL,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS constraints (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	project  TEXT NOT NULL REFERENCES projects(name) ON DELETE CASCADE,
	position INTEGER NOT NULL,
	base     TEXT NOT NULL,
	source   TEXT NOT NULL,
	type_in  TEXT NOT NULL,
	type_out TEXT NOT NULL,
	buffer   INTEGER NOT NULL DEFAULT 50,
	priority REAL NOT NULL DEFAULT 100,
	UNIQUE(project, base)
);
CREATE INDEX IF NOT EXISTS idx_constraints_project ON constraints(project, position);

CREATE TABLE IF NOT EXISTS runs (
	run_id          TEXT PRIMARY KEY,
	project         TEXT NOT NULL REFERENCES projects(name) ON DELETE CASCADE,
	state           TEXT NOT NULL DEFAULT 'created',
	state_version   INTEGER NOT NULL DEFAULT 1,
	estimated_steps INTEGER NOT NULL DEFAULT 0,
	produced        INTEGER NOT NULL DEFAULT 0,
	error_code      INTEGER NOT NULL DEFAULT 0,
	error_message   TEXT NOT NULL DEFAULT '',
	outputs_json    TEXT NOT NULL DEFAULT '{}',
	started_at      INTEGER NOT NULL,
	finished_at     INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_runs_project ON runs(project, started_at);

CREATE TABLE IF NOT EXISTS run_events (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	state  TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_events_run ON run_events(run_id);
`

// NewDB opens a SQLite database at the given path with recommended pragmas
// and runs the V1 schema migration.
func NewDB(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Limit connections to 1 for SQLite (WAL allows concurrent reads but single writer).
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return db, nil
}

func migrate(db *sql.DB) error {
	_, err := db.ExecContext(context.Background(), schemaV1)
	return err
}
