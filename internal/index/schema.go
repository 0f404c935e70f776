// Package index provides the SQLite-backed inspection index for download,
// reconcile and fix runs.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS runs (
	id           TEXT PRIMARY KEY,
	kind         TEXT NOT NULL,
	started_at   DATETIME NOT NULL,
	finished_at  DATETIME,
	summary_json TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS reports (
	run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	path         TEXT NOT NULL,
	stem         TEXT NOT NULL DEFAULT '',
	record_index INTEGER NOT NULL DEFAULT -1,
	media_type   TEXT NOT NULL DEFAULT '',
	needs_fix    INTEGER NOT NULL DEFAULT 0,
	flags        TEXT NOT NULL DEFAULT '',
	report_json  TEXT NOT NULL,
	checksum     TEXT NOT NULL DEFAULT '',
	checked_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (run_id, path)
);

CREATE TABLE IF NOT EXISTS join_failures (
	run_id       TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	kind         TEXT NOT NULL,
	path         TEXT NOT NULL,
	record_index INTEGER NOT NULL DEFAULT -1
);

CREATE TABLE IF NOT EXISTS failures (
	run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	source TEXT NOT NULL,
	url    TEXT NOT NULL DEFAULT '',
	error  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS corrections (
	run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	path        TEXT NOT NULL,
	target_path TEXT NOT NULL,
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS checksums (
	path       TEXT PRIMARY KEY,
	checksum   TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_runs_kind ON runs(kind, started_at);
CREATE INDEX IF NOT EXISTS idx_reports_path ON reports(path);
CREATE INDEX IF NOT EXISTS idx_reports_needs_fix ON reports(run_id, needs_fix);
CREATE INDEX IF NOT EXISTS idx_failures_run ON failures(run_id);
CREATE INDEX IF NOT EXISTS idx_join_failures_run ON join_failures(run_id);
CREATE INDEX IF NOT EXISTS idx_corrections_run ON corrections(run_id);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
