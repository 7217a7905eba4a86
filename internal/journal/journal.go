// Package journal keeps an append-only audit trail of upload and transcript
// attempts in a local SQLite database. The registry file remains the single
// source of truth for current state; the journal answers "what happened when"
// for rvt status --history.
package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

const currentSchemaVersion = 1

const schemaV1 = `
CREATE TABLE attempts (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      TEXT NOT NULL,
	file        TEXT NOT NULL,
	target      TEXT NOT NULL,
	kind        TEXT NOT NULL CHECK (kind IN ('upload', 'fetch', 'clean')),
	outcome     TEXT NOT NULL CHECK (outcome IN ('ok', 'failed', 'skipped')),
	remote_id   TEXT NOT NULL DEFAULT '',
	error       TEXT NOT NULL DEFAULT '',
	started_at  INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX idx_attempts_file ON attempts(file);
CREATE INDEX idx_attempts_run ON attempts(run_id);

CREATE TABLE schema_version (
	version    INTEGER PRIMARY KEY,
	applied_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`

// Attempt is one journaled action
type Attempt struct {
	RunID     string
	File      string
	Target    string
	Kind      string // upload, fetch or clean
	Outcome   string // ok, failed or skipped
	RemoteID  string
	Error     string
	StartedAt time.Time
	Duration  time.Duration
}

// Journal wraps the attempts database
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal database at path
func Open(path string) (*Journal, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	// single writer suits SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	j := &Journal{db: db}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal migration failed: %w", err)
	}

	return j, nil
}

// Close closes the database connection
func (j *Journal) Close() error {
	return j.db.Close()
}

// Record appends one attempt
func (j *Journal) Record(a Attempt) error {
	_, err := j.db.Exec(`
		INSERT INTO attempts (run_id, file, target, kind, outcome, remote_id, error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.RunID, a.File, a.Target, a.Kind, a.Outcome, a.RemoteID, a.Error,
		a.StartedAt.UTC().Unix(), a.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

// Recent returns the latest attempts, newest first
func (j *Journal) Recent(limit int) ([]Attempt, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.Query(`
		SELECT run_id, file, target, kind, outcome, remote_id, error, started_at, duration_ms
		FROM attempts ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()
	return scanAttempts(rows)
}

// ByFile returns every attempt for one registry path, oldest first
func (j *Journal) ByFile(file string) ([]Attempt, error) {
	rows, err := j.db.Query(`
		SELECT run_id, file, target, kind, outcome, remote_id, error, started_at, duration_ms
		FROM attempts WHERE file = ? ORDER BY id ASC`, file)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()
	return scanAttempts(rows)
}

func scanAttempts(rows *sql.Rows) ([]Attempt, error) {
	var out []Attempt
	for rows.Next() {
		var a Attempt
		var startedUnix, durationMs int64
		err := rows.Scan(&a.RunID, &a.File, &a.Target, &a.Kind, &a.Outcome,
			&a.RemoteID, &a.Error, &startedUnix, &durationMs)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		a.StartedAt = time.Unix(startedUnix, 0).UTC()
		a.Duration = time.Duration(durationMs) * time.Millisecond
		out = append(out, a)
	}
	return out, rows.Err()
}

// migrate applies database migrations
func (j *Journal) migrate() error {
	version, err := j.getSchemaVersion()
	if err != nil {
		return err
	}
	if version >= currentSchemaVersion {
		return nil
	}

	tx, err := j.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if version < 1 {
		if _, err := tx.Exec(schemaV1); err != nil {
			return fmt.Errorf("failed to apply schema v1: %w", err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (1)"); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
	}

	return tx.Commit()
}

func (j *Journal) getSchemaVersion() (int, error) {
	var exists int
	err := j.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='schema_version'
	`).Scan(&exists)
	if err != nil {
		return 0, err
	}
	if exists == 0 {
		return 0, nil
	}

	var version int
	err = j.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	return version, err
}
