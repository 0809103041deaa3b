// Package store persists score records and summaries in SQLite and exports
// them as CSV.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

const schemaV1 = `
CREATE TABLE IF NOT EXISTS score_records (
	experiment      TEXT NOT NULL,
	transcript_id   TEXT NOT NULL,
	case_id         TEXT NOT NULL,
	run_id          TEXT NOT NULL DEFAULT '',
	mode            TEXT NOT NULL DEFAULT '',
	termination     TEXT NOT NULL,
	pathology       TEXT NOT NULL DEFAULT '',
	diagnosis_match INTEGER NOT NULL DEFAULT 0,
	indeterminate   INTEGER NOT NULL DEFAULT 0,
	ranked_hit      INTEGER NOT NULL DEFAULT 0,
	treatment_match INTEGER NOT NULL DEFAULT 0,
	turns           INTEGER NOT NULL DEFAULT 0,
	requests        INTEGER NOT NULL DEFAULT 0,
	unnecessary     INTEGER NOT NULL DEFAULT 0,
	violations      INTEGER NOT NULL DEFAULT 0,
	tokens          INTEGER NOT NULL DEFAULT 0,
	usd             REAL NOT NULL DEFAULT 0.0,
	record_json     TEXT NOT NULL,
	PRIMARY KEY (experiment, transcript_id)
);
CREATE INDEX IF NOT EXISTS idx_score_records_case ON score_records(experiment, case_id);

CREATE TABLE IF NOT EXISTS summaries (
	experiment   TEXT PRIMARY KEY,
	comparator   TEXT NOT NULL DEFAULT '',
	cases        INTEGER NOT NULL DEFAULT 0,
	accuracy     REAL NOT NULL DEFAULT 0.0,
	summary_json TEXT NOT NULL,
	created_at   INTEGER NOT NULL DEFAULT 0
);
`

// ErrNotFound is returned when an experiment has no stored summary.
var ErrNotFound = errors.New("store: not found")

// Open opens a SQLite database at the given path with recommended pragmas
// and runs the schema migration. Use ":memory:" for a private in-memory
// database.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// single writer
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), schemaV1); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Store is the score database.
type Store struct {
	db *sql.DB
}

// DB exposes the underlying handle for ad-hoc queries.
func (s *Store) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }
