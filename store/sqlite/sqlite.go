// Package sqlite is the single-node store backed by an embedded SQLite database.
package sqlite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/isdmx/codejudge/domain"
	"github.com/isdmx/codejudge/store/sqlstore"
)

var schema = []string{
	`PRAGMA foreign_keys = ON`,
	`PRAGMA busy_timeout = 5000`,
	`CREATE TABLE IF NOT EXISTS problems (
		id              TEXT PRIMARY KEY,
		title           TEXT NOT NULL,
		slug            TEXT NOT NULL UNIQUE,
		time_limit_ms   INTEGER NOT NULL DEFAULT 0,
		memory_limit_mb INTEGER NOT NULL DEFAULT 0,
		drivers         TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS test_cases (
		id              TEXT PRIMARY KEY,
		problem_id      TEXT NOT NULL REFERENCES problems(id) ON DELETE CASCADE,
		position        INTEGER NOT NULL,
		input           TEXT NOT NULL,
		expected_output TEXT NOT NULL,
		is_hidden       BOOLEAN NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_test_cases_problem ON test_cases(problem_id, position)`,
	`CREATE TABLE IF NOT EXISTS submissions (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		problem_id TEXT NOT NULL,
		code       TEXT NOT NULL,
		language   TEXT NOT NULL,
		status     TEXT NOT NULL,
		score      INTEGER NOT NULL DEFAULT 0,
		results    TEXT NOT NULL DEFAULT '[]',
		created_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_submissions_user_problem ON submissions(user_id, problem_id, created_at)`,
	`CREATE TABLE IF NOT EXISTS user_progress (
		user_id         TEXT PRIMARY KEY,
		problems_solved INTEGER NOT NULL DEFAULT 0,
		total_score     INTEGER NOT NULL DEFAULT 0
	)`,
}

// Dialect is the SQLite flavour of the shared store
var Dialect = sqlstore.Dialect{
	Name:   "sqlite",
	Schema: schema,
	TimeArg: func(t time.Time) any {
		return t.UTC().Format(sqlstore.SortableTime)
	},
	MapError: mapError,
}

// Open creates or opens a SQLite database at the given path and runs migrations.
// Use ":memory:" for an in-memory database (useful for testing).
func Open(ctx context.Context, dbPath string) (*sqlstore.Store, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection: writes serialise anyway, pragmas are per connection,
	// and every new connection to ":memory:" would be a fresh empty database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	store := sqlstore.New(db, Dialect)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

func mapError(err error) error {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() & 0xff {
		case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED, sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_IOERR:
			return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
		}
	}
	return err
}
