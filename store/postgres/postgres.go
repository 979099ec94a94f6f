// Package postgres is the shared store backed by PostgreSQL through the pgx driver.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/jmoiron/sqlx"

	"github.com/isdmx/codejudge/domain"
	"github.com/isdmx/codejudge/store/sqlstore"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS problems (
		id              TEXT PRIMARY KEY,
		title           TEXT NOT NULL,
		slug            TEXT NOT NULL UNIQUE,
		time_limit_ms   INTEGER NOT NULL DEFAULT 0,
		memory_limit_mb INTEGER NOT NULL DEFAULT 0,
		drivers         JSONB NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS test_cases (
		id              TEXT PRIMARY KEY,
		problem_id      TEXT NOT NULL REFERENCES problems(id) ON DELETE CASCADE,
		position        INTEGER NOT NULL,
		input           TEXT NOT NULL,
		expected_output TEXT NOT NULL,
		is_hidden       BOOLEAN NOT NULL DEFAULT FALSE
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
		results    JSONB NOT NULL DEFAULT '[]',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_submissions_user_problem ON submissions(user_id, problem_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS user_progress (
		user_id         TEXT PRIMARY KEY,
		problems_solved INTEGER NOT NULL DEFAULT 0,
		total_score     INTEGER NOT NULL DEFAULT 0
	)`,
}

// Dialect is the PostgreSQL flavour of the shared store
var Dialect = sqlstore.Dialect{
	Name:   "postgres",
	Schema: schema,
	TimeArg: func(t time.Time) any {
		return t.UTC()
	},
	MapError: mapError,
}

// Open connects to dsn, verifies the connection and runs migrations
func Open(ctx context.Context, dsn string) (*sqlstore.Store, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}

	store := sqlstore.New(db, Dialect)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return store, nil
}

// mapError marks connectivity failures as domain.ErrStoreUnavailable
func mapError(err error) error {
	if isUnavailable(err) {
		return fmt.Errorf("%w: %w", domain.ErrStoreUnavailable, err)
	}
	return err
}

func isUnavailable(err error) bool {
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08": // connection exception
			return true
		case pgErr.Code == "57P01", pgErr.Code == "57P02", pgErr.Code == "57P03": // shutdown, cannot connect now
			return true
		case pgErr.Code == "53300": // too many connections
			return true
		}
	}
	return false
}
