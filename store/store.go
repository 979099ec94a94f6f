// Package store selects and opens the persistence backend.
package store

import (
	"context"
	"fmt"

	"github.com/isdmx/codejudge/config"
	"github.com/isdmx/codejudge/store/postgres"
	"github.com/isdmx/codejudge/store/sqlite"
	"github.com/isdmx/codejudge/store/sqlstore"
)

// Open opens the backend named by cfg.Store.Driver
func Open(ctx context.Context, cfg *config.Config) (*sqlstore.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return sqlite.Open(ctx, cfg.Store.DSN)
	case "postgres":
		return postgres.Open(ctx, cfg.Store.DSN)
	default:
		return nil, fmt.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
