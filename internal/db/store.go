package db

import (
	"context"
	"fmt"

	"backfeed/internal/logger"
	"backfeed/internal/migrations"
	"backfeed/internal/repository"
	"backfeed/internal/repository/memstore"
)

// OpenStore returns the store selected by driver and a close function.
// The postgres driver applies the embedded migrations when migrate is set.
func OpenStore(ctx context.Context, driver, dsn string, migrate bool) (repository.Store, func(), error) {
	switch driver {
	case "memory":
		logger.Warn("using in-memory store; state is lost on exit")
		return memstore.New(), func() {}, nil
	case "postgres":
		pool, err := Connect(ctx, dsn)
		if err != nil {
			return nil, nil, err
		}
		if migrate {
			if err := migrations.Apply(ctx, pool); err != nil {
				pool.Close()
				return nil, nil, fmt.Errorf("migrate: %w", err)
			}
		}
		return repository.NewPostgres(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", driver)
	}
}
