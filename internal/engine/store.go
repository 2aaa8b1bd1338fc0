package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"cafeteria/internal/config"
	"cafeteria/internal/core"
	"cafeteria/internal/db"
	"cafeteria/internal/store/memory"
	"cafeteria/internal/store/postgres"
	"cafeteria/migrations"
)

// Backing is an opened store plus the pool behind it, if any.
type Backing struct {
	Store Store
	// Pool is nil for the in-memory demo store.
	Pool *pgxpool.Pool
}

// Close releases the pool.
func (b *Backing) Close() {
	if b.Pool != nil {
		b.Pool.Close()
	}
}

// OpenDemo returns an in-memory store seeded with a demo menu starting the day after now.
func OpenDemo(now time.Time, logger *slog.Logger) *Backing {
	st := memory.New()
	from := core.CalendarDate(now).AddDate(0, 0, 1)
	memory.SeedDemo(st, from)
	logger.Warn("using in-memory demo store; nothing is persisted", "menu_from", from.Format(core.DateLayout))
	return &Backing{Store: st}
}

// OpenPostgres connects to cfg.DatabaseURL and, when migrate is set, applies
// pending migrations before returning.
func OpenPostgres(ctx context.Context, cfg *config.Config, migrate bool, logger *slog.Logger) (*Backing, error) {
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if migrate {
		applied, err := migrations.Apply(ctx, pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		if len(applied) > 0 {
			logger.Info("migrations applied", "migrations", applied)
		}
	}
	return &Backing{Store: postgres.New(pool), Pool: pool}, nil
}
