package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/udisondev/gas/internal/config"
)

// applicationName tags engine sessions in pg_stat_activity.
const applicationName = "gasd"

// DB owns the pgx pool used by the journal.
type DB struct {
	pool *pgxpool.Pool
}

// New opens a pool sized by cfg and verifies the server is reachable.
func New(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	pc.ConnConfig.RuntimeParams["application_name"] = applicationName

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return &DB{pool: pool}, nil
}

// Migrate applies the journal schema over the pool's connections.
func (d *DB) Migrate(ctx context.Context) error {
	sqlDB := stdlib.OpenDBFromPool(d.pool)
	defer sqlDB.Close()
	return Migrate(ctx, sqlDB)
}

// Journal returns a repository bound to the pool.
func (d *DB) Journal() *JournalRepository {
	return NewJournalRepository(d.pool)
}

func (d *DB) Close() {
	d.pool.Close()
}
