package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"contentpay/backend/internal/config"
)

// Stores bundles the store implementations selected by configuration.
type Stores struct {
	Ledger  LedgerStore
	Content ContentStore
	// Pool is nil for the in-memory driver.
	Pool *pgxpool.Pool
}

// Open builds the stores for cfg.Storage.Driver. The postgres driver connects,
// pings and migrates before returning.
func Open(ctx context.Context, cfg *config.Config) (*Stores, error) {
	switch cfg.Storage.Driver {
	case config.StorageMemory:
		return &Stores{
			Ledger:  NewMemoryLedgerStore(),
			Content: NewMemoryContentStore(),
		}, nil
	case config.StoragePostgres:
		pool, err := OpenPool(ctx, cfg.DSN())
		if err != nil {
			return nil, err
		}
		if err := Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return &Stores{
			Ledger:  NewPostgresLedgerStore(pool),
			Content: NewPostgresContentStore(pool),
			Pool:    pool,
		}, nil
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}

// OpenPool creates a connection pool and checks connectivity.
func OpenPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// Ping checks the database, if any.
func (s *Stores) Ping(ctx context.Context) error {
	if s.Pool == nil {
		return nil
	}
	return s.Pool.Ping(ctx)
}

// Close releases the connection pool, if any.
func (s *Stores) Close() {
	if s.Pool != nil {
		s.Pool.Close()
	}
}
