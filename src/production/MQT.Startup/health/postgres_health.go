package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ConnectPostgresWithTimeout opens a pgx pool from a postgres:// URL. The pool
// dials on demand, so only an unparsable URL fails here.
func ConnectPostgresWithTimeout(ctx context.Context, url string, timeout time.Duration) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("unable to parse PostgreSQL URL: %w", err)
	}

	// Set connection pool settings
	poolCfg.MaxConns = 10
	poolCfg.MaxConnLifetime = 5 * time.Minute
	if poolCfg.ConnConfig.ConnectTimeout == 0 {
		poolCfg.ConnConfig.ConnectTimeout = timeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("unable to open PostgreSQL pool: %w", err)
	}
	return pool, nil
}

// PingPostgres checks a connection can be acquired and used
func PingPostgres(ctx context.Context, pool *pgxpool.Pool, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("unable to ping PostgreSQL: %w", err)
	}
	return nil
}
