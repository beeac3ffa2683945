package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	defaultMaxConns = 5

	// ApplicationName identifies migration sessions in pg_stat_activity.
	ApplicationName = "schema-runner"
)

type poolOptions struct {
	maxConns        int32
	applicationName string
}

// PoolOption configures NewPool.
type PoolOption func(*poolOptions)

// WithMaxConns overrides the pool size. Values below 2 are raised to 2: the
// advisory lock pins one connection while migrations run on another.
func WithMaxConns(n int32) PoolOption {
	return func(o *poolOptions) { o.maxConns = max(n, 2) }
}

// WithApplicationName overrides the application_name reported to the server.
func WithApplicationName(name string) PoolOption {
	return func(o *poolOptions) { o.applicationName = name }
}

// NewPool creates a pgx connection pool for the given database URL and
// pings the database to verify connectivity.
func NewPool(ctx context.Context, databaseURL string, opts ...PoolOption) (*pgxpool.Pool, error) {
	o := poolOptions{maxConns: defaultMaxConns, applicationName: ApplicationName}
	for _, opt := range opts {
		opt(&o)
	}

	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDatabaseURL, err)
	}

	poolCfg.MaxConns = o.maxConns

	if _, set := poolCfg.ConnConfig.RuntimeParams["application_name"]; !set && o.applicationName != "" {
		poolCfg.ConnConfig.RuntimeParams["application_name"] = o.applicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()

		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return pool, nil
}
