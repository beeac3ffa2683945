package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Handle is an open connection to one of the supported databases. Exactly
// one of Pool and DB is set, matching Dialect.
type Handle struct {
	Dialect Dialect
	Pool    *pgxpool.Pool
	DB      *sql.DB
}

// Open detects the dialect of databaseURL and connects.
func Open(ctx context.Context, databaseURL string) (*Handle, error) {
	dialect, err := DetectDialect(databaseURL)
	if err != nil {
		return nil, err
	}

	switch dialect {
	case Postgres:
		pool, err := NewPool(ctx, databaseURL)
		if err != nil {
			return nil, err
		}

		return &Handle{Dialect: Postgres, Pool: pool}, nil
	case SQLite:
		db, err := OpenSQLite(ctx, databaseURL)
		if err != nil {
			return nil, err
		}

		return &Handle{Dialect: SQLite, DB: db}, nil
	default:
		return nil, ErrUnsupportedDialect
	}
}

// Close releases the underlying connections. Safe on a nil handle.
func (h *Handle) Close() error {
	if h == nil {
		return nil
	}

	if h.Pool != nil {
		h.Pool.Close()
	}

	if h.DB != nil {
		return h.DB.Close()
	}

	return nil
}

// Locker returns an advisory locker for the handle, or nil when the dialect
// has no advisory locks.
func (h *Handle) Locker(wait bool) *AdvisoryLocker {
	if h == nil || h.Pool == nil {
		return nil
	}

	return &AdvisoryLocker{Pool: h.Pool, Wait: wait}
}

// errNoPool is returned when a lock is requested without a Postgres pool.
var errNoPool = errors.New("advisory lock requires a PostgreSQL connection")
