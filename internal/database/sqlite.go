package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// OpenSQLite opens a SQLite database through modernc.org/sqlite and pings it.
// In-memory databases are limited to one connection, since each connection
// would otherwise see its own empty database.
func OpenSQLite(ctx context.Context, databaseURL string) (*sql.DB, error) {
	dsn := sqliteDSN(databaseURL)
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty sqlite path", ErrInvalidDatabaseURL)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return db, nil
}
