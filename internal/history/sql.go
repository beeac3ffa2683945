package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// sqlExecer is satisfied by both *sql.DB and *sql.Tx.
type sqlExecer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQL stores the ledger in a SQLite table through database/sql.
type SQL struct {
	db     *sql.DB
	table  string // quoted identifier
	schema string // unquoted, empty for the main database
	name   string // unquoted
}

// NewSQL creates a store backed by db. An empty table name selects DefaultTable.
func NewSQL(db *sql.DB, table string) (*SQL, error) {
	if table == "" {
		table = DefaultTable
	}

	if err := ValidateTableName(table); err != nil {
		return nil, err
	}

	s := &SQL{db: db, name: table}
	if schema, name, ok := strings.Cut(table, "."); ok {
		s.schema, s.name = schema, name
	}

	parts := strings.Split(table, ".")
	for i, part := range parts {
		parts[i] = `"` + part + `"`
	}

	s.table = strings.Join(parts, ".")

	return s, nil
}

// EnsureTable creates the history table if it does not exist.
func (s *SQL) EnsureTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    version           TEXT PRIMARY KEY NOT NULL,
    filename          TEXT NOT NULL,
    checksum          TEXT NOT NULL,
    applied_at        TEXT NOT NULL,
    execution_time_ms INTEGER NOT NULL
)`, s.table))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTableCreation, err)
	}

	return nil
}

// TableExists reports whether the history table has been created.
func (s *SQL) TableExists(ctx context.Context) (bool, error) {
	master := "sqlite_master"
	if s.schema != "" {
		master = `"` + s.schema + `".sqlite_master`
	}

	var n int

	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT count(*) FROM %s WHERE type = 'table' AND name = ?`, master), s.name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking history table: %w", err)
	}

	return n > 0, nil
}

// GetApplied returns every recorded migration keyed by version.
func (s *SQL) GetApplied(ctx context.Context) (map[string]Record, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT version, filename, checksum, applied_at, execution_time_ms FROM %s`, s.table))
	if err != nil {
		return nil, fmt.Errorf("querying applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]Record)

	for rows.Next() {
		var (
			r         Record
			appliedAt string
		)

		if err := rows.Scan(&r.Version, &r.FileName, &r.Checksum, &appliedAt, &r.ExecutionTimeMs); err != nil {
			return nil, fmt.Errorf("scanning migration row: %w", err)
		}

		r.AppliedAt, err = time.Parse(time.RFC3339Nano, appliedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing applied_at for migration %s: %w", r.Version, err)
		}

		applied[r.Version] = r
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scanning applied migrations: %w", err)
	}

	return applied, nil
}

// RecordApplied inserts a ledger row outside any migration transaction.
func (s *SQL) RecordApplied(ctx context.Context, rec Record) error {
	return s.insert(ctx, s.db, rec)
}

// InsertTx inserts a ledger row inside the migration's own transaction.
func (s *SQL) InsertTx(ctx context.Context, tx *sql.Tx, rec Record) error {
	return s.insert(ctx, tx, rec)
}

func (s *SQL) insert(ctx context.Context, db sqlExecer, rec Record) error {
	_, err := db.ExecContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (version, filename, checksum, applied_at, execution_time_ms) VALUES (?, ?, ?, ?, ?)`,
		s.table),
		rec.Version, rec.FileName, rec.Checksum, rec.AppliedAt.UTC().Format(time.RFC3339Nano), rec.ExecutionTimeMs,
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return duplicateError(rec, s.existingFileName(ctx, db, rec.Version), err)
		}

		return fmt.Errorf("recording migration %s as applied: %w", rec.Version, err)
	}

	return nil
}

// existingFileName looks up the row a duplicate insert collided with, on the
// same handle as the insert: a SQLite transaction stays usable after a
// constraint error, and an in-memory database has only one connection.
func (s *SQL) existingFileName(ctx context.Context, db sqlExecer, version string) string {
	var name string

	err := db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT filename FROM %s WHERE version = ?`, s.table), version).Scan(&name)
	if err != nil {
		return ""
	}

	return name
}

func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		// Extended result codes disabled; every column is supplied, so the key is the only constraint left.
		return true
	default:
		return false
	}
}
