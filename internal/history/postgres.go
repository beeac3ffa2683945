package history

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// pgExecer is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres stores the ledger in a PostgreSQL table.
type Postgres struct {
	pool  *pgxpool.Pool
	table string // sanitized identifier
}

// NewPostgres creates a store backed by the given pool. An empty table name
// selects DefaultTable.
func NewPostgres(pool *pgxpool.Pool, table string) (*Postgres, error) {
	if table == "" {
		table = DefaultTable
	}

	if err := ValidateTableName(table); err != nil {
		return nil, err
	}

	return &Postgres{
		pool:  pool,
		table: pgx.Identifier(strings.Split(table, ".")).Sanitize(),
	}, nil
}

// EnsureTable creates the history table if it does not exist.
func (p *Postgres) EnsureTable(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
    version           TEXT PRIMARY KEY,
    filename          TEXT NOT NULL,
    checksum          TEXT NOT NULL,
    applied_at        TIMESTAMPTZ NOT NULL,
    execution_time_ms BIGINT NOT NULL
)`, p.table))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTableCreation, err)
	}

	return nil
}

// TableExists reports whether the history table has been created.
func (p *Postgres) TableExists(ctx context.Context) (bool, error) {
	var exists bool

	if err := p.pool.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, p.table).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking history table: %w", err)
	}

	return exists, nil
}

// GetApplied returns every recorded migration keyed by version.
func (p *Postgres) GetApplied(ctx context.Context) (map[string]Record, error) {
	rows, err := p.pool.Query(ctx, fmt.Sprintf(
		`SELECT version, filename, checksum, applied_at, execution_time_ms FROM %s`, p.table))
	if err != nil {
		return nil, fmt.Errorf("querying applied migrations: %w", err)
	}
	defer rows.Close()

	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var r Record
		if scanErr := row.Scan(&r.Version, &r.FileName, &r.Checksum, &r.AppliedAt, &r.ExecutionTimeMs); scanErr != nil {
			return Record{}, fmt.Errorf("scanning migration row: %w", scanErr)
		}

		r.AppliedAt = r.AppliedAt.UTC()

		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning applied migrations: %w", err)
	}

	applied := make(map[string]Record, len(records))
	for _, r := range records {
		applied[r.Version] = r
	}

	return applied, nil
}

// RecordApplied inserts a ledger row outside any migration transaction.
func (p *Postgres) RecordApplied(ctx context.Context, rec Record) error {
	return p.insert(ctx, p.pool, rec)
}

// InsertTx inserts a ledger row inside the migration's own transaction, so the
// row commits or rolls back together with the schema change.
func (p *Postgres) InsertTx(ctx context.Context, tx pgx.Tx, rec Record) error {
	return p.insert(ctx, tx, rec)
}

func (p *Postgres) insert(ctx context.Context, db pgExecer, rec Record) error {
	_, err := db.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s (version, filename, checksum, applied_at, execution_time_ms) VALUES ($1, $2, $3, $4, $5)`,
		p.table),
		rec.Version, rec.FileName, rec.Checksum, rec.AppliedAt, rec.ExecutionTimeMs,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return duplicateError(rec, p.existingFileName(ctx, rec.Version), err)
		}

		return fmt.Errorf("recording migration %s as applied: %w", rec.Version, err)
	}

	return nil
}

// existingFileName looks up the row a duplicate insert collided with. It reads
// through the pool because the failed insert has aborted its transaction.
func (p *Postgres) existingFileName(ctx context.Context, version string) string {
	var name string

	err := p.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT filename FROM %s WHERE version = $1`, p.table), version).Scan(&name)
	if err != nil {
		return ""
	}

	return name
}
