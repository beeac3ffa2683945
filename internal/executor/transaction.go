package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5"
)

// beginFunc starts a pgx transaction.
type beginFunc func(ctx context.Context) (pgx.Tx, error)

// execInTransaction runs fn inside a database transaction.
// On success the transaction is committed; on error it is rolled back.
func execInTransaction(ctx context.Context, begin beginFunc, fn func(tx pgx.Tx) error) error {
	tx, err := begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		return withRollback(err, tx.Rollback(context.WithoutCancel(ctx)), pgx.ErrTxClosed)
	}

	if err := tx.Commit(ctx); err != nil {
		// A failed commit already ended the transaction.
		return withRollback(fmt.Errorf("committing transaction: %w", err),
			tx.Rollback(context.WithoutCancel(ctx)), pgx.ErrTxClosed)
	}

	return nil
}

// execInSQLTransaction is execInTransaction for database/sql.
func execInSQLTransaction(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		return withRollback(err, tx.Rollback(), sql.ErrTxDone)
	}

	if err := tx.Commit(); err != nil {
		return withRollback(fmt.Errorf("committing transaction: %w", err), tx.Rollback(), sql.ErrTxDone)
	}

	return nil
}

// withRollback appends a rollback failure to cause. closed is the driver's
// "transaction already finished" error, which is not a failure.
func withRollback(cause, rbErr, closed error) error {
	if rbErr == nil || errors.Is(rbErr, closed) {
		return cause
	}

	return multierror.Append(cause, fmt.Errorf("rolling back transaction: %w", rbErr))
}
