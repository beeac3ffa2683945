package executor

import (
	"context"
	"database/sql"

	"github.com/aqasim81/schema-runner/internal/history"
	"github.com/aqasim81/schema-runner/internal/migration"
	"github.com/aqasim81/schema-runner/internal/parser"
)

// SQLRecorder writes a history row inside a database/sql transaction.
type SQLRecorder interface {
	InsertTx(ctx context.Context, tx *sql.Tx, rec history.Record) error
}

// SQLite executes scripts through database/sql. Each batch is handed to the
// driver whole; the driver runs its statements in order. Statement numbers in
// errors refer to batches.
type SQLite struct {
	settings

	db       *sql.DB
	recorder SQLRecorder
}

// NewSQLite creates an executor. recorder may be nil.
func NewSQLite(db *sql.DB, recorder SQLRecorder, opts ...Option) *SQLite {
	return &SQLite{
		settings: newSettings(opts),
		db:       db,
		recorder: recorder,
	}
}

// Execute runs s in one transaction, records it and commits.
func (e *SQLite) Execute(ctx context.Context, s *migration.Script) (Result, error) {
	if e.statementTimeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, e.statementTimeout)
		defer cancel()
	}

	batches := parser.SplitBatches(s.SQL())

	var res Result

	err := execInSQLTransaction(ctx, e.db, func(tx *sql.Tx) error {
		start := e.now()

		for i, batch := range batches {
			e.log.WithField("version", s.Version).WithField("batch", i+1).Debug("executing batch")

			if _, err := tx.ExecContext(ctx, batch); err != nil {
				return executionError(s, i+1, err)
			}
		}

		res.AppliedAt = e.now()
		res.ExecutionTime = res.AppliedAt.Sub(start)

		if e.recorder == nil {
			return nil
		}

		if err := e.recorder.InsertTx(ctx, tx, history.NewRecord(s, res.AppliedAt, res.ExecutionTime)); err != nil {
			return recordError(s, err)
		}

		res.Recorded = true

		return nil
	})
	if err != nil {
		return Result{}, classify(s, err)
	}

	return res, nil
}
