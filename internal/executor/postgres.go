package executor

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aqasim81/schema-runner/internal/history"
	"github.com/aqasim81/schema-runner/internal/migration"
	"github.com/aqasim81/schema-runner/internal/parser"
)

// PgRecorder writes a history row inside a pgx transaction.
type PgRecorder interface {
	InsertTx(ctx context.Context, tx pgx.Tx, rec history.Record) error
}

// Postgres executes scripts through a pgx pool.
type Postgres struct {
	settings

	pool     *pgxpool.Pool
	recorder PgRecorder
	begin    beginFunc
	acquire  acquireFunc
}

// NewPostgres creates an executor. recorder may be nil, in which case every
// Result reports Recorded=false.
func NewPostgres(pool *pgxpool.Pool, recorder PgRecorder, opts ...Option) *Postgres {
	e := &Postgres{
		settings: newSettings(opts),
		pool:     pool,
		recorder: recorder,
	}

	e.begin = func(ctx context.Context) (pgx.Tx, error) {
		return e.pool.Begin(ctx)
	}

	e.acquire = func(ctx context.Context) (sessionConn, error) {
		conn, err := e.pool.Acquire(ctx)
		if err != nil {
			return nil, err
		}

		return conn, nil
	}

	return e
}

// Execute runs every statement of s in one transaction, records it and
// commits. Any failure rolls the whole script back.
func (e *Postgres) Execute(ctx context.Context, s *migration.Script) (Result, error) {
	stmts, err := parser.SplitScript(s.SQL())
	if err != nil {
		return Result{}, executionError(s, 0, err)
	}

	concurrent, err := containsConcurrentIndex(stmts)
	if err != nil {
		return Result{}, executionError(s, 0, fmt.Errorf("detecting concurrent index: %w", err))
	}

	if concurrent {
		return e.executeOutsideTransaction(ctx, s, stmts)
	}

	var res Result

	err = execInTransaction(ctx, e.begin, func(tx pgx.Tx) error {
		if err := e.applyTimeouts(ctx, tx); err != nil {
			return executionError(s, 0, err)
		}

		start := e.now()

		for i, stmt := range stmts {
			e.log.WithField("version", s.Version).WithField("statement", i+1).Debug("executing statement")

			if _, err := tx.Exec(ctx, stmt); err != nil {
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
