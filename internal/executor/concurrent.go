package executor

import (
	"context"
	"fmt"

	"github.com/aqasim81/schema-runner/internal/migration"
	"github.com/aqasim81/schema-runner/internal/parser"
)

// sessionConn is a dedicated pooled connection; *pgxpool.Conn satisfies it.
type sessionConn interface {
	pgExecer
	Release()
}

// acquireFunc checks a connection out of the pool.
type acquireFunc func(ctx context.Context) (sessionConn, error)

// containsConcurrentIndex returns true if any statement is a concurrent
// index operation. Such statements cannot run inside a transaction block.
func containsConcurrentIndex(stmts []string) (bool, error) {
	for i, stmt := range stmts {
		concurrent, err := parser.HasConcurrentIndex(stmt)
		if err != nil {
			return false, fmt.Errorf("statement %d: %w", i+1, err)
		}

		if concurrent {
			return true, nil
		}
	}

	return false, nil
}

// executeOutsideTransaction runs each statement in autocommit mode on one
// dedicated connection, with the configured timeouts set for that session
// and reset afterwards. A failure part way leaves earlier statements in
// place, so such scripts should be written to be re-runnable (IF NOT EXISTS).
func (e *Postgres) executeOutsideTransaction(ctx context.Context, s *migration.Script, stmts []string) (Result, error) {
	log := e.log.WithField("version", s.Version)
	log.Warn("script contains a concurrent index operation; running outside a transaction")

	conn, err := e.acquire(ctx)
	if err != nil {
		return Result{}, executionError(s, 0, fmt.Errorf("acquiring connection: %w", err))
	}
	defer conn.Release()

	timeouts, err := e.applySessionTimeouts(ctx, conn)
	defer func() {
		if resetErr := resetTimeouts(context.WithoutCancel(ctx), conn, timeouts); resetErr != nil {
			log.WithError(resetErr).Warn("connection returned to pool with migration timeouts still set")
		}
	}()

	if err != nil {
		return Result{}, executionError(s, 0, err)
	}

	start := e.now()

	for i, stmt := range stmts {
		if _, err := conn.Exec(ctx, stmt); err != nil {
			return Result{}, executionError(s, i+1, fmt.Errorf("executing outside transaction: %w", err))
		}
	}

	finished := e.now()

	return Result{ExecutionTime: finished.Sub(start), AppliedAt: finished}, nil
}
