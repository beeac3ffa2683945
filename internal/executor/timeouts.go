package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// pgExecer is satisfied by pgx.Tx and *pgxpool.Conn.
type pgExecer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// pgTimeout is a PostgreSQL timeout setting applied around one migration.
type pgTimeout struct {
	name string
	d    time.Duration
}

func (e *Postgres) configuredTimeouts() []pgTimeout {
	var timeouts []pgTimeout

	for _, t := range []pgTimeout{
		{name: "lock_timeout", d: e.lockTimeout},
		{name: "statement_timeout", d: e.statementTimeout},
	} {
		if t.d > 0 {
			timeouts = append(timeouts, t)
		}
	}

	return timeouts
}

// applyTimeouts issues SET LOCAL for each configured timeout so a migration
// fails fast instead of queueing behind other sessions' locks. Zero disables.
func (e *Postgres) applyTimeouts(ctx context.Context, tx pgExecer) error {
	return setTimeouts(ctx, tx, "SET LOCAL", e.configuredTimeouts())
}

// applySessionTimeouts is applyTimeouts for statements that run outside a
// transaction. The settings last for the session, so they must be reset
// before the connection goes back to the pool.
func (e *Postgres) applySessionTimeouts(ctx context.Context, conn pgExecer) ([]pgTimeout, error) {
	timeouts := e.configuredTimeouts()

	return timeouts, setTimeouts(ctx, conn, "SET", timeouts)
}

func setTimeouts(ctx context.Context, db pgExecer, verb string, timeouts []pgTimeout) error {
	for _, t := range timeouts {
		if _, err := db.Exec(ctx, fmt.Sprintf("%s %s = '%dms'", verb, t.name, t.d.Milliseconds())); err != nil {
			return fmt.Errorf("setting %s: %w", t.name, err)
		}
	}

	return nil
}

func resetTimeouts(ctx context.Context, conn pgExecer, timeouts []pgTimeout) error {
	for _, t := range timeouts {
		if _, err := conn.Exec(ctx, "RESET "+t.name); err != nil {
			return fmt.Errorf("resetting %s: %w", t.name, err)
		}
	}

	return nil
}
