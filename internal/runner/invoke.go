package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/aqasim81/schema-runner/internal/database"
	"github.com/aqasim81/schema-runner/internal/executor"
	"github.com/aqasim81/schema-runner/internal/history"
)

// Settings selects the dialect-specific pieces built by ForHandle.
type Settings struct {
	HistoryTable     string
	Lock             bool
	LockWait         bool
	LockTimeout      time.Duration
	StatementTimeout time.Duration
}

// DefaultSettings returns the settings used by RunMigrations.
func DefaultSettings() Settings {
	return Settings{
		HistoryTable: history.DefaultTable,
		Lock:         true,
		LockTimeout:  5 * time.Second,
	}
}

// ForHandle builds a Runner with the history store, executor and lock that
// match the handle's dialect. The caller keeps ownership of h.
func ForHandle(dir string, h *database.Handle, s Settings, opts ...Option) (*Runner, error) {
	if h == nil {
		return nil, fmt.Errorf("%w: nil database handle", database.ErrConnectionFailed)
	}

	r := New(dir, nil, nil, opts...)

	execOpts := []executor.Option{
		executor.WithLockTimeout(s.LockTimeout),
		executor.WithStatementTimeout(s.StatementTimeout),
		executor.WithClock(r.now),
		executor.WithLogger(r.log),
	}

	switch h.Dialect {
	case database.Postgres:
		store, err := history.NewPostgres(h.Pool, s.HistoryTable)
		if err != nil {
			return nil, err
		}

		r.store = store
		r.exec = executor.NewPostgres(h.Pool, store, execOpts...)

		if s.Lock && r.locker == nil {
			r.locker = h.Locker(s.LockWait)
		}
	case database.SQLite:
		store, err := history.NewSQL(h.DB, s.HistoryTable)
		if err != nil {
			return nil, err
		}

		r.store = store
		r.exec = executor.NewSQLite(h.DB, store, execOpts...)
	default:
		return nil, fmt.Errorf("%w: %q", database.ErrUnsupportedDialect, h.Dialect)
	}

	return r, nil
}

// RunMigrations applies every pending migration under sourcePath to the
// database behind h and returns how many were applied.
func RunMigrations(ctx context.Context, sourcePath string, h *database.Handle, opts ...Option) (int, error) {
	r, err := ForHandle(sourcePath, h, DefaultSettings(), opts...)
	if err != nil {
		return 0, err
	}

	report, err := r.Run(ctx)

	return report.Count(), err
}
