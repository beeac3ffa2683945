// Package executor runs a single migration script against a database, one
// transaction per script, and records it in the history table as part of the
// same transaction.
package executor

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aqasim81/schema-runner/internal/logging"
	"github.com/aqasim81/schema-runner/internal/migration"
)

// Result describes a script that executed successfully.
type Result struct {
	// ExecutionTime is the wall-clock time spent running the statements.
	ExecutionTime time.Duration
	// AppliedAt is when the statements finished.
	AppliedAt time.Time
	// Recorded is true when the history row was written inside the script's
	// transaction. When false the caller must record it.
	Recorded bool
}

type settings struct {
	lockTimeout      time.Duration
	statementTimeout time.Duration
	now              func() time.Time
	log              logrus.FieldLogger
}

// Option configures an executor.
type Option func(*settings)

// WithLockTimeout sets the per-transaction lock_timeout. Zero leaves the server default.
func WithLockTimeout(d time.Duration) Option {
	return func(s *settings) { s.lockTimeout = d }
}

// WithStatementTimeout bounds each statement. Zero means no limit.
func WithStatementTimeout(d time.Duration) Option {
	return func(s *settings) { s.statementTimeout = d }
}

// WithClock overrides the time source used for AppliedAt and ExecutionTime.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// WithLogger sets the logger used for statement-level debug output.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *settings) { s.log = log }
}

func newSettings(opts []Option) settings {
	s := settings{now: time.Now}

	for _, opt := range opts {
		opt(&s)
	}

	if s.log == nil {
		s.log = logging.Discard()
	}

	return s
}

func executionError(s *migration.Script, statement int, err error) error {
	return &migration.MigrationExecutionError{
		Version:   s.Version,
		FileName:  s.FileName,
		Statement: statement,
		Err:       err,
	}
}

// classify wraps failures that are not already one of the migration error
// kinds, so callers can rely on errors.As.
func classify(s *migration.Script, err error) error {
	if errors.Is(err, migration.ErrExecution) || errors.Is(err, migration.ErrDuplicateVersion) {
		return err
	}

	return executionError(s, 0, err)
}

// recordError keeps history collisions as duplicates and reports anything
// else as a failure of the script.
func recordError(s *migration.Script, err error) error {
	if errors.Is(err, migration.ErrDuplicateVersion) {
		return err
	}

	return executionError(s, 0, err)
}
