// Package runner drives a migration run: discover scripts, verify what was
// already applied, then apply the rest in version order, one transaction each.
package runner

import (
	"context"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/aqasim81/schema-runner/internal/database"
	"github.com/aqasim81/schema-runner/internal/executor"
	"github.com/aqasim81/schema-runner/internal/history"
	"github.com/aqasim81/schema-runner/internal/logging"
	"github.com/aqasim81/schema-runner/internal/migration"
)

// Progress status constants reported via ProgressEvent.
const (
	StatusStarting  = "starting"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// ProgressEvent is emitted for each pending migration processed.
type ProgressEvent struct {
	Script   *migration.Script
	Status   string
	Duration time.Duration
	Error    error
}

// Store abstracts the history table for testability.
type Store interface {
	EnsureTable(ctx context.Context) error
	TableExists(ctx context.Context) (bool, error)
	GetApplied(ctx context.Context) (map[string]history.Record, error)
	RecordApplied(ctx context.Context, rec history.Record) error
}

// Executor runs a single script.
type Executor interface {
	Execute(ctx context.Context, s *migration.Script) (executor.Result, error)
}

// Locker serializes runs across processes.
type Locker interface {
	Lock(ctx context.Context) (database.Releaser, error)
}

// Report summarizes a finished run.
type Report struct {
	// Applied holds the history rows written by this run, in order.
	Applied []history.Record
	// Skipped counts scripts that were already applied and verified.
	Skipped int
	// Missing lists versions recorded in history with no script on disk.
	Missing []string
	// Pending lists versions a dry run would have applied.
	Pending []string
}

// Count returns the number of migrations applied by the run.
func (r Report) Count() int { return len(r.Applied) }

// Runner applies migrations from one source to one database.
type Runner struct {
	dir        string
	source     fs.FS
	loadOpts   []migration.LoadOption
	store      Store
	exec       Executor
	locker     Locker
	dryRun     bool
	now        func() time.Time
	log        logrus.FieldLogger
	onProgress func(ProgressEvent)

	mu    sync.Mutex
	state State
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger. Runs add a run_id field.
func WithLogger(log logrus.FieldLogger) Option {
	return func(r *Runner) { r.log = log }
}

// WithProgressCallback sets a function called for each migration processed.
func WithProgressCallback(fn func(ProgressEvent)) Option {
	return func(r *Runner) { r.onProgress = fn }
}

// WithLocker takes the lock before discovery and releases it at the end.
func WithLocker(l Locker) Option {
	return func(r *Runner) { r.locker = l }
}

// WithDryRun verifies and reports pending migrations without executing them.
func WithDryRun(b bool) Option {
	return func(r *Runner) { r.dryRun = b }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// WithLoadOptions passes options to migration discovery.
func WithLoadOptions(opts ...migration.LoadOption) Option {
	return func(r *Runner) { r.loadOpts = append(r.loadOpts, opts...) }
}

// WithSource reads scripts from fsys, with dir relative to its root.
func WithSource(fsys fs.FS) Option {
	return func(r *Runner) { r.source = fsys }
}

// New creates a Runner reading scripts from dir.
func New(dir string, store Store, exec Executor, opts ...Option) *Runner {
	r := &Runner{
		dir:   dir,
		store: store,
		exec:  exec,
		now:   time.Now,
		state: StateIdle,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.log == nil {
		r.log = logging.Discard()
	}

	return r
}

// State returns the current phase.
func (r *Runner) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.state
}

func (r *Runner) transition(log logrus.FieldLogger, to State) {
	r.mu.Lock()
	from := r.state
	r.state = to
	r.mu.Unlock()

	log.WithField("state", to).Debugf("state %s -> %s", from, to)
}

func (r *Runner) fail(log logrus.FieldLogger, err error) error {
	r.transition(log, StateFailed)
	log.WithError(err).Error("migration run failed")

	return err
}

// Run executes one full pass. A zero Report.Count with a nil error means
// there was nothing to do. On error, migrations applied earlier in the run
// stay applied and are listed in the returned Report.
func (r *Runner) Run(ctx context.Context) (report Report, err error) {
	log := r.log.WithField("run_id", uuid.NewString())
	r.transition(log, StateIdle)

	if r.locker != nil {
		lock, lockErr := r.locker.Lock(ctx)
		if lockErr != nil {
			return Report{}, r.fail(log, fmt.Errorf("acquiring migration lock: %w", lockErr))
		}

		log.Debug("migration lock acquired")

		defer func() {
			if relErr := lock.Release(context.WithoutCancel(ctx)); relErr != nil {
				log.WithError(relErr).Warn("releasing migration lock")
				err = multierror.Append(err, relErr).ErrorOrNil()
			}
		}()
	}

	r.transition(log, StateDiscovering)

	scripts, err := r.discover()
	if err != nil {
		return Report{}, r.fail(log, err)
	}

	log.WithField("count", len(scripts)).Info("discovered migrations")

	r.transition(log, StateVerifying)

	v, err := r.verify(ctx, scripts, true)
	if err != nil {
		return Report{}, r.fail(log, err)
	}

	report.Skipped = v.skipped
	report.Missing = v.missing

	for _, version := range v.missing {
		log.WithField("version", version).Warn("applied migration has no script on disk")
	}

	r.transition(log, StateApplying)

	if r.dryRun {
		for i := range v.pending {
			s := &v.pending[i]
			report.Pending = append(report.Pending, s.Version)
			log.WithField("version", s.Version).WithField("file", s.FileName).Info("would apply migration")
			r.fireProgress(ProgressEvent{Script: s, Status: StatusSkipped})
		}

		r.transition(log, StateDone)

		return report, nil
	}

	for i := range v.pending {
		rec, applyErr := r.applyOne(ctx, log, &v.pending[i])
		if applyErr != nil {
			return report, r.fail(log, applyErr)
		}

		report.Applied = append(report.Applied, rec)
	}

	r.transition(log, StateDone)
	log.WithField("applied", report.Count()).WithField("skipped", report.Skipped).Info("migration run complete")

	return report, nil
}

func (r *Runner) discover() ([]migration.Script, error) {
	if r.source != nil {
		return migration.DiscoverFS(r.source, r.dir, r.loadOpts...)
	}

	return migration.Discover(r.dir, r.loadOpts...)
}

// applyOne executes s, records it if the executor did not, and fires progress.
func (r *Runner) applyOne(ctx context.Context, log logrus.FieldLogger, s *migration.Script) (history.Record, error) {
	if err := ctx.Err(); err != nil {
		return history.Record{}, fmt.Errorf("stopped before migration %s: %w", s.Version, err)
	}

	log = log.WithField("version", s.Version).WithField("file", s.FileName)

	r.fireProgress(ProgressEvent{Script: s, Status: StatusStarting})

	res, err := r.exec.Execute(ctx, s)
	if err != nil {
		r.fireProgress(ProgressEvent{Script: s, Status: StatusFailed, Duration: res.ExecutionTime, Error: err})

		return history.Record{}, err
	}

	appliedAt := res.AppliedAt
	if appliedAt.IsZero() {
		appliedAt = r.now()
	}

	rec := history.NewRecord(s, appliedAt, res.ExecutionTime)

	if !res.Recorded {
		if err := r.store.RecordApplied(ctx, rec); err != nil {
			err = fmt.Errorf("recording migration %s: %w", s.Version, err)
			r.fireProgress(ProgressEvent{Script: s, Status: StatusFailed, Duration: res.ExecutionTime, Error: err})

			return history.Record{}, err
		}
	}

	r.fireProgress(ProgressEvent{Script: s, Status: StatusCompleted, Duration: res.ExecutionTime})
	log.WithField("duration_ms", rec.ExecutionTimeMs).Info("migration applied")

	return rec, nil
}

func (r *Runner) fireProgress(event ProgressEvent) {
	if r.onProgress != nil {
		r.onProgress(event)
	}
}
