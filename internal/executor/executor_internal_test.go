package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/schema-runner/internal/history"
	"github.com/aqasim81/schema-runner/internal/migration"
)

// fakeTx implements the parts of pgx.Tx the executor uses.
type fakeTx struct {
	pgx.Tx

	execs       []string
	failOn      string // Exec fails for statements containing this text
	commitErr   error
	rollbackErr error
	committed   bool
	rolledBack  bool
}

func (f *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	if f.failOn != "" && strings.Contains(sql, f.failOn) {
		return pgconn.CommandTag{}, errors.New("syntax error at or near \"" + f.failOn + "\"")
	}

	f.execs = append(f.execs, sql)

	return pgconn.CommandTag{}, nil
}

func (f *fakeTx) Commit(_ context.Context) error {
	if f.commitErr != nil {
		return f.commitErr
	}

	f.committed = true

	return nil
}

func (f *fakeTx) Rollback(_ context.Context) error {
	if f.committed {
		return pgx.ErrTxClosed
	}

	f.rolledBack = true

	return f.rollbackErr
}

// fakeConn implements sessionConn.
type fakeConn struct {
	execs    []string
	failOn   string
	released bool
}

func (f *fakeConn) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)

	if f.failOn != "" && strings.Contains(sql, f.failOn) {
		return pgconn.CommandTag{}, errors.New("relation \"items\" does not exist")
	}

	return pgconn.CommandTag{}, nil
}

func (f *fakeConn) Release() { f.released = true }

func newConcurrentTestPostgres(t *testing.T, conn *fakeConn, rec PgRecorder, opts ...Option) *Postgres {
	t.Helper()

	e := NewPostgres(nil, rec, opts...)
	e.begin = func(context.Context) (pgx.Tx, error) {
		t.Fatal("transaction must not be opened")
		return nil, nil
	}
	e.acquire = func(context.Context) (sessionConn, error) { return conn, nil }

	return e
}

// fakeRecorder implements PgRecorder.
type fakeRecorder struct {
	records []history.Record
	err     error
}

func (f *fakeRecorder) InsertTx(_ context.Context, _ pgx.Tx, rec history.Record) error {
	if f.err != nil {
		return f.err
	}

	f.records = append(f.records, rec)

	return nil
}

func testScript(version, sql string) *migration.Script {
	return &migration.Script{
		Version:  version,
		FileName: "V" + version + "__test.sql",
		Content:  []byte(sql),
		Checksum: migration.ComputeChecksum([]byte(sql)),
	}
}

// steppingClock advances by step on every call.
func steppingClock(start time.Time, step time.Duration) func() time.Time {
	now := start

	return func() time.Time {
		t := now
		now = now.Add(step)

		return t
	}
}

func newTestPostgres(tx *fakeTx, rec PgRecorder, opts ...Option) *Postgres {
	e := NewPostgres(nil, rec, opts...)
	e.begin = func(context.Context) (pgx.Tx, error) { return tx, nil }
	e.acquire = func(context.Context) (sessionConn, error) {
		panic("unexpected non-transactional execution")
	}

	return e
}

func TestPostgresExecute_success_recordsInsideTransaction(t *testing.T) {
	t.Parallel()

	tx := &fakeTx{}
	rec := &fakeRecorder{}
	start := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	e := newTestPostgres(tx, rec, WithClock(steppingClock(start, 250*time.Millisecond)))
	s := testScript("001", "CREATE TABLE a (id INT);\nCREATE TABLE b (id INT);\n")

	res, err := e.Execute(context.Background(), s)

	require.NoError(t, err)
	assert.True(t, res.Recorded)
	assert.Equal(t, 250*time.Millisecond, res.ExecutionTime)
	assert.Equal(t, start.Add(250*time.Millisecond), res.AppliedAt)

	require.Len(t, tx.execs, 2)
	assert.Contains(t, tx.execs[0], "CREATE TABLE a")
	assert.Contains(t, tx.execs[1], "CREATE TABLE b")
	assert.True(t, tx.committed)

	require.Len(t, rec.records, 1)
	assert.Equal(t, "001", rec.records[0].Version)
	assert.Equal(t, s.Checksum, rec.records[0].Checksum)
	assert.Equal(t, int64(250), rec.records[0].ExecutionTimeMs)
}

func TestPostgresExecute_withoutRecorder_notRecorded(t *testing.T) {
	t.Parallel()

	tx := &fakeTx{}
	e := newTestPostgres(tx, nil)

	res, err := e.Execute(context.Background(), testScript("001", "SELECT 1;"))

	require.NoError(t, err)
	assert.False(t, res.Recorded)
	assert.True(t, tx.committed)
}

func TestPostgresExecute_timeoutsAreTransactionLocal(t *testing.T) {
	t.Parallel()

	tx := &fakeTx{}
	e := newTestPostgres(tx, nil,
		WithLockTimeout(5*time.Second),
		WithStatementTimeout(30*time.Second),
	)

	_, err := e.Execute(context.Background(), testScript("001", "SELECT 1;"))

	require.NoError(t, err)
	require.Len(t, tx.execs, 3)
	assert.Equal(t, "SET LOCAL lock_timeout = '5000ms'", tx.execs[0])
	assert.Equal(t, "SET LOCAL statement_timeout = '30000ms'", tx.execs[1])
}

func TestPostgresExecute_batchesAreSplit(t *testing.T) {
	t.Parallel()

	tx := &fakeTx{}
	e := newTestPostgres(tx, nil)

	_, err := e.Execute(context.Background(), testScript("001", "CREATE TABLE a (id INT);\nGO\nCREATE TABLE b (id INT);\n"))

	require.NoError(t, err)
	assert.Len(t, tx.execs, 2)
}

func TestPostgresExecute_statementFailure_rollsBack(t *testing.T) {
	t.Parallel()

	tx := &fakeTx{failOn: "missing"}
	rec := &fakeRecorder{}
	e := newTestPostgres(tx, rec)
	s := testScript("003", "CREATE TABLE ok (id INT);\nINSERT INTO missing VALUES (1);\n")

	_, err := e.Execute(context.Background(), s)

	var execErr *migration.MigrationExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "003", execErr.Version)
	assert.Equal(t, 2, execErr.Statement)
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)
	assert.Empty(t, rec.records, "no history row for a failed script")
}

func TestPostgresExecute_rollbackFailure_combinedWithCause(t *testing.T) {
	t.Parallel()

	rbErr := errors.New("connection reset")
	tx := &fakeTx{failOn: "boom", rollbackErr: rbErr}
	e := newTestPostgres(tx, nil)

	_, err := e.Execute(context.Background(), testScript("001", "SELECT boom;"))

	require.ErrorIs(t, err, migration.ErrExecution)
	require.ErrorIs(t, err, rbErr)
	assert.Contains(t, err.Error(), "rolling back transaction")
}

func TestPostgresExecute_duplicateRecord_rollsBack(t *testing.T) {
	t.Parallel()

	dup := &migration.DuplicateVersionError{Version: "001", Source: migration.DuplicateInHistory}
	tx := &fakeTx{}
	e := newTestPostgres(tx, &fakeRecorder{err: dup})

	_, err := e.Execute(context.Background(), testScript("001", "SELECT 1;"))

	require.ErrorIs(t, err, migration.ErrDuplicateVersion)
	assert.NotErrorIs(t, err, migration.ErrExecution)
	assert.True(t, tx.rolledBack)
}

func TestPostgresExecute_recordFailure_isExecutionError(t *testing.T) {
	t.Parallel()

	tx := &fakeTx{}
	e := newTestPostgres(tx, &fakeRecorder{err: errors.New("disk full")})

	_, err := e.Execute(context.Background(), testScript("001", "SELECT 1;"))

	var execErr *migration.MigrationExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 0, execErr.Statement)
	assert.True(t, tx.rolledBack)
}

func TestPostgresExecute_commitFailure_isExecutionError(t *testing.T) {
	t.Parallel()

	tx := &fakeTx{commitErr: errors.New("serialization failure")}
	e := newTestPostgres(tx, &fakeRecorder{})

	_, err := e.Execute(context.Background(), testScript("001", "SELECT 1;"))

	require.ErrorIs(t, err, migration.ErrExecution)
	assert.Contains(t, err.Error(), "committing transaction")
}

func TestPostgresExecute_beginFailure_isExecutionError(t *testing.T) {
	t.Parallel()

	e := NewPostgres(nil, nil)
	e.begin = func(context.Context) (pgx.Tx, error) { return nil, errors.New("pool closed") }

	_, err := e.Execute(context.Background(), testScript("001", "SELECT 1;"))

	require.ErrorIs(t, err, migration.ErrExecution)
	assert.Contains(t, err.Error(), "beginning transaction")
}

func TestPostgresExecute_unparsableScript_isExecutionError(t *testing.T) {
	t.Parallel()

	tx := &fakeTx{}
	e := newTestPostgres(tx, nil)

	_, err := e.Execute(context.Background(), testScript("001", "SELECT 'unterminated;"))

	require.ErrorIs(t, err, migration.ErrExecution)
	assert.Empty(t, tx.execs)
}

func TestPostgresExecute_concurrentIndex_runsOutsideTransaction(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	rec := &fakeRecorder{}
	e := newConcurrentTestPostgres(t, conn, rec)

	res, err := e.Execute(context.Background(), testScript("002", "CREATE INDEX CONCURRENTLY idx ON items (name);"))

	require.NoError(t, err)
	assert.False(t, res.Recorded, "caller records non-transactional scripts")
	assert.Equal(t, []string{"CREATE INDEX CONCURRENTLY idx ON items (name)"}, trimAll(conn.execs))
	assert.True(t, conn.released)
	assert.Empty(t, rec.records)
}

func TestPostgresExecute_concurrentIndex_sessionTimeoutsSetAndReset(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{}
	e := newConcurrentTestPostgres(t, conn, nil,
		WithLockTimeout(5*time.Second),
		WithStatementTimeout(time.Minute),
	)

	_, err := e.Execute(context.Background(), testScript("002", "DROP INDEX CONCURRENTLY IF EXISTS idx;"))

	require.NoError(t, err)
	assert.Equal(t, []string{
		"SET lock_timeout = '5000ms'",
		"SET statement_timeout = '60000ms'",
		"DROP INDEX CONCURRENTLY IF EXISTS idx",
		"RESET lock_timeout",
		"RESET statement_timeout",
	}, trimAll(conn.execs))
	assert.True(t, conn.released)
}

func TestPostgresExecute_concurrentIndexFailure_namesStatementAndResets(t *testing.T) {
	t.Parallel()

	conn := &fakeConn{failOn: "CONCURRENTLY"}
	e := newConcurrentTestPostgres(t, conn, nil, WithLockTimeout(time.Second))

	_, err := e.Execute(context.Background(), testScript("002",
		"SELECT 1;\nCREATE INDEX CONCURRENTLY idx ON items (name);"))

	var execErr *migration.MigrationExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, 2, execErr.Statement)
	assert.Equal(t, "RESET lock_timeout", conn.execs[len(conn.execs)-1])
	assert.True(t, conn.released)
}

func TestPostgresExecute_concurrentIndexAcquireFailure(t *testing.T) {
	t.Parallel()

	e := NewPostgres(nil, nil)
	e.acquire = func(context.Context) (sessionConn, error) {
		return nil, errors.New("pool closed")
	}

	_, err := e.Execute(context.Background(), testScript("002", "CREATE INDEX CONCURRENTLY idx ON items (name);"))

	require.ErrorIs(t, err, migration.ErrExecution)
	assert.Contains(t, err.Error(), "acquiring connection")
}

func trimAll(stmts []string) []string {
	out := make([]string, 0, len(stmts))
	for _, s := range stmts {
		out = append(out, strings.TrimSuffix(strings.TrimSpace(s), ";"))
	}

	return out
}
