//go:build integration

package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/schema-runner/internal/history"
	"github.com/aqasim81/schema-runner/internal/migration"
)

func record(version string) history.Record {
	return history.Record{
		Version:         version,
		FileName:        "V" + version + "__test.sql",
		Checksum:        migration.ComputeChecksum([]byte("SELECT " + version + ";")),
		AppliedAt:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		ExecutionTimeMs: 42,
	}
}

func TestPostgresHistory_fullLifecycle(t *testing.T) {
	t.Parallel()

	pool := SetupPostgres(t)
	ctx := context.Background()

	store, err := history.NewPostgres(pool, history.DefaultTable)
	require.NoError(t, err)

	require.NoError(t, store.EnsureTable(ctx))
	require.NoError(t, store.EnsureTable(ctx))

	applied, err := store.GetApplied(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)

	require.NoError(t, store.RecordApplied(ctx, record("001")))
	require.NoError(t, store.RecordApplied(ctx, record("002")))

	applied, err = store.GetApplied(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 2)
	got := applied["001"]
	want := record("001")
	assert.Equal(t, want.FileName, got.FileName)
	assert.Equal(t, want.Checksum, got.Checksum)
	assert.Equal(t, want.ExecutionTimeMs, got.ExecutionTimeMs)
	assert.True(t, want.AppliedAt.Equal(got.AppliedAt))
}

func TestPostgresHistory_duplicateIsRejected(t *testing.T) {
	t.Parallel()

	pool := SetupPostgres(t)
	ctx := context.Background()

	store, err := history.NewPostgres(pool, history.DefaultTable)
	require.NoError(t, err)
	require.NoError(t, store.EnsureTable(ctx))
	require.NoError(t, store.RecordApplied(ctx, record("001")))

	changed := record("001")
	changed.Checksum = "overwritten"

	err = store.RecordApplied(ctx, changed)

	var dupErr *migration.DuplicateVersionError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, migration.DuplicateInHistory, dupErr.Source)
	assert.Equal(t, "V001__test.sql", dupErr.First)

	applied, err := store.GetApplied(ctx)
	require.NoError(t, err)
	assert.Equal(t, record("001").Checksum, applied["001"].Checksum)
}

func TestPostgresHistory_InsertTx_rollsBackWithTransaction(t *testing.T) {
	t.Parallel()

	pool := SetupPostgres(t)
	ctx := context.Background()

	store, err := history.NewPostgres(pool, history.DefaultTable)
	require.NoError(t, err)
	require.NoError(t, store.EnsureTable(ctx))

	errAbort := errors.New("abort")

	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		if insertErr := store.InsertTx(ctx, tx, record("001")); insertErr != nil {
			return insertErr
		}

		return errAbort
	})
	require.ErrorIs(t, err, errAbort)

	applied, err := store.GetApplied(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)

	require.NoError(t, pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return store.InsertTx(ctx, tx, record("001"))
	}))

	applied, err = store.GetApplied(ctx)
	require.NoError(t, err)
	assert.Len(t, applied, 1)
}

func TestPostgresHistory_TableExists(t *testing.T) {
	t.Parallel()

	pool := SetupPostgres(t)
	ctx := context.Background()

	store, err := history.NewPostgres(pool, history.DefaultTable)
	require.NoError(t, err)

	exists, err := store.TableExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.EnsureTable(ctx))

	exists, err = store.TableExists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestPostgresHistory_schemaQualifiedTable(t *testing.T) {
	t.Parallel()

	pool := SetupPostgres(t)
	ctx := context.Background()

	_, err := pool.Exec(ctx, "CREATE SCHEMA ops")
	require.NoError(t, err)

	store, err := history.NewPostgres(pool, "ops.applied_migrations")
	require.NoError(t, err)
	require.NoError(t, store.EnsureTable(ctx))
	require.NoError(t, store.RecordApplied(ctx, record("7")))

	var count int

	require.NoError(t, pool.QueryRow(ctx, "SELECT count(*) FROM ops.applied_migrations").Scan(&count))
	assert.Equal(t, 1, count)
}
