package history_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aqasim81/schema-runner/internal/history"
	"github.com/aqasim81/schema-runner/internal/migration"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	// Every connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

func newSQLStore(t *testing.T, table string) (*history.SQL, *sql.DB) {
	t.Helper()

	db := openSQLite(t)
	store, err := history.NewSQL(db, table)
	require.NoError(t, err)
	require.NoError(t, store.EnsureTable(context.Background()))

	return store, db
}

func sampleRecord(version string) history.Record {
	return history.Record{
		Version:         version,
		FileName:        "V" + version + "__sample.sql",
		Checksum:        migration.ComputeChecksum([]byte(version)),
		AppliedAt:       time.Date(2026, 1, 2, 3, 4, 5, 600, time.UTC),
		ExecutionTimeMs: 42,
	}
}

func TestSQL_fullLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newSQLStore(t, "")

	// EnsureTable is idempotent.
	require.NoError(t, store.EnsureTable(ctx))

	applied, err := store.GetApplied(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied)

	rec := sampleRecord("001")
	require.NoError(t, store.RecordApplied(ctx, rec))

	applied, err = store.GetApplied(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 1)

	got := applied["001"]
	assert.Equal(t, rec.FileName, got.FileName)
	assert.Equal(t, rec.Checksum, got.Checksum)
	assert.Equal(t, rec.ExecutionTimeMs, got.ExecutionTimeMs)
	assert.True(t, rec.AppliedAt.Equal(got.AppliedAt))
}

func TestSQL_RecordApplied_duplicateIsRejected(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newSQLStore(t, "")

	require.NoError(t, store.RecordApplied(ctx, sampleRecord("001")))

	second := sampleRecord("001")
	second.FileName = "V001__other.sql"
	second.Checksum = "different"
	err := store.RecordApplied(ctx, second)

	var dupErr *migration.DuplicateVersionError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, migration.DuplicateInHistory, dupErr.Source)
	assert.Equal(t, "001", dupErr.Version)
	assert.Equal(t, "V001__sample.sql", dupErr.First)
	assert.Equal(t, "V001__other.sql", dupErr.Second)
	assert.Contains(t, err.Error(), "V001__sample.sql")

	// The original row is untouched.
	applied, err := store.GetApplied(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleRecord("001").Checksum, applied["001"].Checksum)
}

func TestSQL_InsertTx_followsTransaction(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, db := newSQLStore(t, "")

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, store.InsertTx(ctx, tx, sampleRecord("001")))
	require.NoError(t, tx.Rollback())

	applied, err := store.GetApplied(ctx)
	require.NoError(t, err)
	assert.Empty(t, applied, "rolled back insert must not be visible")

	tx, err = db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, store.InsertTx(ctx, tx, sampleRecord("002")))
	require.NoError(t, tx.Commit())

	applied, err = store.GetApplied(ctx)
	require.NoError(t, err)
	assert.Contains(t, applied, "002")
}

func TestSQL_InsertTx_duplicateNamesExistingFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, db := newSQLStore(t, "")

	require.NoError(t, store.RecordApplied(ctx, sampleRecord("003")))

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)

	racer := sampleRecord("003")
	racer.FileName = "V003__racer.sql"
	err = store.InsertTx(ctx, tx, racer)
	require.NoError(t, tx.Rollback())

	var dupErr *migration.DuplicateVersionError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, "V003__sample.sql", dupErr.First)
	assert.Equal(t, "V003__racer.sql", dupErr.Second)
}

func TestSQL_TableExists(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openSQLite(t)

	store, err := history.NewSQL(db, "ledger")
	require.NoError(t, err)

	exists, err := store.TableExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.EnsureTable(ctx))

	exists, err = store.TableExists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSQL_TableExists_schemaQualified(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openSQLite(t)

	store, err := history.NewSQL(db, "main.ledger")
	require.NoError(t, err)

	exists, err := store.TableExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, store.EnsureTable(ctx))

	exists, err = store.TableExists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSQL_customTable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, db := newSQLStore(t, "ledger")

	require.NoError(t, store.RecordApplied(ctx, sampleRecord("001")))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestNewSQL_invalidTable(t *testing.T) {
	t.Parallel()

	_, err := history.NewSQL(openSQLite(t), "x; DROP TABLE y")
	require.ErrorIs(t, err, history.ErrInvalidTableName)
}
