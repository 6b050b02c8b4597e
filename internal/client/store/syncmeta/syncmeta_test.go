package syncmeta

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE sync_metadata (
  entity           TEXT PRIMARY KEY,
  last_pulled_at   INTEGER NOT NULL DEFAULT 0,
  last_pushed_at   INTEGER NOT NULL DEFAULT 0,
  last_sync_status TEXT    NOT NULL DEFAULT 'success',
  last_sync_error  TEXT,
  updated_at       INTEGER NOT NULL DEFAULT 0
);`)
	require.NoError(t, err)
	return db
}

func TestGet_NoRow_ReturnsNil(t *testing.T) {
	r := NewRepository(setupDB(t))
	assert.Nil(t, r.Get(context.Background(), "captures"))
}

func TestGet_DBError_ReturnsNilNotPanic(t *testing.T) {
	db := setupDB(t)
	r := NewRepository(db)
	require.NoError(t, db.Close())

	// Reads are best-effort: a broken store behaves like "no cursor".
	assert.Nil(t, r.Get(context.Background(), "captures"))
	assert.EqualValues(t, 0, r.LastPulledAt(context.Background(), "captures"))
}

func TestLastPulledAt_ZeroMeansNeverPulled(t *testing.T) {
	r := NewRepository(setupDB(t))
	assert.EqualValues(t, 0, r.LastPulledAt(context.Background(), "todos"))
}

func TestUpdateLastPulledAt_CreatesRowLazily(t *testing.T) {
	r := NewRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.UpdateLastPulledAt(ctx, "captures", 1000))

	m := r.Get(ctx, "captures")
	require.NotNil(t, m)
	assert.EqualValues(t, 1000, m.LastPulledAt)
	assert.EqualValues(t, 0, m.LastPushedAt)
	assert.Equal(t, StatusSuccess, m.LastStatus)
}

func TestUpdateCursors_PreserveEachOther(t *testing.T) {
	r := NewRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.UpdateLastPushedAt(ctx, "captures", 500))
	require.NoError(t, r.UpdateLastPulledAt(ctx, "captures", 700))
	require.NoError(t, r.UpdateLastPushedAt(ctx, "captures", 900))

	m := r.Get(ctx, "captures")
	require.NotNil(t, m)
	assert.EqualValues(t, 700, m.LastPulledAt, "pull cursor must survive push update")
	assert.EqualValues(t, 900, m.LastPushedAt)
}

func TestUpdateLastPulledAt_ClearsPriorError(t *testing.T) {
	r := NewRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.UpdateStatus(ctx, "ideas", StatusError, "pull failed"))
	m := r.Get(ctx, "ideas")
	require.NotNil(t, m)
	assert.Equal(t, "pull failed", m.LastError)

	require.NoError(t, r.UpdateLastPulledAt(ctx, "ideas", 123))
	m = r.Get(ctx, "ideas")
	require.NotNil(t, m)
	assert.Equal(t, StatusSuccess, m.LastStatus)
	assert.Empty(t, m.LastError)
}

func TestUpdateStatus_DoesNotTouchCursors(t *testing.T) {
	r := NewRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.UpdateLastPulledAt(ctx, "thoughts", 42))
	require.NoError(t, r.UpdateStatus(ctx, "thoughts", StatusInProgress, ""))

	m := r.Get(ctx, "thoughts")
	require.NotNil(t, m)
	assert.EqualValues(t, 42, m.LastPulledAt)
	assert.Equal(t, StatusInProgress, m.LastStatus)
}

func TestClearAll_WipesEveryRowIncludingUnknownEntities(t *testing.T) {
	r := NewRepository(setupDB(t))
	ctx := context.Background()

	require.NoError(t, r.UpdateLastPulledAt(ctx, "captures", 1))
	// An entity this code has never heard of.
	require.NoError(t, r.UpdateLastPulledAt(ctx, "journals", 2))

	require.NoError(t, r.ClearAll(ctx))

	assert.Nil(t, r.Get(ctx, "captures"))
	assert.Nil(t, r.Get(ctx, "journals"))
}

func TestSet_WriteErrorPropagates(t *testing.T) {
	db := setupDB(t)
	r := NewRepository(db)
	require.NoError(t, db.Close())

	err := r.Set(context.Background(), &Metadata{Entity: "captures"})
	require.Error(t, err)
}
