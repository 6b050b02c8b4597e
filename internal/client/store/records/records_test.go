package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pensieve-app/pensieve/internal/syncerr"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE captures (
  id               TEXT PRIMARY KEY,
  fields           TEXT    NOT NULL,
  last_modified_at INTEGER NOT NULL,
  _status          TEXT    NOT NULL DEFAULT 'active'
);`)
	require.NoError(t, err)
	return db
}

func setupRepo(t *testing.T) *Repository {
	t.Helper()
	r, err := NewRepository(setupDB(t), "captures")
	require.NoError(t, err)
	return r
}

func rec(id string, modified int64, text string) *Record {
	return &Record{
		ID:             id,
		Fields:         map[string]json.RawMessage{"text": json.RawMessage(`"` + text + `"`)},
		LastModifiedAt: modified,
		Status:         StatusActive,
	}
}

func TestNewRepository_RejectsUnsafeEntityName(t *testing.T) {
	db := setupDB(t)
	_, err := NewRepository(db, "captures; DROP TABLE captures")
	require.Error(t, err)
}

func TestUpsert_ThenGet(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, rec("c1", 100, "hello")))

	got, err := r.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ID)
	assert.EqualValues(t, 100, got.LastModifiedAt)
	assert.JSONEq(t, `"hello"`, string(got.Fields["text"]))
}

func TestGet_Missing_IsNotFoundKind(t *testing.T) {
	r := setupRepo(t)
	_, err := r.Get(context.Background(), "absent")
	require.Error(t, err)
	assert.Equal(t, syncerr.KindNotFound, syncerr.KindOf(err))
}

func TestUpsert_AppliedTwiceIsIdempotent(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	batch := []*Record{rec("c1", 100, "one"), rec("c2", 150, "two")}
	for _, b := range batch {
		require.NoError(t, r.Upsert(ctx, b))
	}
	// Re-apply the same batch, as a crashed-and-retried pull would.
	for _, b := range batch {
		require.NoError(t, r.Upsert(ctx, b))
	}

	all, err := r.ModifiedSince(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSoftDelete_LeavesTombstoneInDeltaWindow(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, rec("c1", 100, "bye")))
	require.NoError(t, r.SoftDelete(ctx, "c1", 200))

	got, err := r.Get(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, got.Deleted())
	assert.EqualValues(t, 200, got.LastModifiedAt)

	window, err := r.ModifiedSince(ctx, 150)
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.True(t, window[0].Deleted())
}

func TestSoftDelete_MissingRecord(t *testing.T) {
	r := setupRepo(t)
	err := r.SoftDelete(context.Background(), "nope", 1)
	require.Error(t, err)
	assert.Equal(t, syncerr.KindNotFound, syncerr.KindOf(err))
}

func TestModifiedSince_IsStrictWindow(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, rec("a", 100, "a")))
	require.NoError(t, r.Upsert(ctx, rec("b", 200, "b")))
	require.NoError(t, r.Upsert(ctx, rec("c", 300, "c")))

	window, err := r.ModifiedSince(ctx, 200)
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "c", window[0].ID)

	n, err := r.CountModifiedSince(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestSave_BumpsModificationTime(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	rc := rec("c1", 0, "draft")
	require.NoError(t, r.Save(ctx, rc, 555))
	assert.EqualValues(t, 555, rc.LastModifiedAt)

	got, err := r.Get(ctx, "c1")
	require.NoError(t, err)
	assert.EqualValues(t, 555, got.LastModifiedAt)
}
