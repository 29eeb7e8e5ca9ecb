package sqlite

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/taskgate/internal/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := Open(context.Background(), path, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSnapshotStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewSnapshotStore(openTestDB(t, ":memory:"), testLogger())

	_, err := s.LoadSnapshot(ctx, "main")
	assert.ErrorIs(t, err, store.ErrSnapshotNotFound)

	require.NoError(t, s.SaveSnapshot(ctx, "main", []int{1, 4}))
	require.NoError(t, s.SaveSnapshot(ctx, "main", []int{2, 3, 9}))

	got, err := s.LoadSnapshot(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 9}, got)

	got, err = s.TakeSnapshot(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 9}, got)

	_, err = s.TakeSnapshot(ctx, "main")
	assert.ErrorIs(t, err, store.ErrSnapshotNotFound)
}

func TestSnapshotStore_ScopesAreIndependent(t *testing.T) {
	ctx := context.Background()
	s := NewSnapshotStore(openTestDB(t, ":memory:"), testLogger())

	require.NoError(t, s.SaveSnapshot(ctx, "a", []int{1}))
	require.NoError(t, s.SaveSnapshot(ctx, "b", nil))

	require.NoError(t, s.DeleteSnapshot(ctx, "a"))
	require.NoError(t, s.DeleteSnapshot(ctx, "a"))

	_, err := s.LoadSnapshot(ctx, "a")
	assert.ErrorIs(t, err, store.ErrSnapshotNotFound)

	got, err := s.LoadSnapshot(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSnapshotStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "snapshots.db")

	db, err := Open(ctx, path, testLogger())
	require.NoError(t, err)
	require.NoError(t, NewSnapshotStore(db, testLogger()).SaveSnapshot(ctx, "main", []int{7}))
	require.NoError(t, db.Close())

	s := NewSnapshotStore(openTestDB(t, path), testLogger())
	got, err := s.TakeSnapshot(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, []int{7}, got)
}

func TestSnapshotStore_InvalidScope(t *testing.T) {
	s := NewSnapshotStore(openTestDB(t, ":memory:"), testLogger())
	err := s.SaveSnapshot(context.Background(), "  ", []int{1})
	assert.ErrorIs(t, err, store.ErrInvalidEntity)
}

func TestSnapshotStore_CorruptPayload(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, ":memory:")
	_, err := db.ExecContext(ctx,
		`INSERT INTO task_snapshots (scope, task_ids, updated_at) VALUES ('main', 'oops', CURRENT_TIMESTAMP)`)
	require.NoError(t, err)

	_, err = NewSnapshotStore(db, testLogger()).LoadSnapshot(ctx, "main")
	var storeErr *store.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "load", storeErr.Operation)
}
