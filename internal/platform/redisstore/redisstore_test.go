package redisstore

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/taskgate/internal/store"
)

func newTestStore(t *testing.T, ttl time.Duration) (*SnapshotStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewSnapshotStore(client, ttl, logger), mr
}

func TestSnapshotStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t, 0)

	_, err := s.LoadSnapshot(ctx, "main")
	assert.ErrorIs(t, err, store.ErrSnapshotNotFound)

	require.NoError(t, s.SaveSnapshot(ctx, "main", []int{2, 5}))

	raw, err := mr.Get(Key("main"))
	require.NoError(t, err)
	assert.JSONEq(t, `[2,5]`, raw)
	assert.Zero(t, mr.TTL(Key("main")))

	got, err := s.LoadSnapshot(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 5}, got)

	got, err = s.TakeSnapshot(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 5}, got)
	assert.False(t, mr.Exists(Key("main")))

	_, err = s.TakeSnapshot(ctx, "main")
	assert.ErrorIs(t, err, store.ErrSnapshotNotFound)
}

func TestSnapshotStore_TTL(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t, time.Hour)

	require.NoError(t, s.SaveSnapshot(ctx, "main", []int{1}))
	assert.Equal(t, time.Hour, mr.TTL(Key("main")))

	mr.FastForward(time.Hour + time.Second)

	_, err := s.LoadSnapshot(ctx, "main")
	assert.ErrorIs(t, err, store.ErrSnapshotNotFound)
}

func TestSnapshotStore_Delete(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t, 0)

	require.NoError(t, s.SaveSnapshot(ctx, "main", nil))
	raw, err := mr.Get(Key("main"))
	require.NoError(t, err)
	assert.Equal(t, "[]", raw)

	require.NoError(t, s.DeleteSnapshot(ctx, "main"))
	require.NoError(t, s.DeleteSnapshot(ctx, "main"))
	assert.False(t, mr.Exists(Key("main")))
}

func TestSnapshotStore_CorruptPayload(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t, 0)

	require.NoError(t, mr.Set(Key("main"), "not-json"))

	_, err := s.LoadSnapshot(ctx, "main")
	var storeErr *store.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "load", storeErr.Operation)
}

func TestSnapshotStore_Unavailable(t *testing.T) {
	ctx := context.Background()
	s, mr := newTestStore(t, 0)
	mr.Close()

	err := s.SaveSnapshot(ctx, "main", []int{1})
	var storeErr *store.StoreError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "save", storeErr.Operation)

	_, err = s.LoadSnapshot(ctx, "main")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, store.ErrSnapshotNotFound)
}

func TestSnapshotStore_InvalidScope(t *testing.T) {
	s, _ := newTestStore(t, 0)
	assert.ErrorIs(t, s.SaveSnapshot(context.Background(), "", []int{1}), store.ErrInvalidEntity)
}
