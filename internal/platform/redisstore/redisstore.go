// Package redisstore implements store.SnapshotStore on Redis, with an optional
// expiry so abandoned snapshots do not accumulate.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/phrazzld/taskgate/internal/store"
)

// KeyPrefix namespaces snapshot keys.
const KeyPrefix = "taskgate:snapshot:"

// SnapshotStore keeps each scope's ids as a JSON array under KeyPrefix+scope.
type SnapshotStore struct {
	client redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

var _ store.SnapshotStore = (*SnapshotStore)(nil)

// NewSnapshotStore creates a store on client. A zero ttl keeps snapshots
// until they are taken or deleted.
func NewSnapshotStore(client redis.Cmdable, ttl time.Duration, logger *slog.Logger) *SnapshotStore {
	return &SnapshotStore{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "redis_snapshot_store"),
	}
}

// Key returns the redis key for scope.
func Key(scope string) string {
	return KeyPrefix + scope
}

func (s *SnapshotStore) SaveSnapshot(ctx context.Context, scope string, ids []int) error {
	if err := store.ValidateScope(scope); err != nil {
		return err
	}
	if ids == nil {
		ids = []int{}
	}
	payload, err := json.Marshal(ids)
	if err != nil {
		return store.NewStoreError("snapshot", "save", "failed to encode ids", err)
	}

	if err := s.client.Set(ctx, Key(scope), payload, s.ttl).Err(); err != nil {
		s.logger.Error("failed to save snapshot", "scope", scope, "error", err)
		return store.NewStoreError("snapshot", "save", "redis SET failed", err)
	}

	s.logger.Debug("snapshot saved", "scope", scope, "count", len(ids), "ttl", s.ttl)
	return nil
}

func (s *SnapshotStore) LoadSnapshot(ctx context.Context, scope string) ([]int, error) {
	payload, err := s.client.Get(ctx, Key(scope)).Bytes()
	return s.decode(payload, err, scope, "load")
}

// TakeSnapshot uses GETDEL so concurrent takers cannot both replay a snapshot.
func (s *SnapshotStore) TakeSnapshot(ctx context.Context, scope string) ([]int, error) {
	payload, err := s.client.GetDel(ctx, Key(scope)).Bytes()
	return s.decode(payload, err, scope, "take")
}

func (s *SnapshotStore) DeleteSnapshot(ctx context.Context, scope string) error {
	if err := s.client.Del(ctx, Key(scope)).Err(); err != nil {
		return store.NewStoreError("snapshot", "delete", "redis DEL failed", err)
	}
	return nil
}

func (s *SnapshotStore) decode(payload []byte, err error, scope, operation string) ([]int, error) {
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, store.ErrSnapshotNotFound
		}
		return nil, store.NewStoreError("snapshot", operation, "redis command failed", err)
	}

	var ids []int
	if err := json.Unmarshal(payload, &ids); err != nil {
		return nil, store.NewStoreError("snapshot", operation,
			fmt.Sprintf("corrupt payload for scope %q", scope), err)
	}
	return ids, nil
}
