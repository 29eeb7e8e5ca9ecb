package store

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// SnapshotStore persists the ids a consumer was still waiting on when it was
// torn down, keyed by scope.
type SnapshotStore interface {
	// SaveSnapshot replaces the snapshot for scope.
	SaveSnapshot(ctx context.Context, scope string, ids []int) error

	// LoadSnapshot returns the snapshot for scope, or ErrSnapshotNotFound.
	LoadSnapshot(ctx context.Context, scope string) ([]int, error)

	// TakeSnapshot atomically loads and deletes the snapshot for scope, so a
	// snapshot is replayed at most once. Returns ErrSnapshotNotFound if absent.
	TakeSnapshot(ctx context.Context, scope string) ([]int, error)

	// DeleteSnapshot removes the snapshot for scope. Deleting a missing
	// snapshot is not an error.
	DeleteSnapshot(ctx context.Context, scope string) error
}

// ValidateScope rejects empty or whitespace-only scopes.
func ValidateScope(scope string) error {
	if strings.TrimSpace(scope) == "" {
		return fmt.Errorf("%w: snapshot scope must not be empty", ErrInvalidEntity)
	}
	return nil
}

// MemorySnapshotStore is an in-process SnapshotStore.
type MemorySnapshotStore struct {
	mu        sync.Mutex
	snapshots map[string][]int
}

var _ SnapshotStore = (*MemorySnapshotStore)(nil)

// NewMemorySnapshotStore creates an empty store.
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{snapshots: make(map[string][]int)}
}

func (s *MemorySnapshotStore) SaveSnapshot(ctx context.Context, scope string, ids []int) error {
	if err := ValidateScope(scope); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[scope] = slices.Clone(ids)
	return nil
}

func (s *MemorySnapshotStore) LoadSnapshot(ctx context.Context, scope string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, ok := s.snapshots[scope]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return slices.Clone(ids), nil
}

func (s *MemorySnapshotStore) TakeSnapshot(ctx context.Context, scope string) ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, ok := s.snapshots[scope]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	delete(s.snapshots, scope)
	return ids, nil
}

func (s *MemorySnapshotStore) DeleteSnapshot(ctx context.Context, scope string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, scope)
	return nil
}
