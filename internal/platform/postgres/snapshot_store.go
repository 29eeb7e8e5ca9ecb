package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/taskgate/internal/store"
)

// SnapshotStore implements store.SnapshotStore on the task_snapshots table.
type SnapshotStore struct {
	db     store.DBTX
	logger *slog.Logger
}

var _ store.SnapshotStore = (*SnapshotStore)(nil)

// NewSnapshotStore creates a SnapshotStore over db, which may be a *sql.DB or
// a *sql.Tx.
func NewSnapshotStore(db store.DBTX, logger *slog.Logger) *SnapshotStore {
	return &SnapshotStore{
		db:     db,
		logger: logger.With("component", "postgres_snapshot_store"),
	}
}

// SaveSnapshot upserts the ids for scope.
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

	query := `
		INSERT INTO task_snapshots (scope, task_ids, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (scope) DO UPDATE
		SET task_ids = EXCLUDED.task_ids, updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, scope, string(payload), time.Now().UTC()); err != nil {
		s.logger.Error("failed to save snapshot", "scope", scope, "error", err)
		return store.NewStoreError("snapshot", "save", "failed to upsert", MapError(err))
	}

	s.logger.Debug("snapshot saved", "scope", scope, "count", len(ids))
	return nil
}

// LoadSnapshot returns the ids stored for scope.
func (s *SnapshotStore) LoadSnapshot(ctx context.Context, scope string) ([]int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT task_ids FROM task_snapshots WHERE scope = $1`, scope)
	return s.scanIDs(row, scope, "load")
}

// TakeSnapshot deletes the row for scope and returns its ids in one statement.
func (s *SnapshotStore) TakeSnapshot(ctx context.Context, scope string) ([]int, error) {
	row := s.db.QueryRowContext(ctx, `DELETE FROM task_snapshots WHERE scope = $1 RETURNING task_ids`, scope)
	return s.scanIDs(row, scope, "take")
}

// DeleteSnapshot removes the row for scope, if any.
func (s *SnapshotStore) DeleteSnapshot(ctx context.Context, scope string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM task_snapshots WHERE scope = $1`, scope); err != nil {
		return store.NewStoreError("snapshot", "delete", "failed to delete", MapError(err))
	}
	return nil
}

func (s *SnapshotStore) scanIDs(row *sql.Row, scope, operation string) ([]int, error) {
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrSnapshotNotFound
		}
		return nil, store.NewStoreError("snapshot", operation, "query failed", MapError(err))
	}

	var ids []int
	if err := json.Unmarshal(payload, &ids); err != nil {
		return nil, store.NewStoreError("snapshot", operation,
			fmt.Sprintf("corrupt payload for scope %q", scope), err)
	}
	return ids, nil
}
