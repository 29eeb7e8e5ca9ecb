// Package sqlite implements store.SnapshotStore on an embedded SQLite database,
// for single-host deployments that need snapshots to survive a restart without
// running a database server.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/phrazzld/taskgate/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS task_snapshots (
	scope      TEXT PRIMARY KEY CHECK (length(trim(scope)) > 0),
	task_ids   TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

// Open opens the database at path (":memory:" for a private in-memory one) and
// creates the snapshot table if needed.
func Open(ctx context.Context, path string, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// one connection keeps ":memory:" databases shared and serialises writers
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create snapshot table: %w", err)
	}

	logger.Info("sqlite database ready", "path", path)
	return db, nil
}

// SnapshotStore implements store.SnapshotStore on the task_snapshots table.
type SnapshotStore struct {
	db     store.DBTX
	logger *slog.Logger
}

var _ store.SnapshotStore = (*SnapshotStore)(nil)

// NewSnapshotStore creates a SnapshotStore over a database prepared by Open.
func NewSnapshotStore(db store.DBTX, logger *slog.Logger) *SnapshotStore {
	return &SnapshotStore{
		db:     db,
		logger: logger.With("component", "sqlite_snapshot_store"),
	}
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

	query := `
		INSERT INTO task_snapshots (scope, task_ids, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (scope) DO UPDATE
		SET task_ids = excluded.task_ids, updated_at = excluded.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, scope, string(payload), time.Now().UTC()); err != nil {
		s.logger.Error("failed to save snapshot", "scope", scope, "error", err)
		return store.NewStoreError("snapshot", "save", "failed to upsert", err)
	}

	s.logger.Debug("snapshot saved", "scope", scope, "count", len(ids))
	return nil
}

func (s *SnapshotStore) LoadSnapshot(ctx context.Context, scope string) ([]int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT task_ids FROM task_snapshots WHERE scope = ?`, scope)
	return s.scanIDs(row, scope, "load")
}

func (s *SnapshotStore) TakeSnapshot(ctx context.Context, scope string) ([]int, error) {
	row := s.db.QueryRowContext(ctx, `DELETE FROM task_snapshots WHERE scope = ? RETURNING task_ids`, scope)
	return s.scanIDs(row, scope, "take")
}

func (s *SnapshotStore) DeleteSnapshot(ctx context.Context, scope string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM task_snapshots WHERE scope = ?`, scope); err != nil {
		return store.NewStoreError("snapshot", "delete", "failed to delete", err)
	}
	return nil
}

func (s *SnapshotStore) scanIDs(row *sql.Row, scope, operation string) ([]int, error) {
	var payload string
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrSnapshotNotFound
		}
		return nil, store.NewStoreError("snapshot", operation, "query failed", err)
	}

	var ids []int
	if err := json.Unmarshal([]byte(payload), &ids); err != nil {
		return nil, store.NewStoreError("snapshot", operation,
			fmt.Sprintf("corrupt payload for scope %q", scope), err)
	}
	return ids, nil
}
