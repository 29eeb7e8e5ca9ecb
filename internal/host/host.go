// Package host ties a task manager to the lifecycle of the consumer that owns
// it, persisting outstanding task ids across a teardown so the recreated
// consumer learns which of its tasks were lost.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/taskgate/internal/store"
)

// Lifecycle is the part of task.Manager a Host drives.
type Lifecycle interface {
	RestoreKilledIDs(ids []int)
	Activate()
	Deactivate()
	SnapshotOutstandingIDs() []int
	Destroy()
	DetachConsumer()
}

// Host maps consumer lifecycle transitions onto a Lifecycle. Like the manager
// it drives, a Host must only be used from the dispatch loop goroutine.
type Host struct {
	lifecycle Lifecycle
	snapshots store.SnapshotStore
	scope     string
	logger    *slog.Logger
}

// New creates a Host persisting snapshots for scope in snapshots.
func New(lifecycle Lifecycle, snapshots store.SnapshotStore, scope string, logger *slog.Logger) (*Host, error) {
	if err := store.ValidateScope(scope); err != nil {
		return nil, err
	}
	return &Host{
		lifecycle: lifecycle,
		snapshots: snapshots,
		scope:     scope,
		logger:    logger.With("component", "host", "scope", scope),
	}, nil
}

// Create runs when the consumer comes up. A recreated consumer takes the
// snapshot left by SaveState and seeds the killed set with it; the snapshot is
// deleted so it is replayed at most once.
func (h *Host) Create(ctx context.Context, recreated bool) error {
	if !recreated {
		return nil
	}

	ids, err := h.snapshots.TakeSnapshot(ctx, h.scope)
	if err != nil {
		if errors.Is(err, store.ErrSnapshotNotFound) {
			h.logger.Debug("no snapshot to restore")
			return nil
		}
		return fmt.Errorf("failed to restore snapshot: %w", err)
	}

	h.lifecycle.RestoreKilledIDs(ids)
	h.logger.Info("snapshot restored", "killed_ids", ids)
	return nil
}

// Resume opens the delivery gate.
func (h *Host) Resume() {
	h.lifecycle.Activate()
}

// Pause closes the delivery gate; events buffer until Resume.
func (h *Host) Pause() {
	h.lifecycle.Deactivate()
}

// SaveState persists the ids still waiting for delivery.
func (h *Host) SaveState(ctx context.Context) error {
	ids := h.lifecycle.SnapshotOutstandingIDs()
	if err := h.snapshots.SaveSnapshot(ctx, h.scope, ids); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	h.logger.Debug("snapshot saved", "outstanding_ids", ids)
	return nil
}

// Destroy tears the manager down for good.
func (h *Host) Destroy() {
	h.lifecycle.Destroy()
}

// Detach drops the consumer's handlers while runs continue.
func (h *Host) Detach() {
	h.lifecycle.DetachConsumer()
}
