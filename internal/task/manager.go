package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/google/uuid"

	"github.com/phrazzld/taskgate/internal/events"
	"github.com/phrazzld/taskgate/internal/redact"
)

// ManagerConfig holds configuration options for a Manager.
type ManagerConfig struct {
	// InterruptOnCancel also cancels the running body's context on CancelTask,
	// not just its cancellation flag.
	InterruptOnCancel bool
}

// DefaultManagerConfig returns a ManagerConfig with reasonable defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{InterruptOnCancel: true}
}

// Manager owns the id to slot map and gates delivery to the registered handlers
// on the active flag.
//
// A Manager is confined to the goroutine driving its Poster's loop. Every
// exported method must be called there; completions from executor goroutines
// reach it only through posted closures.
type Manager[P, R any] struct {
	poster            Poster
	executor          Executor
	emitter           events.EventEmitter
	interruptOnCancel bool
	logger            *slog.Logger

	slots  map[int]*slot[P, R]
	active bool

	// ids outstanding at the previous consumer's teardown, drained by the
	// first activation
	killed map[int]struct{}
}

// NewManager creates an inactive manager posting unit events to poster and
// running bodies on executor.
func NewManager[P, R any](poster Poster, executor Executor, config ManagerConfig, logger *slog.Logger) *Manager[P, R] {
	return &Manager[P, R]{
		poster:            poster,
		executor:          executor,
		interruptOnCancel: config.InterruptOnCancel,
		logger:            logger.With("component", "task_manager"),
		slots:             make(map[int]*slot[P, R]),
	}
}

// SetEmitter attaches an emitter for lifecycle events. Nil disables emission.
func (m *Manager[P, R]) SetEmitter(emitter events.EventEmitter) {
	m.emitter = emitter
}

// IsActive reports whether delivery is currently allowed.
func (m *Manager[P, R]) IsActive() bool {
	return m.active
}

// RegisterCallbacks binds handler to id, creating an IDLE slot if needed. It
// does not trigger delivery; that happens on the next event or activation.
func (m *Manager[P, R]) RegisterCallbacks(id int, handler Handler[P, R]) error {
	if handler == nil {
		return fmt.Errorf("task %d: handler must not be nil", id)
	}

	s, ok := m.slots[id]
	if !ok {
		s = newSlot[P, R](id)
		m.slots[id] = s
	}
	if s.handler != nil {
		return &DuplicateRegistrationError{ID: id}
	}
	s.handler = handler

	m.logger.Debug("callbacks registered", "task_id", id, "state", s.state)
	return nil
}

// UnregisterCallbacks detaches id's handler. Execution continues and events
// buffer in the slot until a handler is bound again.
func (m *Manager[P, R]) UnregisterCallbacks(id int) {
	if s, ok := m.slots[id]; ok {
		s.handler = nil
	}
}

// UnregisterAllCallbacks detaches every handler.
func (m *Manager[P, R]) UnregisterAllCallbacks() {
	for _, s := range m.slots {
		s.handler = nil
	}
}

// StartTask creates a new run for id through its handler and submits it.
func (m *Manager[P, R]) StartTask(id int) error {
	s, ok := m.slots[id]
	if !ok || s.handler == nil {
		return &NotRegisteredError{ID: id}
	}
	if s.state != SlotIdle {
		return &AlreadyStartedError{ID: id, State: s.state}
	}

	work := s.handler.CreateWork(id)
	if work == nil {
		return fmt.Errorf("task %d: %w", id, ErrNilWork)
	}

	unit := NewUnit[P, R](id, work, m.executor, m.poster, managerListener[P, R]{m: m}, m.logger)
	s.unit = unit
	s.state = SlotRunning

	if err := unit.Start(); err != nil {
		s.reset()
		return fmt.Errorf("failed to start task %d: %w", id, err)
	}

	m.logger.Debug("task started", "task_id", id, "run_id", unit.RunID())
	m.emit(events.KindStarted, id, unit.RunID(), nil, nil)
	return nil
}

// CancelTask requests cancellation of id's run. It is a no-op unless the slot
// is RUNNING; the CANCELLED transition happens once the run acknowledges.
func (m *Manager[P, R]) CancelTask(id int) error {
	s, ok := m.slots[id]
	if !ok {
		return &NotRegisteredError{ID: id}
	}
	m.cancelSlot(s)
	return nil
}

// CancelAllTasks requests cancellation of every running slot.
func (m *Manager[P, R]) CancelAllTasks() {
	for _, s := range m.slots {
		m.cancelSlot(s)
	}
}

func (m *Manager[P, R]) cancelSlot(s *slot[P, R]) {
	if s.state != SlotRunning || s.unit == nil {
		return
	}
	if s.unit.Cancel(m.interruptOnCancel) {
		m.logger.Debug("task cancellation requested", "task_id", s.id, "run_id", s.unit.RunID())
	}
}

// IsTaskRunning reports whether id has a run that has not yet produced its
// outcome. It is false inside OnTaskFinished for the same id.
func (m *Manager[P, R]) IsTaskRunning(id int) bool {
	s, ok := m.slots[id]
	if !ok || s.state != SlotRunning || s.unit == nil {
		return false
	}
	return !s.unit.Status().Terminal()
}

// State returns id's slot state, or SlotIdle if the id is unknown.
func (m *Manager[P, R]) State(id int) SlotState {
	if s, ok := m.slots[id]; ok {
		return s.state
	}
	return SlotIdle
}

// SetActive flips the delivery gate. Turning it on first replays the killed
// ids (once) and then delivers whatever every slot has buffered, in ascending
// id order.
func (m *Manager[P, R]) SetActive(active bool) {
	m.active = active
	if !active {
		m.logger.Debug("manager deactivated")
		return
	}

	m.logger.Debug("manager activated", "slots", len(m.slots))
	m.drainKilled()

	for _, id := range slices.Sorted(maps.Keys(m.slots)) {
		// a handler may deactivate, destroy or unregister while we iterate
		if !m.active {
			return
		}
		if s, ok := m.slots[id]; ok {
			m.deliver(s)
		}
	}
}

// Activate is SetActive(true).
func (m *Manager[P, R]) Activate() {
	m.SetActive(true)
}

// Deactivate is SetActive(false).
func (m *Manager[P, R]) Deactivate() {
	m.SetActive(false)
}

// DetachConsumer drops every handler; slots and runs survive for the next
// consumer to pick up.
func (m *Manager[P, R]) DetachConsumer() {
	m.UnregisterAllCallbacks()
	m.logger.Debug("consumer detached")
}

// Destroy cancels every running unit without delivering and clears all state.
// Late events from the cancelled units are discarded, so the cancelled event
// is emitted here instead.
func (m *Manager[P, R]) Destroy() {
	for _, s := range m.slots {
		if s.state == SlotRunning && s.unit != nil {
			s.unit.Cancel(true)
			m.emit(events.KindCancelled, s.id, s.unit.RunID(), nil, nil)
		}
	}
	m.logger.Debug("manager destroyed", "slots", len(m.slots))
	clear(m.slots)
	clear(m.killed)
	m.active = false
}

// SnapshotOutstandingIDs returns, in ascending order, the ids still waiting
// for a delivery. Persist it across a consumer teardown and hand it back to
// RestoreKilledIDs.
func (m *Manager[P, R]) SnapshotOutstandingIDs() []int {
	ids := make([]int, 0, len(m.slots))
	for id, s := range m.slots {
		if s.state.Outstanding() {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// RestoreKilledIDs seeds the killed set. Call it before the first activation.
func (m *Manager[P, R]) RestoreKilledIDs(ids []int) {
	if len(ids) == 0 {
		return
	}
	if m.killed == nil {
		m.killed = make(map[int]struct{}, len(ids))
	}
	for _, id := range ids {
		m.killed[id] = struct{}{}
	}
	m.logger.Debug("killed ids restored", "count", len(ids))
}

// drainKilled marks registered IDLE slots named in the killed set as KILLED
// and empties the set. Ids without a slot are dropped.
func (m *Manager[P, R]) drainKilled() {
	if len(m.killed) == 0 {
		return
	}
	for _, id := range slices.Sorted(maps.Keys(m.killed)) {
		s, ok := m.slots[id]
		if !ok || s.state != SlotIdle {
			m.logger.Debug("dropping killed id", "task_id", id)
			continue
		}
		s.state = SlotKilled
		m.emit(events.KindKilled, id, uuid.Nil, nil, nil)
	}
	clear(m.killed)
}

// deliver runs the delivery algorithm for one slot. Terminal states reset the
// slot before the handler is called.
func (m *Manager[P, R]) deliver(s *slot[P, R]) {
	if !m.active || s.handler == nil {
		return
	}
	h := s.handler

	switch s.state {
	case SlotComplete:
		outcome := s.outcome
		s.reset()
		h.OnTaskFinished(s.id, outcome)
	case SlotCancelled:
		s.reset()
		h.OnTaskCancelled(s.id)
	case SlotKilled:
		s.reset()
		h.OnTaskKilled(s.id)
	case SlotRunning:
		if !s.hasProgress {
			return
		}
		progress := s.progress
		s.clearProgress()
		h.OnTaskProgress(s.id, progress)
	}
}

func (m *Manager[P, R]) unitProgress(u *Unit[P, R], progress P) {
	s, ok := m.slots[u.ID()]
	if !ok || !s.owns(u) {
		return
	}
	s.progress = progress
	s.hasProgress = true
	m.emit(events.KindProgress, s.id, u.RunID(), progress, nil)
	m.deliver(s)
}

func (m *Manager[P, R]) unitFinished(u *Unit[P, R], outcome Outcome[R]) {
	s, ok := m.slots[u.ID()]
	if !ok || !s.owns(u) {
		m.logger.Debug("discarding stale outcome", "task_id", u.ID(), "run_id", u.RunID())
		return
	}

	s.clearProgress()
	s.outcome = outcome
	switch outcome.Kind {
	case OutcomeCancelled:
		s.state = SlotCancelled
		m.emit(events.KindCancelled, s.id, u.RunID(), nil, nil)
	case OutcomeFailed:
		s.state = SlotComplete
		m.logger.Warn("task failed", "task_id", s.id, "run_id", u.RunID(), "error", outcome.Err)
		m.emit(events.KindFailed, s.id, u.RunID(), nil, outcome.Err)
	default:
		s.state = SlotComplete
		m.emit(events.KindFinished, s.id, u.RunID(), outcome.Value, nil)
	}
	m.deliver(s)
}

func (m *Manager[P, R]) emit(kind events.Kind, id int, runID uuid.UUID, payload any, cause error) {
	if m.emitter == nil {
		return
	}

	event, err := events.NewLifecycleEvent(kind, id, runID, payload)
	if err != nil {
		m.logger.Debug("lifecycle payload not serializable", "task_id", id, "kind", kind, "error", err)
		event, _ = events.NewLifecycleEvent(kind, id, runID, nil)
	}
	if cause != nil {
		var failure *ExecutionFailure
		if errors.As(cause, &failure) {
			cause = failure.Err
		}
		event.Error = redact.Error(cause)
	}

	// emitter failures are logged by the emitter and never affect delivery
	_ = m.emitter.EmitEvent(context.Background(), event)
}

// managerListener routes unit events into the manager without exporting the
// listener methods on Manager itself.
type managerListener[P, R any] struct {
	m *Manager[P, R]
}

func (l managerListener[P, R]) UnitProgress(u *Unit[P, R], progress P) {
	l.m.unitProgress(u, progress)
}

func (l managerListener[P, R]) UnitFinished(u *Unit[P, R], outcome Outcome[R]) {
	l.m.unitFinished(u, outcome)
}
