package task

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
)

// UnitStatus is the run state of a Unit.
type UnitStatus string

const (
	UnitPending   UnitStatus = "pending"
	UnitRunning   UnitStatus = "running"
	UnitCompleted UnitStatus = "completed"
	UnitCancelled UnitStatus = "cancelled"
)

// String returns the string representation of the unit status.
func (s UnitStatus) String() string {
	return string(s)
}

// Terminal reports whether the unit has produced its outcome.
func (s UnitStatus) Terminal() bool {
	return s == UnitCompleted || s == UnitCancelled
}

// UnitListener receives a unit's events on the dispatch loop.
type UnitListener[P, R any] interface {
	UnitProgress(u *Unit[P, R], progress P)
	UnitFinished(u *Unit[P, R], outcome Outcome[R])
}

// Unit runs one Work on an Executor and reports back through a Poster.
// Exactly one UnitFinished is posted per started (or pre-start cancelled) unit.
type Unit[P, R any] struct {
	id       int
	runID    uuid.UUID
	work     Work[P, R]
	executor Executor
	poster   Poster
	listener UnitListener[P, R]
	logger   *slog.Logger

	mu        sync.Mutex
	status    UnitStatus
	cancelled bool
	runCtx    context.Context
	cancelRun context.CancelFunc

	// latest unread progress; progressQueued is set while a delivery closure is
	// waiting on the loop
	pending        P
	progressQueued bool
}

// NewUnit creates a pending unit for task id.
func NewUnit[P, R any](
	id int,
	work Work[P, R],
	executor Executor,
	poster Poster,
	listener UnitListener[P, R],
	logger *slog.Logger,
) *Unit[P, R] {
	runID := uuid.New()
	return &Unit[P, R]{
		id:       id,
		runID:    runID,
		work:     work,
		executor: executor,
		poster:   poster,
		listener: listener,
		logger:   logger.With("task_id", id, "run_id", runID),
		status:   UnitPending,
	}
}

// ID returns the task id this unit runs for.
func (u *Unit[P, R]) ID() int {
	return u.id
}

// RunID uniquely identifies this run.
func (u *Unit[P, R]) RunID() uuid.UUID {
	return u.runID
}

// Status returns the current run state.
func (u *Unit[P, R]) Status() UnitStatus {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.status
}

// IsCancelled reports whether cancellation was requested.
func (u *Unit[P, R]) IsCancelled() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.cancelled
}

// Start submits the work to the executor. It fails if the unit was already
// started or cancelled.
func (u *Unit[P, R]) Start() error {
	u.mu.Lock()
	if u.status != UnitPending {
		u.mu.Unlock()
		return fmt.Errorf("task %d: %w", u.id, ErrUnitStarted)
	}
	u.status = UnitRunning
	u.runCtx, u.cancelRun = context.WithCancel(context.Background())
	u.mu.Unlock()

	if err := u.executor.Execute(u.run); err != nil {
		u.mu.Lock()
		u.status = UnitPending
		u.cancelRun()
		u.mu.Unlock()
		return fmt.Errorf("failed to submit task %d: %w", u.id, err)
	}

	u.logger.Debug("unit submitted")
	return nil
}

// Cancel requests cooperative cancellation. A pending unit goes straight to
// cancelled; a running one is finalised when its body returns. mayInterrupt
// also cancels the body's context. It reports false if the outcome was
// already decided.
func (u *Unit[P, R]) Cancel(mayInterrupt bool) bool {
	u.mu.Lock()
	switch u.status {
	case UnitPending:
		u.cancelled = true
		u.status = UnitCancelled
		u.mu.Unlock()

		u.logger.Debug("unit cancelled before start")
		var zero R
		u.postFinished(Outcome[R]{Kind: OutcomeCancelled, Value: zero})
		return true

	case UnitRunning:
		u.cancelled = true
		cancel := u.cancelRun
		u.mu.Unlock()

		if mayInterrupt && cancel != nil {
			cancel()
		}
		u.logger.Debug("unit cancellation requested", "interrupt", mayInterrupt)
		return true

	default:
		u.mu.Unlock()
		return false
	}
}

// run is the executor job.
func (u *Unit[P, R]) run(poolCtx context.Context) {
	// executor shutdown counts as an interrupting cancel
	stop := context.AfterFunc(poolCtx, func() { u.Cancel(true) })
	defer stop()
	if poolCtx.Err() != nil {
		u.Cancel(true)
	}

	u.mu.Lock()
	ctx := u.runCtx
	skip := u.cancelled
	u.mu.Unlock()

	var value R
	var err error
	if !skip {
		value, err = u.invoke(ctx)
	}
	u.finish(value, err)
}

// invoke calls the body, recovering a panic into a *PanicError.
func (u *Unit[P, R]) invoke(ctx context.Context) (value R, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return u.work.Run(ctx, unitReporter[P, R]{u: u})
}

// finish decides the outcome once and posts it.
func (u *Unit[P, R]) finish(value R, err error) {
	u.mu.Lock()
	if u.status != UnitRunning {
		u.mu.Unlock()
		return
	}

	var out Outcome[R]
	switch {
	case u.cancelled:
		u.status = UnitCancelled
		out = Outcome[R]{Kind: OutcomeCancelled, Value: value}
	case err != nil:
		u.status = UnitCompleted
		out = Outcome[R]{
			Kind:  OutcomeFailed,
			Value: value,
			Err:   &ExecutionFailure{ID: u.id, RunID: u.runID, Err: err},
		}
	default:
		u.status = UnitCompleted
		out = Outcome[R]{Kind: OutcomeSucceeded, Value: value}
	}
	u.cancelRun()
	u.mu.Unlock()

	if err != nil {
		u.logger.Debug("unit finished", "outcome", out.Kind, "error", err)
	} else {
		u.logger.Debug("unit finished", "outcome", out.Kind)
	}
	u.postFinished(out)
}

func (u *Unit[P, R]) postFinished(out Outcome[R]) {
	u.post(func() {
		if out.Kind == OutcomeCancelled {
			if hook, ok := u.work.(CancelHook[R]); ok {
				hook.OnCancelled(out.Value)
			}
		}
		if u.listener != nil {
			u.listener.UnitFinished(u, out)
		}
	})
}

// publish coalesces progress: while a delivery closure is queued, newer values
// replace the pending one instead of queueing another closure.
func (u *Unit[P, R]) publish(progress P) {
	u.mu.Lock()
	if u.status != UnitRunning || u.cancelled {
		u.mu.Unlock()
		return
	}
	u.pending = progress
	if u.progressQueued {
		u.mu.Unlock()
		return
	}
	u.progressQueued = true
	u.mu.Unlock()

	u.post(func() {
		u.mu.Lock()
		p := u.pending
		var zero P
		u.pending = zero
		u.progressQueued = false
		u.mu.Unlock()

		if u.listener != nil {
			u.listener.UnitProgress(u, p)
		}
	})
}

func (u *Unit[P, R]) post(fn func()) {
	if !u.poster.Post(fn) {
		u.logger.Warn("dispatch loop rejected unit event")
	}
}

// unitReporter is the Reporter handed to the body.
type unitReporter[P, R any] struct {
	u *Unit[P, R]
}

func (r unitReporter[P, R]) Publish(progress P) {
	r.u.publish(progress)
}

func (r unitReporter[P, R]) Cancelled() bool {
	return r.u.IsCancelled()
}
