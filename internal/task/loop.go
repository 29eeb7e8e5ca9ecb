package task

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
)

// ErrLoopClosed is returned by Call when the loop no longer accepts work.
var ErrLoopClosed = errors.New("dispatch loop is closed")

// Poster accepts closures to run on the dispatch goroutine.
type Poster interface {
	// Post queues fn and returns immediately. It reports false if fn was dropped.
	Post(fn func()) bool
}

// Loop is the single logical dispatch queue. Every manager mutation and every
// handler call runs on whichever goroutine drives the loop (Run, RunPending or
// RunUntil); background goroutines only ever Post.
//
// Post never blocks: the queue is unbounded so a pool goroutine publishing
// progress cannot stall on a slow consumer.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	closed bool

	// signal has capacity one and is poked whenever the queue goes non-empty
	signal chan struct{}
	done   chan struct{}

	logger *slog.Logger
}

// NewLoop creates an empty dispatch loop.
func NewLoop(logger *slog.Logger) *Loop {
	return &Loop{
		signal: make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger.With("component", "dispatch_loop"),
	}
}

// Post queues fn for execution on the loop goroutine.
func (l *Loop) Post(fn func()) bool {
	if fn == nil {
		return false
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.logger.Debug("dropping post on closed loop")
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.signal <- struct{}{}:
	default:
	}
	return true
}

// Pending returns the number of queued closures.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// RunPending runs queued closures on the calling goroutine until the queue is
// empty, including closures posted while it runs. It returns how many ran.
func (l *Loop) RunPending() int {
	ran := 0
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return ran
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.invoke(fn)
		ran++
	}
}

// Run drives the loop on the calling goroutine until ctx is done or Close is
// called. Closures queued before Close are still run.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.RunPending()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			l.RunPending()
			return nil
		case <-l.signal:
		}
	}
}

// RunUntil drives the loop until cond reports true or ctx is done. cond is
// evaluated on the loop goroutine after each batch.
func (l *Loop) RunUntil(ctx context.Context, cond func() bool) error {
	for {
		l.RunPending()
		if cond() {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			l.RunPending()
			if cond() {
				return nil
			}
			return ErrLoopClosed
		case <-l.signal:
		}
	}
}

// Call posts fn and blocks until it has run on the loop goroutine. It must not
// be called from the loop goroutine itself.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrLoopClosed
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting new closures. A goroutine blocked in Run drains what is
// already queued and returns.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.done)
	l.logger.Debug("dispatch loop closed", "pending", len(l.queue))
}

// invoke runs fn, recovering a panic so one faulty callback cannot take the
// loop down with it.
func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("panic in dispatch loop callback",
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}
