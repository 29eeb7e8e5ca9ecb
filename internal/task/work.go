package task

import "context"

// Reporter is handed to a running work body.
type Reporter[P any] interface {
	// Publish posts progress to the dispatch loop and returns immediately.
	// Unread progress is overwritten by newer values.
	Publish(progress P)

	// Cancelled reports whether cancellation has been requested. Bodies must
	// poll it (or watch ctx.Done) and return promptly once it is set.
	Cancelled() bool
}

// Work is the body of a background task. Run is executed at most once, on an
// executor goroutine. Returning an error or panicking produces a failed outcome.
type Work[P, R any] interface {
	Run(ctx context.Context, reporter Reporter[P]) (R, error)
}

// CancelHook may be implemented by Work to be told, on the dispatch loop, that
// its run ended as cancelled. last is whatever Run returned, or the zero value
// if Run never executed.
type CancelHook[R any] interface {
	OnCancelled(last R)
}

// WorkFunc adapts a function to the Work interface.
type WorkFunc[P, R any] func(ctx context.Context, reporter Reporter[P]) (R, error)

// Run calls f(ctx, reporter).
func (f WorkFunc[P, R]) Run(ctx context.Context, reporter Reporter[P]) (R, error) {
	return f(ctx, reporter)
}

// WithParams binds params to a parameterised body, producing a Work.
func WithParams[A, P, R any](fn func(ctx context.Context, params A, reporter Reporter[P]) (R, error), params A) Work[P, R] {
	return WorkFunc[P, R](func(ctx context.Context, reporter Reporter[P]) (R, error) {
		return fn(ctx, params, reporter)
	})
}

// OutcomeKind tags the terminal outcome of a run.
type OutcomeKind string

const (
	OutcomeSucceeded OutcomeKind = "succeeded"
	OutcomeFailed    OutcomeKind = "failed"
	OutcomeCancelled OutcomeKind = "cancelled"
)

// String returns the string representation of the outcome kind.
func (k OutcomeKind) String() string {
	return string(k)
}

// Outcome is the terminal result of one run. It is decided exactly once; a
// cancellation requested after the decision does not change it.
type Outcome[R any] struct {
	Kind OutcomeKind

	// Value is the body's return value. For cancelled runs it is the last value
	// the body returned, if it returned at all.
	Value R

	// Err is an *ExecutionFailure when Kind is OutcomeFailed.
	Err error
}

// Succeeded reports whether the run returned without error.
func (o Outcome[R]) Succeeded() bool {
	return o.Kind == OutcomeSucceeded
}

// Failed reports whether the run returned an error or panicked.
func (o Outcome[R]) Failed() bool {
	return o.Kind == OutcomeFailed
}
