package task

import "context"

// Job is a unit of executor work. The context is cancelled when the executor
// shuts down.
type Job func(ctx context.Context)

// Executor runs jobs off the dispatch goroutine.
type Executor interface {
	// Execute schedules job. It must not block on the job itself.
	Execute(job Job) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(job Job) error

// Execute calls f(job).
func (f ExecutorFunc) Execute(job Job) error {
	return f(job)
}

// GoExecutor runs every job on its own goroutine: one goroutine per in-flight
// unit, never queued behind another id.
type GoExecutor struct{}

// Execute starts job on a new goroutine with a background context.
func (GoExecutor) Execute(job Job) error {
	go job(context.Background())
	return nil
}
