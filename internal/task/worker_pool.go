package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// ErrPoolStopped is returned by Execute once Stop has been called.
var ErrPoolStopped = errors.New("worker pool is stopped")

// JobQueueReadWriter is the queue a WorkerPool both feeds and drains.
type JobQueueReadWriter interface {
	JobQueueReader
	JobQueueWriter
}

// WorkerPool manages a fixed set of worker goroutines that run jobs
// from a job queue in FIFO order. It implements Executor.
type WorkerPool struct {
	// jobQueue provides the jobs to be processed
	jobQueue JobQueueReadWriter

	// workerCount is the number of concurrent workers to start
	workerCount int

	// wg tracks active worker goroutines for clean shutdown
	wg sync.WaitGroup

	// ctx is handed to every job and cancelled on Stop
	ctx    context.Context
	cancel context.CancelFunc

	started atomic.Bool
	stopped atomic.Bool

	logger *slog.Logger

	// errorHandler is called when a job panics
	// If nil, panics are only logged
	errorHandler func(err error)
}

// WorkerPoolConfig holds configuration options for the worker pool
type WorkerPoolConfig struct {
	// WorkerCount determines how many concurrent worker goroutines to start
	// If zero or negative, defaults to 1
	WorkerCount int
}

// DefaultWorkerPoolConfig returns a WorkerPoolConfig with reasonable defaults
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		WorkerCount: 4,
	}
}

// NewWorkerPool creates a new worker pool with the specified configuration
func NewWorkerPool(jobQueue JobQueueReadWriter, config WorkerPoolConfig, logger *slog.Logger) *WorkerPool {
	workerCount := config.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
		logger.Warn("invalid worker count specified, using default",
			"specified_count", config.WorkerCount,
			"default_count", 1)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		jobQueue:    jobQueue,
		workerCount: workerCount,
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger.With("component", "worker_pool"),
	}
}

// SetErrorHandler allows setting a custom handler for job panics
func (p *WorkerPool) SetErrorHandler(handler func(err error)) {
	p.errorHandler = handler
}

// Start launches the worker goroutines. Calling Start twice is a no-op.
func (p *WorkerPool) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	p.logger.Debug("worker pool started", "worker_count", p.workerCount)
}

// Stop cancels the context handed to running jobs, closes the queue and waits
// for the workers to exit. Jobs still queued are run with the cancelled context
// so they can finish as cancelled instead of disappearing.
func (p *WorkerPool) Stop() {
	if !p.stopped.CompareAndSwap(false, true) {
		return
	}
	p.cancel()
	p.jobQueue.Close()
	p.wg.Wait()
	p.logger.Debug("worker pool stopped")
}

// Execute enqueues job for the next free worker.
func (p *WorkerPool) Execute(job Job) error {
	if p.stopped.Load() {
		return ErrPoolStopped
	}
	if err := p.jobQueue.Enqueue(job); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// worker drains the queue until it is closed
func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()

	p.logger.Debug("starting worker", "worker_id", id)
	for job := range p.jobQueue.GetChannel() {
		p.runJob(job, id)
	}
	p.logger.Debug("job channel closed, stopping worker", "worker_id", id)
}

// runJob executes a single job, converting a panic into an error
func (p *WorkerPool) runJob(job Job, workerID int) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("job panicked: %v", r)
			p.logger.Error("job panic recovered",
				"worker_id", workerID,
				"panic", r,
				"stack", string(debug.Stack()))
			if p.errorHandler != nil {
				p.errorHandler(err)
			}
		}
	}()
	job(p.ctx)
}
