package task

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkerPool(t *testing.T) {
	logger := setupTestLogger()
	queue := NewJobQueue(10, logger)
	config := WorkerPoolConfig{
		WorkerCount: 5,
	}

	pool := NewWorkerPool(queue, config, logger)

	assert.NotNil(t, pool)
	assert.Equal(t, 5, pool.workerCount)
	assert.Equal(t, queue, pool.jobQueue)
	assert.NotNil(t, pool.ctx)
	assert.NotNil(t, pool.cancel)
	assert.NotNil(t, pool.logger)
	assert.Nil(t, pool.errorHandler)

	// Test with invalid worker count (should default to 1)
	pool = NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: 0}, logger)
	assert.Equal(t, 1, pool.workerCount)

	// Test with negative worker count (should default to 1)
	pool = NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: -5}, logger)
	assert.Equal(t, 1, pool.workerCount)
}

func TestSetErrorHandler(t *testing.T) {
	logger := setupTestLogger()
	pool := NewWorkerPool(NewJobQueue(1, logger), DefaultWorkerPoolConfig(), logger)

	// Initially the error handler should be nil
	assert.Nil(t, pool.errorHandler)

	pool.SetErrorHandler(func(err error) {})

	assert.NotNil(t, pool.errorHandler)
}

func TestWorkerPool_Start_Stop(t *testing.T) {
	logger := setupTestLogger()
	pool := NewWorkerPool(NewJobQueue(10, logger), WorkerPoolConfig{WorkerCount: 2}, logger)

	pool.Start()
	// Second start is a no-op
	pool.Start()

	pool.Stop()
	// Second stop is a no-op
	pool.Stop()

	err := pool.Execute(noopJob)
	assert.ErrorIs(t, err, ErrPoolStopped)
}

func TestWorkerPool_Execute(t *testing.T) {
	logger := setupTestLogger()
	pool := NewWorkerPool(NewJobQueue(10, logger), WorkerPoolConfig{WorkerCount: 1}, logger)
	pool.Start()
	defer pool.Stop()

	completed := make(chan struct{})
	err := pool.Execute(func(ctx context.Context) {
		close(completed)
	})
	require.NoError(t, err)

	select {
	case <-completed:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Timed out waiting for job to complete")
	}
}

func TestWorkerPool_Execute_QueueFull(t *testing.T) {
	logger := setupTestLogger()
	// Not started, so nothing drains the queue
	pool := NewWorkerPool(NewJobQueue(1, logger), WorkerPoolConfig{WorkerCount: 1}, logger)

	require.NoError(t, pool.Execute(noopJob))

	err := pool.Execute(noopJob)
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestWorkerPool_PanicRecovery(t *testing.T) {
	logger := setupTestLogger()
	pool := NewWorkerPool(NewJobQueue(10, logger), WorkerPoolConfig{WorkerCount: 1}, logger)

	errorHandled := make(chan error, 1)
	pool.SetErrorHandler(func(err error) {
		errorHandled <- err
	})
	pool.Start()
	defer pool.Stop()

	require.NoError(t, pool.Execute(func(ctx context.Context) {
		panic("boom")
	}))

	select {
	case err := <-errorHandled:
		assert.Contains(t, err.Error(), "boom")
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Timed out waiting for error handler")
	}

	// The worker survives the panic
	completed := make(chan struct{})
	require.NoError(t, pool.Execute(func(ctx context.Context) { close(completed) }))
	select {
	case <-completed:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Worker did not survive panic")
	}
}

func TestWorkerPool_StopCancelsContext(t *testing.T) {
	logger := setupTestLogger()
	pool := NewWorkerPool(NewJobQueue(10, logger), WorkerPoolConfig{WorkerCount: 1}, logger)
	pool.Start()

	started := make(chan struct{})
	var sawCancel atomic.Bool
	require.NoError(t, pool.Execute(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		sawCancel.Store(errors.Is(ctx.Err(), context.Canceled))
	}))

	<-started
	pool.Stop()

	assert.True(t, sawCancel.Load())
}

func TestWorkerPool_StopRunsQueuedJobsCancelled(t *testing.T) {
	logger := setupTestLogger()
	pool := NewWorkerPool(NewJobQueue(10, logger), WorkerPoolConfig{WorkerCount: 1}, logger)
	pool.Start()

	// Occupy the only worker until Stop cancels the pool context
	started := make(chan struct{})
	require.NoError(t, pool.Execute(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	}))
	<-started

	var cancelledRuns atomic.Int32
	for i := 0; i < 3; i++ {
		require.NoError(t, pool.Execute(func(ctx context.Context) {
			if ctx.Err() != nil {
				cancelledRuns.Add(1)
			}
		}))
	}

	pool.Stop()

	assert.Equal(t, int32(3), cancelledRuns.Load())
}
