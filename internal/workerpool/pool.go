// Package workerpool runs independent tasks on a shared, bounded set of
// workers. It is shared by every run in the process, so a burst of asset
// collection in one run cannot starve the machine.
package workerpool

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/iamxurulin/xu-AI-Zero/internal/core"
)

// Default sizing.
const (
	DefaultWorkers   = 20
	DefaultQueueSize = 100
)

// Pool bounds concurrent task execution to workers, with at most queueSize
// tasks waiting for a worker. Submissions beyond that fail immediately.
type Pool struct {
	sem       *semaphore.Weighted
	workers   int
	queueSize int
	pending   atomic.Int64
	onPending func(n int64)
}

// Option configures a Pool.
type Option func(*Pool)

// WithPendingObserver is called whenever the number of queued plus running
// tasks changes.
func WithPendingObserver(fn func(n int64)) Option {
	return func(p *Pool) { p.onPending = fn }
}

// New creates a pool. Non-positive sizes fall back to the defaults.
func New(workers, queueSize int, opts ...Option) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if queueSize < 0 {
		queueSize = DefaultQueueSize
	}
	p := &Pool{
		sem:       semaphore.NewWeighted(int64(workers)),
		workers:   workers,
		queueSize: queueSize,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Future is the eventual result of a submitted task.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Await blocks until the task finishes or ctx is done. A cancelled wait does
// not stop the task; its result is simply not observed.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit schedules fn. The task runs detached from ctx cancellation so an
// in-flight call is never interrupted halfway; ctx values are preserved.
func Submit[T any](p *Pool, ctx context.Context, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}

	limit := int64(p.workers + p.queueSize)
	n := p.pending.Add(1)
	if n > limit {
		p.changed(p.pending.Add(-1))
		f.err = core.ErrExecution(core.CodePoolSaturated,
			fmt.Sprintf("worker pool saturated (%d workers, %d queued)", p.workers, p.queueSize))
		close(f.done)
		return f
	}
	p.changed(n)

	taskCtx := context.WithoutCancel(ctx)
	go func() {
		defer close(f.done)
		defer func() { p.changed(p.pending.Add(-1)) }()
		defer func() {
			if r := recover(); r != nil {
				f.err = core.ErrExecution(core.CodeNodePanic, fmt.Sprintf("task panic: %v", r))
			}
		}()

		// Acquire cannot fail with a context that is never cancelled.
		_ = p.sem.Acquire(taskCtx, 1)
		defer p.sem.Release(1)
		f.value, f.err = fn(taskCtx)
	}()
	return f
}

// Pending returns the number of queued plus running tasks.
func (p *Pool) Pending() int64 {
	return p.pending.Load()
}

// Workers returns the concurrency bound.
func (p *Pool) Workers() int {
	return p.workers
}

func (p *Pool) changed(n int64) {
	if p.onPending != nil {
		p.onPending(n)
	}
}
