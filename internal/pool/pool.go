// Package pool provides a bounded task pool whose callers can wait for
// quiescence, i.e. no task running and none queued.
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Pool runs submitted tasks on at most Capacity goroutines at once.
type Pool struct {
	sem      *semaphore.Weighted
	capacity int
	pending  sync.WaitGroup
	queued   atomic.Int64
	running  atomic.Int64
}

// New creates a pool with the given capacity.
func New(capacity int) *Pool {
	if capacity <= 0 {
		capacity = 1
	}
	return &Pool{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
	}
}

// Capacity returns the maximum number of concurrently running tasks.
func (p *Pool) Capacity() int {
	return p.capacity
}

// Submit queues task without blocking the caller. The task starts once a slot
// is free. If ctx is cancelled while the task is still queued, the task is
// dropped.
func (p *Pool) Submit(ctx context.Context, task func()) {
	p.pending.Add(1)
	p.queued.Add(1)
	go func() {
		defer p.pending.Done()
		err := p.sem.Acquire(ctx, 1)
		p.queued.Add(-1)
		if err != nil {
			return
		}
		p.running.Add(1)
		defer func() {
			p.running.Add(-1)
			p.sem.Release(1)
		}()
		task()
	}()
}

// InFlight returns the number of running and queued tasks.
func (p *Pool) InFlight() int {
	return int(p.running.Load() + p.queued.Load())
}

// Quiesce blocks until every submitted task has finished or been dropped.
// It returns an error wrapping ctx.Err() if ctx ends first; tasks keep
// running in that case.
func (p *Pool) Quiesce(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for %d tasks: %w", p.InFlight(), ctx.Err())
	}
}
