package runner

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lastrix/perftester/internal/metrics"
	"github.com/lastrix/perftester/internal/pool"
	"github.com/lastrix/perftester/internal/workload"
)

// bucketFunc is called from the ticker goroutine after a bucket has been
// opened and every worker has been asked to flush into it.
type bucketFunc func(set *metrics.ResultSet, index int, elapsed time.Duration)

// Orchestrator runs rounds on a pool sized once at construction.
type Orchestrator struct {
	pool     *pool.Pool
	interval time.Duration
	log      logrus.FieldLogger
}

// NewOrchestrator returns an Orchestrator whose pool runs at most capacity
// workers at once. interval is the bucket width; log may be nil.
func NewOrchestrator(capacity int, interval time.Duration, log logrus.FieldLogger) *Orchestrator {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Orchestrator{pool: pool.New(capacity), interval: interval, log: log}
}

// Capacity returns the pool capacity.
func (o *Orchestrator) Capacity() int {
	return o.pool.Capacity()
}

// RunRound runs workers concurrent callers of wl.Next for duration and
// returns the collected ResultSet once every worker has finished its last
// call. Cancelling ctx during the round returns ErrInterrupted along with
// whatever was collected.
func (o *Orchestrator) RunRound(ctx context.Context, wl workload.Workload, workers int, duration time.Duration) (*metrics.ResultSet, error) {
	return o.runRound(ctx, wl, workers, duration, nil)
}

func (o *Orchestrator) runRound(ctx context.Context, wl workload.Workload, workers int, duration time.Duration, onBucket bucketFunc) (*metrics.ResultSet, error) {
	if err := o.checkCapacity(workers); err != nil {
		return nil, err
	}

	set := metrics.NewResultSet(workers)
	stop := make(chan struct{})
	ws := make([]*worker, workers)
	for i := range ws {
		ws[i] = &worker{id: i, set: set, log: o.log.WithField("workers", workers)}
	}
	for _, w := range ws {
		o.pool.Submit(ctx, func() { w.run(ctx, wl, stop) })
	}

	start := time.Now()
	ticker := NewTicker(o.interval, func(int) {
		index := set.OpenBucket()
		for _, w := range ws {
			w.requestFlush()
		}
		if onBucket != nil {
			onBucket(set, index, time.Since(start))
		}
	})
	ticker.Start()

	sleepErr := sleep(ctx, duration)
	ticker.Stop()
	close(stop)
	if sleepErr != nil {
		return set, fmt.Errorf("%w during round: %w", ErrInterrupted, sleepErr)
	}

	if err := o.pool.Quiesce(ctx); err != nil {
		return set, fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	set.MarkFinished()
	return set, nil
}

// Warmup runs workers unmeasured callers of wl.Next for duration. Failing
// calls are logged and stop only the caller that made them.
func (o *Orchestrator) Warmup(ctx context.Context, wl workload.Workload, workers int, duration time.Duration) error {
	if err := o.checkCapacity(workers); err != nil {
		return err
	}

	stop := make(chan struct{})
	log := o.log.WithField("phase", PhaseWarmup)
	for i := 0; i < workers; i++ {
		o.pool.Submit(ctx, func() { warmupLoop(ctx, wl, stop, log.WithField("worker", i)) })
	}

	sleepErr := sleep(ctx, duration)
	close(stop)
	if sleepErr != nil {
		return fmt.Errorf("%w during warm-up: %w", ErrInterrupted, sleepErr)
	}
	if err := o.pool.Quiesce(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	return nil
}

// Drain waits for workers left over from an aborted round.
func (o *Orchestrator) Drain(ctx context.Context) error {
	return o.pool.Quiesce(ctx)
}

func (o *Orchestrator) checkCapacity(workers int) error {
	if workers <= 0 {
		return fmt.Errorf("worker count must be positive, got %d", workers)
	}
	if workers > o.pool.Capacity() {
		return fmt.Errorf("%w: %d workers requested, capacity is %d", ErrPoolTooSmall, workers, o.pool.Capacity())
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
