package runner

import (
	"context"
	"errors"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lastrix/perftester/internal/metrics"
	"github.com/lastrix/perftester/internal/workload"
)

// worker calls Next in a loop until stop is closed or a call fails.
type worker struct {
	id    int
	set   *metrics.ResultSet
	log   logrus.FieldLogger
	flush atomic.Bool
}

// requestFlush asks the worker to hand off its interval sample after the
// call in progress.
func (w *worker) requestFlush() {
	w.flush.Store(true)
}

// run always records exactly one full-round sample, even when the first
// call fails.
func (w *worker) run(ctx context.Context, wl workload.Workload, stop <-chan struct{}) {
	start := time.Now()
	chunkStart := start
	var count, chunkCount int64
	hist := metrics.NewLatencyHistogram()

	defer func() {
		w.set.AddResult(metrics.Sample{Worker: w.id, Elapsed: time.Since(start), Count: count})
		w.set.MergeLatencies(hist)
	}()

	for !stopped(stop) {
		callStart := time.Now()
		if err := invoke(ctx, wl); err != nil {
			w.fail(ctx, err, count)
			return
		}
		now := time.Now()
		metrics.RecordLatency(hist, now.Sub(callStart))
		count++
		chunkCount++

		if w.flush.CompareAndSwap(true, false) {
			w.set.AddIntervalSample(metrics.Sample{Worker: w.id, Elapsed: now.Sub(chunkStart), Count: chunkCount})
			chunkStart = now
			chunkCount = 0
		}
	}
}

func (w *worker) fail(ctx context.Context, err error, completed int64) {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		w.log.WithField("worker", w.id).Debug("Worker cancelled")
		return
	}
	w.set.RecordFailure(err)
	entry := w.log.WithFields(logrus.Fields{
		"worker":    w.id,
		"completed": completed,
	}).WithError(err)
	var panicErr *PanicError
	if errors.As(err, &panicErr) {
		entry = entry.WithField("stack", string(panicErr.Stack))
	}
	entry.Error("Worker failed")
}

// invoke converts a panic in Next into a PanicError.
func invoke(ctx context.Context, wl workload.Workload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return wl.Next(ctx)
}

func stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

// warmupLoop calls Next until stop is closed or a call fails. Nothing is
// recorded.
func warmupLoop(ctx context.Context, wl workload.Workload, stop <-chan struct{}, log logrus.FieldLogger) {
	for !stopped(stop) {
		if err := invoke(ctx, wl); err != nil {
			if ctx.Err() == nil {
				log.WithError(err).Error("Worker failed")
			}
			return
		}
	}
}
