package runner

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lastrix/perftester/internal/metrics"
)

func discard() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestTickerFiresAtInterval(t *testing.T) {
	var ticks atomic.Int64
	ticker := NewTicker(20*time.Millisecond, func(int) { ticks.Add(1) })
	ticker.Start()
	time.Sleep(110 * time.Millisecond)
	ticker.Stop()

	got := ticks.Load()
	if got < 3 || got > 6 {
		t.Fatalf("expected ~5 ticks, got %d", got)
	}

	time.Sleep(50 * time.Millisecond)
	if after := ticks.Load(); after != got {
		t.Fatalf("ticker kept firing after Stop: %d -> %d", got, after)
	}
}

func TestTickerPassesSequentialIndexes(t *testing.T) {
	seen := make(chan int, 16)
	ticker := NewTicker(10*time.Millisecond, func(tick int) { seen <- tick })
	ticker.Start()
	time.Sleep(55 * time.Millisecond)
	ticker.Stop()
	close(seen)

	want := 0
	for tick := range seen {
		if tick != want {
			t.Fatalf("tick %d out of order, want %d", tick, want)
		}
		want++
	}
}

func TestTickerStopIdempotent(t *testing.T) {
	ticker := NewTicker(time.Millisecond, nil)
	ticker.Stop() // never started
	ticker.Start()
	ticker.Stop()
	ticker.Stop()

	running := NewTicker(time.Millisecond, nil)
	running.Start()
	running.Start()
	running.Stop()
	running.Stop()
}

func TestTickerNoFireBeforeInterval(t *testing.T) {
	var ticks atomic.Int64
	ticker := NewTicker(time.Hour, func(int) { ticks.Add(1) })
	ticker.Start()
	time.Sleep(10 * time.Millisecond)
	ticker.Stop()
	if ticks.Load() != 0 {
		t.Fatalf("expected no ticks, got %d", ticks.Load())
	}
}

type scriptedWorkload struct {
	calls atomic.Int64
	delay time.Duration
	fail  func(call int64) error
}

func (s *scriptedWorkload) Init(context.Context) error { return nil }
func (s *scriptedWorkload) Close() error               { return nil }

func (s *scriptedWorkload) Next(context.Context) error {
	n := s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.fail != nil {
		return s.fail(n)
	}
	return nil
}

func TestWorkerFlushesIntoLatestBucket(t *testing.T) {
	set := metrics.NewResultSet(1)
	w := &worker{id: 7, set: set, log: discard()}
	wl := &scriptedWorkload{delay: time.Millisecond}
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		w.run(context.Background(), wl, stop)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	set.OpenBucket()
	w.requestFlush()
	time.Sleep(20 * time.Millisecond)
	close(stop)
	<-done

	results := set.Results()
	if len(results) != 1 || results[0].Worker != 7 {
		t.Fatalf("expected one result for worker 7, got %+v", results)
	}
	samples := set.Bucket(0).Samples()
	if len(samples) != 1 {
		t.Fatalf("expected one interval sample, got %d", len(samples))
	}
	if samples[0].Count == 0 || samples[0].Count > results[0].Count {
		t.Fatalf("interval count %d inconsistent with total %d", samples[0].Count, results[0].Count)
	}
	if results[0].Count != wl.calls.Load() {
		t.Fatalf("result count %d, calls %d", results[0].Count, wl.calls.Load())
	}
}

func TestWorkerStopsOnFailure(t *testing.T) {
	set := metrics.NewResultSet(1)
	w := &worker{id: 0, set: set, log: discard()}
	wl := &scriptedWorkload{fail: func(n int64) error {
		if n == 3 {
			return errors.New("third call fails")
		}
		return nil
	}}

	w.run(context.Background(), wl, make(chan struct{}))

	results := set.Results()
	if len(results) != 1 || results[0].Count != 2 {
		t.Fatalf("expected a single result counting 2 calls, got %+v", results)
	}
	if set.Failures() != 1 {
		t.Fatalf("expected 1 failure, got %d", set.Failures())
	}
}

func TestWorkerRecoversPanic(t *testing.T) {
	set := metrics.NewResultSet(1)
	w := &worker{id: 0, set: set, log: discard()}
	wl := &scriptedWorkload{fail: func(int64) error { panic("boom") }}

	w.run(context.Background(), wl, make(chan struct{}))

	if got := set.ErrorBreakdown()["Workload panic"]; got != 1 {
		t.Fatalf("expected panic to be recorded, breakdown %v", set.ErrorBreakdown())
	}
	if len(set.Results()) != 1 {
		t.Fatalf("expected a result after panic, got %d", len(set.Results()))
	}
}

func TestWorkerIgnoresCancellation(t *testing.T) {
	set := metrics.NewResultSet(1)
	w := &worker{id: 0, set: set, log: discard()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	wl := &scriptedWorkload{fail: func(int64) error { return ctx.Err() }}

	w.run(ctx, wl, make(chan struct{}))

	if set.Failures() != 0 {
		t.Fatalf("cancellation should not count as failure, got %d", set.Failures())
	}
}

func TestOptionsNormalize(t *testing.T) {
	var o Options
	o.normalize()
	if o.MinWorkers != 1 || o.MaxWorkers != 1 || o.TestRounds != 1 || o.WarmupWorkers != 1 {
		t.Fatalf("unexpected worker defaults: %+v", o)
	}
	if o.SampleInterval != DefaultSampleInterval || o.GracefulShutdown != DefaultGracefulShutdown {
		t.Fatalf("unexpected timing defaults: %+v", o)
	}
	if o.Scaling != metrics.ScaleConfigured {
		t.Fatalf("Scaling = %q, want configured", o.Scaling)
	}
	if o.Logger == nil || o.Tracer == nil || o.Observer == nil {
		t.Fatal("expected logger, tracer, and observer defaults")
	}

	o = Options{MinWorkers: 3, MaxWorkers: 2, WarmupWorkers: 5, WarmupRounds: -1}
	o.normalize()
	if o.MaxWorkers != 3 || o.WarmupRounds != 0 {
		t.Fatalf("unexpected normalization: %+v", o)
	}
	if o.poolCapacity() != 5 {
		t.Fatalf("poolCapacity() = %d, want 5", o.poolCapacity())
	}
}

func TestPhaseErrorMessage(t *testing.T) {
	inner := errors.New("boom")
	tests := []struct {
		err  *PhaseError
		want string
	}{
		{&PhaseError{Phase: PhaseInit, Err: inner}, "initializing failed: boom"},
		{&PhaseError{Phase: PhaseWarmup, Round: 2, Err: inner}, "warm-up failed in round 2: boom"},
		{&PhaseError{Phase: PhaseMeasure, Level: 3, Round: 1, Err: inner}, "measuring failed at 3 workers, round 1: boom"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
		if !errors.Is(tt.err, inner) {
			t.Errorf("PhaseError does not unwrap to inner error")
		}
	}
}
