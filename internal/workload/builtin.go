package workload

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	dummyBaseDelay = 100 * time.Millisecond
	dummySpread    = 50 * time.Millisecond
)

// dummy sleeps 100ms ± 50ms per call. It is the reference workload for
// trying out the harness.
type dummy struct {
	log    logrus.FieldLogger
	jitter *jitterSource
}

func newDummy(s Settings) (Workload, error) {
	return &dummy{log: s.logger(), jitter: newJitterSource()}, nil
}

func (d *dummy) Init(context.Context) error {
	d.log.Info("Initializing...")
	return nil
}

func (d *dummy) Next(ctx context.Context) error {
	d.log.Debug("Test!")
	return sleepContext(ctx, dummyBaseDelay+d.jitter.spread(dummySpread))
}

func (d *dummy) Close() error {
	d.log.Info("Closing...")
	return nil
}

// sleeper waits a fixed delay, optionally spread by ± jitter.
type sleeper struct {
	delay  time.Duration
	spread time.Duration
	jitter *jitterSource
}

func newSleep(s Settings) (Workload, error) {
	if s.Delay < 0 {
		return nil, errors.New("delay must be >= 0")
	}
	if s.Jitter < 0 || s.Jitter > s.Delay {
		return nil, errors.New("jitter must be between 0 and delay")
	}
	return &sleeper{delay: s.Delay, spread: s.Jitter, jitter: newJitterSource()}, nil
}

func (s *sleeper) Init(context.Context) error { return nil }

func (s *sleeper) Next(ctx context.Context) error {
	return sleepContext(ctx, s.delay+s.jitter.spread(s.spread))
}

func (s *sleeper) Close() error { return nil }

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type jitterSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func newJitterSource() *jitterSource {
	return &jitterSource{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// jitter returns a uniformly distributed duration in [0, max).
func (j *jitterSource) jitter(max time.Duration) time.Duration {
	if j == nil || max <= 0 {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return time.Duration(j.rnd.Int63n(int64(max)))
}

// spread returns a uniformly distributed offset in [-max, max).
func (j *jitterSource) spread(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return j.jitter(2*max) - max
}

func discardLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
