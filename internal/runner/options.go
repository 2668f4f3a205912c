package runner

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/lastrix/perftester/internal/metrics"
)

const (
	DefaultSampleInterval   = time.Second
	DefaultGracefulShutdown = 5 * time.Second
)

// Options configure the Driver.
type Options struct {
	MinWorkers       int                   // first concurrency level
	MaxWorkers       int                   // last concurrency level, also the pool capacity
	WarmupRounds     int                   // unmeasured rounds before the first level
	WarmupDuration   time.Duration         // length of each warm-up round
	WarmupWorkers    int                   // concurrent callers during warm-up
	TestRounds       int                   // measured rounds per level
	TestDuration     time.Duration         // length of each measured round
	SampleInterval   time.Duration         // bucket width (default 1s)
	Scaling          metrics.BucketScaling // per-second scaling convention
	GracefulShutdown time.Duration         // straggler wait after a fatal round error
	Logger           logrus.FieldLogger
	Tracer           trace.Tracer
	Observer         Observer
}

func (o *Options) normalize() {
	if o.MinWorkers <= 0 {
		o.MinWorkers = 1
	}
	if o.MaxWorkers < o.MinWorkers {
		o.MaxWorkers = o.MinWorkers
	}
	if o.WarmupRounds < 0 {
		o.WarmupRounds = 0
	}
	if o.WarmupWorkers <= 0 {
		o.WarmupWorkers = 1
	}
	if o.TestRounds <= 0 {
		o.TestRounds = 1
	}
	if o.SampleInterval <= 0 {
		o.SampleInterval = DefaultSampleInterval
	}
	if o.Scaling == "" {
		o.Scaling = metrics.ScaleConfigured
	}
	if o.GracefulShutdown <= 0 {
		o.GracefulShutdown = DefaultGracefulShutdown
	}
	if o.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.Logger = l
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("perftester")
	}
	if o.Observer == nil {
		o.Observer = nopObserver{}
	}
}

// poolCapacity sizes the Orchestrator's pool so neither warm-up nor the
// largest level has to queue.
func (o *Options) poolCapacity() int {
	return max(o.MaxWorkers, o.WarmupWorkers)
}
