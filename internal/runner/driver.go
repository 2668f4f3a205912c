package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/lastrix/perftester/internal/metrics"
	"github.com/lastrix/perftester/internal/tracing"
	"github.com/lastrix/perftester/internal/workload"
)

// State is the Driver's position in a session.
type State int32

const (
	StateCreated State = iota
	StateInitialized
	StateWarmingUp
	StateMeasuring
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateWarmingUp:
		return "warming-up"
	case StateMeasuring:
		return "measuring"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrAlreadyRun is returned when Run is called on a Driver that has already
// run a session.
var ErrAlreadyRun = errors.New("driver already ran a session")

// Report is the outcome of one session. Levels holds the levels that
// completed; it is partial when Run returns an error.
type Report struct {
	SessionID  string                `json:"session_id" yaml:"session_id"`
	Workload   string                `json:"workload" yaml:"workload"`
	StartedAt  time.Time             `json:"started_at" yaml:"started_at"`
	Duration   time.Duration         `json:"-" yaml:"-"`
	DurationMs float64               `json:"duration_ms" yaml:"duration_ms"`
	Scaling    metrics.BucketScaling `json:"bucket_scaling" yaml:"bucket_scaling"`
	Levels     []metrics.LevelStats  `json:"levels" yaml:"levels"`
}

// Driver sequences a session: init, warm-up, every level from MinWorkers to
// MaxWorkers, close.
type Driver struct {
	name    string
	opt     Options
	orch    *Orchestrator
	state   atomic.Int32
	claimed atomic.Bool // set by the first Run; state stays Created until Init succeeds
}

// NewDriver creates a Driver for the workload registered under name.
func NewDriver(name string, opt Options) *Driver {
	opt.normalize()
	return &Driver{
		name: name,
		opt:  opt,
		orch: NewOrchestrator(opt.poolCapacity(), opt.SampleInterval, opt.Logger),
	}
}

// State returns the current session state.
func (d *Driver) State() State {
	return State(d.state.Load())
}

// Run executes the session against wl. wl.Init is called once; if it fails
// the session ends without calling Close. Otherwise wl.Close is called
// exactly once before Run returns.
func (d *Driver) Run(ctx context.Context, wl workload.Workload) (report *Report, err error) {
	if !d.claimed.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}

	report = &Report{
		SessionID: ulid.Make().String(),
		Workload:  d.name,
		StartedAt: time.Now(),
		Scaling:   d.opt.Scaling,
	}
	log := d.opt.Logger.WithFields(logrus.Fields{
		"session":  report.SessionID,
		"workload": d.name,
	})

	ctx, span := tracing.StartPhaseSpan(ctx, d.opt.Tracer, "session",
		tracing.KeyWorkload.String(d.name),
		tracing.KeySession.String(report.SessionID),
		attribute.Int("perftester.min_workers", d.opt.MinWorkers),
		attribute.Int("perftester.max_workers", d.opt.MaxWorkers),
	)
	defer func() {
		report.Duration = time.Since(report.StartedAt)
		report.DurationMs = float64(report.Duration) / float64(time.Millisecond)
		tracing.EndSpan(span, err)
	}()

	log.Info("Initializing workload")
	if initErr := wl.Init(ctx); initErr != nil {
		d.setState(StateFailed)
		log.WithError(initErr).Error("Workload initialization failed")
		return report, &PhaseError{Phase: PhaseInit, Err: initErr}
	}
	d.setState(StateInitialized)

	defer func() {
		if closeErr := wl.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("Closing workload failed")
		}
		if err != nil {
			d.setState(StateFailed)
			log.WithError(err).Error("Session failed")
			return
		}
		d.setState(StateClosed)
		log.WithField("duration", time.Since(report.StartedAt).Round(time.Millisecond)).Info("Session complete")
	}()

	if err := d.warmup(ctx, wl, log); err != nil {
		return report, err
	}

	d.setState(StateMeasuring)
	for level := d.opt.MinWorkers; level <= d.opt.MaxWorkers; level++ {
		stats, err := d.level(ctx, wl, level, log)
		if err != nil {
			return report, err
		}
		report.Levels = append(report.Levels, stats)
		d.opt.Observer.LevelCompleted(stats)
	}
	return report, nil
}

func (d *Driver) warmup(ctx context.Context, wl workload.Workload, log logrus.FieldLogger) error {
	if d.opt.WarmupRounds == 0 {
		return nil
	}
	d.setState(StateWarmingUp)
	for round := 1; round <= d.opt.WarmupRounds; round++ {
		d.opt.Observer.PhaseStarted(PhaseWarmup, 0, round)
		log.WithFields(logrus.Fields{
			"round":    round,
			"workers":  d.opt.WarmupWorkers,
			"duration": d.opt.WarmupDuration,
		}).Info("Warming up")

		spanCtx, span := tracing.StartPhaseSpan(ctx, d.opt.Tracer, "warmup",
			tracing.KeyRound.Int(round),
			tracing.KeyWorkers.Int(d.opt.WarmupWorkers),
		)
		err := d.orch.Warmup(spanCtx, wl, d.opt.WarmupWorkers, d.opt.WarmupDuration)
		tracing.EndSpan(span, err)
		if err != nil {
			d.drain(log)
			return &PhaseError{Phase: PhaseWarmup, Round: round, Err: err}
		}
	}
	log.Info("Warm-up complete")
	return nil
}

func (d *Driver) level(ctx context.Context, wl workload.Workload, level int, log logrus.FieldLogger) (stats metrics.LevelStats, err error) {
	log.Infof("Testing with %d workers", level)
	ctx, span := tracing.StartPhaseSpan(ctx, d.opt.Tracer, "level",
		tracing.KeyWorkers.Int(level),
	)
	defer func() { tracing.EndSpan(span, err) }()

	rounds := make([]metrics.RoundStats, 0, d.opt.TestRounds)
	for round := 1; round <= d.opt.TestRounds; round++ {
		rs, err := d.round(ctx, wl, level, round, log)
		if err != nil {
			d.drain(log)
			return metrics.LevelStats{}, &PhaseError{Phase: PhaseMeasure, Level: level, Round: round, Err: err}
		}
		rounds = append(rounds, rs)
	}
	return metrics.SummarizeLevel(level, rounds), nil
}

func (d *Driver) round(ctx context.Context, wl workload.Workload, level, round int, log logrus.FieldLogger) (stats metrics.RoundStats, err error) {
	ctx, span := tracing.StartPhaseSpan(ctx, d.opt.Tracer, "round",
		tracing.KeyWorkers.Int(level),
		tracing.KeyRound.Int(round),
	)
	defer func() {
		tracing.EndSpan(span, err,
			tracing.KeyRequests.Int64(stats.Requests),
			tracing.KeyFailures.Int64(stats.Failures),
		)
	}()

	d.opt.Observer.PhaseStarted(PhaseMeasure, level, round)
	set, err := d.orch.runRound(ctx, wl, level, d.opt.TestDuration, func(set *metrics.ResultSet, index int, elapsed time.Duration) {
		info := BucketInfo{Level: level, Round: round, Index: index, Elapsed: elapsed}
		if prev := set.Bucket(index - 1); prev != nil {
			bs := metrics.SummarizeBucket(index-1, prev, level, d.opt.Scaling)
			info.Previous = &bs
		}
		d.opt.Observer.BucketOpened(info)
	})
	if err != nil {
		return metrics.RoundStats{}, err
	}

	stats = metrics.Summarize(set, d.opt.Scaling)
	stats.ID = ulid.Make().String()
	stats.Level = level
	stats.Round = round

	log.WithFields(logrus.Fields{
		"workers":  level,
		"round":    round,
		"requests": stats.Requests,
		"rps":      stats.Throughput.Avg,
		"failures": stats.Failures,
	}).Info("Round complete")
	d.opt.Observer.RoundCompleted(stats)
	return stats, nil
}

// drain gives workers of an aborted round GracefulShutdown to finish before
// the workload is closed under them.
func (d *Driver) drain(log logrus.FieldLogger) {
	ctx, cancel := context.WithTimeout(context.Background(), d.opt.GracefulShutdown)
	defer cancel()
	if err := d.orch.Drain(ctx); err != nil {
		log.WithError(err).Warn("Workers still running at shutdown")
	}
}

func (d *Driver) setState(s State) {
	d.state.Store(int32(s))
}
