package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lastrix/perftester/internal/config"
	"github.com/lastrix/perftester/internal/dashboard"
	"github.com/lastrix/perftester/internal/metrics"
	"github.com/lastrix/perftester/internal/output"
	"github.com/lastrix/perftester/internal/runner"
	"github.com/lastrix/perftester/internal/threshold"
	"github.com/lastrix/perftester/internal/tracing"
	"github.com/lastrix/perftester/internal/workload"
)

const tracingShutdownTimeout = 5 * time.Second

var errThresholdsFailed = errors.New("one or more thresholds failed")

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "perftester [flags] <workload>",
		Short: "Measure throughput and latency of a workload across concurrency levels",
		Long: `perftester drives a workload from min-workers to max-workers concurrent
callers. Each level runs test-rounds rounds of test-duration and reports
aggregate and per-second throughput and latency.

Builtin workloads: ` + strings.Join(workload.DefaultRegistry().Names(), ", "),
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader().FromFlags(cmd.Flags(), args)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	config.RegisterFlags(cmd)
	return cmd
}

func run(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	log, err := newLogger(cfg, stderr)
	if err != nil {
		return err
	}
	for _, w := range cfg.Warnings() {
		log.Warn(w)
	}

	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}
	scaling, err := metrics.ParseBucketScaling(cfg.BucketScaling)
	if err != nil {
		return err
	}

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), tracingShutdownTimeout)
		defer cancel()
		if serr := tp.Shutdown(shutdownCtx); serr != nil {
			log.WithError(serr).Warn("Trace exporter shutdown failed")
		}
	}()

	wl, err := newWorkload(cfg, tp.ShouldPropagate(), log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var observers runner.Observers
	var dash *dashboard.Dashboard
	var progress *output.ProgressReporter
	switch {
	case cfg.Dashboard:
		dash, err = dashboard.New(sessionInfo(cfg), cancel)
		if err != nil {
			return err
		}
		dash.Start()
		observers = append(observers, dash)
	case cfg.Output == config.OutputText:
		progress = output.NewProgressReporter(stderr)
		observers = append(observers, output.NewTextReporter(stdout), progress)
	}

	driver := runner.NewDriver(cfg.Workload, runner.Options{
		MinWorkers:       cfg.MinWorkers,
		MaxWorkers:       cfg.MaxWorkers,
		WarmupRounds:     cfg.WarmupRounds,
		WarmupDuration:   cfg.WarmupDuration,
		WarmupWorkers:    cfg.WarmupWorkers,
		TestRounds:       cfg.TestRounds,
		TestDuration:     cfg.TestDuration,
		SampleInterval:   cfg.SampleInterval,
		Scaling:          scaling,
		GracefulShutdown: cfg.GracefulShutdown,
		Logger:           log,
		Tracer:           tp.Tracer(),
		Observer:         observers,
	})
	report, runErr := driver.Run(ctx, wl)

	if dash != nil {
		dash.Stop()
	}
	if progress != nil {
		progress.Stop()
	}
	if !hasResults(report, runErr) {
		return runErr
	}

	results := threshold.NewEvaluator(thresholds).EvaluateAll(report.Levels)
	if err := printReport(cfg, report, results, stdout, stderr); err != nil {
		return err
	}
	if cfg.OutputFile != "" {
		if err := output.WriteReportFile(cfg.OutputFile, string(cfg.Output), report); err != nil {
			return err
		}
		log.WithField("path", cfg.OutputFile).Info("Report written")
	}

	if runErr != nil {
		return runErr
	}
	if !threshold.Passed(results) {
		return errThresholdsFailed
	}
	return nil
}

// hasResults reports whether a session got far enough to produce a report.
// A failed Init leaves nothing to print or write.
func hasResults(report *runner.Report, runErr error) bool {
	if report == nil {
		return false
	}
	var phaseErr *runner.PhaseError
	return !errors.As(runErr, &phaseErr) || phaseErr.Phase != runner.PhaseInit
}

// printReport writes the end-of-session output. Plain text mode has already
// printed every round as it completed.
func printReport(cfg *config.Config, report *runner.Report, results []threshold.Result, stdout, stderr io.Writer) error {
	switch {
	case cfg.Output != config.OutputText:
		if err := output.Encode(stdout, string(cfg.Output), report); err != nil {
			return err
		}
		output.PrintThresholds(stderr, results)
		return nil
	case cfg.Dashboard:
		output.PrintReport(stdout, report)
	}
	output.PrintThresholds(stdout, results)
	return nil
}

func newWorkload(cfg *config.Config, propagate bool, log logrus.FieldLogger) (workload.Workload, error) {
	wl, err := workload.DefaultRegistry().New(cfg.Workload, workload.Settings{
		Target:         cfg.Target,
		Method:         cfg.Method,
		Headers:        cfg.Headers,
		Body:           cfg.Body,
		BodyFile:       cfg.BodyFile,
		Timeout:        cfg.Timeout,
		Expect:         cfg.Expect,
		Delay:          cfg.Delay,
		Jitter:         cfg.Jitter,
		MaxWorkers:     max(cfg.MaxWorkers, cfg.WarmupWorkers),
		PropagateTrace: propagate,
		Logger:         log.WithField("workload", cfg.Workload),
	})
	if err != nil {
		return nil, err
	}
	wl = workload.WithRetry(wl, workload.NewRetryPolicy(cfg.Retries))
	wl = workload.WithRateLimit(wl, cfg.Rate)
	return wl, nil
}

func newLogger(cfg *config.Config, out io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(level)
	if cfg.LogFormat == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if cfg.Dashboard {
		// The dashboard owns the terminal.
		log.SetOutput(io.Discard)
	}
	return log, nil
}

func sessionInfo(cfg *config.Config) dashboard.SessionInfo {
	return dashboard.SessionInfo{
		Workload:     cfg.Workload,
		MinWorkers:   cfg.MinWorkers,
		MaxWorkers:   cfg.MaxWorkers,
		WarmupRounds: cfg.WarmupRounds,
		TestRounds:   cfg.TestRounds,
		TestDuration: cfg.TestDuration,
		Rate:         cfg.Rate,
		Scaling:      cfg.BucketScaling,
		ConfigFile:   cfg.ConfigFile,
	}
}
