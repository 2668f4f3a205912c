package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lastrix/perftester/internal/metrics"
	"github.com/lastrix/perftester/internal/threshold"
)

// OutputFormat selects how reports are printed.
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
	OutputYAML OutputFormat = "yaml"
)

const (
	highWorkerWarning = 500
	highRateWarning   = 1000
)

// Config is the full set of settings for one session. It is built once by
// Loader and passed down.
type Config struct {
	Workload         string        `mapstructure:"workload"`
	MinWorkers       int           `mapstructure:"min_workers"`
	MaxWorkers       int           `mapstructure:"max_workers"`
	WarmupRounds     int           `mapstructure:"warmup_rounds"`
	WarmupDuration   time.Duration `mapstructure:"warmup_duration"`
	WarmupWorkers    int           `mapstructure:"warmup_workers"`
	TestRounds       int           `mapstructure:"test_rounds"`
	TestDuration     time.Duration `mapstructure:"test_duration"`
	SampleInterval   time.Duration `mapstructure:"sample_interval"`
	BucketScaling    string        `mapstructure:"bucket_scaling"`
	GracefulShutdown time.Duration `mapstructure:"graceful_shutdown"`
	Rate             int           `mapstructure:"rate"`
	Retries          int           `mapstructure:"retries"`
	Output           OutputFormat  `mapstructure:"output"`
	OutputFile       string        `mapstructure:"output_file"`
	Dashboard        bool          `mapstructure:"dashboard"`
	LogLevel         string        `mapstructure:"log_level"`
	LogFormat        string        `mapstructure:"log_format"`
	Thresholds       []string      `mapstructure:"thresholds"`
	Tracing          TracingConfig `mapstructure:"tracing"`
	ConfigFile       string        `mapstructure:"-"`

	// Workload settings, interpreted by the selected workload.
	Target   string            `mapstructure:"target"`
	Method   string            `mapstructure:"method"`
	Headers  map[string]string `mapstructure:"headers"`
	Body     string            `mapstructure:"body"`
	BodyFile string            `mapstructure:"body_file"`
	Timeout  time.Duration     `mapstructure:"timeout"`
	Expect   string            `mapstructure:"expect"`
	Delay    time.Duration     `mapstructure:"delay"`
	Jitter   time.Duration     `mapstructure:"jitter"`
}

// TracingConfig configures OTLP trace export.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   *bool   `mapstructure:"propagate"` // nil means propagate when enabled
}

// Enabled reports whether an exporter endpoint is configured.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != ""
}

// ShouldPropagate reports whether trace context should be injected into
// outgoing requests.
func (t TracingConfig) ShouldPropagate() bool {
	if !t.Enabled() {
		return false
	}
	if t.Propagate == nil {
		return true
	}
	return *t.Propagate
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		MinWorkers:       1,
		MaxWorkers:       4,
		WarmupRounds:     1,
		WarmupDuration:   time.Minute,
		WarmupWorkers:    1,
		TestRounds:       1,
		TestDuration:     time.Minute,
		SampleInterval:   time.Second,
		BucketScaling:    string(metrics.ScaleConfigured),
		GracefulShutdown: 5 * time.Second,
		Output:           OutputText,
		LogLevel:         "info",
		LogFormat:        "text",
		Method:           "GET",
		Headers:          map[string]string{},
		Timeout:          30 * time.Second,
		Delay:            100 * time.Millisecond,
		Tracing: TracingConfig{
			Protocol:   "grpc",
			SampleRate: 1.0,
		},
	}
}

// ValidationError collects every configuration problem found by Validate.
type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// Validate checks the configuration and returns a ValidationError listing
// every problem.
func (c Config) Validate() error {
	var issues []string

	if strings.TrimSpace(c.Workload) == "" {
		issues = append(issues, "workload name is required (use --help for usage information)")
	}
	if c.MinWorkers < 1 {
		issues = append(issues, "min-workers must be >= 1")
	}
	if c.MaxWorkers < c.MinWorkers {
		issues = append(issues, fmt.Sprintf("max-workers (%d) must be >= min-workers (%d)", c.MaxWorkers, c.MinWorkers))
	}
	if c.WarmupRounds < 0 {
		issues = append(issues, "warmup-rounds must be >= 0")
	}
	if c.WarmupRounds > 0 && c.WarmupDuration <= 0 {
		issues = append(issues, "warmup-duration must be > 0 when warm-up rounds are configured")
	}
	if c.WarmupWorkers < 1 {
		issues = append(issues, "warmup-workers must be >= 1")
	}
	if c.TestRounds < 1 {
		issues = append(issues, "test-rounds must be >= 1")
	}
	if c.TestDuration <= 0 {
		issues = append(issues, "test-duration must be > 0")
	}
	if c.SampleInterval <= 0 {
		issues = append(issues, "sample-interval must be > 0")
	}
	if _, err := metrics.ParseBucketScaling(c.BucketScaling); err != nil {
		issues = append(issues, err.Error())
	}
	if c.GracefulShutdown <= 0 {
		issues = append(issues, "graceful-shutdown must be > 0")
	}
	if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	if c.Retries < 0 {
		issues = append(issues, "retries must be >= 0")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be >= 0")
	}
	if c.Delay < 0 {
		issues = append(issues, "delay must be >= 0")
	}
	if c.Jitter < 0 {
		issues = append(issues, "jitter must be >= 0")
	}
	if strings.TrimSpace(c.Body) != "" && strings.TrimSpace(c.BodyFile) != "" {
		issues = append(issues, "body and body-file are mutually exclusive")
	}

	switch c.Output {
	case OutputText, OutputJSON, OutputYAML:
	default:
		issues = append(issues, fmt.Sprintf("output must be one of text, json, yaml (got %q)", c.Output))
	}
	if c.Dashboard && c.Output != OutputText {
		issues = append(issues, "dashboard requires text output")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		issues = append(issues, fmt.Sprintf("log-level: %v", err))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		issues = append(issues, fmt.Sprintf("log-format must be text or json (got %q)", c.LogFormat))
	}
	if _, err := threshold.ParseMultiple(c.Thresholds); err != nil {
		issues = append(issues, err.Error())
	}
	issues = append(issues, validateTracing(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

// Warnings returns advisory messages about settings that are valid but
// worth a second look.
func (c Config) Warnings() []string {
	var warnings []string
	if c.MaxWorkers > highWorkerWarning {
		warnings = append(warnings, fmt.Sprintf("High worker count configured (%d workers). Ensure you have authorization to test the target system.", c.MaxWorkers))
	}
	if c.Rate > highRateWarning {
		warnings = append(warnings, fmt.Sprintf("High rate limit configured (%d RPS). Ensure you have authorization to test the target system.", c.Rate))
	}
	if c.Tracing.Enabled() && c.Tracing.Insecure {
		warnings = append(warnings, "Trace export uses an insecure connection.")
	}
	return warnings
}

func validateTracing(t TracingConfig) []string {
	if !t.Enabled() {
		return nil
	}
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing protocol must be grpc or http (got %q)", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing sample-rate must be between 0.0 and 1.0 (got %g)", t.SampleRate))
	}
	return issues
}
