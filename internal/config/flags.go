package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags on a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "perftester [flags] <workload>",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// durationValue is a pflag.Value accepting the same duration syntax as
// config files.
type durationValue time.Duration

func newDurationValue(d time.Duration) *durationValue {
	v := durationValue(d)
	return &v
}

func (d *durationValue) Set(s string) error {
	parsed, err := parseDuration(s)
	if err != nil {
		return err
	}
	*d = durationValue(parsed)
	return nil
}

func (d *durationValue) String() string { return time.Duration(*d).String() }
func (d *durationValue) Type() string   { return "duration" }

func durationFlag(flags *pflag.FlagSet, name string, value time.Duration, usage string) {
	flags.Var(newDurationValue(value), name, usage)
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	def := Default()

	// Session shape
	flags.Int("min-workers", def.MinWorkers, "First concurrency level")
	flags.Int("max-workers", def.MaxWorkers, "Last concurrency level (inclusive)")
	flags.Int("warmup-rounds", def.WarmupRounds, "Unmeasured warm-up rounds before the first level")
	durationFlag(flags, "warmup-duration", def.WarmupDuration, "Length of each warm-up round (e.g. 30s, 90, PT1M)")
	flags.Int("warmup-workers", def.WarmupWorkers, "Concurrent callers during warm-up")
	flags.Int("test-rounds", def.TestRounds, "Measured rounds per concurrency level")
	durationFlag(flags, "test-duration", def.TestDuration, "Length of each measured round (e.g. 30s, 90, PT1M)")
	durationFlag(flags, "sample-interval", def.SampleInterval, "Width of a per-second bucket")
	flags.String("bucket-scaling", def.BucketScaling, "Per-second scaling: configured or active")
	durationFlag(flags, "graceful-shutdown", def.GracefulShutdown, "Max time to wait for in-flight calls after a fatal error")
	flags.IntP("rate", "r", 0, "Cap on calls per second across all workers (0 means unlimited)")
	flags.Int("retries", 0, "Retries per failing call before it counts as a failure")

	// Output
	flags.StringP("output", "o", string(def.Output), "Report format: text, json, or yaml")
	flags.String("output-file", "", "Also write the final report to this file")
	flags.Bool("dashboard", false, "Show live terminal dashboard")
	flags.String("log-level", def.LogLevel, "Log level: trace, debug, info, warn, error")
	flags.String("log-format", def.LogFormat, "Log format: text or json")
	flags.StringArray("threshold", nil, "Pass/fail assertion, e.g. 'latency:p99 < 250' (repeatable)")
	flags.String("config", "", "Path to configuration file (YAML, JSON, or TOML)")

	// Workload settings
	flags.String("target", "", "Target URL for the http workload")
	flags.String("method", def.Method, "HTTP method for the http workload")
	flags.StringArray("header", nil, "Request header in key=value form (repeatable)")
	flags.String("body", "", "Inline request body")
	flags.String("body-file", "", "Path to file containing the request body")
	durationFlag(flags, "timeout", def.Timeout, "Per-request timeout for the http workload")
	flags.String("expect", "", "JSON path that must exist in each response, optionally path==value")
	durationFlag(flags, "delay", def.Delay, "Per-call delay for the sleep workload")
	durationFlag(flags, "jitter", 0, "Random +/- spread added to the sleep workload's delay")

	// Tracing
	flags.String("tracing-endpoint", "", "OTLP endpoint; enables tracing when set")
	flags.String("tracing-protocol", def.Tracing.Protocol, "OTLP protocol: grpc or http")
	flags.String("tracing-service-name", "", "Service name reported with spans")
	flags.Float64("tracing-sample-rate", def.Tracing.SampleRate, "Fraction of sessions to sample (0.0-1.0)")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Bool("tracing-propagate", true, "Inject W3C trace context into outgoing requests")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

func flagDuration(fs *pflag.FlagSet, name string) (time.Duration, error) {
	f := fs.Lookup(name)
	if f == nil {
		return 0, fmt.Errorf("flag %q not defined", name)
	}
	if v, ok := f.Value.(*durationValue); ok {
		return time.Duration(*v), nil
	}
	return fs.GetDuration(name)
}

// applyFlagOverrides applies explicitly set flags on top of cfg.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	ints := []struct {
		name string
		dst  *int
	}{
		{"min-workers", &cfg.MinWorkers},
		{"max-workers", &cfg.MaxWorkers},
		{"warmup-rounds", &cfg.WarmupRounds},
		{"warmup-workers", &cfg.WarmupWorkers},
		{"test-rounds", &cfg.TestRounds},
		{"rate", &cfg.Rate},
		{"retries", &cfg.Retries},
	}
	for _, f := range ints {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetInt(f.name)
		if err != nil {
			return err
		}
		*f.dst = val
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"warmup-duration", &cfg.WarmupDuration},
		{"test-duration", &cfg.TestDuration},
		{"sample-interval", &cfg.SampleInterval},
		{"graceful-shutdown", &cfg.GracefulShutdown},
		{"timeout", &cfg.Timeout},
		{"delay", &cfg.Delay},
		{"jitter", &cfg.Jitter},
	}
	for _, f := range durations {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := flagDuration(fs, f.name)
		if err != nil {
			return err
		}
		*f.dst = val
	}

	strs := []struct {
		name string
		dst  *string
	}{
		{"bucket-scaling", &cfg.BucketScaling},
		{"output-file", &cfg.OutputFile},
		{"log-level", &cfg.LogLevel},
		{"log-format", &cfg.LogFormat},
		{"target", &cfg.Target},
		{"method", &cfg.Method},
		{"expect", &cfg.Expect},
		{"tracing-endpoint", &cfg.Tracing.Endpoint},
		{"tracing-protocol", &cfg.Tracing.Protocol},
		{"tracing-service-name", &cfg.Tracing.ServiceName},
	}
	for _, f := range strs {
		if !fs.Changed(f.name) {
			continue
		}
		val, err := fs.GetString(f.name)
		if err != nil {
			return err
		}
		*f.dst = strings.TrimSpace(val)
	}

	if fs.Changed("output") {
		val, err := fs.GetString("output")
		if err != nil {
			return err
		}
		cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("body") {
		val, err := fs.GetString("body")
		if err != nil {
			return err
		}
		cfg.Body = val
		cfg.BodyFile = ""
	}
	if fs.Changed("body-file") {
		val, err := fs.GetString("body-file")
		if err != nil {
			return err
		}
		cfg.BodyFile = strings.TrimSpace(val)
		cfg.Body = ""
	}
	if fs.Changed("dashboard") {
		val, err := fs.GetBool("dashboard")
		if err != nil {
			return err
		}
		cfg.Dashboard = val
	}
	if fs.Changed("threshold") {
		vals, err := fs.GetStringArray("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = append(cfg.Thresholds, vals...)
	}
	if fs.Changed("header") {
		vals, err := fs.GetStringArray("header")
		if err != nil {
			return err
		}
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for _, entry := range vals {
			key, value, err := parseHeader(entry)
			if err != nil {
				return err
			}
			cfg.Headers[key] = value
		}
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	if fs.Changed("tracing-propagate") {
		val, err := fs.GetBool("tracing-propagate")
		if err != nil {
			return err
		}
		cfg.Tracing.Propagate = &val
	}
	return nil
}
