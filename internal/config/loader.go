package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "PERFTESTER"

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// envKeys are the settings that can be supplied as PERFTESTER_<KEY>.
var envKeys = []string{
	"workload",
	"min_workers", "max_workers",
	"warmup_rounds", "warmup_duration", "warmup_workers",
	"test_rounds", "test_duration",
	"sample_interval", "bucket_scaling", "graceful_shutdown",
	"rate", "retries",
	"output", "output_file", "dashboard",
	"log_level", "log_format", "thresholds",
	"target", "method", "body", "body_file", "timeout", "expect", "delay", "jitter",
	"tracing.protocol", "tracing.service_name", "tracing.sample_rate",
	"tracing.insecure", "tracing.propagate",
}

// Loader builds a Config. Precedence, lowest first: defaults, config file,
// environment, flags.
type Loader struct{}

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments. The single positional argument names
// the workload.
func (l Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}
	fs := cmd.Flags()
	return l.FromFlags(fs, fs.Args())
}

// FromFlags builds a Config from an already parsed flag set, as registered
// by RegisterFlags, and the positional arguments.
func (Loader) FromFlags(fs *pflag.FlagSet, args []string) (*Config, error) {
	if len(args) > 1 {
		return nil, fmt.Errorf("expected a single workload name, got %d arguments", len(args))
	}

	configPath, err := fs.GetString("config")
	if err != nil {
		return nil, err
	}

	v, err := newViper(configPath)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	cfg.ConfigFile = configPath
	if err := applyConfigSettings(&cfg, v.AllSettings()); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(&cfg, fs); err != nil {
		return nil, err
	}
	if len(args) == 1 {
		cfg.Workload = strings.TrimSpace(args[0])
	}

	cfg.Method = strings.ToUpper(strings.TrimSpace(cfg.Method))
	cfg.Output = OutputFormat(strings.ToLower(string(cfg.Output)))
	cfg.BucketScaling = strings.ToLower(strings.TrimSpace(cfg.BucketScaling))
	if cfg.Headers == nil {
		cfg.Headers = map[string]string{}
	}
	return &cfg, nil
}

func newViper(configPath string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}
	if err := v.BindEnv("tracing.endpoint", envPrefix+"_TRACING_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"); err != nil {
		return nil, err
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", configPath, err)
		}
	}
	return v, nil
}

// applyConfigSettings applies file and environment settings to cfg. Keys are
// matched in snake_case, camelCase, or kebab-case.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"min_workers", &cfg.MinWorkers},
		{"max_workers", &cfg.MaxWorkers},
		{"warmup_rounds", &cfg.WarmupRounds},
		{"warmup_workers", &cfg.WarmupWorkers},
		{"test_rounds", &cfg.TestRounds},
		{"rate", &cfg.Rate},
		{"retries", &cfg.Retries},
	}
	for _, s := range ints {
		raw, ok := lookupSetting(settings, keyVariants(s.key)...)
		if !ok {
			continue
		}
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", s.key, err)
		}
		*s.dst = val
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"warmup_duration", &cfg.WarmupDuration},
		{"test_duration", &cfg.TestDuration},
		{"sample_interval", &cfg.SampleInterval},
		{"graceful_shutdown", &cfg.GracefulShutdown},
		{"timeout", &cfg.Timeout},
		{"delay", &cfg.Delay},
		{"jitter", &cfg.Jitter},
	}
	for _, s := range durations {
		raw, ok := lookupSetting(settings, keyVariants(s.key)...)
		if !ok {
			continue
		}
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", s.key, err)
		}
		*s.dst = val
	}

	strs := []struct {
		key string
		dst *string
	}{
		{"workload", &cfg.Workload},
		{"bucket_scaling", &cfg.BucketScaling},
		{"output_file", &cfg.OutputFile},
		{"log_level", &cfg.LogLevel},
		{"log_format", &cfg.LogFormat},
		{"target", &cfg.Target},
		{"method", &cfg.Method},
		{"body", &cfg.Body},
		{"body_file", &cfg.BodyFile},
		{"expect", &cfg.Expect},
	}
	for _, s := range strs {
		raw, ok := lookupSetting(settings, keyVariants(s.key)...)
		if !ok {
			continue
		}
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", s.key, err)
		}
		if s.dst != &cfg.Body {
			val = strings.TrimSpace(val)
		}
		*s.dst = val
	}

	if raw, ok := lookupSetting(settings, "output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		cfg.Output = OutputFormat(strings.TrimSpace(val))
	}

	if raw, ok := lookupSetting(settings, "dashboard"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		cfg.Dashboard = val
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		vals, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = vals
	}

	if raw, ok := lookupSetting(settings, "headers"); ok {
		hdrs, err := asStringMap(raw)
		if err != nil {
			return fmt.Errorf("headers: %w", err)
		}
		for k, v := range hdrs {
			key, value, err := parseHeader(k + "=" + v)
			if err != nil {
				return fmt.Errorf("headers: %w", err)
			}
			cfg.Headers[key] = value
		}
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tracing, err := parseTracing(raw, cfg.Tracing)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tracing
	}
	return nil
}

func parseTracing(value interface{}, base TracingConfig) (TracingConfig, error) {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return base, err
	}
	cfg := base

	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return cfg, fmt.Errorf("endpoint: %w", err)
		}
		cfg.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return cfg, fmt.Errorf("protocol: %w", err)
		}
		cfg.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, keyVariants("service_name")...); ok {
		val, err := asString(raw)
		if err != nil {
			return cfg, fmt.Errorf("service_name: %w", err)
		}
		cfg.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, keyVariants("sample_rate")...); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return cfg, fmt.Errorf("sample_rate: %w", err)
		}
		cfg.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return cfg, fmt.Errorf("insecure: %w", err)
		}
		cfg.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return cfg, fmt.Errorf("propagate: %w", err)
		}
		cfg.Propagate = &val
	}
	return cfg, nil
}

// keyVariants returns the snake_case key with its camelCase (as lowercased
// by viper) and kebab-case spellings.
func keyVariants(snake string) []string {
	return []string{
		snake,
		strings.ReplaceAll(snake, "_", ""),
		strings.ReplaceAll(snake, "_", "-"),
	}
}
