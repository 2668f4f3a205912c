package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lastrix/perftester/internal/config"
	"github.com/lastrix/perftester/internal/runner"
	"github.com/lastrix/perftester/internal/workload"
)

// quickArgs keeps sessions short: two levels of one 300ms round each.
var quickArgs = []string{
	"--min-workers", "1",
	"--max-workers", "2",
	"--warmup-rounds", "0",
	"--test-duration", "300ms",
	"--sample-interval", "100ms",
	"--delay", "5ms",
	"--log-level", "error",
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCommand()
	cmd.SetArgs(args)
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRunTextOutput(t *testing.T) {
	stdout, stderr, err := execute(t, append(quickArgs, "sleep")...)
	if err != nil {
		t.Fatalf("execute() error = %v\nstderr: %s", err, stderr)
	}
	for _, want := range []string{
		"--- 1 workers, round 1 ---",
		"=== 1 workers: 1 rounds ===",
		"--- 2 workers, round 1 ---",
		"=== 2 workers: 1 rounds ===",
		"Per second rps:",
	} {
		if !strings.Contains(stdout, want) {
			t.Errorf("stdout missing %q:\n%s", want, stdout)
		}
	}
	if !strings.Contains(stderr, "Workers: 1") {
		t.Errorf("expected progress line on stderr, got %q", stderr)
	}
}

func TestRunJSONOutput(t *testing.T) {
	stdout, stderr, err := execute(t, append(quickArgs, "-o", "json", "--threshold", "requests:count > 0", "sleep")...)
	if err != nil {
		t.Fatalf("execute() error = %v\nstderr: %s", err, stderr)
	}

	var report struct {
		SessionID string `json:"session_id"`
		Workload  string `json:"workload"`
		Levels    []struct {
			Level    int   `json:"level"`
			Requests int64 `json:"requests"`
			Rounds   []struct {
				Workers int `json:"workers"`
				Results int `json:"results"`
			} `json:"rounds"`
		} `json:"levels"`
	}
	if err := json.Unmarshal([]byte(stdout), &report); err != nil {
		t.Fatalf("stdout is not JSON: %v\n%s", err, stdout)
	}
	if report.SessionID == "" || report.Workload != "sleep" {
		t.Errorf("unexpected header: %+v", report)
	}
	if len(report.Levels) != 2 {
		t.Fatalf("expected 2 levels, got %d", len(report.Levels))
	}
	for i, level := range report.Levels {
		if level.Level != i+1 || level.Requests == 0 {
			t.Errorf("level %d = %+v", i, level)
		}
		if len(level.Rounds) != 1 || level.Rounds[0].Results != level.Level {
			t.Errorf("level %d rounds = %+v", level.Level, level.Rounds)
		}
	}
	if !strings.Contains(stderr, "2/2 passed") {
		t.Errorf("expected threshold summary on stderr, got %q", stderr)
	}
}

func TestRunThresholdFailure(t *testing.T) {
	_, stderr, err := execute(t, append(quickArgs, "-o", "yaml", "--threshold", "throughput:avg > 1000000", "sleep")...)
	if !errors.Is(err, errThresholdsFailed) {
		t.Fatalf("expected errThresholdsFailed, got %v", err)
	}
	if !strings.Contains(stderr, "0/2 passed") {
		t.Errorf("expected failing threshold summary, got %q", stderr)
	}
}

func TestRunWritesOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	_, stderr, err := execute(t, append(quickArgs, "-o", "json", "--output-file", path, "sleep")...)
	if err != nil {
		t.Fatalf("execute() error = %v\nstderr: %s", err, stderr)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("report file is not JSON: %v", err)
	}
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"missing workload", []string{}, "workload name is required"},
		{"unknown workload", []string{"nope"}, "unknown workload"},
		{"invalid levels", []string{"--min-workers", "3", "--max-workers", "2", "dummy"}, "max-workers (2) must be >= min-workers (3)"},
		{"http without target", append(append([]string{}, quickArgs...), "http"), "target"},
		{"too many args", []string{"dummy", "sleep"}, "accepts at most 1 arg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestRunUnknownWorkloadIsSentinel(t *testing.T) {
	_, _, err := execute(t, "nope")
	if !errors.Is(err, workload.ErrUnknownWorkload) {
		t.Fatalf("expected ErrUnknownWorkload, got %v", err)
	}
}

type failingInit struct{}

func (failingInit) Init(context.Context) error { return errors.New("no connection") }
func (failingInit) Next(context.Context) error { return nil }
func (failingInit) Close() error               { return nil }

func TestHasResults(t *testing.T) {
	driver := runner.NewDriver("broken", runner.Options{TestDuration: 10 * time.Millisecond})
	report, err := driver.Run(context.Background(), failingInit{})
	if err == nil {
		t.Fatal("expected init failure")
	}
	if hasResults(report, err) {
		t.Error("a session whose Init failed must not produce a report")
	}

	driver = runner.NewDriver("ok", runner.Options{TestDuration: 10 * time.Millisecond})
	report, err = driver.Run(context.Background(), &quickWorkload{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !hasResults(report, nil) {
		t.Error("a completed session must produce a report")
	}

	measureErr := &runner.PhaseError{Phase: runner.PhaseMeasure, Level: 1, Round: 1, Err: runner.ErrInterrupted}
	if !hasResults(&runner.Report{}, measureErr) {
		t.Error("a session interrupted while measuring keeps its partial report")
	}
	if hasResults(nil, nil) {
		t.Error("nil report must not be printed")
	}
}

type quickWorkload struct{}

func (*quickWorkload) Init(context.Context) error { return nil }
func (*quickWorkload) Next(context.Context) error {
	time.Sleep(time.Millisecond)
	return nil
}
func (*quickWorkload) Close() error { return nil }

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Default()
	cfg.LogLevel = "debug"
	cfg.LogFormat = "json"

	log, err := newLogger(&cfg, &buf)
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	if log.GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %s, want debug", log.GetLevel())
	}
	log.WithField("worker", 3).Debug("hello")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log line, got %q", buf.String())
	}
	if entry["msg"] != "hello" || entry["worker"] != float64(3) {
		t.Errorf("entry = %v", entry)
	}

	cfg.LogLevel = "chatty"
	if _, err := newLogger(&cfg, &buf); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestSessionInfo(t *testing.T) {
	cfg := config.Default()
	cfg.Workload = "dummy"
	cfg.Rate = 10
	info := sessionInfo(&cfg)
	if info.Workload != "dummy" || info.MaxWorkers != cfg.MaxWorkers || info.Rate != 10 || info.Scaling != "configured" {
		t.Errorf("sessionInfo() = %+v", info)
	}
}
