// Package output renders session results as text, JSON, or YAML, prints the
// live progress line, and writes report files.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/lastrix/perftester/internal/metrics"
	"github.com/lastrix/perftester/internal/runner"
	"github.com/lastrix/perftester/internal/threshold"
)

// Format names accepted by Encode and WriteReportFile.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// PrintRound outputs the human-readable block for one measured round.
func PrintRound(w io.Writer, r metrics.RoundStats) {
	fmt.Fprintf(w, "\n--- %d workers, round %d ---\n", r.Level, r.Round)
	if r.ID != "" {
		fmt.Fprintf(w, "Round ID:          %s\n", r.ID)
	}
	fmt.Fprintf(w, "Requests:          %d\n", r.Requests)
	fmt.Fprintf(w, "Failures:          %d\n", r.Failures)
	fmt.Fprintf(w, "Elapsed:           %.0f ms\n", r.ElapsedMs)
	fmt.Fprintf(w, "Global:            %s\n", formatRanges(r.Throughput, r.Latency))
	fmt.Fprintf(w, "Per second (%d):   %s\n", r.PerSecond.Buckets, formatRanges(r.PerSecond.Throughput, r.PerSecond.Latency))
	fmt.Fprintf(w, "Per second rps:    %s\n", joinInts(r.PerSecond.ThroughputSeries))
	fmt.Fprintf(w, "Per second rt:     %s\n", joinFloats(r.PerSecond.LatencySeries))
	fmt.Fprintf(w, "Latency P50/90/99: %.2f / %.2f / %.2f ms\n", r.P50LatencyMs, r.P90LatencyMs, r.P99LatencyMs)
	if len(r.Errors) > 0 {
		fmt.Fprintln(w, "Failure Breakdown:")
		writeBreakdown(w, r.Errors, "  ")
	}
}

// PrintLevel outputs the summary of every round run at one concurrency level.
func PrintLevel(w io.Writer, l metrics.LevelStats) {
	fmt.Fprintf(w, "\n=== %d workers: %d rounds ===\n", l.Level, len(l.Rounds))
	fmt.Fprintf(w, "Requests:          %d\n", l.Requests)
	fmt.Fprintf(w, "Failures:          %d\n", l.Failures)
	fmt.Fprintf(w, "Global:            %s\n", formatRanges(l.Throughput, l.Latency))
	fmt.Fprintf(w, "Per second:        %s\n", formatRanges(l.PerSecondThroughput, l.PerSecondLatency))
	fmt.Fprintf(w, "Latency P50/90/99: %.2f / %.2f / %.2f ms\n", l.P50LatencyMs, l.P90LatencyMs, l.P99LatencyMs)
}

// PrintReport outputs every round and level of a finished session.
func PrintReport(w io.Writer, report *runner.Report) {
	fmt.Fprintf(w, "--- Session %s (%s) ---\n", report.SessionID, report.Workload)
	fmt.Fprintf(w, "Started:           %s\n", report.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Duration:          %.0f ms\n", report.DurationMs)
	fmt.Fprintf(w, "Bucket Scaling:    %s\n", report.Scaling)
	for _, level := range report.Levels {
		for _, round := range level.Rounds {
			PrintRound(w, round)
		}
		PrintLevel(w, level)
	}
}

// PrintThresholds outputs threshold results, one line per level and
// assertion.
func PrintThresholds(w io.Writer, results []threshold.Result) {
	if len(results) == 0 {
		return
	}
	fmt.Fprintln(w, "\nThresholds:")
	passed := 0
	for _, r := range results {
		if r.Pass {
			passed++
		}
		fmt.Fprintf(w, "  %s\n", r.Message)
	}
	fmt.Fprintf(w, "%d/%d passed\n", passed, len(results))
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, report *runner.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, report *runner.Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Close()
}

// Encode writes report in the named format.
func Encode(w io.Writer, format string, report *runner.Report) error {
	switch strings.ToLower(format) {
	case "", FormatText:
		PrintReport(w, report)
		return nil
	case FormatJSON:
		return PrintJSONReport(w, report)
	case FormatYAML:
		return PrintYAMLReport(w, report)
	default:
		return fmt.Errorf("unsupported report format %q", format)
	}
}

// TextReporter prints each round and level as it completes. It implements
// runner.Observer.
type TextReporter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTextReporter creates a reporter writing to w.
func NewTextReporter(w io.Writer) *TextReporter {
	if w == nil {
		w = io.Discard
	}
	return &TextReporter{w: w}
}

func (r *TextReporter) PhaseStarted(runner.Phase, int, int) {}

func (r *TextReporter) BucketOpened(runner.BucketInfo) {}

func (r *TextReporter) RoundCompleted(stats metrics.RoundStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	PrintRound(r.w, stats)
}

func (r *TextReporter) LevelCompleted(stats metrics.LevelStats) {
	r.mu.Lock()
	defer r.mu.Unlock()
	PrintLevel(r.w, stats)
}

func formatRanges(rps metrics.ThroughputRange, rt metrics.LatencyRange) string {
	return fmt.Sprintf("rps min/avg/max %d / %d / %d, rt min/avg/max %.2f / %.2f / %.2f ms",
		rps.Min, rps.Avg, rps.Max, rt.Min, rt.Avg, rt.Max)
}

func joinInts(values []int64) string {
	if len(values) == 0 {
		return "-"
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, ", ")
}

func joinFloats(values []float64) string {
	if len(values) == 0 {
		return "-"
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.FormatFloat(v, 'f', 2, 64)
	}
	return strings.Join(parts, ", ")
}

func writeBreakdown(w io.Writer, breakdown map[string]int, indent string) {
	names := make([]string, 0, len(breakdown))
	for name := range breakdown {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if breakdown[names[i]] != breakdown[names[j]] {
			return breakdown[names[i]] > breakdown[names[j]]
		}
		return names[i] < names[j]
	})
	for _, name := range names {
		fmt.Fprintf(w, "%s%s: %d\n", indent, name, breakdown[name])
	}
}
