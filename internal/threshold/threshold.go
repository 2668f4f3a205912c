// Package threshold evaluates pass/fail assertions against per-level stats.
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/lastrix/perftester/internal/metrics"
)

var thresholdPattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

// aggregates lists the aggregates each metric supports.
var aggregates = map[string][]string{
	"throughput":        {"min", "avg", "max"},
	"latency":           {"min", "avg", "max", "p50", "p90", "p99"},
	"second_throughput": {"min", "avg", "max"},
	"second_latency":    {"min", "avg", "max"},
	"failures":          {"count", "rate"},
	"requests":          {"count"},
}

var operators = []string{"<", "<=", ">", ">=", "=="}

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // e.g. "throughput", "latency"
	Aggregate string  // e.g. "avg", "p99", "count"
	Operator  string  // "<", "<=", ">", ">=", "=="
	Value     float64 // right-hand side
	Raw       string  // original expression for display
}

// Result is the outcome of one threshold at one concurrency level.
type Result struct {
	Threshold Threshold `json:"-" yaml:"-"`
	Expr      string    `json:"threshold" yaml:"threshold"`
	Level     int       `json:"level" yaml:"level"`
	Actual    float64   `json:"actual" yaml:"actual"`
	Pass      bool      `json:"pass" yaml:"pass"`
	Message   string    `json:"message" yaml:"message"`
}

// Evaluator evaluates thresholds against level stats.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{thresholds: thresholds}
}

// Evaluate checks every threshold against one level.
func (e *Evaluator) Evaluate(stats metrics.LevelStats) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}
	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, evaluateOne(t, stats))
	}
	return results
}

// EvaluateAll checks every threshold against every level, in level order.
func (e *Evaluator) EvaluateAll(levels []metrics.LevelStats) []Result {
	var results []Result
	for _, level := range levels {
		results = append(results, e.Evaluate(level)...)
	}
	return results
}

// Passed reports whether every result passed.
func Passed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func evaluateOne(t Threshold, stats metrics.LevelStats) Result {
	result := Result{Threshold: t, Expr: t.Raw, Level: stats.Level}
	actual, err := extractMetricValue(t, stats)
	if err != nil {
		result.Message = fmt.Sprintf("error: %v", err)
		return result
	}

	result.Actual = actual
	result.Pass = compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !result.Pass {
		status = "✗"
	}
	result.Message = fmt.Sprintf("%s [%d workers] %s: %.2f %s %.2f", status, stats.Level, t.Raw, actual, t.Operator, t.Value)
	return result
}

// Parse parses an expression of the form "metric:aggregate operator value",
// for example:
//   - "throughput:avg > 100"        (aggregate req/s)
//   - "latency:p99 < 250"           (ms)
//   - "second_throughput:min >= 50" (req/s in the slowest second)
//   - "failures:count == 0"
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected metric:aggregate operator value, e.g. 'latency:p99 < 250')", s)
	}
	metric, aggregate, operator, valueStr := matches[1], matches[2], matches[3], matches[4]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	supported, ok := aggregates[metric]
	if !ok {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: %s)", metric, strings.Join(metricNames(), ", "))
	}
	if !slices.Contains(supported, aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", aggregate, metric, strings.Join(supported, ", "))
	}
	if !slices.Contains(operators, operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: %s)", operator, strings.Join(operators, ", "))
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings, reporting every bad one.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var problems []string
	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			problems = append(problems, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(problems, "; "))
	}
	return result, nil
}

func metricNames() []string {
	names := make([]string, 0, len(aggregates))
	for name := range aggregates {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func extractMetricValue(t Threshold, stats metrics.LevelStats) (float64, error) {
	switch t.Metric {
	case "throughput":
		return throughputValue(t.Aggregate, stats.Throughput)
	case "second_throughput":
		return throughputValue(t.Aggregate, stats.PerSecondThroughput)
	case "latency":
		switch t.Aggregate {
		case "p50":
			return stats.P50LatencyMs, nil
		case "p90":
			return stats.P90LatencyMs, nil
		case "p99":
			return stats.P99LatencyMs, nil
		}
		return latencyValue(t.Aggregate, stats.Latency)
	case "second_latency":
		return latencyValue(t.Aggregate, stats.PerSecondLatency)
	case "failures":
		if t.Aggregate == "rate" {
			total := stats.Requests + stats.Failures
			if total == 0 {
				return 0, nil
			}
			return float64(stats.Failures) / float64(total), nil
		}
		return float64(stats.Failures), nil
	case "requests":
		return float64(stats.Requests), nil
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

func throughputValue(aggregate string, r metrics.ThroughputRange) (float64, error) {
	switch aggregate {
	case "min":
		return float64(r.Min), nil
	case "avg":
		return float64(r.Avg), nil
	case "max":
		return float64(r.Max), nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for throughput", aggregate)
	}
}

func latencyValue(aggregate string, r metrics.LatencyRange) (float64, error) {
	switch aggregate {
	case "min":
		return r.Min, nil
	case "avg":
		return r.Avg, nil
	case "max":
		return r.Max, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for latency", aggregate)
	}
}

func compareValues(actual float64, operator string, expected float64) bool {
	const epsilon = 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
