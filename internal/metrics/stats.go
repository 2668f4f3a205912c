package metrics

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// BucketScaling selects the multiplier applied to a bucket's per-worker
// average throughput.
type BucketScaling string

const (
	// ScaleConfigured scales by the worker count the round was started with.
	ScaleConfigured BucketScaling = "configured"
	// ScaleActive scales by the workers that reported into the bucket.
	ScaleActive BucketScaling = "active"
)

// ParseBucketScaling converts a configuration value into a BucketScaling.
// The empty string selects ScaleConfigured.
func ParseBucketScaling(s string) (BucketScaling, error) {
	switch BucketScaling(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScaleConfigured:
		return ScaleConfigured, nil
	case ScaleActive:
		return ScaleActive, nil
	default:
		return "", fmt.Errorf("unknown bucket scaling %q (use %q or %q)", s, ScaleConfigured, ScaleActive)
	}
}

// ThroughputRange holds aggregate requests-per-second figures.
type ThroughputRange struct {
	Min int64 `json:"min" yaml:"min"`
	Avg int64 `json:"avg" yaml:"avg"`
	Max int64 `json:"max" yaml:"max"`
}

// LatencyRange holds mean-latency figures in milliseconds.
type LatencyRange struct {
	Min float64 `json:"min_ms" yaml:"min_ms"`
	Avg float64 `json:"avg_ms" yaml:"avg_ms"`
	Max float64 `json:"max_ms" yaml:"max_ms"`
}

// BucketStats is the reduced figure of a single interval bucket.
type BucketStats struct {
	Index      int     `json:"index" yaml:"index"`
	Reporters  int     `json:"reporters" yaml:"reporters"`
	Throughput int64   `json:"throughput" yaml:"throughput"`
	Latency    float64 `json:"latency_ms" yaml:"latency_ms"`
}

// PerSecondStats summarises the interval buckets of a round.
type PerSecondStats struct {
	Buckets          int             `json:"buckets" yaml:"buckets"`
	Throughput       ThroughputRange `json:"throughput" yaml:"throughput"`
	Latency          LatencyRange    `json:"latency" yaml:"latency"`
	ThroughputSeries []int64         `json:"throughput_series" yaml:"throughput_series"`
	LatencySeries    []float64       `json:"latency_series" yaml:"latency_series"`
}

// RoundStats is the reduced form of one round's ResultSet.
type RoundStats struct {
	ID           string          `json:"id,omitempty" yaml:"id,omitempty"`
	Level        int             `json:"level" yaml:"level"`
	Round        int             `json:"round" yaml:"round"`
	Workers      int             `json:"workers" yaml:"workers"`
	Results      int             `json:"results" yaml:"results"`
	Requests     int64           `json:"requests" yaml:"requests"`
	Elapsed      time.Duration   `json:"-" yaml:"-"`
	ElapsedMs    float64         `json:"elapsed_ms" yaml:"elapsed_ms"`
	Throughput   ThroughputRange `json:"throughput" yaml:"throughput"`
	Latency      LatencyRange    `json:"latency" yaml:"latency"`
	P50LatencyMs float64         `json:"p50_latency_ms" yaml:"p50_latency_ms"`
	P90LatencyMs float64         `json:"p90_latency_ms" yaml:"p90_latency_ms"`
	P99LatencyMs float64         `json:"p99_latency_ms" yaml:"p99_latency_ms"`
	PerSecond    PerSecondStats  `json:"per_second" yaml:"per_second"`
	Failures     int64           `json:"failures" yaml:"failures"`
	Errors       map[string]int  `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// LevelStats combines the rounds run at one concurrency level.
type LevelStats struct {
	Level               int             `json:"level" yaml:"level"`
	Rounds              []RoundStats    `json:"rounds" yaml:"rounds"`
	Requests            int64           `json:"requests" yaml:"requests"`
	Throughput          ThroughputRange `json:"throughput" yaml:"throughput"`
	Latency             LatencyRange    `json:"latency" yaml:"latency"`
	PerSecondThroughput ThroughputRange `json:"per_second_throughput" yaml:"per_second_throughput"`
	PerSecondLatency    LatencyRange    `json:"per_second_latency" yaml:"per_second_latency"`
	P50LatencyMs        float64         `json:"p50_latency_ms" yaml:"p50_latency_ms"`
	P90LatencyMs        float64         `json:"p90_latency_ms" yaml:"p90_latency_ms"`
	P99LatencyMs        float64         `json:"p99_latency_ms" yaml:"p99_latency_ms"`
	Failures            int64           `json:"failures" yaml:"failures"`
}

// Summarize reduces a ResultSet. Whole-round throughput is the per-worker
// figure multiplied by the configured worker count; latency is per call.
func Summarize(set *ResultSet, scaling BucketScaling) RoundStats {
	workers := set.Workers()
	results := set.Results()

	stats := RoundStats{
		Workers:  workers,
		Results:  len(results),
		Failures: set.Failures(),
		Errors:   set.ErrorBreakdown(),
		Elapsed:  set.Elapsed(),
	}
	stats.ElapsedMs = durationMs(stats.Elapsed)

	rps := make([]int64, len(results))
	rt := make([]float64, len(results))
	for i, r := range results {
		stats.Requests += r.Count
		rps[i] = r.Throughput()
		rt[i] = r.MeanLatency()
	}
	stats.Throughput = scaleRange(int64Range(rps), int64(workers))
	stats.Latency = floatRange(rt)

	p := set.percentiles()
	stats.P50LatencyMs = p.p50
	stats.P90LatencyMs = p.p90
	stats.P99LatencyMs = p.p99

	stats.PerSecond = summarizeBuckets(set.Buckets(), workers, scaling)
	return stats
}

// SummarizeBucket reduces a single bucket.
func SummarizeBucket(index int, b *Bucket, workers int, scaling BucketScaling) BucketStats {
	samples := b.Samples()
	out := BucketStats{Index: index, Reporters: distinctWorkers(samples)}
	if len(samples) == 0 {
		return out
	}
	var rpsSum int64
	var rtSum float64
	for _, s := range samples {
		rpsSum += s.Throughput()
		rtSum += s.MeanLatency()
	}
	perWorker := int64(float64(rpsSum) / float64(len(samples)))
	out.Latency = rtSum / float64(len(samples))

	scale := int64(workers)
	if scaling == ScaleActive {
		scale = int64(out.Reporters)
	}
	out.Throughput = perWorker * scale
	return out
}

func summarizeBuckets(buckets []*Bucket, workers int, scaling BucketScaling) PerSecondStats {
	ps := PerSecondStats{
		Buckets:          len(buckets),
		ThroughputSeries: make([]int64, len(buckets)),
		LatencySeries:    make([]float64, len(buckets)),
	}
	for i, b := range buckets {
		bs := SummarizeBucket(i, b, workers, scaling)
		ps.ThroughputSeries[i] = bs.Throughput
		ps.LatencySeries[i] = bs.Latency
	}
	ps.Throughput = int64Range(ps.ThroughputSeries)
	ps.Latency = floatRange(ps.LatencySeries)
	return ps
}

// SummarizeLevel combines round figures: throughput and latency ranges are
// taken over each round's average, per-second ranges over each round's
// per-second range, and percentiles report the worst round.
func SummarizeLevel(level int, rounds []RoundStats) LevelStats {
	ls := LevelStats{Level: level, Rounds: rounds}
	if len(rounds) == 0 {
		return ls
	}

	avgRps := make([]int64, len(rounds))
	avgRt := make([]float64, len(rounds))
	ps := ThroughputRange{Min: math.MaxInt64}
	pl := LatencyRange{Min: math.Inf(1)}
	var psSum int64
	var plSum float64
	for i, r := range rounds {
		avgRps[i] = r.Throughput.Avg
		avgRt[i] = r.Latency.Avg
		ls.Requests += r.Requests
		ls.Failures += r.Failures

		ps.Min = min(ps.Min, r.PerSecond.Throughput.Min)
		ps.Max = max(ps.Max, r.PerSecond.Throughput.Max)
		psSum += r.PerSecond.Throughput.Avg
		pl.Min = math.Min(pl.Min, r.PerSecond.Latency.Min)
		pl.Max = math.Max(pl.Max, r.PerSecond.Latency.Max)
		plSum += r.PerSecond.Latency.Avg

		ls.P50LatencyMs = math.Max(ls.P50LatencyMs, r.P50LatencyMs)
		ls.P90LatencyMs = math.Max(ls.P90LatencyMs, r.P90LatencyMs)
		ls.P99LatencyMs = math.Max(ls.P99LatencyMs, r.P99LatencyMs)
	}
	ps.Avg = psSum / int64(len(rounds))
	pl.Avg = plSum / float64(len(rounds))

	ls.Throughput = int64Range(avgRps)
	ls.Latency = floatRange(avgRt)
	ls.PerSecondThroughput = ps
	ls.PerSecondLatency = pl
	return ls
}

func distinctWorkers(samples []Sample) int {
	seen := make(map[int]struct{}, len(samples))
	for _, s := range samples {
		seen[s.Worker] = struct{}{}
	}
	return len(seen)
}

func int64Range(values []int64) ThroughputRange {
	if len(values) == 0 {
		return ThroughputRange{}
	}
	r := ThroughputRange{Min: values[0], Max: values[0]}
	var sum float64
	for _, v := range values {
		r.Min = min(r.Min, v)
		r.Max = max(r.Max, v)
		sum += float64(v)
	}
	r.Avg = int64(sum / float64(len(values)))
	return r
}

func floatRange(values []float64) LatencyRange {
	if len(values) == 0 {
		return LatencyRange{}
	}
	r := LatencyRange{Min: values[0], Max: values[0]}
	var sum float64
	for _, v := range values {
		r.Min = math.Min(r.Min, v)
		r.Max = math.Max(r.Max, v)
		sum += v
	}
	r.Avg = sum / float64(len(values))
	return r
}

func scaleRange(r ThroughputRange, factor int64) ThroughputRange {
	return ThroughputRange{Min: r.Min * factor, Avg: r.Avg * factor, Max: r.Max * factor}
}
