package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	lowestLatencyUs  = 1
	highestLatencyUs = 60_000_000
	latencySigFigs   = 3
)

// Bucket holds the interval samples workers flushed while it was the most
// recently opened bucket.
type Bucket struct {
	mu      sync.Mutex
	samples []Sample
}

func (b *Bucket) add(s Sample) {
	b.mu.Lock()
	b.samples = append(b.samples, s)
	b.mu.Unlock()
}

// Samples returns a copy of the bucket's samples.
func (b *Bucket) Samples() []Sample {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Sample(nil), b.samples...)
}

// ResultSet accumulates the samples of one round. It is append-only.
type ResultSet struct {
	mu           sync.Mutex
	workers      int
	results      []Sample
	buckets      []*Bucket
	hist         *hdrhistogram.Histogram
	failures     int64
	errorsByKind map[string]int64
	started      time.Time
	finished     time.Time
}

// NewResultSet creates an empty set for a round with the given worker count.
func NewResultSet(workers int) *ResultSet {
	return &ResultSet{
		workers:      workers,
		results:      make([]Sample, 0, workers),
		hist:         NewLatencyHistogram(),
		errorsByKind: make(map[string]int64),
		started:      time.Now(),
	}
}

// NewLatencyHistogram returns a histogram tracking call latencies from 1µs up
// to 60s with 3 significant figures. Workers keep one each and merge it into
// the set when they stop.
func NewLatencyHistogram() *hdrhistogram.Histogram {
	return hdrhistogram.New(lowestLatencyUs, highestLatencyUs, latencySigFigs)
}

// RecordLatency records a call latency into h, clamped to the trackable range.
func RecordLatency(h *hdrhistogram.Histogram, latency time.Duration) {
	us := latency.Microseconds()
	if us < h.LowestTrackableValue() {
		us = h.LowestTrackableValue()
	}
	if us > h.HighestTrackableValue() {
		us = h.HighestTrackableValue()
	}
	_ = h.RecordValue(us)
}

// Workers returns the configured worker count of the round.
func (s *ResultSet) Workers() int {
	return s.workers
}

// AddResult appends a worker's full-round sample.
func (s *ResultSet) AddResult(sample Sample) {
	s.mu.Lock()
	s.results = append(s.results, sample)
	s.mu.Unlock()
}

// OpenBucket starts a new interval bucket and returns its index.
func (s *ResultSet) OpenBucket() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets = append(s.buckets, &Bucket{})
	return len(s.buckets) - 1
}

// AddIntervalSample appends a sample to the most recently opened bucket.
// It reports false when no bucket has been opened yet.
func (s *ResultSet) AddIntervalSample(sample Sample) bool {
	s.mu.Lock()
	if len(s.buckets) == 0 {
		s.mu.Unlock()
		return false
	}
	b := s.buckets[len(s.buckets)-1]
	s.mu.Unlock()
	b.add(sample)
	return true
}

// RecordFailure counts a failed call under its ClassifyError label.
func (s *ResultSet) RecordFailure(err error) {
	if err == nil {
		return
	}
	kind := ClassifyError(err)
	s.mu.Lock()
	s.failures++
	s.errorsByKind[kind]++
	s.mu.Unlock()
}

// MergeLatencies folds a worker's latency histogram into the set.
func (s *ResultSet) MergeLatencies(h *hdrhistogram.Histogram) {
	if h == nil {
		return
	}
	s.mu.Lock()
	s.hist.Merge(h)
	s.mu.Unlock()
}

// MarkFinished records the moment the round reached quiescence.
func (s *ResultSet) MarkFinished() {
	s.mu.Lock()
	s.finished = time.Now()
	s.mu.Unlock()
}

// Results returns a copy of the full-round samples.
func (s *ResultSet) Results() []Sample {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Sample(nil), s.results...)
}

// Buckets returns the interval buckets in the order they were opened.
func (s *ResultSet) Buckets() []*Bucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Bucket(nil), s.buckets...)
}

// Bucket returns the bucket at index i, or nil when out of range.
func (s *ResultSet) Bucket(i int) *Bucket {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.buckets) {
		return nil
	}
	return s.buckets[i]
}

// Failures returns the number of failed calls.
func (s *ResultSet) Failures() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failures
}

// ErrorBreakdown returns failure counts keyed by error kind.
func (s *ResultSet) ErrorBreakdown() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errorsByKind) == 0 {
		return nil
	}
	out := make(map[string]int, len(s.errorsByKind))
	for k, v := range s.errorsByKind {
		out[k] = int(v)
	}
	return out
}

// Elapsed returns the wall-clock duration of the round, up to now when the
// round has not finished.
func (s *ResultSet) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished.IsZero() {
		return time.Since(s.started)
	}
	return s.finished.Sub(s.started)
}

type percentiles struct {
	calls int64
	p50   float64
	p90   float64
	p99   float64
}

func (s *ResultSet) percentiles() percentiles {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := percentiles{calls: s.hist.TotalCount()}
	if p.calls == 0 {
		return p
	}
	p.p50 = usToMs(s.hist.ValueAtQuantile(50))
	p.p90 = usToMs(s.hist.ValueAtQuantile(90))
	p.p99 = usToMs(s.hist.ValueAtQuantile(99))
	return p
}

func usToMs(us int64) float64 {
	return float64(us) / 1000
}
