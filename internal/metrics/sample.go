package metrics

import "time"

// Sample is the number of completed calls a worker made over an elapsed period.
// A full-round sample is a worker's RoundResult; an interval sample covers the
// time since the worker's previous flush.
type Sample struct {
	Worker  int           `json:"worker" yaml:"worker"`
	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
	Count   int64         `json:"count" yaml:"count"`
}

// Throughput returns completed calls per second, truncated to an integer.
func (s Sample) Throughput() int64 {
	if s.Elapsed <= 0 || s.Count <= 0 {
		return 0
	}
	return int64(float64(s.Count) / s.Elapsed.Seconds())
}

// MeanLatency returns the average time per call in milliseconds.
func (s Sample) MeanLatency() float64 {
	if s.Count <= 0 {
		return 0
	}
	return durationMs(s.Elapsed) / float64(s.Count)
}

func durationMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
