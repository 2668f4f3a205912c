// Package metrics aggregates worker samples for a single measured round and
// reduces them into throughput and latency statistics.
//
// # Result Set
//
// A [ResultSet] is created per round. Every worker appends exactly one
// full-round [Sample] when it stops, and an interval sample each time the
// shared ticker asks it to flush:
//
//	set := metrics.NewResultSet(workers)
//	set.OpenBucket()                       // on every tick
//	set.AddIntervalSample(sample)          // from each worker
//	set.AddResult(total)                   // once per worker at round end
//
// All methods are safe for concurrent use.
//
// # Statistics
//
// [Summarize] turns a ResultSet into [RoundStats]: min/avg/max aggregate
// throughput and mean latency over the whole round and over per-second
// slices. Throughput figures are scaled to the whole pool, latency figures
// are per call. Ratios with a zero denominator evaluate to zero.
//
// The per-second figures depend on a [BucketScaling] convention:
//   - [ScaleConfigured] multiplies each bucket's per-worker average by the
//     configured worker count.
//   - [ScaleActive] multiplies it by the number of workers that actually
//     reported into that bucket, which differs when a worker stopped early.
//
// [SummarizeLevel] combines the rounds of one concurrency level.
package metrics
