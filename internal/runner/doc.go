// Package runner drives a workload under increasing concurrency and
// measures it.
//
// A session is sequenced by the [Driver]:
//
//	init -> warm-up rounds -> for level := min..max { test rounds } -> close
//
// Each measured round is run by the [Orchestrator]: it starts one Worker per
// concurrency unit on a bounded pool, starts a shared [Ticker] that opens a
// new interval bucket every sample interval and asks every Worker to flush
// into it, sleeps for the round duration, then signals stop and waits for
// the pool to drain. Workers stop cooperatively after their current call.
//
// # Basic Usage
//
//	d := runner.NewDriver("dummy", runner.Options{
//		MinWorkers:   1,
//		MaxWorkers:   4,
//		TestRounds:   1,
//		TestDuration: time.Minute,
//	})
//	report, err := d.Run(ctx, w)
//
// # Failures
//
// A failing Next call stops only the Worker that made it; the round goes on
// with the remaining Workers and the failure is counted in the round's
// ResultSet. Errors outside Next (initialization, interruption) end the
// session with a [PhaseError] naming where it happened.
//
// # Observing Progress
//
// Options.Observer receives phase, bucket, round, and level events as they
// happen. Warm-up never produces bucket or round events.
package runner
