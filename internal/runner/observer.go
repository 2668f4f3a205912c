package runner

import (
	"time"

	"github.com/lastrix/perftester/internal/metrics"
)

// BucketInfo describes a tick of a measured round. Previous holds the
// bucket that the tick closed, or nil on the first tick.
type BucketInfo struct {
	Level    int
	Round    int
	Index    int
	Elapsed  time.Duration
	Previous *metrics.BucketStats
}

// Observer receives session events. Calls for one session are made from
// the Driver and Ticker goroutines and never overlap for the same round.
type Observer interface {
	// PhaseStarted is called when warm-up or a measured round begins.
	// level is zero during warm-up; round is 1-based.
	PhaseStarted(phase Phase, level, round int)
	BucketOpened(info BucketInfo)
	RoundCompleted(stats metrics.RoundStats)
	LevelCompleted(stats metrics.LevelStats)
}

// Observers fans events out to each member in order.
type Observers []Observer

func (o Observers) PhaseStarted(phase Phase, level, round int) {
	for _, obs := range o {
		obs.PhaseStarted(phase, level, round)
	}
}

func (o Observers) BucketOpened(info BucketInfo) {
	for _, obs := range o {
		obs.BucketOpened(info)
	}
}

func (o Observers) RoundCompleted(stats metrics.RoundStats) {
	for _, obs := range o {
		obs.RoundCompleted(stats)
	}
}

func (o Observers) LevelCompleted(stats metrics.LevelStats) {
	for _, obs := range o {
		obs.LevelCompleted(stats)
	}
}

type nopObserver struct{}

func (nopObserver) PhaseStarted(Phase, int, int)      {}
func (nopObserver) BucketOpened(BucketInfo)           {}
func (nopObserver) RoundCompleted(metrics.RoundStats) {}
func (nopObserver) LevelCompleted(metrics.LevelStats) {}
