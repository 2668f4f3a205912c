package runner

import (
	"sync/atomic"
	"time"
)

const (
	tickerIdle int32 = iota
	tickerRunning
	tickerStopped
)

// Ticker calls onTick at a fixed interval from its own goroutine. The first
// tick fires one interval after Start. A Ticker runs at most once.
type Ticker struct {
	interval time.Duration
	onTick   func(tick int)
	state    atomic.Int32
	done     chan struct{}
	finished chan struct{}
}

// NewTicker creates a stopped ticker. tick passed to onTick is 0-based.
func NewTicker(interval time.Duration, onTick func(tick int)) *Ticker {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	return &Ticker{
		interval: interval,
		onTick:   onTick,
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// Start begins ticking in a background goroutine.
func (t *Ticker) Start() {
	if !t.state.CompareAndSwap(tickerIdle, tickerRunning) {
		return
	}
	go t.run()
}

// Stop halts the ticker and waits for an in-progress onTick to return.
// Stopping a stopped or never-started ticker is a no-op.
func (t *Ticker) Stop() {
	if t.state.CompareAndSwap(tickerIdle, tickerStopped) {
		return
	}
	if t.state.CompareAndSwap(tickerRunning, tickerStopped) {
		close(t.done)
		<-t.finished
	}
}

func (t *Ticker) run() {
	defer close(t.finished)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for tick := 0; ; tick++ {
		select {
		case <-ticker.C:
			// Stop may race with a ready tick; done wins.
			select {
			case <-t.done:
				return
			default:
			}
			if t.onTick != nil {
				t.onTick(tick)
			}
		case <-t.done:
			return
		}
	}
}
