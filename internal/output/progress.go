package output

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/lastrix/perftester/internal/metrics"
	"github.com/lastrix/perftester/internal/runner"
)

// ProgressReporter rewrites a single status line at every sample interval
// of a measured round. It implements runner.Observer.
type ProgressReporter struct {
	mu     sync.Mutex
	writer io.Writer
	dirty  bool
}

// NewProgressReporter creates a progress reporter writing to writer.
func NewProgressReporter(writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{writer: writer}
}

func (p *ProgressReporter) PhaseStarted(phase runner.Phase, _, round int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLine()
	if phase == runner.PhaseWarmup {
		fmt.Fprintf(p.writer, "\rWarming up (round %d)", round)
		p.dirty = true
	}
}

func (p *ProgressReporter) BucketOpened(info runner.BucketInfo) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprint(p.writer, progressLine(info))
	p.dirty = true
}

func (p *ProgressReporter) RoundCompleted(metrics.RoundStats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLine()
}

func (p *ProgressReporter) LevelCompleted(metrics.LevelStats) {}

// Stop terminates a pending status line.
func (p *ProgressReporter) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.endLine()
}

func (p *ProgressReporter) endLine() {
	if p.dirty {
		fmt.Fprintln(p.writer)
		p.dirty = false
	}
}

func progressLine(info runner.BucketInfo) string {
	line := fmt.Sprintf("\rWorkers: %d | Round: %d | Elapsed: %s",
		info.Level, info.Round, info.Elapsed.Truncate(time.Second))
	if prev := info.Previous; prev != nil {
		line += fmt.Sprintf(" | RPS: %d | RT: %.1fms | Reporting: %d", prev.Throughput, prev.Latency, prev.Reporters)
	}
	return line
}
