// Package dashboard renders a live terminal view of a session. The Dashboard
// is a runner.Observer; the CLI adds it to the observer list when
// --dashboard is set.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/lastrix/perftester/internal/metrics"
	"github.com/lastrix/perftester/internal/runner"
)

const (
	historyLimit = 120
	maxErrorRows = 10
)

// SessionInfo holds session parameters for display.
type SessionInfo struct {
	Workload     string        // Registered workload name
	MinWorkers   int           // First concurrency level
	MaxWorkers   int           // Last concurrency level
	WarmupRounds int           // Unmeasured rounds before the first level
	TestRounds   int           // Measured rounds per level
	TestDuration time.Duration // Length of a measured round
	Rate         int           // Requests per second cap (0 = unlimited)
	Scaling      string        // Per-second bucket scaling
	ConfigFile   string        // Path to config file if used
}

// Dashboard renders a live terminal UI for a session.
type Dashboard struct {
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	// Widgets
	grid         *ui.Grid
	summaryPara  *widgets.Paragraph
	bucketPara   *widgets.Paragraph
	rpsSpark     *widgets.SparklineGroup
	latencySpark *widgets.SparklineGroup
	levelTable   *widgets.Table
	errorList    *widgets.List

	info           SessionInfo
	phase          runner.Phase
	level          int
	round          int
	elapsed        time.Duration
	rpsHistory     []float64
	latencyHistory []float64
	errors         map[string]int
	startTime      time.Time
}

// New initializes the terminal and creates a Dashboard. shutdownFunc is
// called when the user presses q or Ctrl-C.
func New(info SessionInfo, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}
	d := newDashboard(info, shutdownFunc)
	d.setupGrid()
	return d, nil
}

func newDashboard(info SessionInfo, shutdownFunc func()) *Dashboard {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		ctx:            ctx,
		cancel:         cancel,
		shutdownFunc:   shutdownFunc,
		info:           info,
		phase:          runner.PhaseInit,
		rpsHistory:     make([]float64, 0, historyLimit),
		latencyHistory: make([]float64, 0, historyLimit),
		errors:         make(map[string]int),
		startTime:      time.Now(),
	}
	d.initWidgets()
	return d
}

func (d *Dashboard) initWidgets() {
	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Session"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.bucketPara = widgets.NewParagraph()
	d.bucketPara.Title = "Last Interval"
	d.bucketPara.Text = "Waiting for data..."
	d.bucketPara.BorderStyle.Fg = ui.ColorCyan

	rps := widgets.NewSparkline()
	rps.Title = "req/s"
	rps.LineColor = ui.ColorBlue
	rps.Data = []float64{0}
	d.rpsSpark = widgets.NewSparklineGroup(rps)
	d.rpsSpark.Title = "Per-second Throughput"
	d.rpsSpark.BorderStyle.Fg = ui.ColorCyan

	latency := widgets.NewSparkline()
	latency.Title = "ms"
	latency.LineColor = ui.ColorGreen
	latency.Data = []float64{0}
	d.latencySpark = widgets.NewSparklineGroup(latency)
	d.latencySpark.Title = "Per-second Latency"
	d.latencySpark.BorderStyle.Fg = ui.ColorCyan

	d.levelTable = widgets.NewTable()
	d.levelTable.Title = "Completed Levels"
	d.levelTable.Rows = levelTableRows(nil)
	d.levelTable.TextStyle = ui.NewStyle(ui.ColorWhite)
	d.levelTable.RowSeparator = false
	d.levelTable.BorderStyle.Fg = ui.ColorCyan

	d.errorList = widgets.NewList()
	d.errorList.Title = "Failures"
	d.errorList.Rows = formatErrorRows(nil)
	d.errorList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.errorList.BorderStyle.Fg = ui.ColorCyan
}

func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.16,
			ui.NewCol(0.65, d.summaryPara),
			ui.NewCol(0.35, d.bucketPara),
		),
		ui.NewRow(0.22,
			ui.NewCol(1.0, d.rpsSpark),
		),
		ui.NewRow(0.22,
			ui.NewCol(1.0, d.latencySpark),
		),
		ui.NewRow(0.40,
			ui.NewCol(0.65, d.levelTable),
			ui.NewCol(0.35, d.errorList),
		),
	)
}

// Start begins the dashboard render loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Stop cancels the context once the session unwinds.
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.mu.Lock()
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				d.mu.Unlock()
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.mu.Lock()
			d.summaryPara.Text = d.summaryText(time.Since(d.startTime))
			d.mu.Unlock()
			d.render()
		}
	}
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

// PhaseStarted resets the per-round view when a round begins.
func (d *Dashboard) PhaseStarted(phase runner.Phase, level, round int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.phase, d.level, d.round = phase, level, round
	d.elapsed = 0
	if phase == runner.PhaseMeasure {
		d.rpsHistory = d.rpsHistory[:0]
		d.latencyHistory = d.latencyHistory[:0]
		d.rpsSpark.Sparklines[0].Data = []float64{0}
		d.latencySpark.Sparklines[0].Data = []float64{0}
		d.bucketPara.Text = "Waiting for data..."
	}
	d.summaryPara.Text = d.summaryText(time.Since(d.startTime))
}

// BucketOpened appends the bucket that just closed to the sparklines.
func (d *Dashboard) BucketOpened(info runner.BucketInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.elapsed = info.Elapsed
	prev := info.Previous
	if prev == nil {
		return
	}
	d.rpsHistory = appendHistory(d.rpsHistory, float64(prev.Throughput), historyLimit)
	d.latencyHistory = appendHistory(d.latencyHistory, prev.Latency, historyLimit)
	d.rpsSpark.Sparklines[0].Data = d.rpsHistory
	d.latencySpark.Sparklines[0].Data = d.latencyHistory
	d.rpsSpark.Title = fmt.Sprintf("Per-second Throughput | Current: %d req/s", prev.Throughput)
	d.latencySpark.Title = fmt.Sprintf("Per-second Latency | Current: %.2fms", prev.Latency)
	d.bucketPara.Text = fmt.Sprintf("Bucket:     #%d\nThroughput: %d req/s\nLatency:    %.2f ms\nReporting:  %d workers",
		prev.Index+1, prev.Throughput, prev.Latency, prev.Reporters)
}

// RoundCompleted folds the round's failures into the failure list.
func (d *Dashboard) RoundCompleted(stats metrics.RoundStats) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for name, count := range stats.Errors {
		d.errors[name] += count
	}
	d.errorList.Rows = formatErrorRows(d.errors)
}

// LevelCompleted adds a row to the level table.
func (d *Dashboard) LevelCompleted(stats metrics.LevelStats) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.levelTable.Rows = append(d.levelTable.Rows, levelRow(stats))
}

func (d *Dashboard) summaryText(total time.Duration) string {
	var position string
	switch d.phase {
	case runner.PhaseWarmup:
		position = fmt.Sprintf("Warming up: round %d/%d", d.round, d.info.WarmupRounds)
	case runner.PhaseMeasure:
		position = fmt.Sprintf("Measuring: %d workers (level %d/%d), round %d/%d, %s/%s",
			d.level, d.level-d.info.MinWorkers+1, d.info.MaxWorkers-d.info.MinWorkers+1,
			d.round, d.info.TestRounds,
			d.elapsed.Truncate(time.Second), d.info.TestDuration)
	default:
		position = "Initializing..."
	}
	return fmt.Sprintf("Workload: %s\n%s\n%s\nElapsed: %s",
		d.info.Workload, formatParams(d.info), position, total.Round(time.Second))
}

func appendHistory(history []float64, v float64, limit int) []float64 {
	history = append(history, v)
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history
}

func levelTableRows(levels []metrics.LevelStats) [][]string {
	rows := [][]string{{"Workers", "Requests", "RPS min/avg/max", "RT avg (ms)", "P99 (ms)", "Failures"}}
	for _, l := range levels {
		rows = append(rows, levelRow(l))
	}
	return rows
}

func levelRow(l metrics.LevelStats) []string {
	return []string{
		fmt.Sprintf("%d", l.Level),
		fmt.Sprintf("%d", l.Requests),
		fmt.Sprintf("%d / %d / %d", l.Throughput.Min, l.Throughput.Avg, l.Throughput.Max),
		fmt.Sprintf("%.2f", l.Latency.Avg),
		fmt.Sprintf("%.2f", l.P99LatencyMs),
		fmt.Sprintf("%d", l.Failures),
	}
}

func formatErrorRows(errors map[string]int) []string {
	if len(errors) == 0 {
		return []string{"[No failures](fg:green)"}
	}
	names := make([]string, 0, len(errors))
	for name := range errors {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if errors[names[i]] == errors[names[j]] {
			return names[i] < names[j]
		}
		return errors[names[i]] > errors[names[j]]
	})
	if len(names) > maxErrorRows {
		names = names[:maxErrorRows]
	}
	rows := make([]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, fmt.Sprintf("[%s](fg:red) %d", name, errors[name]))
	}
	return rows
}

// formatParams formats the session parameters for display.
func formatParams(info SessionInfo) string {
	parts := []string{fmt.Sprintf("Workers: %d..%d", info.MinWorkers, info.MaxWorkers)}

	if info.TestRounds > 0 {
		parts = append(parts, fmt.Sprintf("Rounds: %d x %s", info.TestRounds, info.TestDuration))
	}
	if info.WarmupRounds > 0 {
		parts = append(parts, fmt.Sprintf("Warm-up: %d", info.WarmupRounds))
	}
	if info.Rate > 0 {
		parts = append(parts, fmt.Sprintf("Rate: %d/s", info.Rate))
	} else {
		parts = append(parts, "Rate: unlimited")
	}
	if info.Scaling != "" {
		parts = append(parts, fmt.Sprintf("Scaling: %s", info.Scaling))
	}
	if info.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", info.ConfigFile))
	}
	return strings.Join(parts, " | ")
}
