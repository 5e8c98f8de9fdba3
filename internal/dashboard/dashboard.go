package dashboard

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/crowdprobe/crowdprobe/internal/metrics"
	"github.com/crowdprobe/crowdprobe/internal/runner"
)

const (
	maxLatencyHistory = 120
	maxFailureRows    = 10
)

// SweepConfig holds sweep parameters for display.
type SweepConfig struct {
	TargetURL    string
	RunID        string
	Levels       []int
	Hold         time.Duration
	ProbeTimeout time.Duration
	ProbeRate    int    // probes per second, 0 = unlimited
	ConfigFile   string // path to config file if used
}

// Dashboard renders a live terminal UI for a running sweep. It is fed
// through the sweep observer callbacks plus per-probe outcomes; it never
// polls the trial internals.
type Dashboard struct {
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	stopOnce     sync.Once
	mu           sync.Mutex

	// Widgets
	grid           *ui.Grid
	summaryPara    *widgets.Paragraph
	progressGauge  *widgets.Gauge
	trialPara      *widgets.Paragraph
	latencySparkle *widgets.SparklineGroup
	completedList  *widgets.List
	failureList    *widgets.List

	// Sweep state, guarded by mu.
	level          int
	index          int
	total          int
	probes         int
	probeFails     int
	lastMs         float64
	latencyHistory []float64
	completed      []runner.Result
	failures       []string

	startTime time.Time
	config    SweepConfig
}

// New creates a new Dashboard.
func New(cfg SweepConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dashboard{
		ctx:            ctx,
		cancel:         cancel,
		shutdownFunc:   shutdownFunc,
		latencyHistory: make([]float64, 0, maxLatencyHistory),
		startTime:      time.Now(),
		config:         cfg,
		total:          len(cfg.Levels),
	}

	d.initWidgets()
	d.setupGrid()

	return d, nil
}

// initWidgets initializes all dashboard widgets.
func (d *Dashboard) initWidgets() {
	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Sweep"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.progressGauge = widgets.NewGauge()
	d.progressGauge.Title = "Sweep Progress"
	d.progressGauge.Percent = 0
	d.progressGauge.BarColor = ui.ColorBlue
	d.progressGauge.BorderStyle.Fg = ui.ColorCyan
	d.progressGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.trialPara = widgets.NewParagraph()
	d.trialPara.Title = "Current Trial"
	d.trialPara.Text = "Waiting for first trial"
	d.trialPara.BorderStyle.Fg = ui.ColorCyan

	sparkline := widgets.NewSparkline()
	sparkline.Title = "Probe latency (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}

	d.latencySparkle = widgets.NewSparklineGroup(sparkline)
	d.latencySparkle.Title = "Recent Probes"
	d.latencySparkle.BorderStyle.Fg = ui.ColorCyan

	d.completedList = widgets.NewList()
	d.completedList.Title = "Completed Trials"
	d.completedList.Rows = []string{"None yet"}
	d.completedList.TextStyle = ui.NewStyle(ui.ColorCyan)
	d.completedList.BorderStyle.Fg = ui.ColorCyan

	d.failureList = widgets.NewList()
	d.failureList.Title = "Recent Failures"
	d.failureList.Rows = []string{"No failures"}
	d.failureList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.failureList.BorderStyle.Fg = ui.ColorCyan
}

// setupGrid configures the layout grid.
func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.18,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.16,
			ui.NewCol(0.5, d.progressGauge),
			ui.NewCol(0.5, d.trialPara),
		),
		ui.NewRow(0.28,
			ui.NewCol(1.0, d.latencySparkle),
		),
		ui.NewRow(0.38,
			ui.NewCol(0.6, d.completedList),
			ui.NewCol(0.4, d.failureList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal. Safe to call more
// than once; the report printing path stops it before the deferred stop runs.
func (d *Dashboard) Stop() {
	d.stopOnce.Do(func() {
		d.cancel()
		d.wg.Wait()
		ui.Close()
		// Give terminal time to restore
		time.Sleep(100 * time.Millisecond)
	})
}

// TrialStarted implements the sweep observer.
func (d *Dashboard) TrialStarted(level, index, total int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.level = level
	d.index = index
	d.total = total
	d.probes = 0
	d.probeFails = 0
	d.lastMs = 0
}

// TrialCompleted implements the sweep observer.
func (d *Dashboard) TrialCompleted(res runner.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.level = 0
	d.completed = append(d.completed, res)
}

// ObserveProbe feeds one probe outcome into the live view.
func (d *Dashboard) ObserveProbe(level int, outcome metrics.Outcome) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.probes++
	d.lastMs = float64(outcome.Latency) / float64(time.Millisecond)
	d.latencyHistory = append(d.latencyHistory, d.lastMs)
	if len(d.latencyHistory) > maxLatencyHistory {
		d.latencyHistory = d.latencyHistory[1:]
	}

	if !outcome.OK {
		d.probeFails++
		reason := outcome.Reason
		if reason == "" {
			reason = "failed"
		}
		d.recordFailure(fmt.Sprintf("probe N=%d: %s", level, reason))
	}
}

// ObserveHoldError feeds one failed hold into the live view.
func (d *Dashboard) ObserveHoldError(level int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recordFailure(fmt.Sprintf("hold N=%d: %v", level, err))
}

// recordFailure keeps the most recent failure rows. Caller holds mu.
func (d *Dashboard) recordFailure(row string) {
	d.failures = append(d.failures, row)
	if len(d.failures) > maxFailureRows {
		d.failures = d.failures[1:]
	}
}

// run is the main dashboard update loop.
func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			// Drain any remaining events
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			// Check if context is done to avoid blocking
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
				// Do not return here; wait for Stop() to cancel context
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update()
			d.render()
		}
	}
}

// update refreshes all widget data from the sweep state.
func (d *Dashboard) update() {
	d.mu.Lock()
	defer d.mu.Unlock()

	elapsed := time.Since(d.startTime)
	doneTrials := len(d.completed)

	percent := 0
	if d.total > 0 {
		percent = doneTrials * 100 / d.total
	}
	if percent > 100 {
		percent = 100
	}
	d.progressGauge.Percent = percent
	d.progressGauge.Label = fmt.Sprintf("%d/%d trials", doneTrials, d.total)

	d.summaryPara.Text = fmt.Sprintf(
		"Target: %s\nRun: %s\n%s\nElapsed: %s",
		d.config.TargetURL,
		d.config.RunID,
		d.formatSweepParams(),
		elapsed.Round(time.Second),
	)

	if d.level > 0 {
		d.trialPara.Text = fmt.Sprintf(
			"Level (N):  %d\nProbes:     %d\nFailed:     %d\nLast probe: %.1fms",
			d.level, d.probes, d.probeFails, d.lastMs,
		)
	} else if doneTrials > 0 && doneTrials < d.total {
		d.trialPara.Text = "Cooling down before next trial"
	} else if d.total > 0 && doneTrials >= d.total {
		d.trialPara.Text = "Sweep complete"
	}

	if len(d.latencyHistory) > 0 {
		d.latencySparkle.Sparklines[0].Data = d.latencyHistory
		d.latencySparkle.Title = fmt.Sprintf("Recent Probes | Last: %.1fms", d.lastMs)
	}

	d.updateCompletedList()
	d.updateFailureList()
}

// render draws all widgets to the screen.
func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

// updateCompletedList rebuilds the per-trial rows. Caller holds mu.
func (d *Dashboard) updateCompletedList() {
	if len(d.completed) == 0 {
		d.completedList.Rows = []string{"[None yet](fg:green)"}
		return
	}
	rows := make([]string, 0, len(d.completed))
	for _, res := range d.completed {
		rows = append(rows, formatTrialRow(res))
	}
	d.completedList.Rows = rows
}

// updateFailureList rebuilds the failure rows. Caller holds mu.
func (d *Dashboard) updateFailureList() {
	if len(d.failures) == 0 {
		d.failureList.Rows = []string{"[No failures](fg:green)"}
		return
	}
	rows := make([]string, len(d.failures))
	for i, row := range d.failures {
		rows[i] = fmt.Sprintf("[%s](fg:red)", row)
	}
	d.failureList.Rows = rows
}

func formatTrialRow(res runner.Result) string {
	s := res.Summary
	row := fmt.Sprintf("[N=%d](fg:cyan) | probes %d | mean %.1fms | p99 %.1fms | err %.1f%%",
		res.Level, s.Probes, s.MeanMs, s.P99Ms, s.ErrorRate*100)
	if res.HoldFailures > 0 {
		row += fmt.Sprintf(" | %d holds failed", res.HoldFailures)
	}
	return row
}

// formatSweepParams formats the sweep configuration for display.
func (d *Dashboard) formatSweepParams() string {
	var parts []string

	if len(d.config.Levels) > 0 {
		parts = append(parts, fmt.Sprintf("Levels: %s", intList(d.config.Levels)))
	}

	if d.config.Hold > 0 {
		parts = append(parts, fmt.Sprintf("Hold: %s", d.config.Hold))
	}

	if d.config.ProbeTimeout > 0 {
		parts = append(parts, fmt.Sprintf("Probe timeout: %s", d.config.ProbeTimeout))
	}

	if d.config.ProbeRate > 0 {
		parts = append(parts, fmt.Sprintf("Probe rate: %d/s", d.config.ProbeRate))
	} else {
		parts = append(parts, "Probe rate: unlimited")
	}

	if d.config.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", d.config.ConfigFile))
	}

	if len(parts) == 0 {
		return ""
	}

	return strings.Join(parts, " | ")
}

func intList(values []int) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
