package output

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crowdprobe/crowdprobe/internal/metrics"
	"github.com/crowdprobe/crowdprobe/internal/runner"
)

// ProgressReporter redraws a one-line status for the trial in flight.
// It consumes the sweep's observer callbacks plus per-probe outcomes,
// so it shows live counts without touching the collector.
type ProgressReporter struct {
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32

	mu      sync.Mutex
	level   int
	index   int
	total   int
	probes  int
	fails   int
	lastMs  float64
	lineLen int
}

// NewProgressReporter creates a progress reporter that redraws at the
// given interval.
func NewProgressReporter(interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	return &ProgressReporter{
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
	}
}

// TrialStarted resets the live line for a new trial. It is the sweep
// observer entry point.
func (p *ProgressReporter) TrialStarted(level, index, total int) {
	p.mu.Lock()
	p.level = level
	p.index = index
	p.total = total
	p.probes = 0
	p.fails = 0
	p.lastMs = 0
	p.mu.Unlock()
}

// TrialCompleted clears the live line so the completion log prints on a
// clean row. Writer access stays under the mutex to serialize with the
// redraw goroutine.
func (p *ProgressReporter) TrialCompleted(res runner.Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.level = 0
	if p.lineLen > 0 {
		fmt.Fprintf(p.writer, "\r%s\r", strings.Repeat(" ", p.lineLen))
		p.lineLen = 0
	}
}

// ObserveProbe records one probe outcome for the live line.
func (p *ProgressReporter) ObserveProbe(level int, outcome metrics.Outcome) {
	p.mu.Lock()
	p.probes++
	if !outcome.OK {
		p.fails++
	}
	p.lastMs = float64(outcome.Latency) / float64(time.Millisecond)
	p.mu.Unlock()
}

// Start begins redrawing in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts redrawing.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			p.mu.Lock()
			if p.level == 0 {
				p.mu.Unlock()
				continue
			}
			line := fmt.Sprintf("trial %d/%d (N=%d): %d probes, %d failed, last %.1fms",
				p.index, p.total, p.level, p.probes, p.fails, p.lastMs)
			if len(line) < p.lineLen {
				line += strings.Repeat(" ", p.lineLen-len(line))
			}
			p.lineLen = len(line)
			fmt.Fprint(p.writer, "\r"+line)
			p.mu.Unlock()
		case <-p.done:
			return
		}
	}
}
