package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/crowdprobe/crowdprobe/internal/metrics"
	"github.com/crowdprobe/crowdprobe/internal/runner"
)

func TestProgressReporterRedrawsTrialLine(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewProgressReporter(10*time.Millisecond, &buf)

	reporter.TrialStarted(100, 3, 4)
	for i := 0; i < 7; i++ {
		reporter.ObserveProbe(100, metrics.Outcome{
			Latency: 12 * time.Millisecond,
			OK:      i%2 == 0,
		})
	}

	reporter.Start()
	time.Sleep(100 * time.Millisecond)
	reporter.Stop()

	output := buf.String()
	if !strings.Contains(output, "trial 3/4 (N=100)") {
		t.Errorf("expected trial position in output, got %q", output)
	}
	if !strings.Contains(output, "7 probes") {
		t.Errorf("expected probe count in output, got %q", output)
	}
	if !strings.Contains(output, "3 failed") {
		t.Errorf("expected failure count in output, got %q", output)
	}
	if !strings.Contains(output, "\r") {
		t.Errorf("expected carriage-return redraw, got %q", output)
	}
}

func TestProgressReporterClearsLineOnCompletion(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewProgressReporter(10*time.Millisecond, &buf)

	reporter.TrialStarted(10, 1, 2)
	reporter.ObserveProbe(10, metrics.Outcome{Latency: 5 * time.Millisecond, OK: true})
	reporter.Start()
	time.Sleep(100 * time.Millisecond)

	reporter.TrialCompleted(runner.Result{Level: 10})
	reporter.Stop()

	output := buf.String()
	if !strings.HasSuffix(output, "\r") {
		t.Errorf("expected the line to be cleared after completion, got %q", output)
	}
}

func TestProgressReporterIdleBetweenTrials(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewProgressReporter(10*time.Millisecond, &buf)

	// No TrialStarted yet, so nothing should be drawn.
	reporter.Start()
	time.Sleep(50 * time.Millisecond)
	reporter.Stop()

	if buf.Len() != 0 {
		t.Errorf("expected no output before the first trial, got %q", buf.String())
	}
}

func TestProgressReporterStopWithoutStart(t *testing.T) {
	reporter := NewProgressReporter(50*time.Millisecond, nil)
	reporter.Stop() // must not block or panic
}
