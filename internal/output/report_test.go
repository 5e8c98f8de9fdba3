package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/crowdprobe/crowdprobe/internal/metrics"
	"github.com/crowdprobe/crowdprobe/internal/runner"
)

func sampleResults() []runner.Result {
	return []runner.Result{
		{
			Level: 1,
			Summary: metrics.Summary{
				Probes: 42, Failures: 0, ErrorRate: 0,
				MeanMs: 12.5, StdDevMs: 1.25, MinMs: 10, MaxMs: 18,
				P50Ms: 12, P90Ms: 16, P99Ms: 17.5,
				LatenciesMs: []float64{10, 12, 12.5, 13, 18},
			},
		},
		{
			Level: 100,
			Summary: metrics.Summary{
				Probes: 9, Failures: 3, ErrorRate: 0.333,
				MeanMs: 240, StdDevMs: 55, MinMs: 120, MaxMs: 310,
				P50Ms: 240, P90Ms: 300, P99Ms: 308,
				LatenciesMs: []float64{120, 200, 240, 260, 310},
				Errors:      map[string]int{"timeout": 3},
			},
			HoldFailures: 2,
		},
	}
}

func TestPrintReportTable(t *testing.T) {
	meta := Meta{RunID: "01JX5T", Target: "http://localhost:8080", HoldSeconds: 20}

	var buf bytes.Buffer
	PrintReport(&buf, sampleResults(), meta)

	output := buf.String()
	for _, want := range []string{
		"Concurrency Interference Results",
		"01JX5T",
		"http://localhost:8080",
		"20.0s",
		"Avg (ms)",
		"Error Rate",
		"Queries",
		"240.00",
		"33.30%",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("report missing %q:\n%s", want, output)
		}
	}
}

func TestPrintReportSentinelRow(t *testing.T) {
	results := []runner.Result{
		{Level: 500, Summary: metrics.Summary{Probes: 0, ErrorRate: 1.0}},
	}

	var buf bytes.Buffer
	PrintReport(&buf, results, Meta{})

	output := buf.String()
	if !strings.Contains(output, "100.00%") {
		t.Errorf("sentinel row should show a 100%% error rate:\n%s", output)
	}
	if !strings.Contains(output, "500") {
		t.Errorf("sentinel row should still list its level:\n%s", output)
	}
}

func TestPrintReportProbeFailureBreakdown(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, sampleResults(), Meta{})

	output := buf.String()
	if !strings.Contains(output, "Probe Failures:") {
		t.Errorf("expected probe failure section:\n%s", output)
	}
	if !strings.Contains(output, "N=100: timeout: 3") {
		t.Errorf("expected per-reason failure line:\n%s", output)
	}
}

func TestPrintReportHoldFailures(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, sampleResults(), Meta{})

	output := buf.String()
	if !strings.Contains(output, "Hold Failures:") {
		t.Errorf("expected hold failure section:\n%s", output)
	}
	if !strings.Contains(output, "N=100: 2 of 100 holds failed") {
		t.Errorf("expected per-level hold failure line:\n%s", output)
	}
}

func TestPrintReportNoHoldFailureSection(t *testing.T) {
	results := []runner.Result{{Level: 1, Summary: metrics.Summary{Probes: 5}}}

	var buf bytes.Buffer
	PrintReport(&buf, results, Meta{})

	if strings.Contains(buf.String(), "Hold Failures:") {
		t.Errorf("hold failure section should be absent when all holds completed")
	}
}

func TestPrintJSONReport(t *testing.T) {
	meta := Meta{
		RunID:       "01JX5TC2",
		Target:      "http://localhost:8080",
		HoldSeconds: 20,
		Levels:      []int{1, 100},
		GeneratedAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}

	var buf bytes.Buffer
	if err := PrintJSONReport(&buf, sampleResults(), meta); err != nil {
		t.Fatalf("PrintJSONReport() error = %v", err)
	}

	var rep Report
	if err := json.Unmarshal(buf.Bytes(), &rep); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}

	if rep.Meta.RunID != "01JX5TC2" {
		t.Errorf("run id = %q, want 01JX5TC2", rep.Meta.RunID)
	}
	if len(rep.Trials) != 2 {
		t.Fatalf("got %d trials, want 2", len(rep.Trials))
	}
	if rep.Trials[1].Level != 100 {
		t.Errorf("trial level = %d, want 100", rep.Trials[1].Level)
	}
	if rep.Trials[1].Summary.MeanMs != 240 {
		t.Errorf("mean = %v, want 240", rep.Trials[1].Summary.MeanMs)
	}
	if len(rep.Trials[1].Summary.LatenciesMs) != 5 {
		t.Errorf("raw latencies should survive the round trip")
	}

	if !strings.Contains(buf.String(), "  \"meta\"") {
		t.Errorf("JSON output should be two-space indented")
	}
}
