package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/crowdprobe/crowdprobe/internal/metrics"
	"github.com/crowdprobe/crowdprobe/internal/runner"
)

// Meta identifies the sweep a report was generated from.
type Meta struct {
	RunID       string    `json:"run_id"`
	Target      string    `json:"target"`
	HoldSeconds float64   `json:"hold_seconds"`
	Levels      []int     `json:"levels"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Report is the JSON artifact shape: sweep metadata plus the ordered
// trial results, raw latency sequences included.
type Report struct {
	Meta   Meta            `json:"meta"`
	Trials []runner.Result `json:"trials"`
}

// PrintReport outputs the per-level summary table.
func PrintReport(w io.Writer, results []runner.Result, meta Meta) {
	fmt.Fprintln(w, "\n--- Concurrency Interference Results ---")
	if meta.RunID != "" {
		fmt.Fprintf(w, "Run:     %s\n", meta.RunID)
	}
	if meta.Target != "" {
		fmt.Fprintf(w, "Target:  %s\n", meta.Target)
	}
	if meta.HoldSeconds > 0 {
		fmt.Fprintf(w, "Hold:    %.1fs\n", meta.HoldSeconds)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%6s  %10s  %12s  %9s  %9s  %11s  %8s\n",
		"N", "Avg (ms)", "StdDev (ms)", "Min (ms)", "Max (ms)", "Error Rate", "Queries")
	for _, res := range results {
		s := res.Summary
		fmt.Fprintf(w, "%6d  %10.2f  %12.2f  %9.2f  %9.2f  %10.2f%%  %8d\n",
			res.Level, s.MeanMs, s.StdDevMs, s.MinMs, s.MaxMs, s.ErrorRate*100, s.Probes)
	}

	if rows := probeFailureRows(results); len(rows) > 0 {
		fmt.Fprintln(w, "\nProbe Failures:")
		for _, row := range rows {
			fmt.Fprintf(w, "  N=%d: %s: %d\n", row.level, row.reason, row.count)
		}
	}

	if failures := holdFailureRows(results); len(failures) > 0 {
		fmt.Fprintln(w, "\nHold Failures:")
		for _, row := range failures {
			fmt.Fprintf(w, "  N=%d: %d of %d holds failed\n", row.Level, row.HoldFailures, row.Level)
		}
	}
}

// PrintJSONReport outputs the full sweep as indented JSON.
func PrintJSONReport(w io.Writer, results []runner.Result, meta Meta) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(Report{Meta: meta, Trials: results})
}

type failureRow struct {
	level  int
	reason string
	count  int
}

// probeFailureRows lists every failure reason per level, most frequent
// first within a level, levels in sweep order.
func probeFailureRows(results []runner.Result) []failureRow {
	var rows []failureRow
	for _, res := range results {
		for _, rc := range metrics.FlattenReasons(res.Summary.Errors) {
			rows = append(rows, failureRow{level: res.Level, reason: rc.Reason, count: rc.Count})
		}
	}
	return rows
}

func holdFailureRows(results []runner.Result) []runner.Result {
	var rows []runner.Result
	for _, res := range results {
		if res.HoldFailures > 0 {
			rows = append(rows, res)
		}
	}
	return rows
}
