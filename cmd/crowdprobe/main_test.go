package main

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/crowdprobe/crowdprobe/internal/testserver"
	"github.com/crowdprobe/crowdprobe/internal/threshold"
)

func TestReportThresholdsAllPass(t *testing.T) {
	var buf bytes.Buffer
	results := []threshold.Result{
		{Pass: true, Message: "probe_latency:p99 < 500: 120.00 < 500.00"},
		{Pass: true, Message: "error_rate:max < 0.01: 0.00 < 0.01"},
	}

	if err := reportThresholds(&buf, results); err != nil {
		t.Fatalf("reportThresholds() = %v, want nil", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Thresholds:") {
		t.Errorf("output missing header:\n%s", out)
	}
	if !strings.Contains(out, "probe_latency:p99 < 500") {
		t.Errorf("output missing threshold line:\n%s", out)
	}
}

func TestReportThresholdsFailureBecomesError(t *testing.T) {
	var buf bytes.Buffer
	results := []threshold.Result{
		{Pass: true, Message: "error_rate:max < 0.5: 0.10 < 0.50"},
		{Pass: false, Message: "probe_latency:max < 100: 850.00 < 100.00 (worst at level 500)"},
	}

	err := reportThresholds(&buf, results)
	if err == nil {
		t.Fatal("expected an error when a threshold fails")
	}
	if !strings.Contains(err.Error(), "1 of 2 thresholds failed") {
		t.Errorf("error = %v, want failure count", err)
	}
	if !strings.Contains(buf.String(), "worst at level 500") {
		t.Errorf("output missing failing line:\n%s", buf.String())
	}
}

func TestReportThresholdsEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := reportThresholds(&buf, nil); err != nil {
		t.Fatalf("reportThresholds() = %v, want nil", err)
	}
	if buf.Len() != 0 {
		t.Errorf("expected no output, got:\n%s", buf.String())
	}
}

func TestRunNoArgsShowsHelp(t *testing.T) {
	if err := run(nil); err != nil {
		t.Fatalf("run() with no args = %v, want nil", err)
	}
}

func TestRunRejectsMissingTarget(t *testing.T) {
	err := run([]string{"--levels", "1"})
	if err == nil {
		t.Fatal("expected a validation error without a target")
	}
	if !strings.Contains(err.Error(), "target is required") {
		t.Errorf("error = %v, want mention of the missing target", err)
	}
}

func TestRunRejectsBadThresholdBeforeTraffic(t *testing.T) {
	// The port is closed on purpose; parsing must fail first.
	err := run([]string{
		"--target", "http://127.0.0.1:1",
		"--threshold", "nonsense",
	})
	if err == nil {
		t.Fatal("expected a threshold parse error")
	}
	if !strings.Contains(err.Error(), "invalid threshold format") {
		t.Errorf("error = %v, want a threshold parse failure", err)
	}
}

func TestRunSweepAgainstLocalTarget(t *testing.T) {
	if testing.Short() {
		t.Skip("runs a real two-level sweep")
	}

	srv := httptest.NewServer(testserver.New("").Handler())
	defer srv.Close()

	err := run([]string{
		"--target", srv.URL,
		"--levels", "1,2",
		"--hold", "150ms",
		"--settle", "20ms",
		"--cooldown", "10ms",
		"--probe-timeout", "2s",
		"--safety-margin", "2s",
		"--chart", "",
		"--threshold", "error_rate:max <= 1.0",
	})
	if err != nil {
		t.Fatalf("run() = %v, want nil", err)
	}
}
