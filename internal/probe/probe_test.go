package probe_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/crowdprobe/crowdprobe/internal/probe"
)

func testConfig(target string) probe.Config {
	return probe.Config{
		TargetURL:    target,
		HoldFor:      100 * time.Millisecond,
		ProbeTimeout: 2 * time.Second,
		PoolHeadroom: 10,
		ExpectStatus: http.StatusOK,
	}
}

func TestProbeSuccess(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/query" {
			t.Errorf("unexpected probe path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "ok"}`))
	}))
	defer ts.Close()

	s, err := probe.NewSession(testConfig(ts.URL), 1)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	out := s.Probe(context.Background())
	if !out.OK {
		t.Fatalf("expected probe success, got reason %q", out.Reason)
	}
	if out.Latency <= 0 {
		t.Fatalf("expected positive latency, got %s", out.Latency)
	}
}

func TestProbeLatencyCoversHandlerTime(t *testing.T) {
	const delay = 20 * time.Millisecond
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(delay)
		w.Write([]byte(`{"status": "ok"}`))
	}))
	defer ts.Close()

	s, err := probe.NewSession(testConfig(ts.URL), 1)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	out := s.Probe(context.Background())
	if !out.OK {
		t.Fatalf("expected probe success, got reason %q", out.Reason)
	}
	if out.Latency < delay {
		t.Fatalf("latency %s shorter than handler delay %s", out.Latency, delay)
	}
}

func TestProbeStatusMismatch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	s, err := probe.NewSession(testConfig(ts.URL), 1)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	out := s.Probe(context.Background())
	if out.OK {
		t.Fatal("expected probe failure on 503")
	}
	if out.Reason != "HTTP 503" {
		t.Fatalf("expected reason %q, got %q", "HTTP 503", out.Reason)
	}
	if out.Latency <= 0 {
		t.Fatalf("failed probe should still carry latency, got %s", out.Latency)
	}
}

func TestProbeTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer ts.Close()

	cfg := testConfig(ts.URL)
	cfg.ProbeTimeout = 50 * time.Millisecond
	s, err := probe.NewSession(cfg, 1)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	start := time.Now()
	out := s.Probe(context.Background())
	elapsed := time.Since(start)

	if out.OK {
		t.Fatal("expected probe timeout failure")
	}
	if out.Reason != "timeout" {
		t.Fatalf("expected reason %q, got %q", "timeout", out.Reason)
	}
	if elapsed > 2*time.Second {
		t.Fatalf("timed-out probe took %s, deadline not enforced", elapsed)
	}
}

func TestProbeCanceledContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	}))
	defer ts.Close()

	s, err := probe.NewSession(testConfig(ts.URL), 1)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := s.Probe(ctx)
	if out.OK {
		t.Fatal("expected failure for canceled context")
	}
	if out.Reason != "canceled" {
		t.Fatalf("expected reason %q, got %q", "canceled", out.Reason)
	}
}

func TestProbeBodyAssertion(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		path       string
		value      string
		wantOK     bool
		wantReason string
	}{
		{"value match", `{"status": "ok"}`, "status", "ok", true, ""},
		{"value mismatch", `{"status": "degraded"}`, "status", "ok", false, "body mismatch"},
		{"path missing", `{"state": "ok"}`, "status", "ok", false, "body mismatch"},
		{"path exists without value", `{"status": "anything"}`, "status", "", true, ""},
		{"nested path", `{"db": {"healthy": true}}`, "db.healthy", "true", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer ts.Close()

			cfg := testConfig(ts.URL)
			cfg.ExpectPath = tt.path
			cfg.ExpectValue = tt.value
			s, err := probe.NewSession(cfg, 1)
			if err != nil {
				t.Fatalf("NewSession: %v", err)
			}
			defer s.Close()

			out := s.Probe(context.Background())
			if out.OK != tt.wantOK {
				t.Fatalf("OK = %v, want %v (reason %q)", out.OK, tt.wantOK, out.Reason)
			}
			if out.Reason != tt.wantReason {
				t.Fatalf("Reason = %q, want %q", out.Reason, tt.wantReason)
			}
		})
	}
}

func TestRequestHeadersApplied(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]string{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen[r.URL.Path] = r.Header.Get("X-Api-Key")
		mu.Unlock()
		w.Write([]byte("{}"))
	}))
	defer ts.Close()

	cfg := testConfig(ts.URL)
	cfg.Headers = map[string]string{"X-Api-Key": "secret"}
	s, err := probe.NewSession(cfg, 1)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	if out := s.Probe(context.Background()); !out.OK {
		t.Fatalf("probe failed: %s", out.Reason)
	}
	if err := s.Hold(context.Background()); err != nil {
		t.Fatalf("hold failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	for _, path := range []string{"/query", "/wait"} {
		if seen[path] != "secret" {
			t.Errorf("header missing on %s: got %q", path, seen[path])
		}
	}
}

func TestHoldRequestShape(t *testing.T) {
	var mu sync.Mutex
	var gotSeconds string
	release := 80 * time.Millisecond
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/wait" {
			t.Errorf("unexpected hold path %q", r.URL.Path)
		}
		mu.Lock()
		gotSeconds = r.URL.Query().Get("seconds")
		mu.Unlock()
		time.Sleep(release)
		w.Write([]byte("released"))
	}))
	defer ts.Close()

	s, err := probe.NewSession(testConfig(ts.URL), 1)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	start := time.Now()
	if err := s.Hold(context.Background()); err != nil {
		t.Fatalf("hold failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < release {
		t.Fatalf("hold returned after %s, before server released at %s", elapsed, release)
	}
	mu.Lock()
	defer mu.Unlock()
	if gotSeconds != "0.1" {
		t.Fatalf("seconds parameter = %q, want %q", gotSeconds, "0.1")
	}
}

func TestHoldErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "seconds parameter out of range", http.StatusBadRequest)
	}))
	defer ts.Close()

	s, err := probe.NewSession(testConfig(ts.URL), 1)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	err = s.Hold(context.Background())
	if err == nil {
		t.Fatal("expected hold failure on 400")
	}
	var httpErr *probe.HTTPError
	if !errors.As(err, &httpErr) {
		t.Fatalf("expected HTTPError, got %T: %v", err, err)
	}
	if httpErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("StatusCode = %d, want %d", httpErr.StatusCode, http.StatusBadRequest)
	}
}

func TestHoldConnectionRefused(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := ts.URL
	ts.Close()

	s, err := probe.NewSession(testConfig(target), 1)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	if err := s.Hold(context.Background()); err == nil {
		t.Fatal("expected hold failure against closed server")
	}
}

func TestNewSessionValidatesTarget(t *testing.T) {
	tests := []struct {
		target  string
		wantErr bool
	}{
		{"http://localhost:8080", false},
		{"https://example.com/api", false},
		{"localhost:8080", true},
		{"ftp://example.com", true},
		{"://bad", true},
	}

	for _, tt := range tests {
		_, err := probe.NewSession(testConfig(tt.target), 1)
		if (err != nil) != tt.wantErr {
			t.Errorf("NewSession(%q) error = %v, wantErr %v", tt.target, err, tt.wantErr)
		}
	}
}

func TestTargetPathPrefixPreserved(t *testing.T) {
	var paths []string
	var mu sync.Mutex
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.Write([]byte("{}"))
	}))
	defer ts.Close()

	s, err := probe.NewSession(testConfig(ts.URL+"/api/"), 1)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	defer s.Close()

	s.Probe(context.Background())
	if err := s.Hold(context.Background()); err != nil {
		t.Fatalf("hold failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"/api/query", "/api/wait"}
	if len(paths) != len(want) {
		t.Fatalf("expected %d requests, got %d", len(want), len(paths))
	}
	for i, p := range want {
		if paths[i] != p {
			t.Errorf("request %d path = %q, want %q", i, paths[i], p)
		}
	}
}
