package testserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestQueryRespondsImmediately(t *testing.T) {
	srv := httptest.NewServer(New("").Handler())
	defer srv.Close()

	start := time.Now()
	resp, err := http.Get(srv.URL + "/query")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %v", body["status"])
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("query took %v, expected an immediate answer", elapsed)
	}
}

func TestWaitHoldsForDuration(t *testing.T) {
	srv := httptest.NewServer(New("").Handler())
	defer srv.Close()

	start := time.Now()
	resp, err := http.Get(srv.URL + "/wait?seconds=0.2")
	if err != nil {
		t.Fatalf("wait failed: %v", err)
	}
	defer resp.Body.Close()
	elapsed := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
	if elapsed < 200*time.Millisecond {
		t.Errorf("wait returned after %v, expected at least 200ms", elapsed)
	}
}

func TestWaitRejectsBadParameter(t *testing.T) {
	srv := httptest.NewServer(New("").Handler())
	defer srv.Close()

	tests := []struct {
		name  string
		query string
	}{
		{"missing", "/wait"},
		{"not a number", "/wait?seconds=soon"},
		{"negative", "/wait?seconds=-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.query)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestWaitReleasesDisconnectedClient(t *testing.T) {
	srv := httptest.NewServer(New("").Handler())
	defer srv.Close()

	client := &http.Client{Timeout: 100 * time.Millisecond}
	start := time.Now()
	_, err := client.Get(srv.URL + "/wait?seconds=30")
	if err == nil {
		t.Fatal("expected the client timeout to fire")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("client blocked for %v after its timeout", elapsed)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := New("127.0.0.1:0")

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected a clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop after context cancel")
	}
}
