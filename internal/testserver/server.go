// Package testserver provides the local target for crowdprobe's serve
// mode and integration tests: /wait parks a request for a caller-chosen
// number of seconds while /query answers immediately, so sweeps can be
// exercised without a production target.
package testserver

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"
)

const shutdownGrace = 5 * time.Second

// Server is a local crowdprobe target.
type Server struct {
	addr string
	http *http.Server
}

// New builds a server bound to addr, defaulting to :8080.
func New(addr string) *Server {
	if addr == "" {
		addr = ":8080"
	}
	s := &Server{addr: addr}

	mux := http.NewServeMux()
	mux.HandleFunc("/wait", s.handleWait)
	mux.HandleFunc("/query", s.handleQuery)

	s.http = &http.Server{Addr: addr, Handler: mux}
	return s
}

// Handler exposes the route table so tests can mount it on httptest.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until ctx is canceled, then shuts down gracefully. Requests
// still parked in /wait get shutdownGrace to finish before the
// connections are cut.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("crowdprobe test target listening on %s", s.addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		// Parked /wait requests can outlive the grace period; cut them.
		return s.http.Close()
	}
	return nil
}

// handleWait answers 200 after ~seconds. The delay is cooperative: a
// disconnecting client releases the handler immediately.
func (s *Server) handleWait(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("seconds")
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || seconds < 0 || math.IsNaN(seconds) || math.IsInf(seconds, 0) {
		respondJSON(w, http.StatusBadRequest, map[string]any{
			"error": "seconds must be a non-negative number",
		})
		return
	}

	select {
	case <-time.After(time.Duration(seconds * float64(time.Second))):
	case <-r.Context().Done():
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"held_seconds": seconds,
	})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
