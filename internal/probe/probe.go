// Package probe issues the HTTP traffic a trial is made of: long hold
// requests that park server slots and short probe requests that measure
// how long the server takes to answer while those holds are in flight.
//
// A Session owns one connection pool sized for a single concurrency level.
// Sessions are created per trial and closed when the trial drains, so
// measurements at one level never reuse warm connections from a previous
// level.
package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/crowdprobe/crowdprobe/internal/httpclient"
	"github.com/crowdprobe/crowdprobe/internal/metrics"
	"github.com/crowdprobe/crowdprobe/internal/tracing"
)

const (
	maxLoggedBodyBytes = 1024
	maxBodyReadSize    = 1024 * 1024
)

// holdSlack is the client-side allowance beyond the requested hold duration
// before an unanswered hold request is abandoned. It keeps a stuck server
// from pinning a trial open forever.
const holdSlack = 10 * time.Second

// Config describes how a Session talks to the target server.
type Config struct {
	TargetURL    string            // base URL of the server under test
	HoldFor      time.Duration     // wait duration requested from the server
	ProbeTimeout time.Duration     // per-probe deadline
	PoolHeadroom int               // connections kept beyond the hold count
	ExpectStatus int               // probe status code counted as success
	ExpectPath   string            // optional JSON path asserted on probe bodies
	ExpectValue  string            // optional value the path must equal
	Headers      map[string]string // extra headers applied to every request
	Tracing      *tracing.Provider // optional span emission, nil disables
}

// Session issues probes and holds against one target for one trial.
// Probe is called from a single goroutine; Hold may run concurrently
// with other holds and with probes.
type Session struct {
	cfg      Config
	probeURL string
	holdURL  string
	client   *http.Client
}

// NewSession builds a Session for one trial at the given hold count. The
// connection pool is sized to level plus the configured headroom so probes
// never queue behind holds for a transport slot.
func NewSession(cfg Config, level int) (*Session, error) {
	base, err := url.Parse(cfg.TargetURL)
	if err != nil {
		return nil, fmt.Errorf("parse target URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("target URL must be http or https, got %q", cfg.TargetURL)
	}

	probeURL := *base
	probeURL.Path = path.Join(base.Path, "query")

	holdURL := *base
	holdURL.Path = path.Join(base.Path, "wait")
	seconds := strconv.FormatFloat(cfg.HoldFor.Seconds(), 'f', -1, 64)
	holdURL.RawQuery = url.Values{"seconds": {seconds}}.Encode()

	return &Session{
		cfg:      cfg,
		probeURL: probeURL.String(),
		holdURL:  holdURL.String(),
		client:   httpclient.NewClient(level + cfg.PoolHeadroom),
	}, nil
}

// Probe issues one probe request and reports its outcome. Latency covers
// the full response, headers through body, and is recorded even when the
// probe fails.
func (s *Session) Probe(ctx context.Context) metrics.Outcome {
	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	reqCtx, span := tracing.StartRequestSpan(reqCtx, s.cfg.Tracing.Tracer(), "probe", s.probeURL)
	outcome, err := s.probeOnce(reqCtx)
	tracing.EndSpan(span, err)
	return outcome
}

func (s *Session) probeOnce(ctx context.Context) (metrics.Outcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.probeURL, nil)
	if err != nil {
		return metrics.Outcome{Reason: reasonForError(err)}, err
	}
	s.applyHeaders(ctx, req)

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return metrics.Outcome{Latency: time.Since(start), Reason: reasonForError(err)}, err
	}
	defer resp.Body.Close()

	body, bodyErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyReadSize))
	latency := time.Since(start)
	if bodyErr != nil {
		return metrics.Outcome{Latency: latency, Reason: reasonForError(bodyErr)},
			fmt.Errorf("read probe body: %w", bodyErr)
	}

	if resp.StatusCode != s.cfg.ExpectStatus {
		httpErr := &HTTPError{StatusCode: resp.StatusCode, Body: bodySnippet(body)}
		return metrics.Outcome{Latency: latency, Reason: "HTTP " + strconv.Itoa(resp.StatusCode)}, httpErr
	}
	if s.cfg.ExpectPath != "" {
		if err := matchBody(body, s.cfg.ExpectPath, s.cfg.ExpectValue); err != nil {
			return metrics.Outcome{Latency: latency, Reason: "body mismatch"}, err
		}
	}
	return metrics.Outcome{Latency: latency, OK: true}, nil
}

// Hold issues one hold request and blocks until the server releases it.
// The request carries its own deadline of the hold duration plus slack,
// so Hold always returns in bounded time. A nil return means the hold
// completed cleanly.
func (s *Session) Hold(ctx context.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.HoldFor+holdSlack)
	defer cancel()

	reqCtx, span := tracing.StartRequestSpan(reqCtx, s.cfg.Tracing.Tracer(), "hold", s.holdURL)
	err := s.holdOnce(reqCtx)
	tracing.EndSpan(span, err)
	return err
}

func (s *Session) holdOnce(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.holdURL, nil)
	if err != nil {
		return err
	}
	s.applyHeaders(ctx, req)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, bodyErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyReadSize))
	if bodyErr != nil {
		return fmt.Errorf("read hold body: %w", bodyErr)
	}
	if resp.StatusCode >= 400 {
		return &HTTPError{StatusCode: resp.StatusCode, Body: bodySnippet(body)}
	}
	return nil
}

// Close releases the session's idle connections. The trial calls this after
// its drain completes so the next level starts from a cold pool.
func (s *Session) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Session) applyHeaders(ctx context.Context, req *http.Request) {
	for k, v := range s.cfg.Headers {
		req.Header.Set(k, v)
	}
	if s.cfg.Tracing.ShouldPropagate() {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}
}

func bodySnippet(body []byte) string {
	if len(body) > maxLoggedBodyBytes {
		body = body[:maxLoggedBodyBytes]
	}
	return strings.TrimSpace(string(body))
}
