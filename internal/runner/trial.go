package runner

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/crowdprobe/crowdprobe/internal/metrics"
	"github.com/crowdprobe/crowdprobe/internal/tracing"
)

// Result captures one completed trial.
type Result struct {
	Level        int             `json:"level"`
	Summary      metrics.Summary `json:"summary"`
	HoldFailures int             `json:"hold_failures"`

	// Elapsed is wall time from hold launch through drain.
	Elapsed   time.Duration `json:"-"`
	ElapsedMs float64       `json:"elapsed_ms"`
}

// Trial measures one concurrency level: it launches Level holds, probes
// the target sequentially until the first hold completes or the safety
// ceiling passes, then drains the remaining holds.
type Trial struct {
	opt Options
}

func New(opt Options) *Trial {
	opt.normalize()
	return &Trial{opt: opt}
}

// Run executes the trial. It returns an error only when the session cannot
// be built; probe and hold failures are data and land in the Result.
func (t *Trial) Run(ctx context.Context) (Result, error) {
	if t.opt.NewSession == nil {
		return Result{}, fmt.Errorf("session factory is required")
	}

	ctx, span := tracing.StartTrialSpan(ctx, t.opt.Tracing.Tracer(), t.opt.Level)

	session, err := t.opt.NewSession(t.opt.Level)
	if err != nil {
		err = fmt.Errorf("create session for level %d: %w", t.opt.Level, err)
		tracing.EndSpan(span, err)
		return Result{}, err
	}
	defer session.Close()

	start := time.Now()

	// Each holder posts exactly one result, so the drain below always
	// terminates.
	done := make(chan error, t.opt.Level)
	for i := 0; i < t.opt.Level; i++ {
		go func() {
			done <- session.Hold(ctx)
		}()
	}

	if t.opt.SettleDelay > 0 {
		select {
		case <-time.After(t.opt.SettleDelay):
		case <-ctx.Done():
		}
	}

	collector := metrics.NewCollector()
	limiter := t.opt.LimiterFactory(t.opt.ProbeRate)
	ceiling := t.opt.HoldFor + t.opt.SafetyMargin
	// The ceiling clock starts once probing begins, after the settle delay.
	probeStart := time.Now()
	settled := 0
	holdFailures := 0

	recordHold := func(err error) {
		settled++
		if err != nil {
			holdFailures++
			if t.opt.OnHoldError != nil {
				t.opt.OnHoldError(t.opt.Level, err)
			}
		}
	}

probing:
	for ctx.Err() == nil && time.Since(probeStart) < ceiling {
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		select {
		case err := <-done:
			// First hold back: the interference window is over.
			recordHold(err)
			break probing
		default:
		}
		outcome := session.Probe(ctx)
		collector.Record(outcome)
		if t.opt.OnProbe != nil {
			t.opt.OnProbe(t.opt.Level, outcome)
		}
	}

	// Drain every remaining hold so the next trial starts against an idle
	// target. Holds carry their own deadlines, so this always returns.
	for settled < t.opt.Level {
		recordHold(<-done)
	}

	summary := collector.Summary()
	elapsed := time.Since(start)
	res := Result{
		Level:        t.opt.Level,
		Summary:      summary,
		HoldFailures: holdFailures,
		Elapsed:      elapsed,
		ElapsedMs:    float64(elapsed) / float64(time.Millisecond),
	}
	tracing.EndSpan(span, nil,
		attribute.Int64("crowdprobe.probes", summary.Probes),
		attribute.Int64("crowdprobe.probe_failures", summary.Failures),
		attribute.Int("crowdprobe.hold_failures", holdFailures),
	)
	return res, nil
}
