package runner

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/crowdprobe/crowdprobe/internal/metrics"
	"github.com/crowdprobe/crowdprobe/internal/tracing"
)

// Session abstracts the HTTP side of a trial: long holds that occupy the
// target and sequential probes that measure it. Probe is only called from
// the trial goroutine; Hold is called from one goroutine per hold.
type Session interface {
	Probe(ctx context.Context) metrics.Outcome
	Hold(ctx context.Context) error
	Close() error
}

// Options configure a single trial.
type Options struct {
	Level        int           // number of concurrent holds
	HoldFor      time.Duration // wait duration the holds request
	SettleDelay  time.Duration // pause between launching holds and the first probe
	SafetyMargin time.Duration // probing stops at HoldFor+SafetyMargin even if no hold completed
	ProbeRate    int           // probes per second limit (0 means back-to-back)

	// NewSession builds the session for this trial. Each trial gets a fresh
	// session so connection pools are sized to its level. Required.
	NewSession func(level int) (Session, error)

	// OnProbe is invoked after every probe with its outcome. Optional.
	OnProbe func(level int, outcome metrics.Outcome)

	// OnHoldError is invoked for every hold that did not complete cleanly. Optional.
	OnHoldError func(level int, err error)

	Tracing *tracing.Provider // optional span emission, nil disables

	LimiterFactory func(rps int) *rate.Limiter // optional injection for tests
}

func (o *Options) normalize() {
	if o.Level <= 0 {
		o.Level = 1
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	}
	if o.SafetyMargin < 0 {
		o.SafetyMargin = 0
	}
	if o.ProbeRate < 0 {
		o.ProbeRate = 0
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			// Burst of one keeps probes strictly spaced rather than front-loaded.
			return rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}
