// Package sweep steps through the configured concurrency levels, running
// one trial per level with a cooldown in between.
package sweep

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/crowdprobe/crowdprobe/internal/runner"
	"github.com/crowdprobe/crowdprobe/internal/tracing"
)

// Logger receives the sweep's progress lines.
type Logger interface {
	Logf(format string, args ...interface{})
}

// Observer receives sweep progress events. All methods are called from the
// sweep goroutine.
type Observer interface {
	TrialStarted(level, index, total int)
	TrialCompleted(res runner.Result)
}

// Options configure a sweep.
type Options struct {
	Levels   []int         // concurrency levels, run in order
	Cooldown time.Duration // pause between consecutive trials
	RunID    string        // identifier stamped on the sweep span

	// RunTrial executes one trial at the given level. Required.
	RunTrial func(ctx context.Context, level int) (runner.Result, error)

	Logger   Logger            // optional progress logging
	Observer Observer          // optional progress events
	Tracing  *tracing.Provider // optional span emission, nil disables
}

// Controller owns the level-by-level execution of a sweep.
type Controller struct {
	opt Options
}

func New(opt Options) *Controller {
	return &Controller{opt: opt}
}

// Run executes one trial per configured level, in order, and returns the
// results of the trials that ran. A canceled context stops the sweep
// between trials; the trial already in flight runs to completion. A trial
// that fails to start is logged and skipped, so its level is simply absent
// from the results.
func (c *Controller) Run(ctx context.Context) []runner.Result {
	if c.opt.RunTrial == nil {
		return nil
	}

	ctx, span := tracing.StartSweepSpan(ctx, c.opt.Tracing.Tracer(), c.opt.RunID, c.opt.Levels)
	var results []runner.Result
	defer func() {
		tracing.EndSpan(span, nil, attribute.Int("crowdprobe.trials_completed", len(results)))
	}()

	total := len(c.opt.Levels)
	for i, level := range c.opt.Levels {
		if i > 0 && c.opt.Cooldown > 0 {
			select {
			case <-time.After(c.opt.Cooldown):
			case <-ctx.Done():
			}
		}
		if ctx.Err() != nil {
			c.logf("sweep interrupted, %d of %d trials done", len(results), total)
			break
		}

		if c.opt.Observer != nil {
			c.opt.Observer.TrialStarted(level, i+1, total)
		}
		c.logf("trial %d/%d: launching %d holds", i+1, total, level)

		// The in-flight trial is allowed to finish even when the sweep is
		// being stopped; interruption takes effect at the next level.
		res, err := c.opt.RunTrial(context.WithoutCancel(ctx), level)
		if err != nil {
			c.logf("trial at level %d failed: %v", level, err)
			continue
		}

		results = append(results, res)
		if c.opt.Observer != nil {
			c.opt.Observer.TrialCompleted(res)
		}
		c.logf("trial %d/%d done: %d probes, error rate %.2f, %d hold failures, elapsed %s",
			i+1, total, res.Summary.Probes, res.Summary.ErrorRate, res.HoldFailures,
			res.Elapsed.Round(time.Millisecond))
	}

	return results
}

func (c *Controller) logf(format string, args ...interface{}) {
	if c.opt.Logger != nil {
		c.opt.Logger.Logf(format, args...)
	}
}
