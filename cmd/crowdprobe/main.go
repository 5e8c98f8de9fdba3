package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/crowdprobe/crowdprobe/internal/config"
	"github.com/crowdprobe/crowdprobe/internal/dashboard"
	"github.com/crowdprobe/crowdprobe/internal/metrics"
	"github.com/crowdprobe/crowdprobe/internal/output"
	"github.com/crowdprobe/crowdprobe/internal/probe"
	"github.com/crowdprobe/crowdprobe/internal/runner"
	"github.com/crowdprobe/crowdprobe/internal/sweep"
	"github.com/crowdprobe/crowdprobe/internal/testserver"
	"github.com/crowdprobe/crowdprobe/internal/threshold"
	"github.com/crowdprobe/crowdprobe/internal/tracing"
)

const (
	progressInterval = 500 * time.Millisecond
	shutdownTimeout  = 5 * time.Second
)

// stderrLogger serializes progress and failure lines on stderr so they
// never interleave with the JSON or table output on stdout.
type stderrLogger struct {
	mu sync.Mutex
}

func (l *stderrLogger) Logf(format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(os.Stderr, "[crowdprobe] "+format+"\n", args...)
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Serve {
		return testserver.New(cfg.ServeAddr).Run(ctx)
	}

	// A bad threshold expression fails here, before any traffic is sent.
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "[crowdprobe] tracing shutdown: %v\n", err)
		}
	}()

	runID := ulid.Make().String()
	errLog := &stderrLogger{}

	probeCfg := probe.Config{
		TargetURL:    cfg.TargetURL,
		HoldFor:      cfg.HoldDuration,
		ProbeTimeout: cfg.ProbeTimeout,
		PoolHeadroom: cfg.PoolHeadroom,
		ExpectStatus: cfg.ExpectStatus,
		ExpectPath:   cfg.ExpectPath,
		ExpectValue:  cfg.ExpectValue,
		Headers:      cfg.Headers,
		Tracing:      tp,
	}

	// The dashboard's quit key needs a way to stop the sweep without a
	// process signal.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(dashboard.SweepConfig{
			TargetURL:    cfg.TargetURL,
			RunID:        runID,
			Levels:       cfg.Levels,
			Hold:         cfg.HoldDuration,
			ProbeTimeout: cfg.ProbeTimeout,
			ProbeRate:    cfg.ProbeRate,
			ConfigFile:   cfg.ConfigFile,
		}, cancel)
		if err != nil {
			return err
		}
		dash.Start()
		defer dash.Stop()
	}

	var progress *output.ProgressReporter
	if !cfg.JSONOutput && !cfg.Dashboard {
		progress = output.NewProgressReporter(progressInterval, os.Stdout)
		progress.Start()
		defer progress.Stop()
	}

	onProbe := func(level int, outcome metrics.Outcome) {
		if progress != nil {
			progress.ObserveProbe(level, outcome)
		}
		if dash != nil {
			dash.ObserveProbe(level, outcome)
		}
		if cfg.LogErrors && dash == nil && !outcome.OK {
			reason := outcome.Reason
			if reason == "" {
				reason = "failed"
			}
			errLog.Logf("probe failed at N=%d: %s", level, reason)
		}
	}
	onHoldError := func(level int, err error) {
		if dash != nil {
			dash.ObserveHoldError(level, err)
			return
		}
		if cfg.LogErrors {
			errLog.Logf("hold failed at N=%d: %v", level, err)
		}
	}

	runTrial := func(ctx context.Context, level int) (runner.Result, error) {
		trial := runner.New(runner.Options{
			Level:        level,
			HoldFor:      cfg.HoldDuration,
			SettleDelay:  cfg.SettleDelay,
			SafetyMargin: cfg.SafetyMargin,
			ProbeRate:    cfg.ProbeRate,
			NewSession: func(level int) (runner.Session, error) {
				return probe.NewSession(probeCfg, level)
			},
			OnProbe:     onProbe,
			OnHoldError: onHoldError,
			Tracing:     tp,
		})
		return trial.Run(ctx)
	}

	sweepOpts := sweep.Options{
		Levels:   cfg.Levels,
		Cooldown: cfg.Cooldown,
		RunID:    runID,
		RunTrial: runTrial,
		Tracing:  tp,
	}
	switch {
	case dash != nil:
		sweepOpts.Observer = dash
	case progress != nil:
		sweepOpts.Observer = progress
	}
	if !cfg.Dashboard {
		sweepOpts.Logger = errLog
	}

	// A first interrupt lets the trial in flight finish and drain; stop()
	// restores default signal handling so a second interrupt kills the
	// process outright.
	sweepDone := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			stop()
			if !cfg.Dashboard {
				errLog.Logf("interrupt received, letting the trial in flight finish (interrupt again to abort)")
			}
		case <-sweepDone:
		}
	}()

	results := sweep.New(sweepOpts).Run(ctx)
	close(sweepDone)

	// The terminal has to be back in its normal state before the report
	// prints; both stops are safe to repeat when the defers run.
	if progress != nil {
		progress.Stop()
		fmt.Fprintln(os.Stdout)
	}
	if dash != nil {
		dash.Stop()
	}

	if len(results) == 0 {
		return errors.New("no trials completed, nothing to report")
	}

	meta := output.Meta{
		RunID:       runID,
		Target:      cfg.TargetURL,
		HoldSeconds: cfg.HoldDuration.Seconds(),
		Levels:      cfg.Levels,
		GeneratedAt: time.Now(),
	}
	thresholdResults := threshold.NewEvaluator(thresholds).Evaluate(results)

	if cfg.JSONOutput {
		if err := output.PrintJSONReport(os.Stdout, results, meta); err != nil {
			return err
		}
	} else {
		output.PrintReport(os.Stdout, results, meta)
	}

	if cfg.ChartOutput != "" {
		if err := output.WriteBoxPlot(cfg.ChartOutput, results, meta); err != nil {
			return fmt.Errorf("write box plot: %w", err)
		}
		errLog.Logf("box plot written to %s", cfg.ChartOutput)
	}

	if cfg.HTMLOutput != "" {
		var buf bytes.Buffer
		if err := output.GenerateHTMLReport(&buf, results, thresholdResults, meta); err != nil {
			return fmt.Errorf("render HTML report: %w", err)
		}
		if err := output.WriteFile(cfg.HTMLOutput, buf.Bytes()); err != nil {
			return fmt.Errorf("write HTML report: %w", err)
		}
		errLog.Logf("HTML report written to %s", cfg.HTMLOutput)
	}

	return reportThresholds(os.Stderr, thresholdResults)
}

// reportThresholds prints one line per threshold and returns an error when
// any failed, so the process exits nonzero on a violated limit.
func reportThresholds(w io.Writer, results []threshold.Result) error {
	if len(results) == 0 {
		return nil
	}
	failed := 0
	fmt.Fprintln(w, "\nThresholds:")
	for _, r := range results {
		fmt.Fprintf(w, "  %s\n", r.Message)
		if !r.Pass {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d thresholds failed", failed, len(results))
	}
	return nil
}
