// Package runner provides the trial execution engine for crowdprobe.
//
// A trial is the unit of measurement: for one concurrency level it launches
// that many hold requests in the background, then measures the target with
// strictly sequential probes while the holds are in flight. The trial ends
// its probing phase at the first hold completion, or at a safety ceiling of
// the hold duration plus a margin if no completion is observed, and then
// waits for every remaining hold before returning. The drain is what lets
// trials run back to back without one level's leftover work polluting the
// next level's numbers.
//
// # Basic Usage
//
// Create a trial with options and a session factory:
//
//	opts := runner.Options{
//		Level:        100,
//		HoldFor:      20 * time.Second,
//		SettleDelay:  time.Second,
//		SafetyMargin: 5 * time.Second,
//		NewSession:   newSession,
//	}
//	res, err := runner.New(opts).Run(ctx)
//
// # Session Interface
//
// The [Session] interface defines the two request shapes a trial issues:
//
//	type Session interface {
//		Probe(ctx context.Context) metrics.Outcome
//		Hold(ctx context.Context) error
//		Close() error
//	}
//
// Probe is always called from a single goroutine, so probe latencies are
// free of client-side queueing between probes. Hold is called from one
// goroutine per hold and must return in bounded time even when the server
// never answers.
//
// # Completion Signaling
//
// Holds report completion on a buffered channel sized to the level. The
// probe loop polls it without blocking between probes, so a completion is
// always observed before the next probe is issued, and the final drain
// receives exactly one result per hold.
//
// # Pacing
//
// Probes run back to back by default. Set ProbeRate to cap them at a fixed
// number per second; pacing is applied before the completion check so a
// paced trial still stops promptly once a hold returns.
package runner
