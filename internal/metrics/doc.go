// Package metrics provides probe outcome collection and aggregation for
// concurrency-interference trials.
//
// Every probe produces one [Outcome]: the end-to-end latency and a
// success flag. Latency is recorded even when the probe fails, so the
// aggregate can distinguish a fast connection refusal from a slow
// timeout.
//
// # Collector
//
// A trial owns one [Collector] and records into it from the probe loop:
//
//	collector := metrics.NewCollector()
//	collector.Record(metrics.Outcome{Latency: elapsed, OK: true})
//
//	// At trial end
//	summary := collector.Summary()
//
// The collector keeps the raw outcome sequence for exact moments and
// distribution plotting, and an HDR histogram (1µs..60s, 3 significant
// figures) for constant-memory P50/P90/P99.
//
// # Aggregation
//
// [Aggregate] is the pure reduction over an outcome sequence: mean,
// population standard deviation, min, max, and error rate. The empty
// sequence maps to a defined sentinel (all-zero statistics, error rate
// 1.0) rather than an error; a trial whose probing window closed before
// any probe ran reports that sentinel.
//
// # Thread Safety
//
// The Collector serializes access with a mutex. Within one trial probes
// are issued sequentially, so contention is nil in practice; the lock
// exists so live observers (dashboard, progress logging) can read counts
// while the probe loop runs.
package metrics
