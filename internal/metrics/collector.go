package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Outcome is the measurement of a single probe: how long the round trip
// took and whether it counted as a success. Latency is always the real
// elapsed time, even for failures, so a fast refusal and a slow timeout
// stay distinguishable. Reason is empty for successes and a short label
// ("timeout", "HTTP 500", ...) otherwise.
type Outcome struct {
	Latency time.Duration
	OK      bool
	Reason  string
}

// Collector records probe outcomes for one trial in a thread-safe manner.
// The raw outcome sequence is retained for exact aggregation and
// distribution plotting; the histogram gives constant-memory percentiles.
type Collector struct {
	mu       sync.Mutex
	hist     *hdrhistogram.Histogram
	outcomes []Outcome
}

func NewCollector() *Collector {
	// Track latencies from 1µs up to 60s with 3 significant figures.
	h := hdrhistogram.New(1, 60_000_000, 3)
	return &Collector{hist: h}
}

// Record appends a single probe outcome.
func (c *Collector) Record(o Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if o.Latency > 0 {
		us := o.Latency.Microseconds()
		if us < c.hist.LowestTrackableValue() {
			us = c.hist.LowestTrackableValue()
		}
		if us > c.hist.HighestTrackableValue() {
			us = c.hist.HighestTrackableValue()
		}
		_ = c.hist.RecordValue(us)
	}

	c.outcomes = append(c.outcomes, o)
}

// Count reports how many outcomes were recorded and how many failed.
func (c *Collector) Count() (total, failures int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	total = int64(len(c.outcomes))
	for _, o := range c.outcomes {
		if !o.OK {
			failures++
		}
	}
	return total, failures
}

// Summary aggregates everything recorded so far. Exact moments (mean,
// population standard deviation, min, max) come from the retained raw
// sequence; percentiles come from the histogram.
func (c *Collector) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Aggregate(c.outcomes)

	if c.hist.TotalCount() > 0 {
		s.P50 = time.Duration(c.hist.ValueAtQuantile(50)) * time.Microsecond
		s.P90 = time.Duration(c.hist.ValueAtQuantile(90)) * time.Microsecond
		s.P99 = time.Duration(c.hist.ValueAtQuantile(99)) * time.Microsecond
		s.P50Ms = float64(s.P50) / float64(time.Millisecond)
		s.P90Ms = float64(s.P90) / float64(time.Millisecond)
		s.P99Ms = float64(s.P99) / float64(time.Millisecond)
	}

	return s
}
