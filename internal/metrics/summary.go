package metrics

import (
	"math"
	"time"
)

// Summary is the aggregate over one trial's probe outcomes.
type Summary struct {
	Probes    int64   `json:"probes"`
	Failures  int64   `json:"failures"`
	ErrorRate float64 `json:"error_rate"`

	Mean   time.Duration `json:"-"`
	StdDev time.Duration `json:"-"`
	Min    time.Duration `json:"-"`
	Max    time.Duration `json:"-"`
	P50    time.Duration `json:"-"`
	P90    time.Duration `json:"-"`
	P99    time.Duration `json:"-"`

	// JSON-friendly millisecond fields.
	MeanMs   float64 `json:"mean_latency_ms"`
	StdDevMs float64 `json:"stddev_latency_ms"`
	MinMs    float64 `json:"min_latency_ms"`
	MaxMs    float64 `json:"max_latency_ms"`
	P50Ms    float64 `json:"p50_latency_ms"`
	P90Ms    float64 `json:"p90_latency_ms"`
	P99Ms    float64 `json:"p99_latency_ms"`

	// Raw latency sequence in issuance order, kept for distribution plots.
	LatenciesMs []float64 `json:"latencies_ms,omitempty"`

	Errors map[string]int `json:"errors,omitempty"`
}

// Aggregate reduces an outcome sequence to a Summary: mean, population
// standard deviation, min, and max over the latencies, plus the error
// rate (failures / total). The empty sequence yields the sentinel
// all-zero summary with an error rate of 1.0; downstream reporting
// depends on that exact shape, so it is a defined result, not an error.
func Aggregate(outcomes []Outcome) Summary {
	if len(outcomes) == 0 {
		return Summary{ErrorRate: 1.0}
	}

	s := Summary{
		Probes:      int64(len(outcomes)),
		LatenciesMs: make([]float64, 0, len(outcomes)),
	}

	var sum float64
	min := outcomes[0].Latency
	max := outcomes[0].Latency
	for _, o := range outcomes {
		sum += float64(o.Latency)
		if o.Latency < min {
			min = o.Latency
		}
		if o.Latency > max {
			max = o.Latency
		}
		if !o.OK {
			s.Failures++
			if o.Reason != "" {
				if s.Errors == nil {
					s.Errors = make(map[string]int)
				}
				s.Errors[o.Reason]++
			}
		}
		s.LatenciesMs = append(s.LatenciesMs, float64(o.Latency)/float64(time.Millisecond))
	}

	n := float64(len(outcomes))
	mean := sum / n
	var variance float64
	for _, o := range outcomes {
		d := float64(o.Latency) - mean
		variance += d * d
	}
	variance /= n

	s.Mean = time.Duration(mean)
	s.StdDev = time.Duration(math.Sqrt(variance))
	s.Min = min
	s.Max = max
	s.ErrorRate = float64(s.Failures) / n

	s.MeanMs = float64(s.Mean) / float64(time.Millisecond)
	s.StdDevMs = float64(s.StdDev) / float64(time.Millisecond)
	s.MinMs = float64(s.Min) / float64(time.Millisecond)
	s.MaxMs = float64(s.Max) / float64(time.Millisecond)

	return s
}
