// Package threshold turns sweep results into a pass/fail verdict. Each
// threshold is an assertion over the whole sweep, judged against the worst
// trial, so a sweep only passes when every level stayed inside the limit.
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/crowdprobe/crowdprobe/internal/metrics"
	"github.com/crowdprobe/crowdprobe/internal/runner"
)

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // e.g., "probe_latency", "error_rate"
	Aggregate string  // e.g., "p99", "avg", "max", "min", "total"
	Operator  string  // e.g., "<", "<=", ">", ">=", "=="
	Value     float64 // The threshold value to compare against
	Raw       string  // Original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold
	Actual    float64
	Level     int // concurrency level that produced Actual, 0 if aggregated over all
	Pass      bool
	Message   string
}

// Evaluator evaluates thresholds against a sweep's trial results.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks all thresholds against the trial results.
func (e *Evaluator) Evaluate(results []runner.Result) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	evaluated := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		evaluated = append(evaluated, evaluateOne(t, results))
	}
	return evaluated
}

func evaluateOne(t Threshold, results []runner.Result) Result {
	if len(results) == 0 {
		return Result{
			Threshold: t,
			Pass:      false,
			Message:   fmt.Sprintf("✗ %s: no trial results", t.Raw),
		}
	}

	actual, level, err := extractMetricValue(t, results)
	if err != nil {
		return Result{
			Threshold: t,
			Actual:    0,
			Pass:      false,
			Message:   fmt.Sprintf("error: %v", err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	message := fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value)
	if level > 0 {
		message += fmt.Sprintf(" (worst at level %d)", level)
	}
	return Result{
		Threshold: t,
		Actual:    actual,
		Level:     level,
		Pass:      pass,
		Message:   message,
	}
}

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
//   - "probe_latency:p99 < 500"    (latency percentile in ms, worst trial)
//   - "probe_latency:avg < 200"    (mean latency in ms, worst trial)
//   - "probe_latency:stddev < 50"  (latency spread in ms, worst trial)
//   - "error_rate:max < 0.01"      (failure rate as decimal, worst trial)
//   - "probes:min > 10"            (fewest probes any trial managed)
//   - "hold_failures:total == 0"   (holds that failed across the sweep)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	// Pattern: metric:aggregate operator value
	// e.g., "probe_latency:p99 < 500"
	pattern := regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)
	matches := pattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric:aggregate operator value, e.g., 'probe_latency:p99 < 500')", s)
	}

	metric := matches[1]
	aggregate := matches[2]
	operator := matches[3]
	valueStr := matches[4]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	if !isValidMetric(metric) {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: probe_latency, error_rate, probes, hold_failures)", metric)
	}

	if !isValidAggregate(metric, aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for metric %q", aggregate, metric)
	}

	if !isValidOperator(operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errors []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errors = append(errors, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errors, "; "))
	}

	return result, nil
}

var validAggregates = map[string][]string{
	"probe_latency": {"avg", "mean", "stddev", "min", "max", "p50", "p90", "p95", "p99"},
	"error_rate":    {"max", "avg", "mean"},
	"probes":        {"min", "total"},
	"hold_failures": {"max", "total"},
}

func isValidMetric(metric string) bool {
	_, ok := validAggregates[metric]
	return ok
}

func isValidAggregate(metric, aggregate string) bool {
	for _, v := range validAggregates[metric] {
		if aggregate == v {
			return true
		}
	}
	return false
}

func isValidOperator(operator string) bool {
	valid := []string{"<", "<=", ">", ">=", "=="}
	for _, v := range valid {
		if operator == v {
			return true
		}
	}
	return false
}

func extractMetricValue(t Threshold, results []runner.Result) (float64, int, error) {
	switch t.Metric {
	case "probe_latency":
		return worstLatency(t.Aggregate, results)
	case "error_rate":
		return errorRate(t.Aggregate, results)
	case "probes":
		return probeCount(t.Aggregate, results)
	case "hold_failures":
		return holdFailures(t.Aggregate, results)
	default:
		return 0, 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

// worstLatency picks the chosen latency aggregate from each trial and
// returns the highest one together with its level.
func worstLatency(aggregate string, results []runner.Result) (float64, int, error) {
	pick := func(s metrics.Summary) (float64, error) {
		switch aggregate {
		case "avg", "mean":
			return s.MeanMs, nil
		case "stddev":
			return s.StdDevMs, nil
		case "min":
			return s.MinMs, nil
		case "max":
			return s.MaxMs, nil
		case "p50":
			return s.P50Ms, nil
		case "p90":
			return s.P90Ms, nil
		case "p95":
			// Approximate p95 from p90 and p99
			return (s.P90Ms + s.P99Ms) / 2, nil
		case "p99":
			return s.P99Ms, nil
		default:
			return 0, fmt.Errorf("unsupported aggregate %q for probe_latency", aggregate)
		}
	}

	worst := math.Inf(-1)
	level := 0
	for _, r := range results {
		v, err := pick(r.Summary)
		if err != nil {
			return 0, 0, err
		}
		if v > worst {
			worst = v
			level = r.Level
		}
	}
	return worst, level, nil
}

func errorRate(aggregate string, results []runner.Result) (float64, int, error) {
	switch aggregate {
	case "max":
		worst := math.Inf(-1)
		level := 0
		for _, r := range results {
			if r.Summary.ErrorRate > worst {
				worst = r.Summary.ErrorRate
				level = r.Level
			}
		}
		return worst, level, nil
	case "avg", "mean":
		var sum float64
		for _, r := range results {
			sum += r.Summary.ErrorRate
		}
		return sum / float64(len(results)), 0, nil
	default:
		return 0, 0, fmt.Errorf("unsupported aggregate %q for error_rate (use 'max' or 'avg')", aggregate)
	}
}

func probeCount(aggregate string, results []runner.Result) (float64, int, error) {
	switch aggregate {
	case "min":
		fewest := math.Inf(1)
		level := 0
		for _, r := range results {
			if v := float64(r.Summary.Probes); v < fewest {
				fewest = v
				level = r.Level
			}
		}
		return fewest, level, nil
	case "total":
		var sum float64
		for _, r := range results {
			sum += float64(r.Summary.Probes)
		}
		return sum, 0, nil
	default:
		return 0, 0, fmt.Errorf("unsupported aggregate %q for probes (use 'min' or 'total')", aggregate)
	}
}

func holdFailures(aggregate string, results []runner.Result) (float64, int, error) {
	switch aggregate {
	case "max":
		worst := math.Inf(-1)
		level := 0
		for _, r := range results {
			if v := float64(r.HoldFailures); v > worst {
				worst = v
				level = r.Level
			}
		}
		return worst, level, nil
	case "total":
		var sum float64
		for _, r := range results {
			sum += float64(r.HoldFailures)
		}
		return sum, 0, nil
	default:
		return 0, 0, fmt.Errorf("unsupported aggregate %q for hold_failures (use 'max' or 'total')", aggregate)
	}
}

func compareValues(actual float64, operator string, expected float64) bool {
	// Handle floating point comparison with small epsilon
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
