// Package threshold evaluates pass/fail assertions such as
// "download:avg > 25" against collected metrics.
package threshold

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/torosent/linkprobe/internal/measure"
	"github.com/torosent/linkprobe/internal/metrics"
)

// MetricTasks addresses the totals across every test type.
const MetricTasks = "tasks"

const epsilon = 1e-9

// Threshold is one parsed assertion.
type Threshold struct {
	Metric    string // canonical test type name, or MetricTasks
	Aggregate string
	Operator  string
	Value     float64
	Raw       string
}

// Result is the verdict for one threshold.
type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

type typeAggregate struct {
	// sampled aggregates are undefined until a sample was recorded.
	sampled bool
	value   func(metrics.TypeStats) float64
}

var typeAggregates = map[string]typeAggregate{
	"p50":             {true, func(ts metrics.TypeStats) float64 { return ts.P50Value }},
	"p90":             {true, func(ts metrics.TypeStats) float64 { return ts.P90Value }},
	"p99":             {true, func(ts metrics.TypeStats) float64 { return ts.P99Value }},
	"avg":             {true, func(ts metrics.TypeStats) float64 { return ts.MeanValue }},
	"mean":            {true, func(ts metrics.TypeStats) float64 { return ts.MeanValue }},
	"min":             {true, func(ts metrics.TypeStats) float64 { return ts.MinValue }},
	"max":             {true, func(ts metrics.TypeStats) float64 { return ts.MaxValue }},
	"count":           {false, func(ts metrics.TypeStats) float64 { return float64(ts.Tasks) }},
	"failed":          {false, func(ts metrics.TypeStats) float64 { return failures(ts.Outcomes).count() }},
	"failed_rate":     {false, func(ts metrics.TypeStats) float64 { return failures(ts.Outcomes).rate() }},
	"duration_ms":     {false, func(ts metrics.TypeStats) float64 { return ts.MeanDurationMs }},
	"duration_p99_ms": {false, func(ts metrics.TypeStats) float64 { return ts.P99DurationMs }},
}

var totalAggregates = map[string]func(metrics.Stats) float64{
	"count":       func(s metrics.Stats) float64 { return float64(s.Started + s.Rejected) },
	"failed":      func(s metrics.Stats) float64 { return failures(s.Outcomes).count() },
	"failed_rate": func(s metrics.Stats) float64 { return failures(s.Outcomes).rate() },
	"rejected":    func(s metrics.Stats) float64 { return float64(s.Rejected) },
}

var operators = map[string]func(actual, want float64) bool{
	"<":  func(a, w float64) bool { return a < w },
	"<=": func(a, w float64) bool { return a <= w || math.Abs(a-w) < epsilon },
	">":  func(a, w float64) bool { return a > w },
	">=": func(a, w float64) bool { return a >= w || math.Abs(a-w) < epsilon },
	"==": func(a, w float64) bool { return math.Abs(a-w) < epsilon },
}

var thresholdPattern = regexp.MustCompile(`^([a-z_-]+):([a-z0-9_]+)\s*([<>=!]+)\s*([0-9.]+)$`)

// Parse reads "metric:aggregate op value". The metric is a test type name
// (aliases such as "ping" are accepted) or "tasks". Examples:
//
//	download:avg > 25
//	latency:p99 < 150
//	upload:duration_ms < 9000
//	tasks:failed_rate < 0.1
func Parse(s string) (Threshold, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Threshold{}, errors.New("empty threshold string")
	}

	m := thresholdPattern.FindStringSubmatch(strings.ToLower(raw))
	if m == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected metric:aggregate operator value, e.g. 'latency:p99 < 150')", raw)
	}
	t := Threshold{Metric: m[1], Aggregate: m[2], Operator: m[3], Raw: raw}

	value, err := strconv.ParseFloat(m[4], 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %w", m[4], err)
	}
	t.Value = value

	if t.Metric == MetricTasks {
		if _, ok := totalAggregates[t.Aggregate]; !ok {
			return Threshold{}, fmt.Errorf("unsupported aggregate for %s: %q (supported: %s)", MetricTasks, t.Aggregate, keys(totalAggregates))
		}
	} else {
		tt, err := measure.ParseTestType(t.Metric)
		if err != nil {
			return Threshold{}, fmt.Errorf("unsupported metric: %q (use a test type or %q)", t.Metric, MetricTasks)
		}
		t.Metric = tt.String()
		if _, ok := typeAggregates[t.Aggregate]; !ok {
			return Threshold{}, fmt.Errorf("unsupported aggregate: %q (supported: %s)", t.Aggregate, keys(typeAggregates))
		}
	}

	if _, ok := operators[t.Operator]; !ok {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: %s)", t.Operator, keys(operators))
	}
	return t, nil
}

// ParseMultiple parses every entry and reports all malformed ones together.
func ParseMultiple(specs []string) ([]Threshold, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	out := make([]Threshold, 0, len(specs))
	var problems []string
	for i, s := range specs {
		t, err := Parse(s)
		if err != nil {
			problems = append(problems, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		out = append(out, t)
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(problems, "; "))
	}
	return out, nil
}

// Evaluator checks a fixed set of thresholds.
type Evaluator struct {
	thresholds []Threshold
}

func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{thresholds: thresholds}
}

// Evaluate returns one Result per threshold, in order, or nil when there are
// none.
func (e *Evaluator) Evaluate(stats metrics.Stats) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}
	results := make([]Result, len(e.thresholds))
	for i, t := range e.thresholds {
		results[i] = evaluate(t, stats)
	}
	return results
}

// Failed counts the results that did not pass.
func Failed(results []Result) int {
	n := 0
	for _, r := range results {
		if !r.Pass {
			n++
		}
	}
	return n
}

func evaluate(t Threshold, stats metrics.Stats) Result {
	actual, err := extractMetricValue(t, stats)
	if err != nil {
		return Result{Threshold: t, Message: fmt.Sprintf("✗ %s: %v", t.Raw, err)}
	}
	pass := compareValues(actual, t.Operator, t.Value)
	mark := "✓"
	if !pass {
		mark = "✗"
	}
	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.2f %s %.2f", mark, t.Raw, actual, t.Operator, t.Value),
	}
}

func extractMetricValue(t Threshold, stats metrics.Stats) (float64, error) {
	if t.Metric == MetricTasks {
		fn, ok := totalAggregates[t.Aggregate]
		if !ok {
			return 0, fmt.Errorf("unsupported aggregate %q for %s", t.Aggregate, MetricTasks)
		}
		return fn(stats), nil
	}

	agg, ok := typeAggregates[t.Aggregate]
	if !ok {
		return 0, fmt.Errorf("unsupported aggregate %q for %s", t.Aggregate, t.Metric)
	}
	for _, ts := range stats.Types {
		if ts.Type != t.Metric {
			continue
		}
		if agg.sampled && ts.Samples == 0 {
			return 0, fmt.Errorf("%s recorded no samples", ts.Type)
		}
		return agg.value(ts), nil
	}
	return 0, fmt.Errorf("no %s tests were run", t.Metric)
}

func compareValues(actual float64, operator string, want float64) bool {
	cmp, ok := operators[operator]
	return ok && cmp(actual, want)
}

// failures splits outcome counts into failed and settled. Every outcome
// other than "none" is a failure, cancellations included.
type failures map[string]int64

func (f failures) count() float64 {
	var n int64
	for outcome, c := range f {
		if outcome != "none" {
			n += c
		}
	}
	return float64(n)
}

func (f failures) rate() float64 {
	var settled int64
	for _, c := range f {
		settled += c
	}
	if settled == 0 {
		return 0
	}
	return f.count() / float64(settled)
}

func keys[V any](m map[string]V) string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return strings.Join(out, ", ")
}
