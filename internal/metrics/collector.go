package metrics

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Sample values are recorded in thousandths so fractional results such as
// packet loss keep three decimals in the histogram.
const valueScale = 1000

// Collector aggregates task events in memory.
type Collector struct {
	mu       sync.Mutex
	types    map[string]*typeMetrics
	started  int64
	finished int64
	rejected int64
	outcomes map[string]int64
	start    time.Time
}

type typeMetrics struct {
	values    *hdrhistogram.Histogram
	durations *hdrhistogram.Histogram
	tasks     int64
	samples   int64
	minValue  float64
	maxValue  float64
	sumValue  float64
	sumDur    time.Duration
	outcomes  map[string]int64
}

func newTypeMetrics() *typeMetrics {
	return &typeMetrics{
		// Values from 0.001 up to 10,000 with 3 significant figures.
		values: hdrhistogram.New(1, 10_000*valueScale, 3),
		// Task durations from 1µs up to 10 minutes.
		durations: hdrhistogram.New(1, 600_000_000, 3),
		minValue:  math.Inf(1),
		outcomes:  make(map[string]int64),
	}
}

// Stats represents aggregated metrics.
type Stats struct {
	Started  int64            `json:"started" yaml:"started"`
	Finished int64            `json:"finished" yaml:"finished"`
	Rejected int64            `json:"rejected" yaml:"rejected"`
	Active   int64            `json:"active" yaml:"active"`
	Outcomes map[string]int64 `json:"outcomes,omitempty" yaml:"outcomes,omitempty"`
	Types    []TypeStats      `json:"types,omitempty" yaml:"types,omitempty"`

	Duration   time.Duration `json:"-" yaml:"-"`
	DurationMs float64       `json:"duration_ms" yaml:"duration_ms"`
}

// TypeStats is the breakdown for one test type.
type TypeStats struct {
	Type      string  `json:"type" yaml:"type"`
	Tasks     int64   `json:"tasks" yaml:"tasks"`
	Samples   int64   `json:"samples" yaml:"samples"`
	MinValue  float64 `json:"min_value" yaml:"min_value"`
	MaxValue  float64 `json:"max_value" yaml:"max_value"`
	MeanValue float64 `json:"mean_value" yaml:"mean_value"`
	P50Value  float64 `json:"p50_value" yaml:"p50_value"`
	P90Value  float64 `json:"p90_value" yaml:"p90_value"`
	P99Value  float64 `json:"p99_value" yaml:"p99_value"`

	MeanDuration time.Duration `json:"-" yaml:"-"`
	P50Duration  time.Duration `json:"-" yaml:"-"`
	P99Duration  time.Duration `json:"-" yaml:"-"`

	// JSON-friendly millisecond fields.
	MeanDurationMs float64 `json:"mean_duration_ms" yaml:"mean_duration_ms"`
	P50DurationMs  float64 `json:"p50_duration_ms" yaml:"p50_duration_ms"`
	P99DurationMs  float64 `json:"p99_duration_ms" yaml:"p99_duration_ms"`

	Outcomes map[string]int64 `json:"outcomes,omitempty" yaml:"outcomes,omitempty"`
}

func NewCollector() *Collector {
	return &Collector{
		types:    make(map[string]*typeMetrics),
		outcomes: make(map[string]int64),
		start:    time.Now(),
	}
}

func (c *Collector) typeLocked(testType string) *typeMetrics {
	tm, ok := c.types[testType]
	if !ok {
		tm = newTypeMetrics()
		c.types[testType] = tm
	}
	return tm
}

func (c *Collector) TaskStarted(testType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started++
	c.typeLocked(testType).tasks++
}

func (c *Collector) SampleRecorded(testType string, value float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tm := c.typeLocked(testType)
	tm.samples++
	tm.sumValue += value
	tm.minValue = math.Min(tm.minValue, value)
	tm.maxValue = math.Max(tm.maxValue, value)
	recordClamped(tm.values, int64(math.Round(value*valueScale)))
}

func (c *Collector) TaskFinished(testType, outcome string, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.finished++
	c.outcomes[outcome]++
	tm := c.typeLocked(testType)
	tm.outcomes[outcome]++
	tm.sumDur += elapsed
	if elapsed > 0 {
		recordClamped(tm.durations, elapsed.Microseconds())
	}
}

func (c *Collector) TaskRejected(testType, outcome string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rejected++
	c.outcomes[outcome]++
	c.typeLocked(testType).outcomes[outcome]++
}

func recordClamped(h *hdrhistogram.Histogram, v int64) {
	if v < h.LowestTrackableValue() {
		v = h.LowestTrackableValue()
	}
	if v > h.HighestTrackableValue() {
		v = h.HighestTrackableValue()
	}
	_ = h.RecordValue(v)
}

// Stats computes and returns current aggregated statistics. Types are sorted
// by name.
func (c *Collector) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := time.Since(c.start)
	stats := Stats{
		Started:    c.started,
		Finished:   c.finished,
		Rejected:   c.rejected,
		Active:     c.started - c.finished,
		Outcomes:   copyCounts(c.outcomes),
		Duration:   elapsed,
		DurationMs: float64(elapsed) / float64(time.Millisecond),
	}

	names := make([]string, 0, len(c.types))
	for name := range c.types {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		tm := c.types[name]
		ts := TypeStats{
			Type:     name,
			Tasks:    tm.tasks,
			Samples:  tm.samples,
			Outcomes: copyCounts(tm.outcomes),
		}
		if tm.samples > 0 {
			ts.MinValue = tm.minValue
			ts.MaxValue = tm.maxValue
			ts.MeanValue = tm.sumValue / float64(tm.samples)
			ts.P50Value = float64(tm.values.ValueAtQuantile(50)) / valueScale
			ts.P90Value = float64(tm.values.ValueAtQuantile(90)) / valueScale
			ts.P99Value = float64(tm.values.ValueAtQuantile(99)) / valueScale
		}
		if n := tm.durations.TotalCount(); n > 0 {
			ts.MeanDuration = time.Duration(int64(tm.sumDur) / n)
			ts.P50Duration = time.Duration(tm.durations.ValueAtQuantile(50)) * time.Microsecond
			ts.P99Duration = time.Duration(tm.durations.ValueAtQuantile(99)) * time.Microsecond
		}
		ts.MeanDurationMs = float64(ts.MeanDuration) / float64(time.Millisecond)
		ts.P50DurationMs = float64(ts.P50Duration) / float64(time.Millisecond)
		ts.P99DurationMs = float64(ts.P99Duration) / float64(time.Millisecond)
		stats.Types = append(stats.Types, ts)
	}

	return stats
}

func copyCounts(src map[string]int64) map[string]int64 {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
