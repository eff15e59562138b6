package metrics

import (
	"errors"
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// ExporterOptions controls collector configuration.
type ExporterOptions struct {
	ValueBuckets    []float64
	DurationBuckets []float64
}

// PromExporter reports task events as Prometheus collectors.
type PromExporter struct {
	tasksStarted  *prom.CounterVec
	tasksFinished *prom.CounterVec
	tasksRejected *prom.CounterVec
	tasksActive   prom.Gauge
	sampleValue   *prom.HistogramVec
	taskDuration  *prom.HistogramVec
}

// NewPromExporter creates and registers the collectors on reg. Registering a
// second exporter with the same namespace reuses the existing collectors.
func NewPromExporter(namespace string, reg prom.Registerer, opts ExporterOptions) (*PromExporter, error) {
	if namespace == "" {
		namespace = "linkprobe"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	valueBuckets := opts.ValueBuckets
	if len(valueBuckets) == 0 {
		valueBuckets = prom.ExponentialBuckets(0.25, 2, 12)
	}
	durationBuckets := opts.DurationBuckets
	if len(durationBuckets) == 0 {
		durationBuckets = prom.DefBuckets
	}

	startedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_started_total",
		Help:      "Total number of tests started.",
	}, []string{"type"})
	finishedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_finished_total",
		Help:      "Total number of started tests that reached a terminal state.",
	}, []string{"type", "outcome"})
	rejectedVec := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "tasks_rejected_total",
		Help:      "Total number of tests that failed before starting.",
	}, []string{"type", "outcome"})
	active := prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "tasks_active",
		Help:      "Number of tests currently running.",
	})
	valueVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "sample_value",
		Help:      "Simulated sample values in the test type's unit.",
		Buckets:   valueBuckets,
	}, []string{"type"})
	durationVec := prom.NewHistogramVec(prom.HistogramOpts{
		Namespace: namespace,
		Name:      "task_duration_seconds",
		Help:      "Wall clock duration of started tests.",
		Buckets:   durationBuckets,
	}, []string{"type"})

	var err error
	if startedVec, err = registerCollector(reg, startedVec); err != nil {
		return nil, err
	}
	if finishedVec, err = registerCollector(reg, finishedVec); err != nil {
		return nil, err
	}
	if rejectedVec, err = registerCollector(reg, rejectedVec); err != nil {
		return nil, err
	}
	if active, err = registerCollector(reg, active); err != nil {
		return nil, err
	}
	if valueVec, err = registerCollector(reg, valueVec); err != nil {
		return nil, err
	}
	if durationVec, err = registerCollector(reg, durationVec); err != nil {
		return nil, err
	}

	return &PromExporter{
		tasksStarted:  startedVec,
		tasksFinished: finishedVec,
		tasksRejected: rejectedVec,
		tasksActive:   active,
		sampleValue:   valueVec,
		taskDuration:  durationVec,
	}, nil
}

func (m *PromExporter) TaskStarted(testType string) {
	if m == nil {
		return
	}
	m.tasksStarted.WithLabelValues(normalizeLabel(testType, "unknown")).Inc()
	m.tasksActive.Inc()
}

func (m *PromExporter) SampleRecorded(testType string, value float64) {
	if m == nil {
		return
	}
	m.sampleValue.WithLabelValues(normalizeLabel(testType, "unknown")).Observe(value)
}

func (m *PromExporter) TaskFinished(testType, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	t := normalizeLabel(testType, "unknown")
	m.tasksFinished.WithLabelValues(t, normalizeLabel(outcome, "unknown")).Inc()
	m.taskDuration.WithLabelValues(t).Observe(elapsed.Seconds())
	m.tasksActive.Dec()
}

func (m *PromExporter) TaskRejected(testType, outcome string) {
	if m == nil {
		return
	}
	m.tasksRejected.WithLabelValues(normalizeLabel(testType, "unknown"), normalizeLabel(outcome, "unknown")).Inc()
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
