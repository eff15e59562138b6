// Package metrics aggregates what the runner reports about simulated tests.
//
// The runner reports through the [Observer] interface. Two implementations are
// provided and can be combined with [Multi]:
//
//   - [Collector] keeps per test type HDR histograms of sample values and task
//     durations plus outcome counts, and renders them as a [Stats] snapshot for
//     reports.
//   - [PromExporter] exposes the same events as Prometheus counters, a gauge
//     and histograms registered on a caller supplied registerer.
//
//	collector := metrics.NewCollector()
//	exporter, err := metrics.NewPromExporter("linkprobe", reg, metrics.ExporterOptions{})
//	observer := metrics.Multi{collector, exporter}
//
// Outcome labels are the runner's error kind names ("none", "cancelled",
// "out_of_memory", ...). [FriendlyOutcome] turns them into report text.
package metrics
