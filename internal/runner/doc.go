// Package runner is the execution engine for simulated network tests.
//
// A [Runner] launches one background task per test request, keeps every
// running task in a [registry.Registry] keyed by the caller's ID, and
// delivers exactly one terminal notification per request plus zero or more
// progress notifications before it.
//
// # Lifecycle
//
// Each task moves Pending → Running → Completed, Cancelled or Failed:
//
//   - Pending: the task state exists but is not registered.
//   - Running: the task is registered and its [measure.Strategy] is sampling.
//   - Completed: the last sample was taken; the terminal value is the mean.
//   - Cancelled: a cancellation request was observed between samples.
//   - Failed: the task could not be registered or spawned, or the strategy
//     failed or panicked.
//
// The registry entry is removed after the terminal callback returns, on every
// exit path.
//
// # Basic Usage
//
//	r := runner.New(runner.Options{Logger: logger})
//	r.StartTest(measure.Config{Type: measure.Latency}, "42",
//		func(id registry.ID, value float64, kind runner.ErrorKind) {
//			fmt.Println(id, value, kind)
//		},
//		func(id registry.ID, average float64) {
//			fmt.Println(id, "so far", average)
//		})
//	r.CancelTest("42")
//
// # Handles
//
// [Runner.Start] returns a [Handle] for callers that prefer channels:
//
//	h := r.Start(measure.Config{Type: measure.Download}, "7")
//	for avg := range h.Progress() {
//		fmt.Println(avg)
//	}
//	outcome := h.Outcome()
//
// # Error Kinds
//
// Failures are reported as an [ErrorKind]. Registry capacity and sample
// buffer limits map to [ErrorKindOutOfMemory]; a spawner that is full or a
// runner that is shut down maps to [ErrorKindCouldNotCreateTask]. Unknown
// test types and duplicate IDs have their own kinds. [KindFromError]
// performs the mapping for any error the engine produces.
package runner
