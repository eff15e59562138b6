// Package measure simulates network quality measurements.
//
// A [Simulator] stands in for real probing: for each [TestType] it draws a
// base value, a variation and a duration from a fixed profile table, then
// produces samples uniformly from [max(0, base-variation), base+variation],
// one per interval, reporting the running mean after each sample.
//
// # Profiles
//
//	type             base       variation  duration  samples
//	download/upload  [10,100)   [10,30)    [6,12)s   duration/0.5s
//	latency          [10,100)   [10,200)   [4,10)s   1
//	jitter           [1,5)      [1,5)      [5,10)s   1
//	packet-loss      [0,1)      0          [3,7)s    1
//	video-streaming  [0,1)      0          [3,7)s    1
//	web-browsing     [100,500)  [0,100)    [3,6)s    1
//
// Durations are whole seconds. [Options.TimeScale] compresses simulated time,
// which is how the tests run multi-second profiles in milliseconds.
//
// # Cancellation
//
// The context passed to [Simulator.Measure] is checked before every wait and
// before every sample, and the wait between samples is a context-aware
// [golang.org/x/time/rate] reservation, so a cancelled measurement stops
// without producing another sample and returns an error wrapping
// [ErrCancelled].
package measure
