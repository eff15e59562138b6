package output

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/torosent/linkprobe/internal/metrics"
)

// ProgressReporter redraws a one-line status from a collector until stopped.
type ProgressReporter struct {
	collector *metrics.Collector
	interval  time.Duration
	w         io.Writer

	startOnce sync.Once
	stopOnce  sync.Once
	started   atomic.Bool
	stop      chan struct{}
	stopped   sync.WaitGroup
}

// NewProgressReporter redraws every interval. A nil writer discards output.
func NewProgressReporter(collector *metrics.Collector, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		collector: collector,
		interval:  interval,
		w:         writer,
		stop:      make(chan struct{}),
	}
}

// Start launches the redraw loop. Later calls do nothing.
func (p *ProgressReporter) Start() {
	p.startOnce.Do(func() {
		p.started.Store(true)
		p.stopped.Add(1)
		go p.loop()
	})
}

// Stop ends the loop and leaves the final status on its own line. It is a
// no-op when Start was never called.
func (p *ProgressReporter) Stop() {
	if !p.started.Load() {
		return
	}
	p.stopOnce.Do(func() { close(p.stop) })
	p.stopped.Wait()
}

func (p *ProgressReporter) loop() {
	defer p.stopped.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			fmt.Fprint(p.w, progressLine(p.collector.Stats()))
		case <-p.stop:
			fmt.Fprintln(p.w, progressLine(p.collector.Stats()))
			return
		}
	}
}

func progressLine(stats metrics.Stats) string {
	line := fmt.Sprintf("\rTests: %d | Active: %d | Finished: %d | Rejected: %d | Elapsed: %s",
		stats.Started, stats.Active, stats.Finished, stats.Rejected, stats.Duration.Round(100*time.Millisecond))
	if ts, ok := busiestType(stats); ok {
		line += fmt.Sprintf(" | %s mean %.2f", ts.Type, ts.MeanValue)
	}
	return line
}

// busiestType is the type with the most samples so far.
func busiestType(stats metrics.Stats) (metrics.TypeStats, bool) {
	var best metrics.TypeStats
	found := false
	for _, ts := range stats.Types {
		if !found || ts.Samples > best.Samples {
			best, found = ts, true
		}
	}
	return best, found && best.Samples > 0
}
