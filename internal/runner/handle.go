package runner

import (
	"context"
	"sync/atomic"

	"github.com/torosent/linkprobe/internal/measure"
	"github.com/torosent/linkprobe/internal/registry"
)

// Handle is the channel form of StartTest.
//
// Progress yields running averages in sample order and is closed once the
// outcome is known. Done is closed after the test has left the registry, so a
// test started again with the same ID after Done cannot collide with it.
type Handle struct {
	id       registry.ID
	runner   *Runner
	progress chan float64
	done     chan struct{}
	outcome  Outcome
	dropped  atomic.Int64
}

// Start launches a test like StartTest and returns a handle to it.
func (r *Runner) Start(cfg measure.Config, id registry.ID) *Handle {
	h := &Handle{
		id:     id,
		runner: r,
		// Sized for the longest simulated profile. Values that do not fit
		// are dropped and counted.
		progress: make(chan float64, measure.MaxSamples()),
		done:     make(chan struct{}),
	}
	r.start(cfg, id, callbacks{
		terminal: h.finish,
		progress: h.report,
		exited:   func() { close(h.done) },
	})
	return h
}

func (h *Handle) report(_ registry.ID, average float64) {
	select {
	case h.progress <- average:
	default:
		h.dropped.Add(1)
	}
}

func (h *Handle) finish(o Outcome) {
	h.outcome = o
	close(h.progress)
}

// ID returns the caller identity the test runs under.
func (h *Handle) ID() registry.ID { return h.id }

// Progress returns the running averages channel.
func (h *Handle) Progress() <-chan float64 { return h.progress }

// Done is closed once the test has fully exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Cancel requests cancellation. It does not wait.
func (h *Handle) Cancel() { h.runner.CancelTest(h.id) }

// Dropped reports how many progress values did not fit in the channel.
func (h *Handle) Dropped() int64 { return h.dropped.Load() }

// Outcome blocks until the test has exited and returns its result.
func (h *Handle) Outcome() Outcome {
	<-h.done
	return h.outcome
}

// Wait is Outcome bounded by ctx. It does not cancel the test when ctx ends.
func (h *Handle) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-h.done:
		return h.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}
