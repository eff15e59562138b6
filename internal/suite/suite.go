// Package suite runs a list of test types through a runner and gathers their
// results.
package suite

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"github.com/torosent/linkprobe/internal/logging"
	"github.com/torosent/linkprobe/internal/measure"
	"github.com/torosent/linkprobe/internal/registry"
	"github.com/torosent/linkprobe/internal/runner"
)

// ErrRunCancelled is the cause recorded when Cancel stops a run.
var ErrRunCancelled = errors.New("suite: run cancelled")

// ResultFunc is called once per started test. err is a *TestError when the
// test did not complete.
type ResultFunc func(t measure.TestType, value float64, err error)

// ProgressFunc receives the running average of a test.
type ProgressFunc func(t measure.TestType, average float64)

// Options configure a run.
type Options struct {
	Tests    []measure.TestType // nil runs every type
	Parallel bool

	// In parallel runs the handlers are called from several goroutines.
	OnResult   ResultFunc
	OnProgress ProgressFunc

	Logger *slog.Logger
}

// Run is a suite in flight.
type Run struct {
	r      *runner.Runner
	opts   Options
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan struct{}

	mu      sync.Mutex
	results Results
	skipped []measure.TestType
}

// Start launches the tests in opts on r and returns immediately. Ending ctx
// has the same effect as calling Cancel.
func Start(ctx context.Context, r *runner.Runner, opts Options) *Run {
	if opts.Tests == nil {
		opts.Tests = measure.AllTestTypes
	}
	ctx, cancel := context.WithCancelCause(ctx)
	run := &Run{
		r:      r,
		opts:   opts,
		logger: logging.OrDiscard(opts.Logger).With("component", "suite"),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go run.loop()
	return run
}

// Cancel stops the running tests and skips the ones not started yet.
func (s *Run) Cancel() {
	s.cancel(ErrRunCancelled)
}

// Done is closed when every test has finished or been skipped.
func (s *Run) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the run is over and returns the results collected.
func (s *Run) Wait() Results {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.results.clone()
}

// Skipped lists the tests never started because the run was cancelled.
func (s *Run) Skipped() []measure.TestType {
	<-s.done
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]measure.TestType(nil), s.skipped...)
}

func (s *Run) loop() {
	defer close(s.done)
	defer s.cancel(nil)

	start := time.Now()
	s.logger.Info("suite started", "tests", len(s.opts.Tests), "parallel", s.opts.Parallel)

	if s.opts.Parallel {
		var g errgroup.Group
		for _, t := range s.opts.Tests {
			g.Go(func() error {
				s.runOne(t)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, t := range s.opts.Tests {
			if s.ctx.Err() != nil {
				s.skip(s.opts.Tests[i:])
				break
			}
			s.runOne(t)
		}
	}

	s.mu.Lock()
	completed := s.results.Len()
	s.mu.Unlock()
	s.logger.Info("suite finished", "completed", completed, "elapsed", time.Since(start))
}

func (s *Run) skip(tests []measure.TestType) {
	s.mu.Lock()
	s.skipped = append(s.skipped, tests...)
	s.mu.Unlock()
	s.logger.Info("suite cancelled", "skipped", len(tests))
}

func (s *Run) runOne(t measure.TestType) {
	if s.ctx.Err() != nil {
		s.skip([]measure.TestType{t})
		return
	}

	id := registry.ID(ulid.Make().String())
	h := s.r.Start(measure.Config{Type: t}, id)

	go func() {
		select {
		case <-s.ctx.Done():
			h.Cancel()
		case <-h.Done():
		}
	}()

	for avg := range h.Progress() {
		if s.opts.OnProgress != nil {
			s.opts.OnProgress(t, avg)
		}
	}
	out := h.Outcome()

	var err error
	if out.OK() {
		s.mu.Lock()
		s.results.Set(t, out.Value)
		s.mu.Unlock()
	} else {
		err = &TestError{Type: t, Kind: out.Kind, Err: out.Err}
	}
	if s.opts.OnResult != nil {
		s.opts.OnResult(t, out.Value, err)
	}
}
