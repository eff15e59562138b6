package runner

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/linkprobe/internal/measure"
	"github.com/torosent/linkprobe/internal/registry"
	"github.com/torosent/linkprobe/internal/tracing"
)

// TerminalFunc receives the single final notification of a test. value is
// the final running average when kind is ErrorKindNone and NoResult otherwise.
type TerminalFunc func(id registry.ID, value float64, kind ErrorKind)

// ProgressFunc receives the running average after each sample.
type ProgressFunc func(id registry.ID, average float64)

// Runner starts simulated tests in the background and tracks them in its
// registry until they finish.
type Runner struct {
	opt    Options
	reg    *registry.Registry
	logger *slog.Logger

	// mu orders starts against Shutdown so wg.Add never races wg.Wait.
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func New(opt Options) *Runner {
	opt.normalize()
	return &Runner{
		opt:    opt,
		reg:    opt.Registry,
		logger: opt.Logger.With("component", "runner"),
	}
}

// Registry returns the registry the runner tracks tasks in.
func (r *Runner) Registry() *registry.Registry {
	return r.reg
}

// callbacks is the internal form of the caller's notifications.
type callbacks struct {
	terminal func(Outcome)
	progress ProgressFunc
	exited   func() // after the registry entry is gone
}

// StartTest launches a test for id and returns as soon as it is registered.
// terminal is invoked exactly once: from a background goroutine when the
// test ends, or synchronously before StartTest returns when it cannot be
// started. progress, which may be nil, is invoked in sample order and never
// after terminal.
func (r *Runner) StartTest(cfg measure.Config, id registry.ID, terminal TerminalFunc, progress ProgressFunc) {
	cb := callbacks{progress: progress}
	if terminal != nil {
		cb.terminal = func(o Outcome) { terminal(o.ID, o.Value, o.Kind) }
	}
	r.start(cfg, id, cb)
}

// CancelTest requests cancellation of the test registered under id. It does
// not wait for the test to stop. It reports whether a test was found; an
// unknown id is logged and otherwise ignored.
func (r *Runner) CancelTest(id registry.ID) bool {
	return r.reg.RequestCancel(id)
}

// Wait blocks until every started test has delivered its terminal callback
// and left the registry.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown stops accepting tests, cancels the running ones and waits for them
// to exit or for ctx to end.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	if n := r.reg.CancelAll(); n > 0 {
		r.logger.Info("shutdown: cancelling running tests", "count", n)
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}

func (r *Runner) start(cfg measure.Config, id registry.ID, cb callbacks) {
	testType := cfg.Type.String()
	log := r.logger.With("id", string(id), "type", testType)

	if err := r.launch(cfg, id, cb, log); err != nil {
		kind := KindFromError(err)
		log.Warn("test not started", "kind", kind.String(), "error", err)
		r.opt.Observer.TaskRejected(testType, kind.String())
		deliver(log, cb, Outcome{ID: id, Value: NoResult, Kind: kind, Err: err})
		if cb.exited != nil {
			cb.exited()
		}
	}
}

// launch registers and spawns the task. On error nothing is left registered.
func (r *Runner) launch(cfg measure.Config, id registry.ID, cb callbacks, log *slog.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrShutdown
	}

	ctx, cancel := context.WithCancel(context.Background())
	state := registry.NewTaskState(id, cfg.Type.String(), cancel)
	if err := r.reg.Insert(state); err != nil {
		cancel()
		return err
	}

	t := &task{
		runner: r,
		ctx:    ctx,
		cfg:    cfg,
		state:  state,
		cb:     cb,
		log:    log,
	}
	r.wg.Add(1)
	if err := r.opt.Spawner.Go(t.run); err != nil {
		r.wg.Done()
		state.SetStatus(registry.StatusFailed)
		r.reg.Release(state)
		return err
	}
	log.Debug("test started")
	return nil
}

type task struct {
	runner *Runner
	ctx    context.Context
	cfg    measure.Config
	state  *registry.TaskState
	cb     callbacks
	log    *slog.Logger
}

func (t *task) run() {
	r := t.runner
	defer r.wg.Done()
	defer func() {
		if t.cb.exited != nil {
			t.cb.exited()
		}
	}()
	// Runs after the terminal callback has returned.
	defer r.reg.Release(t.state)

	testType := t.state.Kind
	started := time.Now()
	t.state.SetStatus(registry.StatusRunning)
	r.opt.Observer.TaskStarted(testType)

	ctx, span := tracing.StartTaskSpan(t.ctx, r.opt.Tracer, string(t.state.ID), testType)
	m, err := t.measure(ctx, span)

	kind := KindFromError(err)
	value := NoResult
	if kind == ErrorKindNone {
		value = m.Average
	}
	elapsed := time.Since(started)
	t.state.SetStatus(kind.Status())
	r.opt.Observer.TaskFinished(testType, kind.String(), elapsed)
	tracing.EndSpan(span, err,
		tracing.AttrOutcome.String(kind.String()),
		tracing.AttrSamples.Int(len(m.Samples)),
		tracing.AttrAverage.Float64(value),
	)

	switch kind {
	case ErrorKindNone:
		t.log.Debug("test completed", "average", value, "samples", len(m.Samples), "elapsed", elapsed)
	case ErrorKindCancelled:
		t.log.Info("test cancelled", "samples", len(m.Samples), "elapsed", elapsed)
	default:
		t.log.Error("test failed", "kind", kind.String(), "error", err)
	}

	deliver(t.log, t.cb, Outcome{ID: t.state.ID, Value: value, Kind: kind, Err: err})
}

func (t *task) measure(ctx context.Context, span trace.Span) (m measure.Measurement, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanic, rec)
			t.log.Error("task panicked", "panic", rec, "stack", string(debug.Stack()))
		}
	}()

	r := t.runner
	testType := t.state.Kind
	return r.opt.Strategy.Measure(ctx, t.cfg, func(index int, value, average float64) {
		r.opt.Observer.SampleRecorded(testType, value)
		tracing.RecordSample(span, index, value, average)
		if t.cb.progress != nil {
			t.cb.progress(t.state.ID, average)
		}
	})
}

// deliver invokes the terminal callback. A panicking callback is logged; it
// must not skip the cleanup that follows.
func deliver(log *slog.Logger, cb callbacks, o Outcome) {
	if cb.terminal == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("terminal callback panicked", "panic", rec)
		}
	}()
	cb.terminal(o)
}
