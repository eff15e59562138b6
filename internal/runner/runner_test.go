package runner_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"golang.org/x/sync/errgroup"

	"github.com/torosent/linkprobe/internal/measure"
	"github.com/torosent/linkprobe/internal/metrics"
	"github.com/torosent/linkprobe/internal/pool"
	"github.com/torosent/linkprobe/internal/registry"
	"github.com/torosent/linkprobe/internal/runner"
)

const fastScale = 0.001

type event struct {
	terminal bool
	value    float64
	kind     runner.ErrorKind
}

// recorder captures callbacks per ID in arrival order.
type recorder struct {
	mu     sync.Mutex
	events map[registry.ID][]event
	done   chan registry.ID
}

func newRecorder() *recorder {
	return &recorder{
		events: make(map[registry.ID][]event),
		done:   make(chan registry.ID, 128),
	}
}

func (rec *recorder) terminal(id registry.ID, value float64, kind runner.ErrorKind) {
	rec.mu.Lock()
	rec.events[id] = append(rec.events[id], event{terminal: true, value: value, kind: kind})
	rec.mu.Unlock()
	rec.done <- id
}

func (rec *recorder) progress(id registry.ID, average float64) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.events[id] = append(rec.events[id], event{value: average})
}

func (rec *recorder) get(id registry.ID) []event {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]event(nil), rec.events[id]...)
}

func (rec *recorder) waitFor(t *testing.T, id registry.ID) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-rec.done:
			if got == id {
				return
			}
		case <-deadline:
			t.Fatalf("no terminal callback for %q", id)
		}
	}
}

// split checks the callback sequence shape and returns progress values and the
// terminal event.
func split(t *testing.T, events []event) ([]float64, event) {
	t.Helper()
	require.NotEmpty(t, events)
	var progress []float64
	terminals := 0
	for i, ev := range events {
		if ev.terminal {
			terminals++
			require.Equal(t, len(events)-1, i, "terminal callback must be last")
			continue
		}
		progress = append(progress, ev.value)
	}
	require.Equal(t, 1, terminals, "exactly one terminal callback")
	return progress, events[len(events)-1]
}

func newRunner(opts runner.Options) *runner.Runner {
	if opts.Strategy == nil {
		opts.Strategy = measure.NewSimulator(measure.Options{TimeScale: fastScale, Source: measure.NewSource(3)})
	}
	return runner.New(opts)
}

func TestLatencyScenario(t *testing.T) {
	r := newRunner(runner.Options{})
	rec := newRecorder()

	r.StartTest(measure.Config{Type: measure.Latency}, "42", rec.terminal, rec.progress)
	r.Wait()

	progress, term := split(t, rec.get("42"))
	require.Len(t, progress, 1)
	assert.Equal(t, runner.ErrorKindNone, term.kind)
	assert.Equal(t, progress[0], term.value)

	lim, _ := measure.LimitsFor(measure.Latency)
	assert.GreaterOrEqual(t, term.value, lim.MinValue)
	assert.LessOrEqual(t, term.value, lim.MaxValue)
	assert.Zero(t, r.Registry().Len())
}

func TestEveryTypeDeliversOneTerminal(t *testing.T) {
	r := newRunner(runner.Options{})
	rec := newRecorder()

	for _, typ := range measure.AllTestTypes {
		r.StartTest(measure.Config{Type: typ}, registry.ID(typ.String()), rec.terminal, rec.progress)
	}
	r.Wait()

	for _, typ := range measure.AllTestTypes {
		progress, term := split(t, rec.get(registry.ID(typ.String())))
		assert.Equal(t, runner.ErrorKindNone, term.kind, typ.String())
		require.NotEmpty(t, progress, typ.String())
		assert.Equal(t, progress[len(progress)-1], term.value, "terminal value is the final running mean")

		lim, _ := measure.LimitsFor(typ)
		assert.LessOrEqual(t, len(progress), lim.MaxSamples)
		for _, avg := range progress {
			assert.GreaterOrEqual(t, avg, lim.MinValue, typ.String())
			assert.LessOrEqual(t, avg, lim.MaxValue, typ.String())
		}
	}
	assert.Zero(t, r.Registry().Len())
}

func TestDownloadCancelledImmediately(t *testing.T) {
	r := newRunner(runner.Options{})
	rec := newRecorder()

	r.StartTest(measure.Config{Type: measure.Download}, "7", rec.terminal, rec.progress)
	assert.True(t, r.CancelTest("7"))
	r.Wait()

	progress, term := split(t, rec.get("7"))
	assert.Equal(t, runner.ErrorKindCancelled, term.kind)
	assert.Equal(t, runner.NoResult, term.value)
	assert.LessOrEqual(t, len(progress), 2)

	_, ok := r.Registry().Find("7")
	assert.False(t, ok)
}

func TestCancelInterruptsLongWait(t *testing.T) {
	// Real time: the latency profile would sleep at least four seconds.
	r := newRunner(runner.Options{Strategy: measure.NewSimulator(measure.Options{TimeScale: 1})})
	rec := newRecorder()

	start := time.Now()
	r.StartTest(measure.Config{Type: measure.Latency}, "slow", rec.terminal, rec.progress)
	time.Sleep(10 * time.Millisecond)
	r.CancelTest("slow")
	rec.waitFor(t, "slow")

	assert.Less(t, time.Since(start), time.Second)
	_, term := split(t, rec.get("slow"))
	assert.Equal(t, runner.ErrorKindCancelled, term.kind)
	r.Wait()
	assert.Zero(t, r.Registry().Len())
}

func TestCancelUnknownID(t *testing.T) {
	r := newRunner(runner.Options{})
	rec := newRecorder()

	assert.False(t, r.CancelTest("nobody"))
	assert.Empty(t, rec.get("nobody"))
}

func TestCancelAfterCompletionIsNoop(t *testing.T) {
	r := newRunner(runner.Options{})
	rec := newRecorder()

	r.StartTest(measure.Config{Type: measure.Jitter}, "done", rec.terminal, nil)
	r.Wait()
	assert.False(t, r.CancelTest("done"))

	events := rec.get("done")
	require.Len(t, events, 1)
	assert.Equal(t, runner.ErrorKindNone, events[0].kind)
}

func TestRegistryHoldsTaskUntilTerminalReturns(t *testing.T) {
	r := newRunner(runner.Options{})
	var (
		mu       sync.Mutex
		statuses []registry.Status
		found    bool
	)

	r.StartTest(measure.Config{Type: measure.PacketLoss}, "held", func(id registry.ID, _ float64, _ runner.ErrorKind) {
		state, ok := r.Registry().Find(id)
		mu.Lock()
		defer mu.Unlock()
		found = ok
		if ok {
			statuses = append(statuses, state.Status())
		}
	}, nil)
	r.Wait()

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, found, "entry must exist while the terminal callback runs")
	assert.Equal(t, []registry.Status{registry.StatusCompleted}, statuses)
	assert.Zero(t, r.Registry().Len())
}

func TestDuplicateIDRejected(t *testing.T) {
	r := newRunner(runner.Options{Strategy: measure.NewSimulator(measure.Options{TimeScale: 1})})
	rec := newRecorder()

	r.StartTest(measure.Config{Type: measure.Latency}, "dup", rec.terminal, rec.progress)

	var (
		gotKind  runner.ErrorKind
		gotValue float64
		calls    int
	)
	r.StartTest(measure.Config{Type: measure.Jitter}, "dup", func(_ registry.ID, v float64, k runner.ErrorKind) {
		calls++
		gotKind, gotValue = k, v
	}, nil)

	// Rejection is synchronous.
	assert.Equal(t, 1, calls)
	assert.Equal(t, runner.ErrorKindDuplicateID, gotKind)
	assert.Equal(t, runner.NoResult, gotValue)

	state, ok := r.Registry().Find("dup")
	require.True(t, ok, "first task must be untouched")
	assert.Equal(t, measure.Latency.String(), state.Kind)
	assert.Empty(t, rec.get("dup"), "first task is still running")

	r.CancelTest("dup")
	r.Wait()
	_, term := split(t, rec.get("dup"))
	assert.Equal(t, runner.ErrorKindCancelled, term.kind)
}

func TestRegistryCapacityReportsOutOfMemory(t *testing.T) {
	reg := registry.New(registry.Options{MaxTasks: 1})
	r := newRunner(runner.Options{
		Registry: reg,
		Strategy: measure.NewSimulator(measure.Options{TimeScale: 1}),
	})
	rec := newRecorder()

	r.StartTest(measure.Config{Type: measure.Latency}, "first", rec.terminal, nil)
	r.StartTest(measure.Config{Type: measure.Latency}, "second", rec.terminal, nil)

	events := rec.get("second")
	require.Len(t, events, 1)
	assert.Equal(t, runner.ErrorKindOutOfMemory, events[0].kind)
	assert.Equal(t, 1, reg.Len())

	r.CancelTest("first")
	r.Wait()
	assert.Zero(t, reg.Len())
}

func TestSampleBufferLimitReportsOutOfMemory(t *testing.T) {
	r := newRunner(runner.Options{
		Strategy: measure.NewSimulator(measure.Options{TimeScale: fastScale, MaxSamples: 2}),
	})
	rec := newRecorder()

	r.StartTest(measure.Config{Type: measure.Upload}, "big", rec.terminal, rec.progress)
	r.Wait()

	progress, term := split(t, rec.get("big"))
	assert.Empty(t, progress)
	assert.Equal(t, runner.ErrorKindOutOfMemory, term.kind)
	assert.Zero(t, r.Registry().Len())
}

func TestSpawnerFullReportsCouldNotCreateTask(t *testing.T) {
	spawner := pool.NewBounded(1)
	r := newRunner(runner.Options{
		Spawner:  spawner,
		Strategy: measure.NewSimulator(measure.Options{TimeScale: 1}),
	})
	rec := newRecorder()

	r.StartTest(measure.Config{Type: measure.Latency}, "running", rec.terminal, nil)
	r.StartTest(measure.Config{Type: measure.Latency}, "rejected", rec.terminal, nil)

	events := rec.get("rejected")
	require.Len(t, events, 1)
	assert.Equal(t, runner.ErrorKindCouldNotCreateTask, events[0].kind)
	_, ok := r.Registry().Find("rejected")
	assert.False(t, ok, "registration is undone")

	r.CancelTest("running")
	r.Wait()
	spawner.Wait()
	assert.Zero(t, spawner.Active())
}

func TestInvalidConfig(t *testing.T) {
	r := newRunner(runner.Options{})
	rec := newRecorder()

	r.StartTest(measure.Config{Type: measure.TestType(99)}, "bad", rec.terminal, rec.progress)

	events := rec.get("bad")
	require.Len(t, events, 1)
	assert.Equal(t, runner.ErrorKindInvalidConfig, events[0].kind)
	assert.Zero(t, r.Registry().Len())
}

type panicStrategy struct{}

func (panicStrategy) Measure(context.Context, measure.Config, measure.SampleFunc) (measure.Measurement, error) {
	panic("boom")
}

func TestStrategyPanicIsRecovered(t *testing.T) {
	r := newRunner(runner.Options{Strategy: panicStrategy{}})
	rec := newRecorder()

	h := r.Start(measure.Config{Type: measure.Jitter}, "panic")
	out := h.Outcome()
	assert.Equal(t, runner.ErrorKindInternal, out.Kind)
	assert.ErrorIs(t, out.Err, runner.ErrTaskPanic)
	assert.Zero(t, r.Registry().Len())

	// The runner keeps working.
	r2 := newRunner(runner.Options{Registry: r.Registry()})
	r2.StartTest(measure.Config{Type: measure.Jitter}, "panic", rec.terminal, nil)
	r2.Wait()
	assert.Equal(t, runner.ErrorKindNone, rec.get("panic")[0].kind)
}

func TestTerminalCallbackPanicStillCleansUp(t *testing.T) {
	r := newRunner(runner.Options{})
	r.StartTest(measure.Config{Type: measure.Jitter}, "p", func(registry.ID, float64, runner.ErrorKind) {
		panic("callback")
	}, nil)
	r.Wait()
	assert.Zero(t, r.Registry().Len())
}

func TestConcurrentTasksAreIndependent(t *testing.T) {
	r := newRunner(runner.Options{
		Strategy: measure.NewSimulator(measure.Options{TimeScale: 0.01}),
	})
	rec := newRecorder()
	const n = 20

	var g errgroup.Group
	for i := 0; i < n; i++ {
		id := registry.ID(fmt.Sprintf("task-%d", i))
		g.Go(func() error {
			r.StartTest(measure.Config{Type: measure.Download}, id, rec.terminal, rec.progress)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	require.True(t, r.CancelTest("task-3"))
	r.Wait()

	for i := 0; i < n; i++ {
		id := registry.ID(fmt.Sprintf("task-%d", i))
		progress, term := split(t, rec.get(id))
		if id == "task-3" {
			assert.Equal(t, runner.ErrorKindCancelled, term.kind)
			continue
		}
		assert.Equal(t, runner.ErrorKindNone, term.kind, string(id))
		assert.GreaterOrEqual(t, len(progress), 12, string(id))
	}
	assert.Zero(t, r.Registry().Len())
}

func TestHandleProgressAndOutcome(t *testing.T) {
	r := newRunner(runner.Options{})

	h := r.Start(measure.Config{Type: measure.Upload}, "h")
	assert.Equal(t, registry.ID("h"), h.ID())

	var averages []float64
	for avg := range h.Progress() {
		averages = append(averages, avg)
	}
	out := h.Outcome()
	require.True(t, out.OK())
	assert.NoError(t, out.Err)
	require.NotEmpty(t, averages)
	assert.Equal(t, averages[len(averages)-1], out.Value)
	assert.Zero(t, h.Dropped())

	select {
	case <-h.Done():
	default:
		t.Fatal("Done must be closed once Outcome returns")
	}
	_, ok := r.Registry().Find("h")
	assert.False(t, ok, "entry is removed before Done closes")
}

func TestHandleCancel(t *testing.T) {
	r := newRunner(runner.Options{Strategy: measure.NewSimulator(measure.Options{TimeScale: 1})})

	h := r.Start(measure.Config{Type: measure.WebBrowsing}, "hc")
	h.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := h.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, runner.ErrorKindCancelled, out.Kind)
	assert.ErrorIs(t, out.Err, measure.ErrCancelled)
}

func TestHandleSynchronousFailure(t *testing.T) {
	r := newRunner(runner.Options{})
	h := r.Start(measure.Config{}, "x")

	_, open := <-h.Progress()
	assert.False(t, open)
	assert.Equal(t, runner.ErrorKindInvalidConfig, h.Outcome().Kind)
}

// blockingStrategy ignores cancellation until released.
type blockingStrategy struct {
	release chan struct{}
}

func (b blockingStrategy) Measure(context.Context, measure.Config, measure.SampleFunc) (measure.Measurement, error) {
	<-b.release
	return measure.Measurement{Average: 1}, nil
}

func TestShutdown(t *testing.T) {
	r := newRunner(runner.Options{Strategy: measure.NewSimulator(measure.Options{TimeScale: 1})})
	rec := newRecorder()

	r.StartTest(measure.Config{Type: measure.Latency}, "a", rec.terminal, nil)
	r.StartTest(measure.Config{Type: measure.Download}, "b", rec.terminal, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, r.Shutdown(ctx))

	for _, id := range []registry.ID{"a", "b"} {
		_, term := split(t, rec.get(id))
		assert.Equal(t, runner.ErrorKindCancelled, term.kind, string(id))
	}
	assert.Zero(t, r.Registry().Len())

	r.StartTest(measure.Config{Type: measure.Jitter}, "late", rec.terminal, nil)
	events := rec.get("late")
	require.Len(t, events, 1)
	assert.Equal(t, runner.ErrorKindCouldNotCreateTask, events[0].kind)
}

func TestShutdownHonorsContext(t *testing.T) {
	release := make(chan struct{})
	r := newRunner(runner.Options{Strategy: blockingStrategy{release: release}})
	h := r.Start(measure.Config{Type: measure.Jitter}, "stuck")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := r.Shutdown(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	r.Wait()
	// The strategy ignored cancellation and finished normally.
	assert.Equal(t, runner.ErrorKindNone, h.Outcome().Kind)
}

func TestObserverAndTracer(t *testing.T) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	collector := metrics.NewCollector()
	r := newRunner(runner.Options{Observer: collector, Tracer: tp.Tracer("test")})

	r.Start(measure.Config{Type: measure.Download}, "ok").Outcome()
	r.Start(measure.Config{}, "bad").Outcome()

	stats := collector.Stats()
	assert.Equal(t, int64(1), stats.Started)
	assert.Equal(t, int64(1), stats.Finished)
	assert.Equal(t, int64(1), stats.Rejected)
	assert.Equal(t, int64(1), stats.Outcomes["none"])
	assert.Equal(t, int64(1), stats.Outcomes["invalid_config"])

	spans := exporter.GetSpans()
	require.Len(t, spans, 1, "only started tasks get a span")
	assert.Equal(t, "linkprobe download", spans[0].Name)
	assert.NotEmpty(t, spans[0].Events)
}

func TestKindFromError(t *testing.T) {
	tests := []struct {
		err  error
		want runner.ErrorKind
	}{
		{nil, runner.ErrorKindNone},
		{fmt.Errorf("wrap: %w", registry.ErrAllocationFailed), runner.ErrorKindOutOfMemory},
		{measure.ErrSampleBuffer, runner.ErrorKindOutOfMemory},
		{registry.ErrDuplicateID, runner.ErrorKindDuplicateID},
		{pool.ErrRejected, runner.ErrorKindCouldNotCreateTask},
		{pool.ErrClosed, runner.ErrorKindCouldNotCreateTask},
		{registry.ErrClosed, runner.ErrorKindCouldNotCreateTask},
		{runner.ErrShutdown, runner.ErrorKindCouldNotCreateTask},
		{measure.ErrCancelled, runner.ErrorKindCancelled},
		{context.Canceled, runner.ErrorKindCancelled},
		{measure.ErrUnknownTestType, runner.ErrorKindInvalidConfig},
		{runner.ErrTaskPanic, runner.ErrorKindInternal},
		{errors.New("other"), runner.ErrorKindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, runner.KindFromError(tt.err), fmt.Sprint(tt.err))
	}
}

func TestErrorKindString(t *testing.T) {
	assert.Equal(t, "none", runner.ErrorKindNone.String())
	assert.Equal(t, "could_not_create_task", runner.ErrorKindCouldNotCreateTask.String())
	assert.Equal(t, "ErrorKind(42)", runner.ErrorKind(42).String())
	assert.Equal(t, registry.StatusCancelled, runner.ErrorKindCancelled.Status())
	assert.Equal(t, registry.StatusFailed, runner.ErrorKindDuplicateID.Status())
}
