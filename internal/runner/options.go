package runner

import (
	"log/slog"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/linkprobe/internal/logging"
	"github.com/torosent/linkprobe/internal/measure"
	"github.com/torosent/linkprobe/internal/metrics"
	"github.com/torosent/linkprobe/internal/pool"
	"github.com/torosent/linkprobe/internal/registry"
)

// Options configure the Runner. Every field is optional.
type Options struct {
	Registry *registry.Registry // tracks running tests; a private unbounded one by default
	Strategy measure.Strategy   // produces measurements; a real-time Simulator by default
	Spawner  pool.Spawner       // starts task goroutines; unbounded by default
	Observer metrics.Observer   // lifecycle events; discarded by default
	Tracer   trace.Tracer       // one span per task; no-op by default
	Logger   *slog.Logger       // nil discards
}

func (o *Options) normalize() {
	o.Logger = logging.OrDiscard(o.Logger)
	if o.Registry == nil {
		o.Registry = registry.New(registry.Options{Logger: o.Logger})
	}
	if o.Strategy == nil {
		o.Strategy = measure.NewSimulator(measure.Options{})
	}
	if o.Spawner == nil {
		o.Spawner = pool.NewBounded(0)
	}
	if o.Observer == nil {
		o.Observer = metrics.Nop{}
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("")
	}
}
