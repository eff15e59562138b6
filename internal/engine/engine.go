// Package engine assembles a runner and its supporting infrastructure from a
// config.Config: logging, tracing, metrics, the task registry, the spawner and
// the simulator.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/torosent/linkprobe/internal/config"
	"github.com/torosent/linkprobe/internal/logging"
	"github.com/torosent/linkprobe/internal/measure"
	"github.com/torosent/linkprobe/internal/metrics"
	"github.com/torosent/linkprobe/internal/output"
	"github.com/torosent/linkprobe/internal/pool"
	"github.com/torosent/linkprobe/internal/registry"
	"github.com/torosent/linkprobe/internal/runner"
	"github.com/torosent/linkprobe/internal/suite"
	"github.com/torosent/linkprobe/internal/threshold"
	"github.com/torosent/linkprobe/internal/tracing"
)

const defaultProgressInterval = time.Second

// ErrThresholdsFailed is returned by CheckThresholds when an assertion fails.
var ErrThresholdsFailed = errors.New("thresholds failed")

// Options override parts of the assembly that do not come from config.
type Options struct {
	// Logger replaces the logger built from the log section.
	Logger *slog.Logger
	// LogWriter is where the built logger writes. Defaults to stderr.
	LogWriter io.Writer
	// Prometheus receives the exporter collectors when metrics are enabled.
	// A private registry is created when nil.
	Prometheus *prometheus.Registry
	// Progress receives a live status line during RunSuite when set.
	Progress         io.Writer
	ProgressInterval time.Duration
	// Strategy replaces the simulator built from config.
	Strategy measure.Strategy
}

// Engine owns a runner and everything it depends on.
type Engine struct {
	cfg    *config.Config
	logger *slog.Logger
	opts   Options

	tracing   *tracing.Provider
	registry  *registry.Registry
	spawner   *pool.Bounded
	collector *metrics.Collector
	promReg   *prometheus.Registry
	runner    *runner.Runner
	evaluator *threshold.Evaluator

	closeOnce sync.Once
	closeErr  error
}

// FromArgs loads configuration from args, the environment and an optional
// config file, then builds an engine from it.
func FromArgs(ctx context.Context, args []string, opts Options) (*Engine, error) {
	cfg, err := config.NewLoader().Load(args)
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg, opts)
}

// New validates cfg and builds an engine. Close must be called to release it.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Engine, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logOpts, err := cfg.LoggingOptions()
		if err != nil {
			return nil, err
		}
		logOpts.Writer = opts.LogWriter
		logger = logging.New(logOpts)
	}

	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return nil, err
	}

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		logger:    logger,
		opts:      opts,
		tracing:   tp,
		registry:  registry.New(registry.Options{MaxTasks: cfg.MaxTasks, Logger: logger}),
		spawner:   pool.NewBounded(cfg.MaxConcurrent),
		collector: metrics.NewCollector(),
		promReg:   opts.Prometheus,
		evaluator: threshold.NewEvaluator(thresholds),
	}

	var observer metrics.Observer = e.collector
	if cfg.Metrics.Enabled {
		if e.promReg == nil {
			e.promReg = prometheus.NewRegistry()
		}
		exporter, err := metrics.NewPromExporter(cfg.Metrics.Namespace, e.promReg, metrics.ExporterOptions{})
		if err != nil {
			_ = tp.Shutdown(ctx)
			return nil, fmt.Errorf("metrics exporter: %w", err)
		}
		observer = metrics.Multi{e.collector, exporter}
	}

	strategy := opts.Strategy
	if strategy == nil {
		strategy = measure.NewSimulator(measure.Options{
			TimeScale:  cfg.TimeScale,
			MaxSamples: cfg.MaxSamples,
			Source:     measure.NewSource(cfg.Seed),
		})
	}

	e.runner = runner.New(runner.Options{
		Registry: e.registry,
		Strategy: strategy,
		Spawner:  e.spawner,
		Observer: observer,
		Tracer:   tp.Tracer(),
		Logger:   logger,
	})

	logger.Debug("engine ready",
		"max_tasks", cfg.MaxTasks,
		"max_concurrent", cfg.MaxConcurrent,
		"time_scale", cfg.TimeScale,
		"tracing", tp.Enabled(),
		"metrics", cfg.Metrics.Enabled,
	)
	return e, nil
}

// Config returns the configuration the engine was built from.
func (e *Engine) Config() *config.Config { return e.cfg }

// Runner returns the runner for direct StartTest and CancelTest use.
func (e *Engine) Runner() *runner.Runner { return e.runner }

// Stats snapshots the metrics collector.
func (e *Engine) Stats() metrics.Stats { return e.collector.Stats() }

// Gatherer exposes the Prometheus registry. It is nil when metrics are
// disabled.
func (e *Engine) Gatherer() prometheus.Gatherer {
	if e.promReg == nil {
		return nil
	}
	return e.promReg
}

// RunSuite runs the configured tests and blocks until they finish or ctx
// ends. The results collected so far are returned in both cases; the error is
// the context's cause when the run was cut short.
func (e *Engine) RunSuite(ctx context.Context, onResult suite.ResultFunc, onProgress suite.ProgressFunc) (suite.Results, error) {
	tests, err := e.cfg.TestTypes()
	if err != nil {
		return suite.Results{}, err
	}

	if e.opts.Progress != nil {
		interval := e.opts.ProgressInterval
		if interval <= 0 {
			interval = defaultProgressInterval
		}
		progress := output.NewProgressReporter(e.collector, interval, e.opts.Progress)
		progress.Start()
		defer progress.Stop()
	}

	run := suite.Start(ctx, e.runner, suite.Options{
		Tests:      tests,
		Parallel:   e.cfg.Parallel,
		OnResult:   onResult,
		OnProgress: onProgress,
		Logger:     e.logger,
	})
	results := run.Wait()
	if ctx.Err() != nil {
		return results, context.Cause(ctx)
	}
	return results, nil
}

// Report writes results and the current metrics in the configured format.
// Text reports end with the threshold verdicts.
func (e *Engine) Report(w io.Writer, results suite.Results) error {
	if err := output.Write(w, e.cfg.Output.Format, results, e.collector.Stats()); err != nil {
		return err
	}
	if e.cfg.Output.Format == "" || e.cfg.Output.Format == config.OutputText {
		checked, _ := e.CheckThresholds()
		output.PrintThresholdResults(w, checked)
	}
	return nil
}

// CheckThresholds evaluates the configured thresholds against the current
// metrics. The error wraps ErrThresholdsFailed when any of them fails.
func (e *Engine) CheckThresholds() ([]threshold.Result, error) {
	results := e.evaluator.Evaluate(e.collector.Stats())
	if n := threshold.Failed(results); n > 0 {
		return results, fmt.Errorf("%w: %d of %d", ErrThresholdsFailed, n, len(results))
	}
	return results, nil
}

// Close shuts the runner down, waiting up to the configured shutdown timeout
// for running tests, then releases the spawner, the registry and the tracer
// provider. It is safe to call more than once.
func (e *Engine) Close(ctx context.Context) error {
	e.closeOnce.Do(func() {
		if e.cfg.ShutdownTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, e.cfg.ShutdownTimeout)
			defer cancel()
		}

		var errs []error
		if err := e.runner.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		e.spawner.Close()
		e.registry.Close()
		if err := e.tracing.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("tracing shutdown: %w", err))
		}
		e.closeErr = errors.Join(errs...)
		e.logger.Debug("engine closed", "error", e.closeErr)
	})
	return e.closeErr
}
