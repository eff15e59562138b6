package measure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrCancelled is returned when the context ends before the last sample.
	ErrCancelled = errors.New("measurement cancelled")
	// ErrSampleBuffer is returned when a plan needs more samples than allowed.
	ErrSampleBuffer = errors.New("sample buffer allocation failed")
)

// SampleFunc observes each sample as it is produced. index is zero based and
// average is the mean of samples 0..index.
type SampleFunc func(index int, value, average float64)

// Measurement is the outcome of a completed simulation.
type Measurement struct {
	Plan    Plan
	Samples []float64
	Average float64
	Elapsed time.Duration
}

// Strategy produces a measurement for a configuration. The runner depends on
// this interface so the simulator can be swapped out.
type Strategy interface {
	Measure(ctx context.Context, cfg Config, onSample SampleFunc) (Measurement, error)
}

// Options configure a Simulator.
type Options struct {
	TimeScale  float64 // multiplier on simulated durations; 0 means 1
	MaxSamples int     // 0 means unbounded
	Source     Source  // nil uses a time seeded source
}

func (o *Options) normalize() {
	if o.TimeScale <= 0 {
		o.TimeScale = 1
	}
	if o.MaxSamples < 0 {
		o.MaxSamples = 0
	}
	if o.Source == nil {
		o.Source = NewSource(0)
	}
}

// Simulator generates random samples following the profile table.
type Simulator struct {
	opt Options
}

var _ Strategy = (*Simulator)(nil)

// NewSimulator returns a Simulator.
func NewSimulator(opt Options) *Simulator {
	opt.normalize()
	return &Simulator{opt: opt}
}

// Measure draws a plan for cfg and runs it. Cancellation is checked before
// each wait and again before each sample, and the wait itself returns as soon
// as ctx is done.
func (s *Simulator) Measure(ctx context.Context, cfg Config, onSample SampleFunc) (Measurement, error) {
	if err := cfg.Validate(); err != nil {
		return Measurement{}, err
	}
	plan, err := Draw(cfg.Type, s.opt.Source)
	if err != nil {
		return Measurement{}, err
	}
	return s.run(ctx, plan, onSample)
}

func (s *Simulator) run(ctx context.Context, plan Plan, onSample SampleFunc) (Measurement, error) {
	if s.opt.MaxSamples > 0 && plan.Samples > s.opt.MaxSamples {
		return Measurement{Plan: plan}, fmt.Errorf("%w: %d samples requested, limit %d", ErrSampleBuffer, plan.Samples, s.opt.MaxSamples)
	}

	start := time.Now()
	m := Measurement{
		Plan:    plan,
		Samples: make([]float64, 0, plan.Samples),
	}
	lo, hi := plan.Bounds()
	pace := newPacer(s.scale(plan.Interval()))

	var sum float64
	for i := 0; i < plan.Samples; i++ {
		if err := ctx.Err(); err != nil {
			return m, cancelled(ctx)
		}
		if err := pace.wait(ctx); err != nil {
			return m, cancelled(ctx)
		}
		if err := ctx.Err(); err != nil {
			return m, cancelled(ctx)
		}

		value := floatBetween(s.opt.Source, lo, hi)
		m.Samples = append(m.Samples, value)
		sum += value
		m.Average = sum / float64(len(m.Samples))

		if onSample != nil {
			onSample(i, value, m.Average)
		}
	}
	m.Elapsed = time.Since(start)
	return m, nil
}

func (s *Simulator) scale(d time.Duration) time.Duration {
	return time.Duration(float64(d) * s.opt.TimeScale)
}

func cancelled(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil {
		cause = context.Canceled
	}
	return fmt.Errorf("%w: %w", ErrCancelled, cause)
}

// pacer spaces samples one interval apart. The limiter's initial token is
// drained so the first sample also waits a full interval.
type pacer struct {
	limiter *rate.Limiter
}

func newPacer(interval time.Duration) *pacer {
	if interval <= 0 {
		return &pacer{}
	}
	limiter := rate.NewLimiter(rate.Every(interval), 1)
	limiter.Allow()
	return &pacer{limiter: limiter}
}

func (p *pacer) wait(ctx context.Context) error {
	if p.limiter == nil {
		return ctx.Err()
	}
	return p.limiter.Wait(ctx)
}
