package measure

import (
	"math"
	"time"
)

// sampleStep is the simulated spacing of multi-sample tests.
const sampleStep = 500 * time.Millisecond

type floatRange struct {
	min, max float64
}

// secondsRange is half-open: [min, max).
type secondsRange struct {
	min, max int
}

type profile struct {
	base        floatRange
	variation   floatRange
	duration    secondsRange
	multiSample bool
}

var profiles = map[TestType]profile{
	Download:       {base: floatRange{10, 100}, variation: floatRange{10, 30}, duration: secondsRange{6, 12}, multiSample: true},
	Upload:         {base: floatRange{10, 100}, variation: floatRange{10, 30}, duration: secondsRange{6, 12}, multiSample: true},
	Latency:        {base: floatRange{10, 100}, variation: floatRange{10, 200}, duration: secondsRange{4, 10}},
	Jitter:         {base: floatRange{1, 5}, variation: floatRange{1, 5}, duration: secondsRange{5, 10}},
	PacketLoss:     {base: floatRange{0, 1}, variation: floatRange{0, 0}, duration: secondsRange{3, 7}},
	VideoStreaming: {base: floatRange{0, 1}, variation: floatRange{0, 0}, duration: secondsRange{3, 7}},
	WebBrowsing:    {base: floatRange{100, 500}, variation: floatRange{0, 100}, duration: secondsRange{3, 6}},
}

// Plan is one random draw from a test type's profile.
type Plan struct {
	Type      TestType
	Base      float64
	Variation float64
	Duration  time.Duration // simulated, before time scaling
	Samples   int
}

// Bounds returns the closed interval sample values are drawn from.
func (p Plan) Bounds() (lo, hi float64) {
	return math.Max(0, p.Base-p.Variation), math.Max(0, p.Base+p.Variation)
}

// Interval is the simulated time between samples.
func (p Plan) Interval() time.Duration {
	if p.Samples <= 0 {
		return p.Duration
	}
	return p.Duration / time.Duration(p.Samples)
}

// Draw picks base, variation and duration for t.
func Draw(t TestType, src Source) (Plan, error) {
	prof, ok := profiles[t]
	if !ok {
		return Plan{}, ErrUnknownTestType
	}
	seconds := intBetween(src, prof.duration.min, prof.duration.max)
	plan := Plan{
		Type:      t,
		Base:      floatBetween(src, prof.base.min, prof.base.max),
		Variation: floatBetween(src, prof.variation.min, prof.variation.max),
		Duration:  time.Duration(seconds) * time.Second,
		Samples:   1,
	}
	if prof.multiSample {
		plan.Samples = sampleCount(plan.Duration)
	}
	return plan, nil
}

// Limits describes the widest ranges a test type can produce.
type Limits struct {
	MinValue    float64
	MaxValue    float64
	MinDuration time.Duration
	MaxDuration time.Duration // exclusive
	MaxSamples  int
}

// LimitsFor returns the profile limits of t.
func LimitsFor(t TestType) (Limits, bool) {
	prof, ok := profiles[t]
	if !ok {
		return Limits{}, false
	}
	longest := time.Duration(prof.duration.max-1) * time.Second
	lim := Limits{
		MinValue:    math.Max(0, prof.base.min-prof.variation.max),
		MaxValue:    math.Max(0, prof.base.max+prof.variation.max),
		MinDuration: time.Duration(prof.duration.min) * time.Second,
		MaxDuration: time.Duration(prof.duration.max) * time.Second,
		MaxSamples:  1,
	}
	if prof.multiSample {
		lim.MaxSamples = sampleCount(longest)
	}
	return lim, true
}

// MaxSamples is the largest sample count any profile can produce.
func MaxSamples() int {
	most := 1
	for t := range profiles {
		if lim, _ := LimitsFor(t); lim.MaxSamples > most {
			most = lim.MaxSamples
		}
	}
	return most
}

func sampleCount(d time.Duration) int {
	n := int(d / sampleStep)
	if n < 1 {
		n = 1
	}
	return n
}

func floatBetween(src Source, min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + src.Float64()*(max-min)
}

func intBetween(src Source, min, max int) int {
	if max <= min {
		return min
	}
	return min + src.Intn(max-min)
}
