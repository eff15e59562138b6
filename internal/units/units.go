// Package units renders test results in their natural units.
package units

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/torosent/linkprobe/internal/measure"
)

// defaultDigits is how many digits String methods keep.
const defaultDigits = 3

// BitRateUnit scales a bit rate. The value is the number of bits per second
// one unit represents.
type BitRateUnit float64

const (
	BitsPerSecond     BitRateUnit = 1
	KilobitsPerSecond BitRateUnit = 1_000
	MegabitsPerSecond BitRateUnit = 1_000_000
	GigabitsPerSecond BitRateUnit = 1_000_000_000
)

func (u BitRateUnit) String() string {
	switch u {
	case BitsPerSecond:
		return "bps"
	case KilobitsPerSecond:
		return "Kbps"
	case MegabitsPerSecond:
		return "Mbps"
	case GigabitsPerSecond:
		return "Gbps"
	default:
		return fmt.Sprintf("BitRateUnit(%g)", float64(u))
	}
}

// BitRate is a throughput value in a given unit.
type BitRate struct {
	Value float64
	Unit  BitRateUnit
}

// In returns the same rate expressed in unit.
func (b BitRate) In(unit BitRateUnit) BitRate {
	if unit == b.Unit || unit == 0 {
		return b
	}
	return BitRate{Value: b.Value * float64(b.Unit) / float64(unit), Unit: unit}
}

func (b BitRate) String() string {
	return FormatDigits(b.Value, defaultDigits) + b.Unit.String()
}

// TimeUnit scales a duration value. The value is milliseconds per unit.
type TimeUnit float64

const (
	Milliseconds TimeUnit = 1
	Seconds      TimeUnit = 1_000
	Minutes      TimeUnit = 60_000
	Hours        TimeUnit = 3_600_000
)

func (u TimeUnit) String() string {
	switch u {
	case Milliseconds:
		return "ms"
	case Seconds:
		return "sec"
	case Minutes:
		return "min"
	case Hours:
		return "hour"
	default:
		return fmt.Sprintf("TimeUnit(%g)", float64(u))
	}
}

// Time is a duration value in a given unit. Unlike time.Duration it keeps
// fractional milliseconds.
type Time struct {
	Value float64
	Unit  TimeUnit
}

// In returns the same time expressed in unit.
func (t Time) In(unit TimeUnit) Time {
	if unit == t.Unit || unit == 0 {
		return t
	}
	return Time{Value: t.Value * float64(t.Unit) / float64(unit), Unit: unit}
}

func (t Time) String() string {
	return FormatDigits(t.Value, defaultDigits) + t.Unit.String()
}

// VideoQuality is the streaming quality a connection sustains.
type VideoQuality int

const (
	SD VideoQuality = iota + 1
	HD
	UHD
)

var qualities = []VideoQuality{SD, HD, UHD}

func (q VideoQuality) String() string {
	switch q {
	case SD:
		return "SD"
	case HD:
		return "HD"
	case UHD:
		return "UHD"
	default:
		return fmt.Sprintf("VideoQuality(%d)", int(q))
	}
}

// NearestQuality returns the quality whose score is closest to score. Ties
// go to the lower quality.
func NearestQuality(score float64) VideoQuality {
	best := SD
	bestDiff := math.Inf(1)
	for _, q := range qualities {
		if d := math.Abs(score - float64(q)); d < bestDiff {
			best, bestDiff = q, d
		}
	}
	return best
}

// QualityFromFraction maps a 0..1 streaming score onto SD..UHD.
func QualityFromFraction(f float64) VideoQuality {
	f = math.Max(0, math.Min(1, f))
	return NearestQuality(float64(SD) + f*float64(UHD-SD))
}

// FormatDigits renders v with at least digits digits. The integer part is
// never truncated; fractional digits are cut, not rounded, and zero padded.
//
//	FormatDigits(1.5, 3)    == "1.50"
//	FormatDigits(12.345, 3) == "12.3"
//	FormatDigits(1234.5, 3) == "1234"
func FormatDigits(v float64, digits int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	intPart, frac, _ := strings.Cut(strconv.FormatFloat(v, 'f', -1, 64), ".")
	if len(intPart) >= digits {
		return sign + intPart
	}
	want := digits - len(intPart)
	if len(frac) > want {
		frac = frac[:want]
	}
	frac += strings.Repeat("0", want-len(frac))
	return sign + intPart + "." + frac
}

// ForTestType renders a raw result of t in the unit people read it in.
// Throughput is reported in Mbps, time based tests in milliseconds, packet
// loss as a percentage and video streaming as a quality grade.
func ForTestType(t measure.TestType, value float64) string {
	switch t {
	case measure.Download, measure.Upload:
		return BitRate{Value: value, Unit: MegabitsPerSecond}.String()
	case measure.Latency, measure.Jitter, measure.WebBrowsing:
		return Time{Value: value, Unit: Milliseconds}.String()
	case measure.PacketLoss:
		return FormatDigits(value, defaultDigits) + "%"
	case measure.VideoStreaming:
		return QualityFromFraction(value).String()
	default:
		return FormatDigits(value, defaultDigits)
	}
}
