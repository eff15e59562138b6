package suite

import (
	"fmt"
	"strings"

	"github.com/torosent/linkprobe/internal/measure"
	"github.com/torosent/linkprobe/internal/runner"
)

// Results holds the value of every test in a run that completed. A nil field
// means the test was skipped, cancelled or failed.
type Results struct {
	Download       *float64 `json:"download,omitempty" yaml:"download,omitempty"`
	Upload         *float64 `json:"upload,omitempty" yaml:"upload,omitempty"`
	Latency        *float64 `json:"latency,omitempty" yaml:"latency,omitempty"`
	Jitter         *float64 `json:"jitter,omitempty" yaml:"jitter,omitempty"`
	PacketLoss     *float64 `json:"packet_loss,omitempty" yaml:"packet_loss,omitempty"`
	VideoStreaming *float64 `json:"video_streaming,omitempty" yaml:"video_streaming,omitempty"`
	WebBrowsing    *float64 `json:"web_browsing,omitempty" yaml:"web_browsing,omitempty"`
}

func (r *Results) field(t measure.TestType) **float64 {
	switch t {
	case measure.Download:
		return &r.Download
	case measure.Upload:
		return &r.Upload
	case measure.Latency:
		return &r.Latency
	case measure.Jitter:
		return &r.Jitter
	case measure.PacketLoss:
		return &r.PacketLoss
	case measure.VideoStreaming:
		return &r.VideoStreaming
	case measure.WebBrowsing:
		return &r.WebBrowsing
	default:
		return nil
	}
}

// Set records value for t. Unknown types are ignored.
func (r *Results) Set(t measure.TestType, value float64) {
	if f := r.field(t); f != nil {
		*f = &value
	}
}

// Get returns the value recorded for t.
func (r Results) Get(t measure.TestType) (float64, bool) {
	f := r.field(t)
	if f == nil || *f == nil {
		return 0, false
	}
	return **f, true
}

// Len counts the recorded values.
func (r Results) Len() int {
	n := 0
	for _, t := range measure.AllTestTypes {
		if _, ok := r.Get(t); ok {
			n++
		}
	}
	return n
}

// String lists one "type: value" line per recorded test.
func (r Results) String() string {
	var lines []string
	for _, t := range measure.AllTestTypes {
		if v, ok := r.Get(t); ok {
			lines = append(lines, fmt.Sprintf("%s: %v", t, v))
		}
	}
	if len(lines) == 0 {
		return "No Results"
	}
	return strings.Join(lines, "\n")
}

func (r Results) clone() Results {
	var out Results
	for _, t := range measure.AllTestTypes {
		if v, ok := r.Get(t); ok {
			out.Set(t, v)
		}
	}
	return out
}

// TestError reports a test in the run that did not complete.
type TestError struct {
	Type measure.TestType
	Kind runner.ErrorKind
	Err  error
}

func (e *TestError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Type, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Type, e.Kind, e.Err)
}

func (e *TestError) Unwrap() error { return e.Err }
