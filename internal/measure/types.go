package measure

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownTestType is returned for a TestType outside the profile table.
var ErrUnknownTestType = errors.New("unknown test type")

// TestType selects what a simulated test measures.
type TestType int

const (
	Download TestType = iota + 1
	Upload
	Latency
	Jitter
	PacketLoss
	VideoStreaming
	WebBrowsing
)

// AllTestTypes lists every supported type in display order.
var AllTestTypes = []TestType{Download, Upload, Latency, Jitter, PacketLoss, VideoStreaming, WebBrowsing}

var typeNames = map[TestType]string{
	Download:       "download",
	Upload:         "upload",
	Latency:        "latency",
	Jitter:         "jitter",
	PacketLoss:     "packet-loss",
	VideoStreaming: "video-streaming",
	WebBrowsing:    "web-browsing",
}

var typeAliases = map[string]TestType{
	"download":        Download,
	"upload":          Upload,
	"latency":         Latency,
	"ping":            Latency,
	"jitter":          Jitter,
	"packet-loss":     PacketLoss,
	"packetloss":      PacketLoss,
	"loss":            PacketLoss,
	"video-streaming": VideoStreaming,
	"videostreaming":  VideoStreaming,
	"video":           VideoStreaming,
	"youtube":         VideoStreaming,
	"web-browsing":    WebBrowsing,
	"webbrowsing":     WebBrowsing,
	"web":             WebBrowsing,
}

func (t TestType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TestType(%d)", int(t))
}

// Valid reports whether t has a profile.
func (t TestType) Valid() bool {
	_, ok := profiles[t]
	return ok
}

// MarshalText implements encoding.TextMarshaler.
func (t TestType) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTestType, int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TestType) UnmarshalText(text []byte) error {
	parsed, err := ParseTestType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTestType accepts the canonical names plus a few aliases
// ("ping", "youtube", "web", ...). Underscores and case are ignored.
func ParseTestType(s string) (TestType, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.ReplaceAll(key, "_", "-")
	if t, ok := typeAliases[key]; ok {
		return t, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTestType, s)
}

// Config is the immutable configuration of one test.
type Config struct {
	Type TestType
}

// Validate checks that the configuration can be simulated.
func (c Config) Validate() error {
	if !c.Type.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownTestType, int(c.Type))
	}
	return nil
}
