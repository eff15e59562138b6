package output

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/torosent/linkprobe/internal/metrics"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestProgressReporterBasic(t *testing.T) {
	collector := metrics.NewCollector()

	reporter := NewProgressReporter(collector, 100*time.Millisecond, nil)
	if reporter == nil {
		t.Fatal("Expected non-nil reporter")
	}

	// Stop without Start is a no-op.
	reporter.Stop()
}

func TestProgressReporterFormatting(t *testing.T) {
	collector := metrics.NewCollector()
	collector.TaskStarted("download")
	collector.SampleRecorded("download", 50)
	collector.SampleRecorded("download", 70)
	collector.TaskStarted("latency")

	var buf syncBuffer
	reporter := NewProgressReporter(collector, 20*time.Millisecond, &buf)
	reporter.Start()
	reporter.Start()

	time.Sleep(60 * time.Millisecond)
	reporter.Stop()

	output := buf.String()
	if !strings.Contains(output, "Tests: 2 | Active: 2 | Finished: 0") {
		t.Errorf("Expected task counts in progress output, got %q", output)
	}
	if !strings.Contains(output, "download mean 60.00") {
		t.Errorf("Expected busiest type in progress output, got %q", output)
	}
	if !strings.HasSuffix(output, "\n") {
		t.Errorf("Expected final line to end with a newline")
	}
}

func TestBusiestTypeIgnoresEmpty(t *testing.T) {
	stats := metrics.Stats{Types: []metrics.TypeStats{{Type: "jitter"}}}
	if _, ok := busiestType(stats); ok {
		t.Error("types without samples should not be reported")
	}
}
