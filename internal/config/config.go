package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/torosent/linkprobe/internal/logging"
	"github.com/torosent/linkprobe/internal/measure"
	"github.com/torosent/linkprobe/internal/threshold"
)

// OutputFormat selects how suite results are reported.
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
	OutputYAML OutputFormat = "yaml"
	OutputHTML OutputFormat = "html"
)

// Config is the engine configuration. It sizes the runner and selects which
// tests a suite runs; it does not configure individual measurements beyond
// their type.
type Config struct {
	MaxTasks        int           `mapstructure:"max_tasks"`      // registry capacity, 0 = unbounded
	MaxConcurrent   int           `mapstructure:"max_concurrent"` // spawner slots, 0 = unbounded
	MaxSamples      int           `mapstructure:"max_samples"`    // per-task sample buffer, 0 = unbounded
	TimeScale       float64       `mapstructure:"time_scale"`
	Seed            int64         `mapstructure:"seed"`
	Tests           []string      `mapstructure:"tests"`
	Parallel        bool          `mapstructure:"parallel"`
	Thresholds      []string      `mapstructure:"thresholds"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	ConfigFile      string        `mapstructure:"-"`
	Log             LogConfig     `mapstructure:"log"`
	Tracing         TracingConfig `mapstructure:"tracing"`
	Metrics         MetricsConfig `mapstructure:"metrics"`
	Output          OutputConfig  `mapstructure:"output"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // grpc or http
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
}

// Enabled reports whether spans should be exported, either because an
// endpoint is configured or because the standard OTLP variable is set.
func (t TracingConfig) Enabled() bool {
	if strings.TrimSpace(t.Endpoint) != "" {
		return true
	}
	return os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

type OutputConfig struct {
	Format OutputFormat `mapstructure:"format"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		TimeScale:       1,
		Tests:           defaultTests(),
		ShutdownTimeout: 5 * time.Second,
		Log:             LogConfig{Level: "info", Format: string(logging.FormatText)},
		Tracing:         TracingConfig{Protocol: "grpc", SampleRate: 1},
		Metrics:         MetricsConfig{Namespace: "linkprobe"},
		Output:          OutputConfig{Format: OutputText},
	}
}

func defaultTests() []string {
	names := make([]string, len(measure.AllTestTypes))
	for i, t := range measure.AllTestTypes {
		names[i] = t.String()
	}
	return names
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if c.MaxTasks < 0 {
		issues = append(issues, "max_tasks must be >= 0")
	}
	if c.MaxConcurrent < 0 {
		issues = append(issues, "max_concurrent must be >= 0")
	}
	if c.MaxSamples < 0 {
		issues = append(issues, "max_samples must be >= 0")
	}
	if c.TimeScale <= 0 {
		issues = append(issues, "time_scale must be > 0")
	}
	if c.ShutdownTimeout < 0 {
		issues = append(issues, "shutdown_timeout must be >= 0")
	}

	issues = append(issues, validateTests(c.Tests)...)
	if _, err := threshold.ParseMultiple(c.Thresholds); err != nil {
		issues = append(issues, fmt.Sprintf("thresholds: %v", err))
	}
	issues = append(issues, validateLogConfig(c.Log)...)
	issues = append(issues, validateTracingConfig(c.Tracing)...)

	switch c.Output.Format {
	case "", OutputText, OutputJSON, OutputYAML, OutputHTML:
	default:
		issues = append(issues, fmt.Sprintf("output: format must be one of text, json, yaml, html, got %q", c.Output.Format))
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateTests(tests []string) []string {
	if len(tests) == 0 {
		return []string{"tests: at least one test type is required"}
	}
	var issues []string
	seen := map[measure.TestType]int{}
	for idx, name := range tests {
		t, err := measure.ParseTestType(name)
		if err != nil {
			issues = append(issues, fmt.Sprintf("tests[%d]: %v", idx, err))
			continue
		}
		if prev, ok := seen[t]; ok {
			issues = append(issues, fmt.Sprintf("tests[%d]: %s already listed at index %d", idx, t, prev))
			continue
		}
		seen[t] = idx
	}
	return issues
}

func validateLogConfig(lc LogConfig) []string {
	var issues []string
	if _, err := logging.ParseLevel(lc.Level); err != nil {
		issues = append(issues, fmt.Sprintf("log: %v", err))
	}
	if _, err := logging.ParseFormat(lc.Format); err != nil {
		issues = append(issues, fmt.Sprintf("log: %v", err))
	}
	return issues
}

func validateTracingConfig(tc TracingConfig) []string {
	var issues []string
	switch strings.ToLower(tc.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", tc.Protocol))
	}
	if tc.SampleRate < 0 || tc.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing: sample_rate must be between 0.0 and 1.0, got %g", tc.SampleRate))
	}
	return issues
}

// TestTypes parses Tests in order.
func (c Config) TestTypes() ([]measure.TestType, error) {
	types := make([]measure.TestType, 0, len(c.Tests))
	for _, name := range c.Tests {
		t, err := measure.ParseTestType(name)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

// LoggingOptions converts the log section into logging options.
func (c Config) LoggingOptions() (logging.Options, error) {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil {
		return logging.Options{}, err
	}
	format, err := logging.ParseFormat(c.Log.Format)
	if err != nil {
		return logging.Options{}, err
	}
	return logging.Options{Level: level, Format: format}, nil
}
