package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/torosent/linkprobe/internal/config"
	"github.com/torosent/linkprobe/internal/measure"
)

func TestLoadDefaults(t *testing.T) {
	loader := config.NewLoader().WithEnvPrefix("")

	cfg, err := loader.Load([]string{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MaxTasks != 0 || cfg.MaxConcurrent != 0 || cfg.MaxSamples != 0 {
		t.Errorf("limits = %d/%d/%d, want unbounded", cfg.MaxTasks, cfg.MaxConcurrent, cfg.MaxSamples)
	}
	if cfg.TimeScale != 1 {
		t.Errorf("TimeScale = %v, want 1", cfg.TimeScale)
	}
	if len(cfg.Tests) != len(measure.AllTestTypes) {
		t.Errorf("Tests = %v, want every test type", cfg.Tests)
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %s, want 5s", cfg.ShutdownTimeout)
	}
	if cfg.Output.Format != config.OutputText {
		t.Errorf("Output.Format = %q, want text", cfg.Output.Format)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadConfigFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "linkprobe.yaml")
	content := `
max_tasks: 8
max_concurrent: 2
time_scale: 0.001
seed: 1234
tests:
  - download
  - latency
parallel: true
shutdown_timeout: 2s
log:
  level: debug
tracing:
  endpoint: localhost:4318
  protocol: http
metrics:
  namespace: probe
output:
  format: yaml
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.NewLoader().WithEnvPrefix("").Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ConfigFile != path {
		t.Errorf("ConfigFile = %q, want %q", cfg.ConfigFile, path)
	}
	if cfg.MaxTasks != 8 || cfg.MaxConcurrent != 2 {
		t.Errorf("limits = %d/%d, want 8/2", cfg.MaxTasks, cfg.MaxConcurrent)
	}
	if cfg.TimeScale != 0.001 {
		t.Errorf("TimeScale = %v, want 0.001", cfg.TimeScale)
	}
	if cfg.Seed != 1234 {
		t.Errorf("Seed = %d, want 1234", cfg.Seed)
	}
	types, err := cfg.TestTypes()
	if err != nil {
		t.Fatalf("TestTypes() error = %v", err)
	}
	if len(types) != 2 || types[0] != measure.Download || types[1] != measure.Latency {
		t.Errorf("TestTypes() = %v, want [download latency]", types)
	}
	if !cfg.Parallel {
		t.Error("Parallel = false, want true")
	}
	if cfg.ShutdownTimeout != 2*time.Second {
		t.Errorf("ShutdownTimeout = %s, want 2s", cfg.ShutdownTimeout)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
	if cfg.Tracing.Endpoint != "localhost:4318" || cfg.Tracing.Protocol != "http" {
		t.Errorf("Tracing = %+v", cfg.Tracing)
	}
	if cfg.Metrics.Namespace != "probe" {
		t.Errorf("Metrics.Namespace = %q, want probe", cfg.Metrics.Namespace)
	}
	if cfg.Output.Format != config.OutputYAML {
		t.Errorf("Output.Format = %q, want yaml", cfg.Output.Format)
	}
}

func TestLoadConfigFileJSONWithFlagOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "linkprobe.json")
	if err := os.WriteFile(path, []byte(`{"max_tasks": 3, "tests": ["jitter"]}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.NewLoader().WithEnvPrefix("").Load([]string{"--config", path, "--max-tasks", "5"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxTasks != 5 {
		t.Errorf("MaxTasks = %d, want flag value 5", cfg.MaxTasks)
	}
	if len(cfg.Tests) != 1 || cfg.Tests[0] != "jitter" {
		t.Errorf("Tests = %v, want [jitter]", cfg.Tests)
	}
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	t.Setenv("LINKPROBE_MAX_CONCURRENT", "6")
	t.Setenv("LINKPROBE_TESTS", "Upload,web_browsing")
	t.Setenv("LINKPROBE_LOG_FORMAT", "JSON")
	t.Setenv("LINKPROBE_TRACING_SAMPLE_RATE", "0.5")

	cfg, err := config.NewLoader().Load([]string{"--log-format", "text"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxConcurrent != 6 {
		t.Errorf("MaxConcurrent = %d, want 6", cfg.MaxConcurrent)
	}
	if len(cfg.Tests) != 2 || cfg.Tests[0] != "upload" || cfg.Tests[1] != "web_browsing" {
		t.Errorf("Tests = %v, want [upload web_browsing]", cfg.Tests)
	}
	if cfg.Tracing.SampleRate != 0.5 {
		t.Errorf("Tracing.SampleRate = %v, want 0.5", cfg.Tracing.SampleRate)
	}
	if cfg.Log.Format != "text" {
		t.Errorf("Log.Format = %q, want flag value text", cfg.Log.Format)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadHelp(t *testing.T) {
	_, err := config.NewLoader().Load([]string{"--help"})
	if !errors.Is(err, config.ErrHelpRequested) {
		t.Fatalf("Load(--help) error = %v, want ErrHelpRequested", err)
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := config.NewLoader().Load([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateCollectsIssues(t *testing.T) {
	cfg := config.Default()
	cfg.MaxTasks = -1
	cfg.TimeScale = 0
	cfg.Tests = []string{"download", "bandwidth", "download"}
	cfg.Log.Level = "loud"
	cfg.Tracing.Protocol = "thrift"
	cfg.Tracing.SampleRate = 2
	cfg.Output.Format = "xml"

	err := cfg.Validate()
	var verr config.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Validate() error = %v, want ValidationError", err)
	}

	wantFragments := []string{
		"max_tasks",
		"time_scale",
		"tests[1]",
		"tests[2]",
		"log:",
		"protocol",
		"sample_rate",
		"output",
	}
	issues := strings.Join(verr.Issues(), "\n")
	for _, frag := range wantFragments {
		if !strings.Contains(issues, frag) {
			t.Errorf("issues missing %q:\n%s", frag, issues)
		}
	}
	if !strings.HasPrefix(err.Error(), "validation failed: ") {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestValidateRequiresTests(t *testing.T) {
	cfg := config.Default()
	cfg.Tests = nil
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when no tests are configured")
	}
}

func TestLoggingOptions(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Level = "error"
	cfg.Log.Format = "json"
	opts, err := cfg.LoggingOptions()
	if err != nil {
		t.Fatalf("LoggingOptions() error = %v", err)
	}
	if opts.Level.String() != "ERROR" || opts.Format != "json" {
		t.Errorf("LoggingOptions() = %+v", opts)
	}
}

func TestTracingEnabled(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	if (config.TracingConfig{}).Enabled() {
		t.Error("Enabled() = true without endpoint")
	}
	if !(config.TracingConfig{Endpoint: "localhost:4317"}).Enabled() {
		t.Error("Enabled() = false with endpoint")
	}
}

func TestRegisterFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "probe"}
	config.RegisterFlags(cmd)
	for _, name := range []string{"config", "max-tasks", "test", "parallel", "log-level", "tracing-endpoint", "output"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("flag %q not registered", name)
		}
	}
}

func TestLoadThresholds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "linkprobe.yaml")
	if err := os.WriteFile(path, []byte("thresholds:\n  - \"download:avg > 25\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.NewLoader().WithEnvPrefix("").Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(cfg.Thresholds) != 1 || cfg.Thresholds[0] != "download:avg > 25" {
		t.Errorf("Thresholds = %v, want file value", cfg.Thresholds)
	}

	cfg, err = config.NewLoader().WithEnvPrefix("").Load([]string{
		"--config", path,
		"--threshold", "latency:p99 < 150",
		"--threshold", "tasks:failed < 1",
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := []string{"latency:p99 < 150", "tasks:failed < 1"}
	if strings.Join(cfg.Thresholds, "|") != strings.Join(want, "|") {
		t.Errorf("Thresholds = %v, want %v", cfg.Thresholds, want)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}

	cfg.Thresholds = []string{"latency:p95 < 1"}
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "thresholds:") {
		t.Errorf("Validate() error = %v, want thresholds issue", err)
	}
}
