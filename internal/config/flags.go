package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all engine flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "linkprobe",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Engine sizing
	flags.Int("max-tasks", 0, "Maximum registered tests (0 means unbounded)")
	flags.Int("max-concurrent", 0, "Maximum tests running at once (0 means unbounded)")
	flags.Int("max-samples", 0, "Maximum samples per test (0 means unbounded)")
	flags.Float64("time-scale", 1, "Multiplier applied to simulated durations")
	flags.Int64("seed", 0, "Random seed (0 seeds from the clock)")
	flags.Duration("shutdown-timeout", 5*time.Second, "Max time to wait for running tests on shutdown")

	// Suite
	flags.StringSliceP("test", "t", nil, "Test type to run (repeatable, e.g. download,latency)")
	flags.Bool("parallel", false, "Run the suite's tests at the same time")
	flags.StringArray("threshold", nil, "Quality assertion (repeatable, e.g. 'latency:p99 < 150')")

	// Logging
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-format", "text", "Log format: text or json")

	// Tracing
	flags.String("tracing-endpoint", "", "OTLP endpoint for spans (empty disables tracing)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.String("tracing-service-name", "", "Service name reported with spans")
	flags.Float64("tracing-sample-rate", 1, "Fraction of tests traced (0.0-1.0)")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")

	// Metrics and output
	flags.Bool("metrics", false, "Register Prometheus collectors")
	flags.String("metrics-namespace", "linkprobe", "Prometheus metric namespace")
	flags.StringP("output", "o", string(OutputText), "Report format: text, json, yaml or html")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file and environment.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("max-tasks") {
		val, err := fs.GetInt("max-tasks")
		if err != nil {
			return err
		}
		cfg.MaxTasks = val
	}
	if fs.Changed("max-concurrent") {
		val, err := fs.GetInt("max-concurrent")
		if err != nil {
			return err
		}
		cfg.MaxConcurrent = val
	}
	if fs.Changed("max-samples") {
		val, err := fs.GetInt("max-samples")
		if err != nil {
			return err
		}
		cfg.MaxSamples = val
	}
	if fs.Changed("time-scale") {
		val, err := fs.GetFloat64("time-scale")
		if err != nil {
			return err
		}
		cfg.TimeScale = val
	}
	if fs.Changed("seed") {
		val, err := fs.GetInt64("seed")
		if err != nil {
			return err
		}
		cfg.Seed = val
	}
	if fs.Changed("shutdown-timeout") {
		val, err := fs.GetDuration("shutdown-timeout")
		if err != nil {
			return err
		}
		cfg.ShutdownTimeout = val
	}
	if fs.Changed("test") {
		val, err := fs.GetStringSlice("test")
		if err != nil {
			return err
		}
		cfg.Tests = val
	}
	if fs.Changed("parallel") {
		val, err := fs.GetBool("parallel")
		if err != nil {
			return err
		}
		cfg.Parallel = val
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringArray("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}
	if fs.Changed("log-level") {
		val, err := fs.GetString("log-level")
		if err != nil {
			return err
		}
		cfg.Log.Level = val
	}
	if fs.Changed("log-format") {
		val, err := fs.GetString("log-format")
		if err != nil {
			return err
		}
		cfg.Log.Format = val
	}
	if fs.Changed("tracing-endpoint") {
		val, err := fs.GetString("tracing-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-protocol") {
		val, err := fs.GetString("tracing-protocol")
		if err != nil {
			return err
		}
		cfg.Tracing.Protocol = val
	}
	if fs.Changed("tracing-service-name") {
		val, err := fs.GetString("tracing-service-name")
		if err != nil {
			return err
		}
		cfg.Tracing.ServiceName = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	if fs.Changed("metrics") {
		val, err := fs.GetBool("metrics")
		if err != nil {
			return err
		}
		cfg.Metrics.Enabled = val
	}
	if fs.Changed("metrics-namespace") {
		val, err := fs.GetString("metrics-namespace")
		if err != nil {
			return err
		}
		cfg.Metrics.Namespace = val
	}
	if fs.Changed("output") {
		val, err := fs.GetString("output")
		if err != nil {
			return err
		}
		cfg.Output.Format = OutputFormat(val)
	}
	return nil
}
