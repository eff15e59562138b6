package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultEnvPrefix prefixes every environment override, e.g.
// LINKPROBE_MAX_TASKS or LINKPROBE_LOG_LEVEL.
const DefaultEnvPrefix = "LINKPROBE"

// settingKeys are the dotted keys that can be set from the environment.
var settingKeys = []string{
	"max_tasks",
	"max_concurrent",
	"max_samples",
	"time_scale",
	"seed",
	"tests",
	"parallel",
	"thresholds",
	"shutdown_timeout",
	"log.level",
	"log.format",
	"tracing.endpoint",
	"tracing.protocol",
	"tracing.service_name",
	"tracing.sample_rate",
	"tracing.insecure",
	"metrics.enabled",
	"metrics.namespace",
	"output.format",
}

// Loader handles loading configuration from files, the environment and
// command-line arguments, in increasing order of precedence.
type Loader struct {
	envPrefix string
}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{envPrefix: DefaultEnvPrefix}
}

// WithEnvPrefix returns a copy of l reading overrides under prefix. An empty
// prefix disables environment overrides.
func (l Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return &l
}

// Load parses command-line arguments and configuration files to produce a Config.
func (l Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	if l.envPrefix != "" {
		cfgViper.SetEnvPrefix(l.envPrefix)
		cfgViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		for _, key := range settingKeys {
			if err := cfgViper.BindEnv(key); err != nil {
				return nil, fmt.Errorf("bind env %s: %w", key, err)
			}
		}
	}

	settings := cfgViper.AllSettings()

	cfg := Default()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, settings); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	normalize(cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	for i, name := range cfg.Tests {
		cfg.Tests[i] = strings.ToLower(strings.TrimSpace(name))
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(cfg.Tracing.Protocol))
	cfg.Tracing.Endpoint = strings.TrimSpace(cfg.Tracing.Endpoint)
	cfg.Output.Format = OutputFormat(strings.ToLower(strings.TrimSpace(string(cfg.Output.Format))))
}

// applyConfigSettings applies settings from a config file or the environment
// to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "max_tasks", "maxtasks", "max-tasks"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("max_tasks: %w", err)
		}
		cfg.MaxTasks = val
	}

	if raw, ok := lookupSetting(settings, "max_concurrent", "maxconcurrent", "max-concurrent"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("max_concurrent: %w", err)
		}
		cfg.MaxConcurrent = val
	}

	if raw, ok := lookupSetting(settings, "max_samples", "maxsamples", "max-samples"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("max_samples: %w", err)
		}
		cfg.MaxSamples = val
	}

	if raw, ok := lookupSetting(settings, "time_scale", "timescale", "time-scale"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("time_scale: %w", err)
		}
		cfg.TimeScale = val
	}

	if raw, ok := lookupSetting(settings, "seed"); ok {
		val, err := asInt64(raw)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		cfg.Seed = val
	}

	if raw, ok := lookupSetting(settings, "tests"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("tests: %w", err)
		}
		cfg.Tests = val
	}

	if raw, ok := lookupSetting(settings, "parallel"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("parallel: %w", err)
		}
		cfg.Parallel = val
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = val
	}

	if raw, ok := lookupSetting(settings, "shutdown_timeout", "shutdowntimeout", "shutdown-timeout"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("shutdown_timeout: %w", err)
		}
		cfg.ShutdownTimeout = val
	}

	if raw, ok := lookupSetting(settings, "log"); ok {
		if err := applyLogSettings(&cfg.Log, raw); err != nil {
			return err
		}
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracingSettings(&cfg.Tracing, raw); err != nil {
			return err
		}
	}

	if raw, ok := lookupSetting(settings, "metrics"); ok {
		section, err := toStringKeyMap(raw)
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		if raw, ok := lookupSetting(section, "enabled"); ok {
			val, err := asBool(raw)
			if err != nil {
				return fmt.Errorf("metrics.enabled: %w", err)
			}
			cfg.Metrics.Enabled = val
		}
		if raw, ok := lookupSetting(section, "namespace"); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("metrics.namespace: %w", err)
			}
			cfg.Metrics.Namespace = val
		}
	}

	if raw, ok := lookupSetting(settings, "output"); ok {
		section, err := toStringKeyMap(raw)
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		if raw, ok := lookupSetting(section, "format"); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("output.format: %w", err)
			}
			cfg.Output.Format = OutputFormat(val)
		}
	}

	return nil
}

func applyLogSettings(lc *LogConfig, raw interface{}) error {
	section, err := toStringKeyMap(raw)
	if err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if raw, ok := lookupSetting(section, "level"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("log.level: %w", err)
		}
		lc.Level = val
	}
	if raw, ok := lookupSetting(section, "format"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("log.format: %w", err)
		}
		lc.Format = val
	}
	return nil
}

func applyTracingSettings(tc *TracingConfig, raw interface{}) error {
	section, err := toStringKeyMap(raw)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	if raw, ok := lookupSetting(section, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("tracing.endpoint: %w", err)
		}
		tc.Endpoint = val
	}
	if raw, ok := lookupSetting(section, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("tracing.protocol: %w", err)
		}
		tc.Protocol = val
	}
	if raw, ok := lookupSetting(section, "service_name", "servicename", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("tracing.service_name: %w", err)
		}
		tc.ServiceName = val
	}
	if raw, ok := lookupSetting(section, "sample_rate", "samplerate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return fmt.Errorf("tracing.sample_rate: %w", err)
		}
		tc.SampleRate = val
	}
	if raw, ok := lookupSetting(section, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("tracing.insecure: %w", err)
		}
		tc.Insecure = val
	}
	return nil
}
