// Package config loads graphstore runtime configuration from a YAML file and
// GRAPHSTORE_ prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"graphstore/pkg/idgen"
)

// EnvPrefix is prepended to every environment override, e.g.
// GRAPHSTORE_LOG_LEVEL for log.level.
const EnvPrefix = "GRAPHSTORE"

// Config holds all configuration options for a graphstore runtime.
type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Schema  SchemaConfig  `mapstructure:"schema"`
	IDs     IDsConfig     `mapstructure:"ids"`
	Journal JournalConfig `mapstructure:"journal"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Watch   WatchConfig   `mapstructure:"watch"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // "text" (default) or "json"
}

// MetricsConfig selects the metrics backend.
type MetricsConfig struct {
	Backend    string `mapstructure:"backend"` // none, expvar, prometheus
	Namespace  string `mapstructure:"namespace"`
	ExpvarName string `mapstructure:"expvar_name"`
}

// SchemaConfig points at a model declaration file. With no path the runtime
// starts with an empty schema and every type falls back to the base model.
type SchemaConfig struct {
	Path          string `mapstructure:"path"`
	TypeAttribute string `mapstructure:"type_attribute"`
}

// IDsConfig names the default id generator for models that do not pick one.
type IDsConfig struct {
	Generator string `mapstructure:"generator"`
}

// JournalConfig enables the JSON-lines patch journal when Path is set.
type JournalConfig struct {
	Path string `mapstructure:"path"`
}

// TracingConfig turns registry operations into OpenTelemetry spans.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Exporter    string  `mapstructure:"exporter"` // none, stderr, file
	FilePath    string  `mapstructure:"file_path"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
}

// WatchConfig tunes config file watching.
type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

var backends = map[string]bool{"none": true, "expvar": true, "prometheus": true}

// Defaults returns the configuration used when neither a file nor the
// environment sets a key.
func Defaults() Config {
	return Config{
		Log:     LogConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Backend: "none", Namespace: "graphstore"},
		Schema:  SchemaConfig{TypeAttribute: "__type__"},
		IDs:     IDsConfig{Generator: "counter"},
		Tracing: TracingConfig{Exporter: "none", ServiceName: "graphstore", SampleRate: 1},
		Watch:   WatchConfig{Debounce: 250 * time.Millisecond},
	}
}

// Load reads path (skipped when empty), applies environment overrides and
// validates the result.
func Load(path string) (Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newViper() *viper.Viper {
	defaults := Defaults()
	v := viper.New()
	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)
	v.SetDefault("metrics.backend", defaults.Metrics.Backend)
	v.SetDefault("metrics.namespace", defaults.Metrics.Namespace)
	v.SetDefault("metrics.expvar_name", defaults.Metrics.ExpvarName)
	v.SetDefault("schema.path", defaults.Schema.Path)
	v.SetDefault("schema.type_attribute", defaults.Schema.TypeAttribute)
	v.SetDefault("ids.generator", defaults.IDs.Generator)
	v.SetDefault("journal.path", defaults.Journal.Path)
	v.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	v.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	v.SetDefault("tracing.file_path", defaults.Tracing.FilePath)
	v.SetDefault("tracing.service_name", defaults.Tracing.ServiceName)
	v.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	v.SetDefault("watch.debounce", defaults.Watch.Debounce)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q: must be debug, info, warn or error", c.Log.Level))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format %q: must be text or json", c.Log.Format))
	}
	if !backends[c.Metrics.Backend] {
		errs = append(errs, fmt.Errorf("metrics.backend %q: must be none, expvar or prometheus", c.Metrics.Backend))
	}
	if c.IDs.Generator != "" {
		if _, err := idgen.New(c.IDs.Generator); err != nil {
			errs = append(errs, fmt.Errorf("ids.generator: %w", err))
		}
	}
	switch c.Tracing.Exporter {
	case "none", "stderr":
	case "file":
		if c.Tracing.Enabled && c.Tracing.FilePath == "" {
			errs = append(errs, errors.New("tracing.file_path: required for the file exporter"))
		}
	default:
		errs = append(errs, fmt.Errorf("tracing.exporter %q: must be none, stderr or file", c.Tracing.Exporter))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_rate %v: must be within [0, 1]", c.Tracing.SampleRate))
	}
	if c.Watch.Debounce < 0 {
		errs = append(errs, fmt.Errorf("watch.debounce %s: must not be negative", c.Watch.Debounce))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
