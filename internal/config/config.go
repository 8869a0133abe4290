// Package config holds the fswatch configuration: defaults, an optional TOML
// or YAML file, FSWATCH_* environment overrides and validation.
package config

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/mrzor/fswatch/internal/aggregator"
	"github.com/mrzor/fswatch/internal/logging"
	"github.com/mrzor/fswatch/internal/logrecord"
	"github.com/mrzor/fswatch/internal/watcher"
)

// Channel backends.
const (
	BackendFltPort = "fltport"
	BackendBPF     = "bpf"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "FSWATCH_"

// CustomAttribute defines a custom span attribute computed by an expression.
type CustomAttribute struct {
	Name       string `toml:"name" yaml:"name"`
	Expression string `toml:"expression" yaml:"expression"`
}

// Config is the complete configuration.
type Config struct {
	// Backend selects the driver channel: fltport or bpf.
	Backend string `toml:"backend" yaml:"backend" env:"BACKEND"`

	Port       PortConfig       `toml:"port" yaml:"port" envPrefix:"PORT_"`
	Watch      WatchConfig      `toml:"watch" yaml:"watch" envPrefix:"WATCH_"`
	Aggregator AggregatorConfig `toml:"aggregator" yaml:"aggregator" envPrefix:"AGGREGATOR_"`
	Log        LogConfig        `toml:"log" yaml:"log" envPrefix:"LOG_"`
	Metrics    MetricsConfig    `toml:"metrics" yaml:"metrics" envPrefix:"METRICS_"`
	Output     OutputConfig     `toml:"output" yaml:"output" envPrefix:"OUTPUT_"`
	AMQP       AMQPConfig       `toml:"amqp" yaml:"amqp" envPrefix:"AMQP_"`
	Journal    JournalConfig    `toml:"journal" yaml:"journal" envPrefix:"JOURNAL_"`
}

// PortConfig locates the driver's communication endpoint.
type PortConfig struct {
	// Name is the minifilter communication port.
	Name string `toml:"name" yaml:"name" env:"NAME"`
	// PinPath is the bpffs directory holding the producer's maps.
	PinPath string `toml:"pin_path" yaml:"pin_path" env:"PIN_PATH"`
	// ReadTimeout bounds each ring buffer read.
	ReadTimeout time.Duration `toml:"read_timeout" yaml:"read_timeout" env:"READ_TIMEOUT"`
}

// WatchConfig controls the poll loop and the driver-side filters.
type WatchConfig struct {
	BufferSize  int           `toml:"buffer_size" yaml:"buffer_size" env:"BUFFER_SIZE"`
	IdleDelay   time.Duration `toml:"idle_delay" yaml:"idle_delay" env:"IDLE_DELAY"`
	Aggregate   bool          `toml:"aggregate" yaml:"aggregate" env:"AGGREGATE"`
	Paths       []string      `toml:"paths" yaml:"paths" env:"PATHS"`
	ExcludeSelf bool          `toml:"exclude_self" yaml:"exclude_self" env:"EXCLUDE_SELF"`
	// Process is a driver process filter: positive to include, negative to
	// exclude, zero for none.
	Process int64 `toml:"process" yaml:"process" env:"PROCESS"`
}

// AggregatorConfig tunes postponement and client-side filtering.
type AggregatorConfig struct {
	MaxPostponed  int           `toml:"max_postponed" yaml:"max_postponed" env:"MAX_POSTPONED"`
	MaxAge        time.Duration `toml:"max_age" yaml:"max_age" env:"MAX_AGE"`
	TrashPrefixes []string      `toml:"trash_prefixes" yaml:"trash_prefixes" env:"TRASH_PREFIXES"`
	Ignore        []string      `toml:"ignore" yaml:"ignore" env:"IGNORE"`
	// Filter is an expression that must evaluate to true for an event to
	// be delivered.
	Filter string `toml:"filter" yaml:"filter" env:"FILTER"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `toml:"level" yaml:"level" env:"LEVEL"`
	Format string `toml:"format" yaml:"format" env:"FORMAT"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Listen disables it.
type MetricsConfig struct {
	Listen string `toml:"listen" yaml:"listen" env:"LISTEN"`
}

// OutputConfig selects the local sinks.
type OutputConfig struct {
	Console bool `toml:"console" yaml:"console" env:"CONSOLE"`
	OTEL    bool `toml:"otel" yaml:"otel" env:"OTEL"`
	// TraceID groups spans: events whose expression results are equal share
	// a trace. Empty leaves one trace per span.
	TraceID string `toml:"trace_id" yaml:"trace_id" env:"TRACE_ID"`
	// Attributes are added to every span.
	Attributes []CustomAttribute `toml:"attributes" yaml:"attributes"`
}

// AMQPConfig configures the AMQP publisher. An empty URL disables it.
type AMQPConfig struct {
	URL      string `toml:"url" yaml:"url" env:"URL"`
	Exchange string `toml:"exchange" yaml:"exchange" env:"EXCHANGE"`
}

// JournalConfig configures the sqlite journal. An empty Path disables it.
type JournalConfig struct {
	Path string `toml:"path" yaml:"path" env:"PATH"`
}

// Default returns the built-in configuration.
func Default() *Config {
	backend := BackendFltPort
	if runtime.GOOS == "linux" {
		backend = BackendBPF
	}

	return &Config{
		Backend: backend,
		Port: PortConfig{
			Name:        `\MiniFSWatcherPort`,
			PinPath:     "/sys/fs/bpf/fswatch",
			ReadTimeout: 50 * time.Millisecond,
		},
		Watch: WatchConfig{
			BufferSize: watcher.DefaultBufferSize,
			IdleDelay:  watcher.DefaultIdleDelay,
			Aggregate:  true,
		},
		Aggregator: AggregatorConfig{
			MaxPostponed:  aggregator.DefaultMaxPostponed,
			TrashPrefixes: []string{aggregator.DefaultTrashPrefix},
		},
		Log: LogConfig{
			Level:  "info",
			Format: logging.FormatText,
		},
		Output: OutputConfig{
			Console: true,
		},
		AMQP: AMQPConfig{
			Exchange: "fswatch.events",
		},
	}
}

// Validate checks the configuration for values the components would reject.
func (c *Config) Validate() error {
	var errs []error

	switch c.Backend {
	case BackendFltPort, BackendBPF:
	default:
		errs = append(errs, fmt.Errorf("backend must be %s or %s, got %q", BackendFltPort, BackendBPF, c.Backend))
	}
	if c.Backend == BackendBPF && c.Port.PinPath == "" {
		errs = append(errs, errors.New("port.pin_path is required for the bpf backend"))
	}
	if c.Watch.BufferSize < logrecord.HeaderSize {
		errs = append(errs, fmt.Errorf("watch.buffer_size must be at least %d, got %d", logrecord.HeaderSize, c.Watch.BufferSize))
	}
	if c.Watch.IdleDelay <= 0 {
		errs = append(errs, fmt.Errorf("watch.idle_delay must be positive, got %s", c.Watch.IdleDelay))
	}
	if c.Aggregator.MaxPostponed <= 0 {
		errs = append(errs, fmt.Errorf("aggregator.max_postponed must be positive, got %d", c.Aggregator.MaxPostponed))
	}
	if c.Aggregator.MaxAge < 0 {
		errs = append(errs, fmt.Errorf("aggregator.max_age must not be negative, got %s", c.Aggregator.MaxAge))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case logging.FormatText, logging.FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log.format must be %s or %s, got %q", logging.FormatText, logging.FormatJSON, c.Log.Format))
	}
	for i, attr := range c.Output.Attributes {
		if attr.Name == "" || attr.Expression == "" {
			errs = append(errs, fmt.Errorf("output.attributes[%d] needs a name and an expression", i))
		}
	}
	if c.AMQP.URL != "" && c.AMQP.Exchange == "" {
		errs = append(errs, errors.New("amqp.exchange is required when amqp.url is set"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
