// Package config contains all knobs and defaults used to configure the reactive workload driver.
package config

import (
	"errors"
	"fmt"
	"net"
	"time"
)

const (
	DefaultNodes             = 4096
	DefaultGroupSize         = 16
	DefaultProducers         = 4
	DefaultWritesPerInterval = 64
	DefaultWriteInterval     = 5 * time.Millisecond
	DefaultTickInterval      = 16 * time.Millisecond
	DefaultStatsInterval     = 120

	DefaultMetricsAddr      = "0.0.0.0:2112"
	DefaultTraceSampleRatio = 0.2
	DefaultTraceEndpoint    = "0.0.0.0:4317"
	DefaultTraceServiceName = "reactive"
)

// LogConfig controls the driver's zap logger.
type LogConfig struct {
	// Format is the log format to use in the log output (e.g. 'text' or 'json')
	Format string

	// Level is the log level to use in the log output (e.g. 'none', 'debug', or 'info')
	Level string
}

// WorkloadConfig describes the synthetic scene graph driven through the engine.
type WorkloadConfig struct {
	// Nodes is the number of scene nodes.
	Nodes int

	// GroupSize is the average number of nodes parented to one group.
	GroupSize int

	// Producers is the number of goroutines writing to the sources concurrently.
	Producers int

	// WritesPerInterval is how many writes each producer performs per WriteInterval.
	WritesPerInterval int
	WriteInterval     time.Duration

	// TickInterval is the minimum time between two ticks. Ticks are also skipped while no
	// producer has written anything.
	TickInterval time.Duration

	// Duration stops the workload after the given time. Zero runs until interrupted.
	Duration time.Duration

	// DenseRelation selects the dense-index relation bookkeeping.
	DenseRelation bool

	// Validate wraps the derived queries in validating debug operators.
	Validate bool

	// StatsInterval is the number of ticks between two progress log lines.
	StatsInterval int
}

type MetricsConfig struct {
	Enabled bool
	Addr    string
}

type OTLPTraceConfig struct {
	Endpoint string
	TLS      OTLPTraceTLSConfig
}

type OTLPTraceTLSConfig struct {
	Enabled bool
}

// TraceConfig defines configurations for exporting tick spans.
type TraceConfig struct {
	Enabled     bool
	OTLP        OTLPTraceConfig `mapstructure:"otlp"`
	SampleRatio float64
	ServiceName string

	// SlowTickThreshold only exports ticks lasting at least this long. Zero exports all.
	SlowTickThreshold time.Duration
}

type Config struct {
	Log      LogConfig
	Workload WorkloadConfig
	Metrics  MetricsConfig
	Trace    TraceConfig
}

// DefaultConfig returns the configuration used when no file, flag or environment variable
// overrides a value.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
		Workload: WorkloadConfig{
			Nodes:             DefaultNodes,
			GroupSize:         DefaultGroupSize,
			Producers:         DefaultProducers,
			WritesPerInterval: DefaultWritesPerInterval,
			WriteInterval:     DefaultWriteInterval,
			TickInterval:      DefaultTickInterval,
			StatsInterval:     DefaultStatsInterval,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    DefaultMetricsAddr,
		},
		Trace: TraceConfig{
			Enabled: false,
			OTLP: OTLPTraceConfig{
				Endpoint: DefaultTraceEndpoint,
			},
			SampleRatio: DefaultTraceSampleRatio,
			ServiceName: DefaultTraceServiceName,
		},
	}
}

// Verify returns every invalid setting joined into one error.
func (cfg *Config) Verify() error {
	var errs []error

	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("config 'log.format' must be one of ['text', 'json']"))
	}

	switch cfg.Log.Level {
	case "none", "debug", "info", "warn", "error", "panic":
	default:
		errs = append(errs, fmt.Errorf("config 'log.level' must be one of ['none', 'debug', 'info', 'warn', 'error', 'panic']"))
	}

	w := cfg.Workload
	if w.Nodes <= 0 {
		errs = append(errs, fmt.Errorf("config 'workload.nodes' must be positive, got %d", w.Nodes))
	}
	if w.GroupSize <= 0 || w.GroupSize > w.Nodes {
		errs = append(errs, fmt.Errorf("config 'workload.groupSize' must be in [1, %d], got %d", w.Nodes, w.GroupSize))
	}
	if w.Producers <= 0 {
		errs = append(errs, fmt.Errorf("config 'workload.producers' must be positive, got %d", w.Producers))
	}
	if w.WritesPerInterval < 0 {
		errs = append(errs, fmt.Errorf("config 'workload.writesPerInterval' cannot be negative"))
	}
	if w.WriteInterval <= 0 || w.TickInterval <= 0 {
		errs = append(errs, errors.New("config 'workload.writeInterval' and 'workload.tickInterval' must be positive"))
	}
	if w.Duration < 0 {
		errs = append(errs, errors.New("config 'workload.duration' cannot be negative"))
	}
	if w.StatsInterval <= 0 {
		errs = append(errs, fmt.Errorf("config 'workload.statsInterval' must be positive, got %d", w.StatsInterval))
	}

	if cfg.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Metrics.Addr); err != nil {
			errs = append(errs, fmt.Errorf("config 'metrics.addr' is not a valid host:port: %w", err))
		}
	}

	if cfg.Trace.Enabled {
		if cfg.Trace.SampleRatio < 0 || cfg.Trace.SampleRatio > 1 {
			errs = append(errs, errors.New("config 'trace.sampleRatio' must be in [0, 1]"))
		}
		if cfg.Trace.SlowTickThreshold < 0 {
			errs = append(errs, errors.New("config 'trace.slowTickThreshold' cannot be negative"))
		}
		if cfg.Trace.OTLP.Endpoint == "" {
			errs = append(errs, errors.New("config 'trace.otlp.endpoint' is required when tracing is enabled"))
		}
	}

	return errors.Join(errs...)
}
