// Package config loads and validates the uartlink service
// configuration from a YAML file, applying defaults for anything not
// set.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"uartlink/pkg/linkerr"
)

// Config is the top-level service configuration.
type Config struct {
	Link      LinkConfig      `yaml:"link"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	API       APIConfig       `yaml:"api"`
}

// LinkConfig selects and configures the serial link. Exactly one of
// Device or Socket must be set.
type LinkConfig struct {
	// Device is the serial device path (e.g. /dev/ttyUSB0).
	Device string `yaml:"device"`

	// Socket is a Unix socket path exposed by a link simulator.
	Socket string `yaml:"socket"`

	Baud int `yaml:"baud"`

	// EventQueueLen is the driver event channel capacity.
	EventQueueLen int `yaml:"event_queue_len"`

	// HighWaterBytes is the pending-input threshold reported as a
	// buffer-full condition.
	HighWaterBytes int `yaml:"high_water_bytes"`
}

// PipelineConfig holds the pipeline capacities and bounded waits.
// The waits are tunables, not protocol semantics.
type PipelineConfig struct {
	ByteFifoSize     int `yaml:"byte_fifo_size"`
	LineCapacity     int `yaml:"line_capacity"`
	MessageQueueSize int `yaml:"message_queue_size"`
	ReadWaitMs       int `yaml:"read_wait_ms"`
	PollWaitMs       int `yaml:"poll_wait_ms"`
	EnqueueWaitMs    int `yaml:"enqueue_wait_ms"`
	DrainWaitMs      int `yaml:"drain_wait_ms"`
}

// HeartbeatConfig controls the periodic alive message.
type HeartbeatConfig struct {
	Enabled    bool `yaml:"enabled"`
	IntervalMs int  `yaml:"interval_ms"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`

	// File enables file logging with rotation when set.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// APIConfig controls the diagnostics API server.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns the reference configuration.
func Default() Config {
	return Config{
		Link: LinkConfig{
			Baud:           115200,
			EventQueueLen:  20,
			HighWaterBytes: 3072,
		},
		Pipeline: PipelineConfig{
			ByteFifoSize:     4096,
			LineCapacity:     256,
			MessageQueueSize: 10,
			ReadWaitMs:       20,
			PollWaitMs:       200,
			EnqueueWaitMs:    20,
			DrainWaitMs:      100,
		},
		Heartbeat: HeartbeatConfig{
			Enabled:    false,
			IntervalMs: 3000,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  10,
			MaxBackups: 5,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    ":9100",
		},
		API: APIConfig{
			Enabled: false,
			Addr:    ":7180",
		},
	}
}

// Load reads a YAML config file, merges it over the defaults, and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, linkerr.NewConfigFileError(path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, linkerr.NewConfigFileError(path, err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// normalize fills zero values back in from the defaults so a partial
// file does not silently disable a capacity.
func (c *Config) normalize() {
	def := Default()
	if c.Link.Baud == 0 {
		c.Link.Baud = def.Link.Baud
	}
	if c.Link.EventQueueLen == 0 {
		c.Link.EventQueueLen = def.Link.EventQueueLen
	}
	if c.Link.HighWaterBytes == 0 {
		c.Link.HighWaterBytes = def.Link.HighWaterBytes
	}
	if c.Pipeline.ByteFifoSize == 0 {
		c.Pipeline.ByteFifoSize = def.Pipeline.ByteFifoSize
	}
	if c.Pipeline.LineCapacity == 0 {
		c.Pipeline.LineCapacity = def.Pipeline.LineCapacity
	}
	if c.Pipeline.MessageQueueSize == 0 {
		c.Pipeline.MessageQueueSize = def.Pipeline.MessageQueueSize
	}
	if c.Pipeline.ReadWaitMs == 0 {
		c.Pipeline.ReadWaitMs = def.Pipeline.ReadWaitMs
	}
	if c.Pipeline.PollWaitMs == 0 {
		c.Pipeline.PollWaitMs = def.Pipeline.PollWaitMs
	}
	if c.Pipeline.EnqueueWaitMs == 0 {
		c.Pipeline.EnqueueWaitMs = def.Pipeline.EnqueueWaitMs
	}
	if c.Pipeline.DrainWaitMs == 0 {
		c.Pipeline.DrainWaitMs = def.Pipeline.DrainWaitMs
	}
	if c.Heartbeat.IntervalMs == 0 {
		c.Heartbeat.IntervalMs = def.Heartbeat.IntervalMs
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
	if c.Log.MaxSizeMB == 0 {
		c.Log.MaxSizeMB = def.Log.MaxSizeMB
	}
	if c.Log.MaxBackups == 0 {
		c.Log.MaxBackups = def.Log.MaxBackups
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = def.Metrics.Addr
	}
	if c.API.Addr == "" {
		c.API.Addr = def.API.Addr
	}
}

// Validate checks the configuration for contradictions and out-of-range
// values.
func (c *Config) Validate() error {
	if c.Link.Device == "" && c.Link.Socket == "" {
		return linkerr.NewConfigOptionError("link.device", "either link.device or link.socket is required")
	}
	if c.Link.Device != "" && c.Link.Socket != "" {
		return linkerr.NewConfigOptionError("link.device", "link.device and link.socket are mutually exclusive")
	}
	if c.Link.Baud < 0 {
		return linkerr.NewConfigOptionError("link.baud", "baud rate must be positive")
	}
	if c.Pipeline.ByteFifoSize < 0 {
		return linkerr.NewConfigOptionError("pipeline.byte_fifo_size", "must be positive")
	}
	if c.Pipeline.LineCapacity < 2 {
		return linkerr.NewConfigOptionError("pipeline.line_capacity", "must be at least 2")
	}
	if c.Pipeline.MessageQueueSize < 1 {
		return linkerr.NewConfigOptionError("pipeline.message_queue_size", "must be at least 1")
	}
	if c.Heartbeat.Enabled && c.Heartbeat.IntervalMs < 100 {
		return linkerr.NewConfigOptionError("heartbeat.interval_ms", "must be at least 100")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return linkerr.NewConfigOptionError("log.format", "must be 'text' or 'json'")
	}
	return nil
}

// ReadWait returns the pipeline read wait as a duration.
func (c *PipelineConfig) ReadWait() time.Duration {
	return time.Duration(c.ReadWaitMs) * time.Millisecond
}

// PollWait returns the parser poll wait as a duration.
func (c *PipelineConfig) PollWait() time.Duration {
	return time.Duration(c.PollWaitMs) * time.Millisecond
}

// EnqueueWait returns the send wait as a duration.
func (c *PipelineConfig) EnqueueWait() time.Duration {
	return time.Duration(c.EnqueueWaitMs) * time.Millisecond
}

// DrainWait returns the transmit-complete wait as a duration.
func (c *PipelineConfig) DrainWait() time.Duration {
	return time.Duration(c.DrainWaitMs) * time.Millisecond
}

// Interval returns the heartbeat period as a duration.
func (c *HeartbeatConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}
