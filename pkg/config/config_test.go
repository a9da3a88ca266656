package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"uartlink/pkg/linkerr"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "uartlink.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "link:\n  device: /dev/ttyUSB0\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/dev/ttyUSB0", cfg.Link.Device)
	assert.Equal(t, 115200, cfg.Link.Baud)
	assert.Equal(t, 4096, cfg.Pipeline.ByteFifoSize)
	assert.Equal(t, 256, cfg.Pipeline.LineCapacity)
	assert.Equal(t, 10, cfg.Pipeline.MessageQueueSize)
	assert.Equal(t, 20, cfg.Pipeline.ReadWaitMs)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Heartbeat.Enabled)
}

func TestLoadOverrides(t *testing.T) {
	path := writeConfig(t, `
link:
  socket: /tmp/link.sock
  baud: 250000
pipeline:
  byte_fifo_size: 8192
  message_queue_size: 4
heartbeat:
  enabled: true
  interval_ms: 500
log:
  level: debug
  format: json
metrics:
  enabled: true
  addr: ":9200"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/link.sock", cfg.Link.Socket)
	assert.Equal(t, 250000, cfg.Link.Baud)
	assert.Equal(t, 8192, cfg.Pipeline.ByteFifoSize)
	assert.Equal(t, 4, cfg.Pipeline.MessageQueueSize)
	assert.True(t, cfg.Heartbeat.Enabled)
	assert.Equal(t, 500, cfg.Heartbeat.IntervalMs)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, ":9200", cfg.Metrics.Addr)

	// Unset sections still carry defaults.
	assert.Equal(t, 256, cfg.Pipeline.LineCapacity)
	assert.Equal(t, ":7180", cfg.API.Addr)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.True(t, linkerr.IsCode(err, linkerr.ErrConfigFile))
}

func TestLoadBadYAML(t *testing.T) {
	path := writeConfig(t, "link: [not a mapping\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, linkerr.IsCode(err, linkerr.ErrConfigFile))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "no link endpoint",
			mutate:  func(c *Config) {},
			wantErr: "link.device",
		},
		{
			name: "both link endpoints",
			mutate: func(c *Config) {
				c.Link.Device = "/dev/ttyUSB0"
				c.Link.Socket = "/tmp/link.sock"
			},
			wantErr: "link.device",
		},
		{
			name: "line capacity too small",
			mutate: func(c *Config) {
				c.Link.Device = "/dev/ttyUSB0"
				c.Pipeline.LineCapacity = 1
			},
			wantErr: "pipeline.line_capacity",
		},
		{
			name: "zero message queue",
			mutate: func(c *Config) {
				c.Link.Device = "/dev/ttyUSB0"
				c.Pipeline.MessageQueueSize = 0
			},
			wantErr: "pipeline.message_queue_size",
		},
		{
			name: "heartbeat interval too short",
			mutate: func(c *Config) {
				c.Link.Device = "/dev/ttyUSB0"
				c.Heartbeat.Enabled = true
				c.Heartbeat.IntervalMs = 10
			},
			wantErr: "heartbeat.interval_ms",
		},
		{
			name: "bad log format",
			mutate: func(c *Config) {
				c.Link.Device = "/dev/ttyUSB0"
				c.Log.Format = "xml"
			},
			wantErr: "log.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, linkerr.IsCode(err, linkerr.ErrConfigValidation))

			var lerr *linkerr.LinkError
			require.True(t, errors.As(err, &lerr))
			assert.Equal(t, tt.wantErr, lerr.Option)
		})
	}
}

func TestValidateOK(t *testing.T) {
	cfg := Default()
	cfg.Link.Device = "/dev/ttyACM0"
	assert.NoError(t, cfg.Validate())
}

func TestDurations(t *testing.T) {
	cfg := Default()
	assert.Equal(t, int64(20), cfg.Pipeline.ReadWait().Milliseconds())
	assert.Equal(t, int64(200), cfg.Pipeline.PollWait().Milliseconds())
	assert.Equal(t, int64(20), cfg.Pipeline.EnqueueWait().Milliseconds())
	assert.Equal(t, int64(100), cfg.Pipeline.DrainWait().Milliseconds())
	assert.Equal(t, int64(3000), cfg.Heartbeat.Interval().Milliseconds())
}
