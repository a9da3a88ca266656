// uartlinkd is the uartlink host daemon. It opens a serial device (or
// a simulator socket), runs the three-stage link pipeline, and serves
// the ASCII line protocol: PING, VERSION, UPTIME, STATUS and HELP.
//
// Usage:
//
//	uartlinkd -device /dev/ttyUSB0 [options]
//	uartlinkd -config /etc/uartlink.yaml
//
// Options:
//
//	-config string    YAML configuration file
//	-device string    Serial device path (overrides config)
//	-socket string    Simulator Unix socket path (overrides config)
//	-baud int         Baud rate (overrides config)
//	-logfile string   Log file path (default: stderr)
//	-trace            Enable debug logging
//
// Examples:
//
//	# Serve the protocol on a USB serial adapter
//	uartlinkd -device /dev/ttyUSB0 -baud 115200
//
//	# Run against a pty-based simulator with metrics enabled
//	uartlinkd -config uartlink.yaml -trace
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"uartlink/pkg/api"
	"uartlink/pkg/command"
	"uartlink/pkg/config"
	"uartlink/pkg/log"
	"uartlink/pkg/metrics"
	"uartlink/pkg/serial"
	"uartlink/pkg/uart"
)

func main() {
	configFile := flag.String("config", "", "YAML configuration file")
	device := flag.String("device", "", "Serial device path (overrides config)")
	socket := flag.String("socket", "", "Simulator Unix socket path (overrides config)")
	baud := flag.Int("baud", 0, "Baud rate (overrides config)")
	logFile := flag.String("logfile", "", "Log file path (default: stderr)")
	trace := flag.Bool("trace", false, "Enable debug logging")
	flag.Parse()

	cfg, err := loadConfig(*configFile, *device, *socket, *baud)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger, cleanup, err := setupLogging(cfg, *logFile, *trace)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := run(cfg, logger); err != nil {
		logger.Error("%v", err)
		cleanup()
		os.Exit(1)
	}
}

// loadConfig builds the effective configuration from the optional file
// plus command-line overrides.
func loadConfig(path, device, socket string, baud int) (config.Config, error) {
	var cfg config.Config
	var err error

	if path != "" {
		cfg, err = config.Load(path)
		if err != nil {
			return cfg, err
		}
	} else {
		cfg = config.Default()
	}

	if device != "" {
		cfg.Link.Device = device
		cfg.Link.Socket = ""
	}
	if socket != "" {
		cfg.Link.Socket = socket
		cfg.Link.Device = ""
	}
	if baud > 0 {
		cfg.Link.Baud = baud
	}

	// Flags may have supplied the endpoint a missing config could not.
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// setupLogging configures the root logger from config and flags and
// returns it with a cleanup func that flushes file output.
func setupLogging(cfg config.Config, logFile string, trace bool) (*log.Logger, func(), error) {
	logger := log.New("uartlinkd")
	cleanup := func() {}

	level := cfg.Log.Level
	if trace {
		level = "debug"
	}
	logger.SetLevel(log.ParseLevel(level))
	if cfg.Log.Format == "json" {
		logger.SetFormat(log.FormatJSON)
	}

	path := cfg.Log.File
	if logFile != "" {
		path = logFile
	}
	if path != "" {
		writer, err := log.NewRotatingFileWriter(log.RotationConfig{
			Filename:   path,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
		})
		if err != nil {
			return nil, cleanup, err
		}
		logger.SetWriter(writer)
		cleanup = func() { writer.Close() }
	}

	return logger, cleanup, nil
}

func run(cfg config.Config, logger *log.Logger) error {
	logger.Info("========================================")
	logger.Info("uartlink host starting")
	logger.Info("========================================")

	// Open the link endpoint.
	port, err := openPort(cfg, logger)
	if err != nil {
		return err
	}
	defer port.Close()

	driver := serial.NewDriver(port, serial.DriverConfig{
		EventQueueLen: cfg.Link.EventQueueLen,
		HighWater:     cfg.Link.HighWaterBytes,
	}, logger.WithPrefix("serial"))

	// Command dispatcher with the full command set.
	counters := uart.NewCounters()
	dispatcher := command.New()
	dispatcher.RegisterStatus(counters)
	dispatcher.RegisterHelp()

	// Wire the pipeline.
	pipeCfg := uart.Config{
		ByteFIFOSize:     cfg.Pipeline.ByteFifoSize,
		LineCapacity:     cfg.Pipeline.LineCapacity,
		MessageQueueSize: cfg.Pipeline.MessageQueueSize,
		ReadWait:         cfg.Pipeline.ReadWait(),
		PollWait:         cfg.Pipeline.PollWait(),
		EnqueueWait:      cfg.Pipeline.EnqueueWait(),
		DrainWait:        cfg.Pipeline.DrainWait(),
	}
	pipeline, err := uart.New(pipeCfg, driver, port, dispatcher, counters, logger.WithPrefix("link"))
	if err != nil {
		return err
	}

	driver.Start()
	pipeline.Start()
	startTime := time.Now()

	// Announce readiness through the normal send path.
	pipeline.Send(command.Version + " READY\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Heartbeat.Enabled {
		go heartbeatLoop(ctx, pipeline, cfg.Heartbeat.Interval(), logger)
	}

	link := &linkAdapter{
		pipeline:   pipeline,
		dispatcher: dispatcher,
		start:      startTime,
	}

	// Optional metrics endpoint.
	var metricsServer *metrics.MetricsServer
	if cfg.Metrics.Enabled {
		lm := metrics.GlobalMetrics()
		go metricsSyncLoop(ctx, lm, pipeline)
		metricsServer = metrics.NewMetricsServer(lm, cfg.Metrics.Addr)
		metricsServer.StartAsync()
		logger.Info("metrics endpoint on %s", cfg.Metrics.Addr)
	}

	// Optional diagnostics API.
	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer = api.New(api.Config{Addr: cfg.API.Addr, Link: link})
		go func() {
			if err := apiServer.Start(); err != nil {
				logger.Warn("api server: %v", err)
			}
		}()
	}

	logger.Info("link ready on %s", endpointName(cfg))
	logger.Info("commands: %v", dispatcher.Commands())

	// Run until interrupted.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()
	if apiServer != nil {
		apiServer.Stop()
	}
	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 2*time.Second)
		metricsServer.Shutdown(shutdownCtx)
		shutdownCancel()
	}
	driver.Close()
	pipeline.Stop()

	stats := pipeline.Stats()
	logger.Info("final stats: rx=%dB lines=%d tx=%d dropped=%d",
		stats.RxBytes, stats.Lines, stats.TxMessages, stats.TxDropped)
	logger.Info("uartlink host stopped")
	return nil
}

func openPort(cfg config.Config, logger *log.Logger) (*serial.Port, error) {
	if cfg.Link.Socket != "" {
		logger.Info("connecting to simulator socket %s", cfg.Link.Socket)
		return serial.OpenSocket(cfg.Link.Socket, 30*time.Second)
	}

	serialCfg := serial.DefaultConfig()
	serialCfg.Device = cfg.Link.Device
	serialCfg.BaudRate = cfg.Link.Baud
	logger.Info("opening %s at %d baud", serialCfg.Device, serialCfg.BaudRate)
	return serial.Open(serialCfg)
}

func endpointName(cfg config.Config) string {
	if cfg.Link.Socket != "" {
		return cfg.Link.Socket
	}
	return cfg.Link.Device
}

// heartbeatLoop periodically enqueues an alive message through the
// normal transmit path. A full queue drops the beat; the next tick
// tries again.
func heartbeatLoop(ctx context.Context, p *uart.Pipeline, interval time.Duration, logger *log.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var n uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n++
			if !p.Send(fmt.Sprintf("HEARTBEAT %d\n", n)) {
				logger.Warn("heartbeat %d dropped (queue full)", n)
			}
		}
	}
}

// metricsSyncLoop mirrors the pipeline totals into the Prometheus
// registry once per second.
func metricsSyncLoop(ctx context.Context, lm *metrics.LinkMetrics, p *uart.Pipeline) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			lm.UpdateFromPipeline(p.Stats(), p.Counters().Snapshot())
		}
	}
}

// linkAdapter exposes the running pipeline to the diagnostics API.
type linkAdapter struct {
	pipeline   *uart.Pipeline
	dispatcher *command.Dispatcher
	start      time.Time
}

func (a *linkAdapter) Stats() uart.Stats            { return a.pipeline.Stats() }
func (a *linkAdapter) Faults() uart.CounterSnapshot { return a.pipeline.Counters().Snapshot() }
func (a *linkAdapter) Send(text string) bool        { return a.pipeline.Send(text) }
func (a *linkAdapter) Commands() []string           { return a.dispatcher.Commands() }
func (a *linkAdapter) Uptime() time.Duration        { return time.Since(a.start) }
