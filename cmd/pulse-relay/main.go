// Command pulse-relay counts hall-sensor pulses on a GPIO line and relays
// their timestamps to an HTTP collector, grouped into runs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/pulse-relay/internal/config"
	"github.com/sweeney/pulse-relay/internal/gpio"
	"github.com/sweeney/pulse-relay/internal/logic"
	"github.com/sweeney/pulse-relay/internal/metrics"
	"github.com/sweeney/pulse-relay/internal/mqtt"
	"github.com/sweeney/pulse-relay/internal/relay"
	"github.com/sweeney/pulse-relay/internal/status"
	"github.com/sweeney/pulse-relay/internal/transport"
	"github.com/sweeney/pulse-relay/internal/web"
)

// flushTimeout bounds the shutdown flush, including run id acquisition.
const flushTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "YAML config file")
	printConfig := flag.Bool("print-config", false, "Print the effective config and exit")

	// Overrides; applied only when set on the command line.
	server := flag.String("server", "", "Collector base URL")
	device := flag.String("device", "", "Device address announced to the collector (default: first interface MAC)")
	pin := flag.Int("pin", gpio.DefaultPin, "BCM pin number of the pulse sensor")
	httpAddr := flag.String("http", "", "HTTP status address (empty to disable)")
	broker := flag.String("broker", "", "MQTT broker address for the telemetry mirror (empty to disable)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	var debounce, runTimeout, simulate config.Duration
	flag.Var(&debounce, "debounce", "Debounce window (Go or ISO 8601 duration)")
	flag.Var(&runTimeout, "run-timeout", "Inactivity timeout before a run is finalized")
	flag.Var(&simulate, "simulate", "Generate one edge per interval instead of reading GPIO")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(err)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "server":
			cfg.ServerURL = *server
		case "device":
			cfg.DeviceAddress = *device
		case "pin":
			cfg.Pin = *pin
		case "http":
			cfg.HTTPAddr = *httpAddr
		case "broker":
			cfg.MQTT.Broker = *broker
		case "log-level":
			cfg.LogLevel = *logLevel
		case "debounce":
			cfg.Debounce = debounce
		case "run-timeout":
			cfg.RunTimeout = runTimeout
		case "simulate":
			cfg.Simulate = simulate
		}
	})
	if err := cfg.Validate(); err != nil {
		fatal(fmt.Errorf("invalid config: %w", err))
	}

	if *printConfig {
		out, err := yaml.Marshal(cfg)
		if err != nil {
			fatal(err)
		}
		os.Stdout.Write(out)
		return
	}

	level, _ := cfg.SlogLevel()
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level})))

	if err := run(cfg); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "pulse-relay: %v\n", err)
	os.Exit(1)
}

func run(cfg config.Config) error {
	startTime := time.Now()
	collector := transport.NewHTTPTransport(cfg.ServerURL, cfg.RequestTimeout.Std())
	r := relay.New(cfg.Relay(), collector, relay.DeviceClock(startTime, time.Now))
	metrics.Init(r.Capture())

	source, err := newSource(cfg)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer source.Close()

	// Initialize MQTT mirror (optional)
	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		p, err := mqtt.NewRealPublisher(cfg.MQTTOptions())
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer p.Close()
		publisher, mqttStatus = p, p
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(startTime, statusConfig(cfg))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	tracker.Update(r.Stats())

	// Start HTTP status server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, prometheus.DefaultGatherer)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("http: server error", "err", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		slog.Info("http: status server listening", "addr", cfg.HTTPAddr)
	}

	device := cfg.DeviceAddress
	if device == "" {
		device = hardwareAddress()
	}
	announceCtx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout.Std())
	_ = r.Announce(announceCtx, device)
	cancel()
	tracker.SetCollectorConnected(collector.IsConnected())

	if err := source.Watch(func() { r.Capture().OnTrigger() }); err != nil {
		return fmt.Errorf("watch gpio: %w", err)
	}

	slog.Info("started",
		"server", cfg.ServerURL,
		"device", device,
		"pin", cfg.Pin,
		"debounce", cfg.Debounce.Std(),
		"min_post_interval", cfg.MinPostInterval.Std(),
		"run_timeout", cfg.RunTimeout.Std(),
		"simulate", cfg.Simulate.Std(),
	)

	ticker := time.NewTicker(cfg.LoopInterval.Std())
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(context.Background(), loopDeps{
		relay:      r,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		collector:  collector,
		tracker:    tracker,
		heartbeat:  cfg.Heartbeat.Std(),
		now:        time.Now,
	}, ticker.C, sigCh)
}

func newSource(cfg config.Config) (gpio.Source, error) {
	if cfg.Simulate > 0 {
		slog.Warn("gpio: simulating edges", "interval", cfg.Simulate.Std())
		return gpio.NewSimulatedSource(cfg.Simulate.Std()), nil
	}
	return gpio.NewRealSource(cfg.Chip, cfg.Pin)
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		Server:            cfg.ServerURL,
		Device:            cfg.DeviceAddress,
		Pin:               cfg.Pin,
		DebounceMs:        cfg.Debounce.Std().Milliseconds(),
		MinPostIntervalMs: cfg.MinPostInterval.Std().Milliseconds(),
		RunTimeoutMs:      cfg.RunTimeout.Std().Milliseconds(),
		HeartbeatMs:       cfg.Heartbeat.Std().Milliseconds(),
		BufferCapacity:    cfg.BufferCapacity,
		Broker:            cfg.MQTT.Broker,
		HTTPAddr:          cfg.HTTPAddr,
	}
}

// loopDeps are the collaborators of runLoop. publisher, mqttStatus and
// collector may be nil.
type loopDeps struct {
	relay      *relay.Relay
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	collector  transport.ConnectionStatus
	tracker    *status.Tracker
	heartbeat  time.Duration
	now        func() time.Time
}

func runLoop(ctx context.Context, d loopDeps, tick <-chan time.Time, sig <-chan os.Signal) error {
	// A signal cancels loopCtx so a Step blocked in run id acquisition
	// returns promptly.
	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := make(chan os.Signal, 1)
	go func() {
		select {
		case s := <-sig:
			stop <- s
			cancel()
		case <-loopCtx.Done():
		}
	}()

	d.relay.Observe(func(ev logic.RunEvent) {
		logRunEvent(ev)
		if d.publisher == nil {
			return
		}
		if err := d.publisher.PublishRun(ev, d.now()); err != nil {
			slog.Warn("mqtt: run event publish failed", "event", ev.Type, "err", err)
		}
	})

	d.publishSystem("STARTUP", "", true)

	lastHeartbeat := d.relay.Stats().Now

	for {
		select {
		case s := <-stop:
			reason := signalName(s)
			slog.Info("received signal, shutting down", "signal", s)
			d.flush()
			d.publishSystem("SHUTDOWN", reason, true)
			return nil

		case <-ctx.Done():
			d.flush()
			d.publishSystem("SHUTDOWN", "CONTEXT", true)
			return ctx.Err()

		case <-tick:
			step, ok := d.step(loopCtx)
			if !ok {
				continue
			}

			if logic.HeartbeatDue(step.Now, lastHeartbeat, d.heartbeat) {
				lastHeartbeat = step.Now
				stats := d.relay.Stats()
				slog.Info("heartbeat",
					"run", stats.RunID,
					"pulses", stats.Accepted,
					"bounces", stats.Bounces,
					"dropped", stats.Dropped,
					"batches", stats.Sent,
				)
				if net := readNetworkInfo(); net != nil {
					d.tracker.SetNetwork(net)
				}
				d.publishSystem("HEARTBEAT", "", false)
			}
		}
	}
}

// step runs one relay iteration unless a signal already cancelled ctx, in
// which case the shutdown path owns the remaining work.
func (d loopDeps) step(ctx context.Context) (relay.Step, bool) {
	if ctx.Err() != nil {
		return relay.Step{}, false
	}
	step := d.relay.Step(ctx)
	d.refresh()
	return step, true
}

// refresh copies relay and connection state into the tracker for HTTP readers.
func (d loopDeps) refresh() {
	d.tracker.Update(d.relay.Stats())
	if d.collector != nil {
		d.tracker.SetCollectorConnected(d.collector.IsConnected())
	}
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
}

func (d loopDeps) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	if batch, ok := d.relay.Flush(ctx); ok {
		slog.Info("flushed on shutdown", "count", len(batch))
	}
	if stats := d.relay.Stats(); stats.Pending+stats.Buffered > 0 {
		slog.Warn("shutdown with unsent timestamps", "pending", stats.Pending, "buffered", stats.Buffered)
	}
	d.refresh()
}

func (d loopDeps) publishSystem(event, reason string, retained bool) {
	if d.publisher == nil {
		return
	}
	d.refresh()
	snap := d.tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := d.publisher.PublishSystem(ev); err != nil {
		slog.Warn("mqtt: system event publish failed", "event", event, "err", err)
		return
	}
	slog.Debug("mqtt: published system event", "event", event)
}

func logRunEvent(ev logic.RunEvent) {
	attrs := []any{"event", ev.Type, "run", ev.RunID, "tick", uint32(ev.Time)}
	if ev.Type == logic.BatchSent {
		attrs = append(attrs, "count", ev.Count)
	}
	if ev.Err != nil {
		slog.Warn("run event failed", append(attrs, "err", ev.Err)...)
		return
	}
	slog.Info("run event", attrs...)
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

// hardwareAddress returns the MAC of the first up, non-loopback interface.
func hardwareAddress() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		slog.Warn("net: list interfaces", "err", err)
		return ""
	}
	return pickHardwareAddress(ifaces)
}

func pickHardwareAddress(ifaces []net.Interface) string {
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if len(iface.HardwareAddr) == 0 {
			continue
		}
		return iface.HardwareAddr.String()
	}
	return ""
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
