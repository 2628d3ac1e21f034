// Package config loads pulse-relay settings from a YAML file over defaults.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/pulse-relay/internal/capture"
	"github.com/sweeney/pulse-relay/internal/gpio"
	"github.com/sweeney/pulse-relay/internal/logic"
	"github.com/sweeney/pulse-relay/internal/mqtt"
	"github.com/sweeney/pulse-relay/internal/relay"
)

// DefaultServerURL is the production collector.
const DefaultServerURL = "http://duster.arikardasis.com/api"

// Config is the full daemon configuration.
type Config struct {
	ServerURL      string   `yaml:"server_url"`
	DeviceAddress  string   `yaml:"device_address"`
	Chip           string   `yaml:"chip"`
	Pin            int      `yaml:"pin"`
	BufferCapacity int      `yaml:"buffer_capacity"`
	Debounce       Duration `yaml:"debounce"`
	// MinPostInterval is the minimum spacing between collector posts.
	MinPostInterval Duration `yaml:"min_post_interval"`
	RunTimeout      Duration `yaml:"run_timeout"`
	// LoopInterval is how often the relay loop wakes.
	LoopInterval   Duration `yaml:"loop_interval"`
	RequestTimeout Duration `yaml:"request_timeout"`
	AcquireRetry   Retry    `yaml:"acquire_retry"`
	// Heartbeat is the MQTT heartbeat interval; zero disables it.
	Heartbeat Duration `yaml:"heartbeat"`
	HTTPAddr  string   `yaml:"http_addr"`
	MQTT      MQTT     `yaml:"mqtt"`
	// Simulate, when non-zero, replaces the GPIO line with a generator
	// producing one edge per interval.
	Simulate Duration `yaml:"simulate"`
	LogLevel string   `yaml:"log_level"`
}

// Retry configures run id acquisition backoff.
type Retry struct {
	MinInterval Duration `yaml:"min_interval"`
	MaxInterval Duration `yaml:"max_interval"`
	// MaxAttempts of zero retries until shutdown.
	MaxAttempts uint64 `yaml:"max_attempts"`
}

// MQTT configures the optional telemetry mirror. An empty Broker disables it.
type MQTT struct {
	Broker      string `yaml:"broker"`
	TopicPrefix string `yaml:"topic_prefix"`
	ClientID    string `yaml:"client_id"`
	ReplaySize  int    `yaml:"replay_size"`
}

// Defaults returns the factory configuration.
func Defaults() Config {
	rc := relay.DefaultConfig()
	return Config{
		ServerURL:       DefaultServerURL,
		Chip:            gpio.DefaultChip,
		Pin:             gpio.DefaultPin,
		BufferCapacity:  rc.BufferCapacity,
		Debounce:        Duration(capture.DefaultDebounce),
		MinPostInterval: Duration(rc.MinPostInterval),
		RunTimeout:      Duration(rc.RunTimeout),
		LoopInterval:    Duration(time.Millisecond),
		RequestTimeout:  Duration(5 * time.Second),
		AcquireRetry: Retry{
			MinInterval: Duration(rc.Retry.MinInterval),
			MaxInterval: Duration(rc.Retry.MaxInterval),
		},
		Heartbeat: Duration(15 * time.Minute),
		HTTPAddr:  ":8080",
		MQTT: MQTT{
			TopicPrefix: mqtt.DefaultTopicPrefix,
			ReplaySize:  mqtt.DefaultReplaySize,
		},
		LogLevel: "info",
	}
}

// Load reads path over Defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := Parse(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, leaving fields absent from data untouched.
// Unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate reports every invalid field.
func (c Config) Validate() error {
	var errs []error
	if c.ServerURL == "" {
		errs = append(errs, errors.New("server_url is required"))
	} else if u, err := url.Parse(c.ServerURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("server_url %q is not an absolute URL", c.ServerURL))
	}
	if c.BufferCapacity <= 0 {
		errs = append(errs, fmt.Errorf("buffer_capacity must be positive, got %d", c.BufferCapacity))
	}
	if c.Pin < 0 {
		errs = append(errs, fmt.Errorf("pin must not be negative, got %d", c.Pin))
	}
	positive := []struct {
		name string
		d    Duration
	}{
		{"debounce", c.Debounce},
		{"min_post_interval", c.MinPostInterval},
		{"run_timeout", c.RunTimeout},
		{"loop_interval", c.LoopInterval},
		{"request_timeout", c.RequestTimeout},
		{"acquire_retry.min_interval", c.AcquireRetry.MinInterval},
		{"acquire_retry.max_interval", c.AcquireRetry.MaxInterval},
	}
	for _, p := range positive {
		if p.d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", p.name, p.d))
		}
	}
	// Device ticks wrap at 2^32 ms; longer spans could never elapse.
	spans := []struct {
		name string
		d    Duration
	}{
		{"debounce", c.Debounce},
		{"min_post_interval", c.MinPostInterval},
		{"run_timeout", c.RunTimeout},
		{"heartbeat", c.Heartbeat},
	}
	for _, p := range spans {
		if p.d.Std() >= logic.MaxSpan {
			errs = append(errs, fmt.Errorf("%s must be below %v, got %v", p.name, logic.MaxSpan, p.d))
		}
	}
	if c.AcquireRetry.MaxInterval < c.AcquireRetry.MinInterval {
		errs = append(errs, errors.New("acquire_retry.max_interval must not be below min_interval"))
	}
	if c.Heartbeat < 0 {
		errs = append(errs, errors.New("heartbeat must not be negative"))
	}
	if c.Simulate < 0 {
		errs = append(errs, errors.New("simulate must not be negative"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SlogLevel maps LogLevel to a slog.Level.
func (c Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level %q: %w", c.LogLevel, err)
	}
	return l, nil
}

// Relay returns the relay tunables.
func (c Config) Relay() relay.Config {
	return relay.Config{
		BufferCapacity:  c.BufferCapacity,
		Debounce:        c.Debounce.Std(),
		MinPostInterval: c.MinPostInterval.Std(),
		RunTimeout:      c.RunTimeout.Std(),
		Retry: relay.Backoff{
			MinInterval: c.AcquireRetry.MinInterval.Std(),
			MaxInterval: c.AcquireRetry.MaxInterval.Std(),
			MaxAttempts: c.AcquireRetry.MaxAttempts,
		},
	}
}

// MQTTOptions returns the publisher options for the telemetry mirror.
func (c Config) MQTTOptions() mqtt.Options {
	return mqtt.Options{
		Broker:      c.MQTT.Broker,
		TopicPrefix: c.MQTT.TopicPrefix,
		ClientID:    c.MQTT.ClientID,
		ReplaySize:  c.MQTT.ReplaySize,
	}
}
