// Package status provides a thread-safe status tracker for the pulse-relay daemon.
// It is written by the relay loop and read by HTTP handlers and the MQTT mirror.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/pulse-relay/internal/relay"
)

// NetworkInfo contains network state as reported by the host.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	Server            string
	Device            string
	Pin               int
	DebounceMs        int64
	MinPostIntervalMs int64
	RunTimeoutMs      int64
	HeartbeatMs       int64
	BufferCapacity    int
	Broker            string
	HTTPAddr          string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Relay              relay.Stats
	StartTime          time.Time
	Now                time.Time
	CollectorConnected bool
	MQTTConnected      bool
	Network            *NetworkInfo
	Config             Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
		now: time.Now,
	}
}

// Update stores the latest relay stats. Called from the relay loop.
func (t *Tracker) Update(stats relay.Stats) {
	t.mu.Lock()
	t.snap.Relay = stats
	t.mu.Unlock()
}

// SetCollectorConnected sets whether the collector answered the last call.
func (t *Tracker) SetCollectorConnected(connected bool) {
	t.mu.Lock()
	t.snap.CollectorConnected = connected
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
