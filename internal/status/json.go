package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/pulse-relay/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	Run           RunJSON       `json:"run"`
	Buffer        BufferJSON    `json:"buffer"`
	Counts        CountsJSON    `json:"counts"`
	Collector     CollectorJSON `json:"collector"`
	MQTT          *MQTTStatus   `json:"mqtt,omitempty"`
	Network       *NetworkJSON  `json:"network,omitempty"`
	Config        ConfigJSON    `json:"config"`
}

// RunJSON reports the run lifecycle.
type RunJSON struct {
	State           string `json:"state"`
	ID              string `json:"id,omitempty"`
	IdleMs          int64  `json:"idle_ms"`
	SinceLastPostMs int64  `json:"since_last_post_ms"`
}

// BufferJSON reports timestamp ring occupancy.
type BufferJSON struct {
	Length   int `json:"length"`
	Capacity int `json:"capacity"`
	Pending  int `json:"pending"`
}

// CountsJSON is the JSON representation of relay counters.
type CountsJSON struct {
	Triggers      uint64 `json:"triggers"`
	Bounces       uint64 `json:"bounces"`
	Pulses        uint64 `json:"pulses"`
	Dropped       uint64 `json:"dropped"`
	BatchesSent   uint64 `json:"batches_sent"`
	BatchesFailed uint64 `json:"batches_failed"`
}

// CollectorJSON reports the collector link.
type CollectorJSON struct {
	Connected bool   `json:"connected"`
	Server    string `json:"server"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Device            string `json:"device"`
	Pin               int    `json:"pin"`
	DebounceMs        int64  `json:"debounce_ms"`
	MinPostIntervalMs int64  `json:"min_post_interval_ms"`
	RunTimeoutMs      int64  `json:"run_timeout_ms"`
	HeartbeatMs       int64  `json:"heartbeat_ms"`
	BufferCapacity    int    `json:"buffer_capacity"`
	HTTPAddr          string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	r := snap.Relay
	inner := StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Run: RunJSON{
			State:           runState(r.Phase),
			ID:              r.RunID,
			IdleMs:          logic.Elapsed(r.Now, r.LastEvent).Milliseconds(),
			SinceLastPostMs: logic.Elapsed(r.Now, r.LastPost).Milliseconds(),
		},
		Buffer: BufferJSON{
			Length:   r.Buffered,
			Capacity: r.Capacity,
			Pending:  r.Pending,
		},
		Counts: CountsJSON{
			Triggers:      r.Triggers,
			Bounces:       r.Bounces,
			Pulses:        r.Accepted,
			Dropped:       r.Dropped,
			BatchesSent:   r.Sent,
			BatchesFailed: r.Failed,
		},
		Collector: CollectorJSON{Connected: snap.CollectorConnected, Server: snap.Config.Server},
		Config: ConfigJSON{
			Device:            snap.Config.Device,
			Pin:               snap.Config.Pin,
			DebounceMs:        snap.Config.DebounceMs,
			MinPostIntervalMs: snap.Config.MinPostIntervalMs,
			RunTimeoutMs:      snap.Config.RunTimeoutMs,
			HeartbeatMs:       snap.Config.HeartbeatMs,
			BufferCapacity:    snap.Config.BufferCapacity,
			HTTPAddr:          snap.Config.HTTPAddr,
		},
	}
	if snap.Config.Broker != "" {
		inner.MQTT = &MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker}
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

func runState(p logic.RunPhase) string {
	if p == "" {
		return string(logic.NoRun)
	}
	return string(p)
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
