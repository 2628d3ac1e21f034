// Package mqtt mirrors run lifecycle and system events to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/pulse-relay/internal/logic"
)

// DefaultTopicPrefix is the topic root used when none is configured.
const DefaultTopicPrefix = "pulse/relay"

// Topic suffixes under the configured prefix.
const (
	runsSuffix   = "/runs"
	systemSuffix = "/system"
)

// RunsTopic returns the topic for run events under prefix.
func RunsTopic(prefix string) string { return prefix + runsSuffix }

// SystemTopic returns the topic for system events under prefix.
func SystemTopic(prefix string) string { return prefix + systemSuffix }

// Publisher publishes events to MQTT.
type Publisher interface {
	// PublishRun sends a run lifecycle or batch event to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishRun(event logic.RunEvent, at time.Time) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// RunPayload is the MQTT message payload for run events.
type RunPayload struct {
	Run RunPayloadInner `json:"run"`
}

// RunPayloadInner contains the run event details.
type RunPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Tick      uint32 `json:"tick"`
	Event     string `json:"event"`
	RunID     string `json:"run_id,omitempty"`
	Count     int    `json:"count,omitempty"`
	Error     string `json:"error,omitempty"`
}

// FormatRunPayload creates the JSON payload for a run event observed at wall time at.
func FormatRunPayload(event logic.RunEvent, at time.Time) ([]byte, error) {
	inner := RunPayloadInner{
		Timestamp: at.UTC().Format(time.RFC3339),
		Tick:      uint32(event.Time),
		Event:     string(event.Type),
		RunID:     event.RunID,
		Count:     event.Count,
	}
	if event.Err != nil {
		inner.Error = event.Err.Error()
	}
	return json.Marshal(RunPayload{Run: inner})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
