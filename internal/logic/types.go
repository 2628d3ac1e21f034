// Package logic contains pure policy for pulse capture and run tracking.
// This package has NO external dependencies (no GPIO, HTTP, MQTT, OS, or time.Sleep).
// Time is always injectable as a device tick Timestamp.
package logic

import "time"

// Timestamp is a device tick: milliseconds since the daemon started.
// It wraps after ~49.7 days; use Elapsed for all differences.
type Timestamp uint32

// Elapsed returns now-then in milliseconds using unsigned arithmetic, so a
// span that crosses the wrap still yields a small positive delta.
func Elapsed(now, then Timestamp) time.Duration {
	return time.Duration(uint32(now-then)) * time.Millisecond
}

// MaxSpan is the longest interval Elapsed can report. Timeouts and intervals
// at or above it can never be reached.
const MaxSpan = time.Duration(1<<32-1) * time.Millisecond

// Batch is a drained snapshot of the timestamp buffer, in trigger order.
type Batch []Timestamp

// RunEventType identifies a run lifecycle transition.
type RunEventType string

const (
	RunStarted   RunEventType = "RUN_STARTED"
	RunFinalized RunEventType = "RUN_FINALIZED"
	BatchSent    RunEventType = "BATCH"
)

// RunEvent describes a run transition or a submitted batch.
type RunEvent struct {
	Time  Timestamp
	Type  RunEventType
	RunID string
	// Count is the number of timestamps in a BATCH event.
	Count int
	// Err is set when the transport call behind the event failed.
	Err error
}

// Clock returns the current device tick.
type Clock func() Timestamp
