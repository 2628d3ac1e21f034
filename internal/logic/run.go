package logic

import "time"

// RunPhase is the state of the run lifecycle.
type RunPhase string

const (
	NoRun     RunPhase = "NO_RUN"
	RunActive RunPhase = "RUN_ACTIVE"
)

// RunState holds the current run id, if any. The zero value is NoRun.
// Only one run is live at a time.
type RunState struct {
	id string
}

// Phase returns NoRun or RunActive.
func (r *RunState) Phase() RunPhase {
	if r.id == "" {
		return NoRun
	}
	return RunActive
}

// ID returns the held run id, or "" when no run is held.
func (r *RunState) ID() string {
	return r.id
}

// Active reports whether a run id is held.
func (r *RunState) Active() bool {
	return r.id != ""
}

// Acquire moves NoRun to RunActive(id). It returns false and leaves the state
// unchanged if a run is already held or id is empty.
func (r *RunState) Acquire(id string) bool {
	if r.id != "" || id == "" {
		return false
	}
	r.id = id
	return true
}

// Expired reports whether the held run should be finalized at now.
// It is always false when no run is held.
func (r *RunState) Expired(now, lastEvent Timestamp, timeout time.Duration) bool {
	return r.id != "" && TimedOut(now, lastEvent, timeout)
}

// Clear drops the held run id and returns it. Clearing NoRun returns "".
func (r *RunState) Clear() string {
	id := r.id
	r.id = ""
	return id
}
