package logic

import "time"

// Accept reports whether a trigger at now is a new event rather than a bounce
// of the last accepted one. It is true iff more than window has passed.
func Accept(now, lastAccepted Timestamp, window time.Duration) bool {
	return Elapsed(now, lastAccepted) > window
}

// PostDue reports whether the emitter may drain the buffer at now.
// Nothing is due while there is nothing to send or the minimum interval since
// the last post has not elapsed.
func PostDue(now, lastPost Timestamp, minInterval time.Duration, pending int) bool {
	if pending == 0 {
		return false
	}
	return Elapsed(now, lastPost) >= minInterval
}

// TimedOut reports whether the run has been inactive for longer than timeout.
func TimedOut(now, lastEvent Timestamp, timeout time.Duration) bool {
	return Elapsed(now, lastEvent) > timeout
}

// HeartbeatDue reports whether interval has elapsed since the last heartbeat.
// An interval <= 0 disables heartbeats.
func HeartbeatDue(now, last Timestamp, interval time.Duration) bool {
	if interval <= 0 {
		return false
	}
	return Elapsed(now, last) >= interval
}
