package logic

import (
	"math"
	"testing"
	"time"
)

func TestElapsed(t *testing.T) {
	tests := []struct {
		name      string
		now, then Timestamp
		want      time.Duration
	}{
		{"zero", 0, 0, 0},
		{"forward", 1500, 500, time.Second},
		{"across wrap", 5, math.MaxUint32 - 4, 10 * time.Millisecond},
		{"at wrap", 0, math.MaxUint32, time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Elapsed(tt.now, tt.then); got != tt.want {
				t.Errorf("Elapsed(%d, %d) = %v, want %v", tt.now, tt.then, got, tt.want)
			}
		})
	}
}

func TestAcceptWindow(t *testing.T) {
	window := 10 * time.Millisecond
	tests := []struct {
		now, last Timestamp
		want      bool
	}{
		{100, 100, false},
		{105, 100, false},
		{110, 100, false}, // exactly the window is still a bounce
		{111, 100, true},
		{3, math.MaxUint32 - 20, true}, // 24ms across wrap
		{3, math.MaxUint32 - 2, false}, // 6ms across wrap
	}
	for _, tt := range tests {
		if got := Accept(tt.now, tt.last, window); got != tt.want {
			t.Errorf("Accept(%d, %d) = %v, want %v", tt.now, tt.last, got, tt.want)
		}
	}
}

// acceptAll runs a trigger sequence through Accept the way the capture does.
func acceptAll(triggers []Timestamp, last Timestamp, window time.Duration) []Timestamp {
	var out []Timestamp
	for _, now := range triggers {
		if Accept(now, last, window) {
			last = now
			out = append(out, now)
		}
	}
	return out
}

func TestAcceptSequenceDropsBounces(t *testing.T) {
	// Boot watermark is far enough back that t=0 is accepted.
	boot := Timestamp(math.MaxUint32 - 100)
	got := acceptAll([]Timestamp{0, 5, 20, 35}, boot, 10*time.Millisecond)
	want := []Timestamp{0, 20, 35}
	if len(got) != len(want) {
		t.Fatalf("accepted %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("accepted[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestAcceptBurstWithinWindow(t *testing.T) {
	// Any number of triggers inside the window after an accepted one are dropped.
	triggers := []Timestamp{100, 101, 102, 103, 104, 105, 106, 107, 108, 109, 110}
	got := acceptAll(triggers, 0, 10*time.Millisecond)
	if len(got) != 1 || got[0] != 100 {
		t.Errorf("accepted %v, want [100]", got)
	}
}

func TestPostDue(t *testing.T) {
	interval := time.Second
	if PostDue(5000, 0, interval, 0) {
		t.Error("empty buffer should never be due")
	}
	if PostDue(500, 0, interval, 3) {
		t.Error("should not be due before the interval")
	}
	if !PostDue(1000, 0, interval, 3) {
		t.Error("should be due at exactly the interval")
	}
	if !PostDue(10, math.MaxUint32-1000, interval, 1) {
		t.Error("should be due across wrap")
	}
}

func TestTimedOut(t *testing.T) {
	timeout := 10 * time.Minute
	if TimedOut(600000, 0, timeout) {
		t.Error("exactly the timeout should not expire")
	}
	if !TimedOut(600001, 0, timeout) {
		t.Error("one tick past the timeout should expire")
	}
}

func TestHeartbeatDue(t *testing.T) {
	if HeartbeatDue(1<<30, 0, 0) {
		t.Error("zero interval disables heartbeats")
	}
	if HeartbeatDue(899999, 0, 15*time.Minute) {
		t.Error("heartbeat before interval")
	}
	if !HeartbeatDue(900000, 0, 15*time.Minute) {
		t.Error("heartbeat at interval")
	}
}
