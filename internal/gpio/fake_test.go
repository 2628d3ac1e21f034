package gpio

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestFakeSourceTrigger(t *testing.T) {
	f := NewFakeSource()
	var edges int
	if err := f.Watch(func() { edges++ }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	f.Trigger(3)
	if edges != 3 {
		t.Errorf("expected 3 edges, got %d", edges)
	}
}

func TestFakeSourceTriggerBeforeWatch(t *testing.T) {
	f := NewFakeSource()
	f.Trigger(1) // must not panic
}

func TestFakeSourceWatchError(t *testing.T) {
	f := NewFakeSource()
	f.WatchError = errors.New("simulated error")

	err := f.Watch(func() {})
	if err == nil || err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeSourceDoubleWatch(t *testing.T) {
	f := NewFakeSource()
	if err := f.Watch(func() {}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.Watch(func() {}); err == nil {
		t.Error("expected error on second Watch")
	}
}

func TestFakeSourceClose(t *testing.T) {
	f := NewFakeSource()
	var edges int
	f.Watch(func() { edges++ })

	if f.Closed {
		t.Error("should not be closed initially")
	}
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}

	f.Trigger(2)
	if edges != 0 {
		t.Errorf("no edges expected after close, got %d", edges)
	}
}

func TestSimulatedSourceEmitsEdgesAndBounces(t *testing.T) {
	s := NewSimulatedSource(5 * time.Millisecond)
	var edges atomic.Int64
	if err := s.Watch(func() { edges.Add(1) }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for edges.Load() < 4 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := s.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	n := edges.Load()
	if n < 4 {
		t.Fatalf("expected at least 4 edges, got %d", n)
	}
	time.Sleep(20 * time.Millisecond)
	if edges.Load() != n {
		t.Error("edges delivered after Close")
	}
}

func TestSimulatedSourceRejectsZeroInterval(t *testing.T) {
	s := NewSimulatedSource(0)
	if err := s.Watch(func() {}); err == nil {
		t.Error("expected error for zero interval")
	}
	if err := s.Close(); err != nil {
		t.Errorf("close without watch: %v", err)
	}
}
