package mqtt

import (
	"sync"
	"time"

	"github.com/sweeney/pulse-relay/internal/logic"
)

// FakePublisher records published events for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// RunEvents contains all run events that were published.
	RunEvents []logic.RunEvent

	// RunPayloads contains the JSON payloads for run events.
	RunPayloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishRunError, if set, will be returned by PublishRun.
	PublishRunError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishRun records the run event.
func (f *FakePublisher) PublishRun(event logic.RunEvent, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishRunError != nil {
		return f.PublishRunError
	}

	payload, err := FormatRunPayload(event, at)
	if err != nil {
		return err
	}
	f.RunEvents = append(f.RunEvents, event)
	f.RunPayloads = append(f.RunPayloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// RunTypes returns the types of the recorded run events in order.
func (f *FakePublisher) RunTypes() []logic.RunEventType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]logic.RunEventType, len(f.RunEvents))
	for i, ev := range f.RunEvents {
		out[i] = ev.Type
	}
	return out
}

// SystemEventNames returns the names of the recorded system events in order.
func (f *FakePublisher) SystemEventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.SystemEvents))
	for i, ev := range f.SystemEvents {
		out[i] = ev.Event
	}
	return out
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}
