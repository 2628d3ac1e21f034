package gpio

import (
	"errors"
	"sync"
)

// FakeSource is a test double that fires edges on demand.
type FakeSource struct {
	mu     sync.Mutex
	onEdge func()

	// WatchError, if set, will be returned by Watch().
	WatchError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeSource creates a FakeSource.
func NewFakeSource() *FakeSource {
	return &FakeSource{}
}

// Watch stores the edge handler.
func (f *FakeSource) Watch(onEdge func()) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WatchError != nil {
		return f.WatchError
	}
	if f.onEdge != nil {
		return errors.New("gpio: already watching")
	}
	f.onEdge = onEdge
	return nil
}

// Trigger fires n edges synchronously. It is a no-op before Watch or
// after Close.
func (f *FakeSource) Trigger(n int) {
	f.mu.Lock()
	onEdge := f.onEdge
	f.mu.Unlock()
	if onEdge == nil {
		return
	}
	for i := 0; i < n; i++ {
		onEdge()
	}
}

// Close marks the source as closed and stops edge delivery.
func (f *FakeSource) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onEdge = nil
	f.Closed = true
	return nil
}
