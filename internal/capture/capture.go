// Package capture turns raw hardware edges into buffered event timestamps.
//
// OnTrigger runs on the GPIO event goroutine. It must stay fast: it never
// logs, blocks, or allocates, and it touches only atomics and the ring.
package capture

import (
	"sync/atomic"
	"time"

	"github.com/sweeney/pulse-relay/internal/buffer"
	"github.com/sweeney/pulse-relay/internal/logic"
)

// DefaultDebounce is the minimum spacing between two accepted pulses.
const DefaultDebounce = 10 * time.Millisecond

// Capture is the producer side of the timestamp ring.
type Capture struct {
	ring     *buffer.Ring
	clock    logic.Clock
	debounce time.Duration

	lastAccepted atomic.Uint32
	triggers     atomic.Uint64
	bounces      atomic.Uint64
}

// New creates a Capture writing into ring. start seeds the debounce and
// activity watermark, normally the tick at boot.
func New(ring *buffer.Ring, clock logic.Clock, debounce time.Duration, start logic.Timestamp) *Capture {
	c := &Capture{
		ring:     ring,
		clock:    clock,
		debounce: debounce,
	}
	c.lastAccepted.Store(uint32(start))
	return c
}

// OnTrigger handles one hardware edge. It returns true if the edge was
// accepted as a new event and stored. An accepted edge still moves the
// activity watermark when the ring is full and the timestamp is dropped.
func (c *Capture) OnTrigger() bool {
	c.triggers.Add(1)
	now := c.clock()
	if !logic.Accept(now, logic.Timestamp(c.lastAccepted.Load()), c.debounce) {
		c.bounces.Add(1)
		return false
	}
	c.lastAccepted.Store(uint32(now))
	return c.ring.Push(now)
}

// LastAccepted returns the tick of the most recent accepted edge.
func (c *Capture) LastAccepted() logic.Timestamp {
	return logic.Timestamp(c.lastAccepted.Load())
}

// Triggers returns the number of raw edges seen.
func (c *Capture) Triggers() uint64 { return c.triggers.Load() }

// Bounces returns the number of edges rejected by debounce.
func (c *Capture) Bounces() uint64 { return c.bounces.Load() }

// Accepted returns the number of timestamps stored in the ring.
func (c *Capture) Accepted() uint64 { return c.ring.Accepted() }

// Dropped returns the number of accepted edges lost to a full ring.
func (c *Capture) Dropped() uint64 { return c.ring.Dropped() }

// Buffered returns the number of timestamps waiting to be drained.
func (c *Capture) Buffered() int { return c.ring.Len() }
