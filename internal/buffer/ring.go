// Package buffer holds the fixed-capacity timestamp ring shared between the
// edge-event producer and the relay loop.
package buffer

import (
	"fmt"
	"sync/atomic"

	"github.com/sweeney/pulse-relay/internal/logic"
)

// Ring is a single-producer/single-consumer FIFO of timestamps.
// Push must only be called from one goroutine (the capture) and Drain from
// one other goroutine (the relay loop). Head and tail are atomic, so neither
// side ever waits on the other.
//
// When full, Push drops the new timestamp and counts it. Entries already in
// the ring are never overwritten.
type Ring struct {
	slots    []logic.Timestamp
	capacity uint64
	head     atomic.Uint64 // next read position, advanced by the consumer
	tail     atomic.Uint64 // next write position, advanced by the producer
	accepted atomic.Uint64
	dropped  atomic.Uint64
}

// New returns a Ring holding at most capacity timestamps.
func New(capacity int) *Ring {
	if capacity <= 0 {
		panic(fmt.Sprintf("buffer: capacity must be positive, got %d", capacity))
	}
	return &Ring{
		slots:    make([]logic.Timestamp, capacity),
		capacity: uint64(capacity),
	}
}

// Push appends ts. It returns false if the ring is full.
func (r *Ring) Push(ts logic.Timestamp) bool {
	tail := r.tail.Load()
	if tail-r.head.Load() == r.capacity {
		r.dropped.Add(1)
		return false
	}
	r.slots[tail%r.capacity] = ts
	r.tail.Store(tail + 1)
	r.accepted.Add(1)
	return true
}

// Drain removes and returns everything pushed before the call, oldest first.
// Timestamps pushed concurrently with Drain belong to the next drain.
// Returns nil when empty.
func (r *Ring) Drain() logic.Batch {
	head := r.head.Load()
	tail := r.tail.Load()
	n := tail - head
	if n == 0 {
		return nil
	}

	out := make(logic.Batch, n)
	for i := uint64(0); i < n; i++ {
		out[i] = r.slots[(head+i)%r.capacity]
	}
	r.head.Store(tail)
	return out
}

// Len returns the number of buffered timestamps.
func (r *Ring) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Cap returns the fixed capacity.
func (r *Ring) Cap() int {
	return int(r.capacity)
}

// Accepted returns the number of successful pushes since creation.
func (r *Ring) Accepted() uint64 {
	return r.accepted.Load()
}

// Dropped returns the number of pushes rejected because the ring was full.
func (r *Ring) Dropped() uint64 {
	return r.dropped.Load()
}
