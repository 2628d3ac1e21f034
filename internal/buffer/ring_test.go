package buffer

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/pulse-relay/internal/logic"
)

func TestRingEmptyDrain(t *testing.T) {
	r := New(10)
	assert.Nil(t, r.Drain())
	assert.Equal(t, 0, r.Len())
	assert.Equal(t, 10, r.Cap())
}

func TestRingPushAndDrain(t *testing.T) {
	r := New(10)
	for i := 0; i < 5; i++ {
		require.True(t, r.Push(logic.Timestamp(i*100)))
	}
	require.Equal(t, 5, r.Len())

	got := r.Drain()
	assert.Equal(t, logic.Batch{0, 100, 200, 300, 400}, got)
	assert.Equal(t, 0, r.Len(), "ring should be empty after drain")
	assert.Nil(t, r.Drain(), "second drain should be empty")
}

func TestRingOverflowDropsNewest(t *testing.T) {
	const capacity = 5
	r := New(capacity)
	for i := 0; i < capacity; i++ {
		require.True(t, r.Push(logic.Timestamp(i)))
	}

	// The (C+1)-th push is rejected and existing entries survive.
	assert.False(t, r.Push(99))
	assert.False(t, r.Push(100))
	assert.Equal(t, capacity, r.Len())
	assert.Equal(t, uint64(2), r.Dropped())
	assert.Equal(t, uint64(capacity), r.Accepted())

	assert.Equal(t, logic.Batch{0, 1, 2, 3, 4}, r.Drain())

	// Space is available again after draining.
	assert.True(t, r.Push(7))
	assert.Equal(t, logic.Batch{7}, r.Drain())
}

func TestRingMultipleCyclesWrapIndex(t *testing.T) {
	r := New(4)
	var want logic.Batch
	next := logic.Timestamp(0)
	for cycle := 0; cycle < 10; cycle++ {
		want = want[:0]
		for i := 0; i < 3; i++ {
			r.Push(next)
			want = append(want, next)
			next++
		}
		assert.Equal(t, want, r.Drain(), "cycle %d", cycle)
	}
	assert.Equal(t, uint64(30), r.Accepted())
	assert.Zero(t, r.Dropped())
}

func TestRingNewPanicsOnBadCapacity(t *testing.T) {
	assert.Panics(t, func() { New(0) })
	assert.Panics(t, func() { New(-1) })
}

// TestRingConcurrentProducerConsumer checks that with one producer racing one
// consumer every accepted timestamp is delivered exactly once, in order.
func TestRingConcurrentProducerConsumer(t *testing.T) {
	const total = 20000
	r := New(64)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			r.Push(logic.Timestamp(i))
		}
	}()

	var got logic.Batch
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		got = append(got, r.Drain()...)
		select {
		case <-done:
			got = append(got, r.Drain()...)
			require.Equal(t, int(r.Accepted()), len(got))
			require.Equal(t, uint64(total), r.Accepted()+r.Dropped())
			for i := 1; i < len(got); i++ {
				require.Less(t, got[i-1], got[i], "order broken at %d", i)
			}
			return
		default:
		}
	}
}
