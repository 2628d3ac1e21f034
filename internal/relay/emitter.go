package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/sweeney/pulse-relay/internal/buffer"
	"github.com/sweeney/pulse-relay/internal/logic"
	"github.com/sweeney/pulse-relay/internal/metrics"
	"github.com/sweeney/pulse-relay/internal/transport"
)

// DefaultMinPostInterval is the minimum time between two batch posts.
const DefaultMinPostInterval = time.Second

// Emitter is the consumer side of the timestamp ring. It drains the ring at
// most once per post interval and submits the result under the current run.
type Emitter struct {
	ring        *buffer.Ring
	runs        *Lifecycle
	transport   transport.Transport
	minInterval time.Duration
	observe     func(logic.RunEvent)

	lastPost logic.Timestamp
	// pending holds a drained batch that could not be sent because no run id
	// was available. It is retried before the ring is drained again.
	pending logic.Batch

	sent   uint64
	failed uint64
}

// NewEmitter creates an Emitter. start seeds the post watermark.
func NewEmitter(ring *buffer.Ring, runs *Lifecycle, tr transport.Transport, minInterval time.Duration, start logic.Timestamp) *Emitter {
	return &Emitter{
		ring:        ring,
		runs:        runs,
		transport:   tr,
		minInterval: minInterval,
		observe:     func(logic.RunEvent) {},
		lastPost:    start,
	}
}

// Tick drains and submits a batch if one is due at now. It returns the batch
// and true if a submit was attempted, whatever its outcome.
func (e *Emitter) Tick(ctx context.Context, now logic.Timestamp) (logic.Batch, bool) {
	if !logic.PostDue(now, e.lastPost, e.minInterval, e.ring.Len()+len(e.pending)) {
		return nil, false
	}

	batch := e.pending
	if batch == nil {
		batch = e.ring.Drain()
	}
	e.pending = nil
	e.lastPost = now

	id, err := e.runs.Ensure(ctx, now)
	if err != nil {
		slog.Warn("emit: no run id, holding batch", "size", len(batch), "err", err)
		e.pending = batch
		return nil, false
	}

	err = e.transport.SubmitBatch(ctx, id, batch)
	metrics.ObserveBatch(len(batch), err)
	if err != nil {
		e.failed++
		slog.Warn("emit: submit failed, batch discarded", "run_id", id, "size", len(batch), "err", err)
	} else {
		e.sent++
		slog.Debug("emit: batch sent", "run_id", id, "size", len(batch))
	}
	e.observe(logic.RunEvent{Time: now, Type: logic.BatchSent, RunID: id, Count: len(batch), Err: err})
	return batch, true
}

// LastPost returns the tick of the last post attempt.
func (e *Emitter) LastPost() logic.Timestamp { return e.lastPost }

// Pending returns the number of timestamps held back for lack of a run id.
func (e *Emitter) Pending() int { return len(e.pending) }
