// Package relay owns the main-loop state of the pulse relay: the timestamp
// ring, the run lifecycle and the batch emitter. Everything except the
// capture's OnTrigger must be called from the relay loop goroutine.
package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/sweeney/pulse-relay/internal/buffer"
	"github.com/sweeney/pulse-relay/internal/capture"
	"github.com/sweeney/pulse-relay/internal/logic"
	"github.com/sweeney/pulse-relay/internal/transport"
)

// DefaultBufferCapacity is the number of timestamps held between posts.
const DefaultBufferCapacity = 500

// Config holds the relay's tunables.
type Config struct {
	BufferCapacity  int
	Debounce        time.Duration
	MinPostInterval time.Duration
	RunTimeout      time.Duration
	Retry           Backoff
}

// DefaultConfig returns the factory settings.
func DefaultConfig() Config {
	return Config{
		BufferCapacity:  DefaultBufferCapacity,
		Debounce:        capture.DefaultDebounce,
		MinPostInterval: DefaultMinPostInterval,
		RunTimeout:      DefaultRunTimeout,
		Retry: Backoff{
			MinInterval: 10 * time.Millisecond,
			MaxInterval: 5 * time.Second,
		},
	}
}

// Step describes what one loop iteration did.
type Step struct {
	Now       logic.Timestamp
	Finalized bool
	Batch     logic.Batch
	Submitted bool
}

// Stats is a point-in-time view of the relay. It is a value type.
type Stats struct {
	Now       logic.Timestamp
	Phase     logic.RunPhase
	RunID     string
	Buffered  int
	Capacity  int
	Pending   int
	Triggers  uint64
	Bounces   uint64
	Accepted  uint64
	Dropped   uint64
	Sent      uint64
	Failed    uint64
	LastEvent logic.Timestamp
	LastPost  logic.Timestamp
}

// Relay wires capture, ring, lifecycle and emitter together.
type Relay struct {
	clock     logic.Clock
	transport transport.Transport
	ring      *buffer.Ring
	capture   *capture.Capture
	runs      *Lifecycle
	emitter   *Emitter
}

// New creates a Relay. The current clock tick becomes the boot watermark
// for both the last event and the last post.
func New(cfg Config, tr transport.Transport, clock logic.Clock) *Relay {
	start := clock()
	ring := buffer.New(cfg.BufferCapacity)
	retry := cfg.Retry
	runs := NewLifecycle(tr, cfg.RunTimeout, &retry)
	return &Relay{
		clock:     clock,
		transport: tr,
		ring:      ring,
		capture:   capture.New(ring, clock, cfg.Debounce, start),
		runs:      runs,
		emitter:   NewEmitter(ring, runs, tr, cfg.MinPostInterval, start),
	}
}

// Capture returns the producer. Its OnTrigger is the GPIO edge handler.
func (r *Relay) Capture() *capture.Capture {
	return r.capture
}

// Observe registers fn to receive run starts, finalizations and batches.
func (r *Relay) Observe(fn func(logic.RunEvent)) {
	r.runs.observe = fn
	r.emitter.observe = fn
}

// Announce tells the collector this device is online. One attempt.
func (r *Relay) Announce(ctx context.Context, deviceAddress string) error {
	if err := r.transport.Announce(ctx, deviceAddress); err != nil {
		slog.Warn("relay: announce failed", "device", deviceAddress, "err", err)
		return err
	}
	slog.Info("relay: announced", "device", deviceAddress)
	return nil
}

// Step runs one loop iteration: finalize a timed-out run, otherwise give the
// emitter a chance to post. The two never happen in the same iteration.
func (r *Relay) Step(ctx context.Context) Step {
	now := r.clock()
	if r.runs.CheckTimeout(ctx, now, r.capture.LastAccepted()) {
		return Step{Now: now, Finalized: true}
	}
	batch, submitted := r.emitter.Tick(ctx, now)
	return Step{Now: now, Batch: batch, Submitted: submitted}
}

// Flush submits everything still buffered or pending, ignoring the post
// interval. Used on shutdown; ctx bounds how long run acquisition may take.
// It returns the timestamps handed to the transport and whether any submit
// was attempted. A pending batch goes first, then whatever the ring holds.
func (r *Relay) Flush(ctx context.Context) (logic.Batch, bool) {
	var flushed logic.Batch
	submitted := false
	for r.ring.Len() > 0 || r.emitter.Pending() > 0 {
		if ctx.Err() != nil {
			break
		}
		now := r.clock()
		// Backdate the watermark so the interval check passes.
		r.emitter.lastPost = now - intervalTicks(r.emitter.minInterval)
		batch, ok := r.emitter.Tick(ctx, now)
		if !ok {
			break
		}
		submitted = true
		flushed = append(flushed, batch...)
	}
	return flushed, submitted
}

// intervalTicks converts d to device ticks, rounding up so a sub-millisecond
// remainder still covers the full interval.
func intervalTicks(d time.Duration) logic.Timestamp {
	return logic.Timestamp((d + time.Millisecond - 1) / time.Millisecond)
}

// Stats returns a snapshot of the relay's counters and run state.
func (r *Relay) Stats() Stats {
	return Stats{
		Now:       r.clock(),
		Phase:     r.runs.Phase(),
		RunID:     r.runs.ID(),
		Buffered:  r.ring.Len(),
		Capacity:  r.ring.Cap(),
		Pending:   r.emitter.Pending(),
		Triggers:  r.capture.Triggers(),
		Bounces:   r.capture.Bounces(),
		Accepted:  r.capture.Accepted(),
		Dropped:   r.capture.Dropped(),
		Sent:      r.emitter.sent,
		Failed:    r.emitter.failed,
		LastEvent: r.capture.LastAccepted(),
		LastPost:  r.emitter.LastPost(),
	}
}
