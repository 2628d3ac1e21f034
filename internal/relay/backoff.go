package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// ErrGaveUp is returned by Backoff.Retry when MaxAttempts is exhausted.
var ErrGaveUp = errors.New("relay: gave up retrying")

// Backoff retries a task with capped exponential backoff and jitter.
type Backoff struct {
	// MinInterval is the delay after the first failure. Defaults to 10ms.
	MinInterval time.Duration

	// MaxInterval caps the delay between attempts. Defaults to 5s.
	MaxInterval time.Duration

	// MaxAttempts bounds the number of attempts. 0 means retry until the
	// task succeeds or the context is cancelled.
	MaxAttempts uint64

	// NoJitter disables the +/-5% jitter.
	NoJitter bool

	// After waits for a duration. Defaults to time.After; tests replace it.
	After func(time.Duration) <-chan time.Time
}

// Retry runs task until it returns nil, the context is done, or MaxAttempts
// is reached.
func (b *Backoff) Retry(ctx context.Context, name string, task func(context.Context) error) error {
	after := b.After
	if after == nil {
		after = time.After
	}

	for attempt := uint64(1); ; attempt++ {
		err := task(ctx)
		if err == nil {
			if attempt > 1 {
				slog.Info("retry: succeeded", "task", name, "attempts", attempt)
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if b.MaxAttempts > 0 && attempt >= b.MaxAttempts {
			return fmt.Errorf("%w: %s after %d attempts: %v", ErrGaveUp, name, attempt, err)
		}

		interval := b.Interval(attempt)
		slog.Debug("retry: attempt failed", "task", name, "attempt", attempt, "next", interval, "err", err)

		select {
		case <-after(interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Interval returns the delay after the given failed attempt (1-based).
func (b *Backoff) Interval(attempt uint64) time.Duration {
	minInterval := b.MinInterval
	if minInterval <= 0 {
		minInterval = 10 * time.Millisecond
	}
	maxInterval := b.MaxInterval
	if maxInterval <= 0 {
		maxInterval = 5 * time.Second
	}
	if maxInterval < minInterval {
		maxInterval = minInterval
	}

	factor := math.Pow(2, min(
		float64(attempt-1),
		math.Log2(float64(maxInterval)/float64(minInterval)),
	))
	if !b.NoJitter {
		factor *= .95 + .1*rand.Float64()
	}
	return time.Duration(factor * float64(minInterval))
}
