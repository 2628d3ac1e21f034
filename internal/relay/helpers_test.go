package relay

import (
	"time"

	"github.com/sweeney/pulse-relay/internal/logic"
)

// manualClock is a device clock the test moves by hand.
type manualClock struct {
	now logic.Timestamp
}

func (c *manualClock) Clock() logic.Clock {
	return func() logic.Timestamp { return c.now }
}

// instantBackoff retries without sleeping and records requested intervals.
func instantBackoff(maxAttempts uint64) (*Backoff, *[]time.Duration) {
	var waits []time.Duration
	b := &Backoff{
		MinInterval: 10 * time.Millisecond,
		MaxInterval: 80 * time.Millisecond,
		MaxAttempts: maxAttempts,
		NoJitter:    true,
		After: func(d time.Duration) <-chan time.Time {
			waits = append(waits, d)
			ch := make(chan time.Time, 1)
			ch <- time.Time{}
			return ch
		},
	}
	return b, &waits
}

// testConfig returns DefaultConfig with an instant retry policy.
func testConfig() Config {
	cfg := DefaultConfig()
	b, _ := instantBackoff(0)
	cfg.Retry = *b
	return cfg
}
