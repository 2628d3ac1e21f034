package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/sweeney/pulse-relay/internal/logic"
	"github.com/sweeney/pulse-relay/internal/metrics"
	"github.com/sweeney/pulse-relay/internal/transport"
)

// DefaultRunTimeout is the inactivity period after which a run is finalized.
const DefaultRunTimeout = 10 * time.Minute

// Lifecycle tracks the run id: acquired on demand, finalized after the
// sensor has been quiet for the run timeout. Not safe for concurrent use;
// it belongs to the relay loop.
type Lifecycle struct {
	transport transport.Transport
	backoff   *Backoff
	timeout   time.Duration
	state     logic.RunState
	observe   func(logic.RunEvent)
}

// NewLifecycle creates a Lifecycle in the NoRun state.
func NewLifecycle(tr transport.Transport, timeout time.Duration, backoff *Backoff) *Lifecycle {
	if backoff == nil {
		backoff = &Backoff{}
	}
	return &Lifecycle{
		transport: tr,
		backoff:   backoff,
		timeout:   timeout,
		observe:   func(logic.RunEvent) {},
	}
}

// Phase returns the current run phase.
func (l *Lifecycle) Phase() logic.RunPhase { return l.state.Phase() }

// ID returns the held run id or "".
func (l *Lifecycle) ID() string { return l.state.ID() }

// CheckTimeout finalizes the held run if the last event is more than the
// run timeout before now. It returns true if a run was finalized.
func (l *Lifecycle) CheckTimeout(ctx context.Context, now, lastEvent logic.Timestamp) bool {
	if !l.state.Expired(now, lastEvent, l.timeout) {
		return false
	}
	slog.Info("run: inactivity timeout", "run_id", l.state.ID(), "idle", logic.Elapsed(now, lastEvent))
	return l.Finalize(ctx, now)
}

// Finalize closes the held run. The id is cleared even if the close request
// fails. With no run held it does nothing and returns false.
func (l *Lifecycle) Finalize(ctx context.Context, now logic.Timestamp) bool {
	id := l.state.Clear()
	if id == "" {
		return false
	}

	err := l.transport.FinalizeRun(ctx, id)
	metrics.ObserveFinalize(err)
	metrics.SetRunActive(false)
	if err != nil {
		slog.Warn("run: finalize failed, dropping run", "run_id", id, "err", err)
	} else {
		slog.Info("run: finalized", "run_id", id)
	}
	l.observe(logic.RunEvent{Time: now, Type: logic.RunFinalized, RunID: id, Err: err})
	return true
}

// Ensure returns the held run id, acquiring one if necessary. Acquisition is
// retried according to the backoff policy; it fails only when the policy
// gives up or ctx is done.
func (l *Lifecycle) Ensure(ctx context.Context, now logic.Timestamp) (string, error) {
	if l.state.Active() {
		return l.state.ID(), nil
	}

	var id string
	err := l.backoff.Retry(ctx, "acquire run id", func(ctx context.Context) error {
		got, err := l.transport.AcquireRunID(ctx)
		metrics.ObserveAcquireAttempt(err)
		if err != nil {
			slog.Warn("run: failed to acquire run id", "err", err)
			return err
		}
		id = got
		return nil
	})
	if err != nil {
		return "", err
	}

	l.state.Acquire(id)
	metrics.SetRunActive(true)
	slog.Info("run: started", "run_id", id)
	l.observe(logic.RunEvent{Time: now, Type: logic.RunStarted, RunID: id})
	return id, nil
}
