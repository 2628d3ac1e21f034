// Package transport is the relay's view of the remote collector.
// The HTTP implementation talks to the collector's JSON API.
// The fake implementation allows testing without a network.
package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/sweeney/pulse-relay/internal/logic"
)

// ErrInvalidRunID is returned when the collector answers /runs with
// something that is not a run id.
var ErrInvalidRunID = errors.New("transport: invalid run id")

// Transport performs the four collector calls. Every call makes a single
// attempt; retry policy belongs to the caller.
type Transport interface {
	// Announce tells the collector that the device identified by
	// deviceAddress has come online.
	Announce(ctx context.Context, deviceAddress string) error

	// AcquireRunID asks the collector to open a new run.
	AcquireRunID(ctx context.Context) (string, error)

	// SubmitBatch sends pulse timestamps belonging to runID.
	SubmitBatch(ctx context.Context, runID string, batch logic.Batch) error

	// FinalizeRun asks the collector to close runID and summarise it.
	FinalizeRun(ctx context.Context, runID string) error
}

// ConnectionStatus reports whether the collector was reachable on the last call.
type ConnectionStatus interface {
	IsConnected() bool
}

// StatusError is returned when the collector answers with a non-2xx status.
type StatusError struct {
	Op         string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transport: %s: unexpected status %d", e.Op, e.StatusCode)
}
