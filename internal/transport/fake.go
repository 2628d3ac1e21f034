package transport

import (
	"context"
	"fmt"
	"sync"

	"github.com/sweeney/pulse-relay/internal/logic"
)

// SubmittedBatch records one SubmitBatch call.
type SubmittedBatch struct {
	RunID string
	Batch logic.Batch
}

// FakeTransport records calls for test assertions.
// It is safe for concurrent use.
type FakeTransport struct {
	mu sync.Mutex

	// Announced contains every announced device address.
	Announced []string

	// AcquireCalls counts AcquireRunID calls, successful or not.
	AcquireCalls int

	// RunIDs are handed out by AcquireRunID in order. When exhausted,
	// ids "run-1", "run-2", ... are generated.
	RunIDs []string

	// AcquireErrors are returned by the first len(AcquireErrors) calls to
	// AcquireRunID, one per call.
	AcquireErrors []error

	// Submitted contains every SubmitBatch call, including failed ones.
	Submitted []SubmittedBatch

	// Finalized contains every run id passed to FinalizeRun.
	Finalized []string

	// AnnounceError, SubmitError and FinalizeError, if set, are returned
	// by the corresponding call.
	AnnounceError error
	SubmitError   error
	FinalizeError error

	// Connected controls the return value of IsConnected.
	Connected bool

	generated int
}

// NewFakeTransport creates a connected FakeTransport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{Connected: true}
}

// Announce records the device address.
func (f *FakeTransport) Announce(ctx context.Context, deviceAddress string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.AnnounceError != nil {
		return f.AnnounceError
	}
	f.Announced = append(f.Announced, deviceAddress)
	return nil
}

// AcquireRunID returns the next scripted error or run id.
func (f *FakeTransport) AcquireRunID(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	call := f.AcquireCalls
	f.AcquireCalls++
	if call < len(f.AcquireErrors) && f.AcquireErrors[call] != nil {
		return "", f.AcquireErrors[call]
	}
	if len(f.RunIDs) > 0 {
		id := f.RunIDs[0]
		f.RunIDs = f.RunIDs[1:]
		return id, nil
	}
	f.generated++
	return fmt.Sprintf("run-%d", f.generated), nil
}

// SubmitBatch records the batch, then returns SubmitError.
func (f *FakeTransport) SubmitBatch(ctx context.Context, runID string, batch logic.Batch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Submitted = append(f.Submitted, SubmittedBatch{
		RunID: runID,
		Batch: append(logic.Batch(nil), batch...),
	})
	return f.SubmitError
}

// FinalizeRun records the run id, then returns FinalizeError.
func (f *FakeTransport) FinalizeRun(ctx context.Context, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Finalized = append(f.Finalized, runID)
	return f.FinalizeError
}

// IsConnected reports whether the fake transport is "connected".
func (f *FakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// SubmittedBatches returns a copy of the recorded SubmitBatch calls.
func (f *FakeTransport) SubmittedBatches() []SubmittedBatch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SubmittedBatch(nil), f.Submitted...)
}

// FinalizedRuns returns a copy of the recorded FinalizeRun calls.
func (f *FakeTransport) FinalizedRuns() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Finalized...)
}

// Acquires returns the number of AcquireRunID calls.
func (f *FakeTransport) Acquires() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.AcquireCalls
}
