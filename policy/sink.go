package policy

import (
	"context"
	"sync"

	"github.com/pithecene-io/ordo/types"
)

// Sink abstracts persistence for policies.
// Implementations may write to storage or stub for testing.
type Sink interface {
	// WriteSteps persists a batch of step records.
	// Must preserve ordering within the batch.
	WriteSteps(ctx context.Context, records []*types.StepRecord) error

	// Close releases any resources held by the sink.
	Close() error
}

// StubSink is a test sink that accepts writes without persisting.
type StubSink struct {
	mu sync.Mutex

	// Batches is the number of WriteSteps calls.
	Batches int64
	// Written stores all written records in write order.
	Written []*types.StepRecord
	// Closed indicates whether Close was called.
	Closed bool

	// ErrorOnWrite, if non-nil, is returned by WriteSteps.
	ErrorOnWrite error
}

// NewStubSink creates a new stub sink for testing.
func NewStubSink() *StubSink {
	return &StubSink{}
}

// WriteSteps records the batch without persisting.
func (s *StubSink) WriteSteps(_ context.Context, records []*types.StepRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ErrorOnWrite != nil {
		return s.ErrorOnWrite
	}
	s.Batches++
	s.Written = append(s.Written, records...)
	return nil
}

// Close marks the sink as closed.
func (s *StubSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Closed = true
	return nil
}

// SetError sets the error returned by subsequent writes.
func (s *StubSink) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ErrorOnWrite = err
}

// Stats returns a snapshot of sink statistics.
func (s *StubSink) Stats() StubSinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StubSinkStats{
		RecordsWritten: int64(len(s.Written)),
		Batches:        s.Batches,
		Closed:         s.Closed,
	}
}

// Steps returns the written step indices in write order.
func (s *StubSink) Steps() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.Written))
	for i, r := range s.Written {
		out[i] = r.Step
	}
	return out
}

// StubSinkStats is a snapshot of StubSink statistics.
type StubSinkStats struct {
	RecordsWritten int64
	Batches        int64
	Closed         bool
}
