// Package policy defines how resolved step records reach the result store.
//
// Step records are never dropped. A policy only decides when records are
// written: immediately (strict), in batches (buffered), or not at all (noop,
// used when no store is configured).
package policy

import (
	"context"
	"fmt"
	"sync"

	"github.com/pithecene-io/ordo/types"
)

// Policy names accepted by New.
const (
	NameStrict   = "strict"
	NameBuffered = "buffered"
	NameNoop     = "noop"
)

// Policy defines the persistence policy interface.
// Sink failures are returned to the harness, which logs them and fails the
// strategy's persistence without touching local coverage outputs.
type Policy interface {
	// IngestStep handles one resolved step.
	IngestStep(ctx context.Context, rec *types.StepRecord) error

	// Flush writes any buffered records.
	// Called after the last step of a strategy and on cancellation.
	Flush(ctx context.Context) error

	// Close releases the underlying sink.
	Close() error

	// Stats returns a consistent snapshot of policy counters.
	Stats() Stats
}

// Stats represents policy observability counters.
type Stats struct {
	// TotalRecords is the number of step records received.
	TotalRecords int64
	// RecordsPersisted is the number of records written to the sink.
	RecordsPersisted int64
	// RecordsDropped is the number of records intentionally not written.
	RecordsDropped int64
	// BufferSize is the number of records currently buffered.
	BufferSize int64
	// FlushCount is the number of flush operations.
	FlushCount int64
	// Errors is the count of sink errors.
	Errors int64
}

// Config configures a policy built by New.
type Config struct {
	// Name selects the policy: strict, buffered or noop. Empty means strict.
	Name string
	// MaxBufferRecords bounds the buffered policy. Zero uses the default.
	MaxBufferRecords int
}

// New builds the named policy over sink.
func New(cfg Config, sink Sink) (Policy, error) {
	switch cfg.Name {
	case "", NameStrict:
		return NewStrictPolicy(sink), nil
	case NameBuffered:
		bc := DefaultBufferedConfig()
		if cfg.MaxBufferRecords > 0 {
			bc.MaxBufferRecords = cfg.MaxBufferRecords
		}
		return NewBufferedPolicy(sink, bc)
	case NameNoop:
		return NewNoopPolicy(), nil
	default:
		return nil, fmt.Errorf("invalid policy %q (must be strict, buffered or noop)", cfg.Name)
	}
}

// statsRecorder is an internal helper for thread-safe stats management.
//
// Lock discipline:
//   - StrictPolicy and NoopPolicy use the locking methods
//   - BufferedPolicy uses the Locked methods only while holding its own mu
type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func (r *statsRecorder) incTotal() {
	r.mu.Lock()
	r.stats.TotalRecords++
	r.mu.Unlock()
}

func (r *statsRecorder) incPersisted(n int64) {
	r.mu.Lock()
	r.stats.RecordsPersisted += n
	r.mu.Unlock()
}

func (r *statsRecorder) incDropped() {
	r.mu.Lock()
	r.stats.RecordsDropped++
	r.mu.Unlock()
}

func (r *statsRecorder) incErrors() {
	r.mu.Lock()
	r.stats.Errors++
	r.mu.Unlock()
}

func (r *statsRecorder) incFlush() {
	r.mu.Lock()
	r.stats.FlushCount++
	r.mu.Unlock()
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// --- Locked methods for BufferedPolicy ---
// Caller must hold BufferedPolicy.mu.

func (r *statsRecorder) incTotalLocked() {
	r.stats.TotalRecords++
}

func (r *statsRecorder) incPersistedLocked(n int64) {
	r.stats.RecordsPersisted += n
}

func (r *statsRecorder) incErrorsLocked() {
	r.stats.Errors++
}

func (r *statsRecorder) incFlushLocked() {
	r.stats.FlushCount++
}

func (r *statsRecorder) snapshotLocked(bufferSize int64) Stats {
	s := r.stats
	s.BufferSize = bufferSize
	return s
}
