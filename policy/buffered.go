package policy

import (
	"context"
	"errors"
	"sync"

	"github.com/pithecene-io/ordo/log"
	"github.com/pithecene-io/ordo/types"
)

// BufferedConfig configures a BufferedPolicy.
type BufferedConfig struct {
	// MaxBufferRecords is the number of records that triggers a flush.
	MaxBufferRecords int

	// Logger is an optional logger for flush failures.
	// If nil, no logging is emitted.
	Logger *log.Logger
}

// DefaultBufferedConfig returns sensible defaults for buffered policy.
func DefaultBufferedConfig() BufferedConfig {
	return BufferedConfig{MaxBufferRecords: 16}
}

// ErrInvalidConfig is returned when BufferedConfig is invalid.
var ErrInvalidConfig = errors.New("invalid config: MaxBufferRecords must be positive")

// BufferedPolicy batches step records and writes them when the buffer fills
// or on Flush.
//
// Flush is at-least-once: on a sink error the whole buffer is kept and
// written again by the next flush, so a record may be written twice but is
// never lost.
type BufferedPolicy struct {
	sink   Sink
	config BufferedConfig
	logger *log.Logger

	mu     sync.Mutex // serializes buffer state and sink writes
	buffer []*types.StepRecord
	stats  statsRecorder
}

// NewBufferedPolicy creates a new buffered policy.
// Returns error if config is invalid.
func NewBufferedPolicy(sink Sink, config BufferedConfig) (*BufferedPolicy, error) {
	if config.MaxBufferRecords <= 0 {
		return nil, ErrInvalidConfig
	}
	return &BufferedPolicy{
		sink:   sink,
		config: config,
		logger: config.Logger,
		buffer: make([]*types.StepRecord, 0, config.MaxBufferRecords),
	}, nil
}

// IngestStep buffers the record and flushes once the buffer is full.
func (p *BufferedPolicy) IngestStep(ctx context.Context, rec *types.StepRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stats.incTotalLocked()
	p.buffer = append(p.buffer, rec)
	if len(p.buffer) < p.config.MaxBufferRecords {
		return nil
	}
	return p.flushLocked(ctx)
}

// Flush writes all buffered records to the sink.
func (p *BufferedPolicy) Flush(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.flushLocked(ctx)
}

func (p *BufferedPolicy) flushLocked(ctx context.Context) error {
	p.stats.incFlushLocked()
	if len(p.buffer) == 0 {
		return nil
	}

	if err := p.sink.WriteSteps(ctx, p.buffer); err != nil {
		p.stats.incErrorsLocked()
		if p.logger != nil {
			p.logger.Warn("step flush failed, buffer retained", map[string]any{
				"buffered": len(p.buffer),
				"error":    err.Error(),
			})
		}
		return err
	}

	p.stats.incPersistedLocked(int64(len(p.buffer)))
	p.buffer = make([]*types.StepRecord, 0, p.config.MaxBufferRecords)
	return nil
}

// Close closes the underlying sink. Unflushed records are discarded;
// callers flush first.
func (p *BufferedPolicy) Close() error {
	return p.sink.Close()
}

// Stats returns an atomic snapshot of policy statistics.
func (p *BufferedPolicy) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats.snapshotLocked(int64(len(p.buffer)))
}
