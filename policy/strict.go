package policy

import (
	"context"

	"github.com/pithecene-io/ordo/types"
)

// StrictPolicy writes every step record synchronously as it resolves.
// The harness blocks on sink latency; sink errors surface on the step.
type StrictPolicy struct {
	sink  Sink
	stats statsRecorder
}

// NewStrictPolicy creates a new strict policy writing to the given sink.
func NewStrictPolicy(sink Sink) *StrictPolicy {
	return &StrictPolicy{sink: sink}
}

// IngestStep writes the record immediately (batch of 1).
func (p *StrictPolicy) IngestStep(ctx context.Context, rec *types.StepRecord) error {
	p.stats.incTotal()
	if err := p.sink.WriteSteps(ctx, []*types.StepRecord{rec}); err != nil {
		p.stats.incErrors()
		return err
	}
	p.stats.incPersisted(1)
	return nil
}

// Flush is a no-op for strict policy (nothing is buffered).
func (p *StrictPolicy) Flush(_ context.Context) error {
	p.stats.incFlush()
	return nil
}

// Close closes the underlying sink.
func (p *StrictPolicy) Close() error {
	return p.sink.Close()
}

// Stats returns policy statistics.
func (p *StrictPolicy) Stats() Stats {
	return p.stats.snapshot()
}
