package policy

import (
	"context"

	"github.com/pithecene-io/ordo/types"
)

// NoopPolicy accepts every record and persists none.
// Used when no result store is configured; local output files are unaffected.
type NoopPolicy struct {
	stats statsRecorder
}

// NewNoopPolicy creates a new no-op policy.
func NewNoopPolicy() *NoopPolicy {
	return &NoopPolicy{}
}

// IngestStep counts the record as dropped.
func (p *NoopPolicy) IngestStep(_ context.Context, _ *types.StepRecord) error {
	p.stats.incTotal()
	p.stats.incDropped()
	return nil
}

// Flush is a no-op.
func (p *NoopPolicy) Flush(_ context.Context) error {
	p.stats.incFlush()
	return nil
}

// Close is a no-op.
func (p *NoopPolicy) Close() error {
	return nil
}

// Stats returns the policy statistics.
func (p *NoopPolicy) Stats() Stats {
	return p.stats.snapshot()
}
