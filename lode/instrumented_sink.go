package lode

import (
	"context"

	"github.com/pithecene-io/ordo/metrics"
	"github.com/pithecene-io/ordo/policy"
	"github.com/pithecene-io/ordo/types"
)

// InstrumentedSink wraps a policy.Sink and counts write calls on a metrics
// collector: one lode_write_success or lode_write_failure per WriteSteps.
type InstrumentedSink struct {
	inner     policy.Sink
	collector *metrics.Collector
}

// NewInstrumentedSink wraps a sink with metrics instrumentation.
func NewInstrumentedSink(inner policy.Sink, collector *metrics.Collector) *InstrumentedSink {
	return &InstrumentedSink{inner: inner, collector: collector}
}

// WriteSteps delegates to the inner sink and records success or failure.
func (s *InstrumentedSink) WriteSteps(ctx context.Context, records []*types.StepRecord) error {
	err := s.inner.WriteSteps(ctx, records)
	if err != nil {
		s.collector.IncLodeWriteFailure()
	} else {
		s.collector.IncLodeWriteSuccess()
	}
	return err
}

// Close delegates to the inner sink.
func (s *InstrumentedSink) Close() error {
	return s.inner.Close()
}

// Verify InstrumentedSink implements policy.Sink.
var _ policy.Sink = (*InstrumentedSink)(nil)
