package reader

import (
	"context"

	"github.com/pithecene-io/ordo/lode"
	"github.com/pithecene-io/ordo/metrics"
	"github.com/pithecene-io/ordo/types"
)

// StubReader serves fixed records for testing. Records are matched by run
// ID and, where given, strategy.
type StubReader struct {
	StepRecords []*types.StepRecord
	// ScoreRecords are keyed by run ID.
	ScoreRecords map[string][]types.StrategyScore
	// MetricsRecords are keyed by run ID then strategy.
	MetricsRecords map[string]map[string]metrics.Snapshot
	// Err, if non-nil, is returned by every method.
	Err error
}

// NewStubReader creates an empty stub reader.
func NewStubReader() *StubReader {
	return &StubReader{
		ScoreRecords:   make(map[string][]types.StrategyScore),
		MetricsRecords: make(map[string]map[string]metrics.Snapshot),
	}
}

// Steps implements Reader.
func (r *StubReader) Steps(_ context.Context, runID, strategy string) ([]*types.StepRecord, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	var out []*types.StepRecord
	for _, rec := range r.StepRecords {
		if rec.RunID == runID && (strategy == "" || rec.Strategy == strategy) {
			out = append(out, rec)
		}
	}
	if len(out) == 0 {
		return nil, lode.ErrNoRecordsFound
	}
	return out, nil
}

// Scores implements Reader.
func (r *StubReader) Scores(_ context.Context, runID string) ([]types.StrategyScore, error) {
	if r.Err != nil {
		return nil, r.Err
	}
	scores, ok := r.ScoreRecords[runID]
	if !ok {
		return nil, lode.ErrNoRecordsFound
	}
	return scores, nil
}

// Metrics implements Reader.
func (r *StubReader) Metrics(_ context.Context, runID, strategy string) (metrics.Snapshot, error) {
	if r.Err != nil {
		return metrics.Snapshot{}, r.Err
	}
	snap, ok := r.MetricsRecords[runID][strategy]
	if !ok {
		return metrics.Snapshot{}, lode.ErrNoRecordsFound
	}
	return snap, nil
}

var _ Reader = (*StubReader)(nil)
