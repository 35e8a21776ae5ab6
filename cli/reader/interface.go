package reader

import (
	"context"

	"github.com/pithecene-io/ordo/metrics"
	"github.com/pithecene-io/ordo/types"
)

// Reader abstracts read-only access to stored results.
// Implementations may read a Lode dataset or return fixed data in tests.
//
// Every method returns lode.ErrNoRecordsFound when nothing matches.
type Reader interface {
	// Steps returns the stored steps of a run, ordered by strategy then step.
	// An empty strategy matches every strategy.
	Steps(ctx context.Context, runID, strategy string) ([]*types.StepRecord, error)

	// Scores returns the stored strategy scores of a run.
	Scores(ctx context.Context, runID string) ([]types.StrategyScore, error)

	// Metrics returns the latest metrics snapshot of a run's strategy.
	Metrics(ctx context.Context, runID, strategy string) (metrics.Snapshot, error)
}
