// Package lode persists run results to a Lode dataset.
//
// Records are Hive-partitioned by project/strategy/day/run_id/record_kind.
// Step records arrive through the policy.Sink implemented here; orderings,
// scores and metrics are written directly by the CLI after a run.
package lode

import (
	"context"
	"sync"
	"time"

	"github.com/pithecene-io/ordo/metrics"
	"github.com/pithecene-io/ordo/policy"
	"github.com/pithecene-io/ordo/types"
)

// DefaultDataset is the dataset ID used when none is configured.
const DefaultDataset = "ordo"

// PartitionKeys is the Hive layout shared by the write and read paths.
var PartitionKeys = []string{"project", "strategy", "day", "run_id", "record_kind"}

// DeriveDay computes the partition day from run start time.
// Format: YYYY-MM-DD in UTC.
func DeriveDay(startTime time.Time) string {
	return startTime.UTC().Format("2006-01-02")
}

// Config holds result-store configuration for one run.
type Config struct {
	// Dataset is the Lode dataset ID.
	Dataset string
	// Project is the partition key naming the project under test.
	Project string
	// Day is the partition key derived from run start time (YYYY-MM-DD UTC).
	Day string
	// RunID is the partition key for the run identifier.
	RunID string
}

// Client abstracts the result store.
// Real implementations write to Lode; stubs are used for testing.
type Client interface {
	// WriteSteps writes a batch of resolved steps for one strategy.
	WriteSteps(ctx context.Context, strategy string, records []*types.StepRecord) error

	// WriteOrdering writes the outcome of validating one candidate.
	WriteOrdering(ctx context.Context, rec OrderingRecord) error

	// WriteScores writes the scores of every strategy in the run.
	WriteScores(ctx context.Context, scores []types.StrategyScore) error

	// WriteMetrics writes a metrics snapshot for one strategy.
	WriteMetrics(ctx context.Context, strategy string, snap metrics.Snapshot) error

	// Close releases client resources.
	Close() error
}

// Sink binds a Client to one strategy and implements policy.Sink.
type Sink struct {
	client   Client
	strategy string
}

// NewSink creates a sink writing step records for strategy.
func NewSink(client Client, strategy string) *Sink {
	return &Sink{client: client, strategy: strategy}
}

// WriteSteps implements policy.Sink.
func (s *Sink) WriteSteps(ctx context.Context, records []*types.StepRecord) error {
	return s.client.WriteSteps(ctx, s.strategy, records)
}

// Close implements policy.Sink. The client is shared across strategies and
// is closed by its owner.
func (s *Sink) Close() error {
	return nil
}

// Verify Sink implements policy.Sink.
var _ policy.Sink = (*Sink)(nil)

// StubClient is a test client that accepts writes without persisting.
// Safe for concurrent use.
type StubClient struct {
	mu sync.Mutex

	Steps     map[string][]*types.StepRecord
	Orderings []OrderingRecord
	Scores    []types.StrategyScore
	Metrics   map[string]metrics.Snapshot
	Closed    bool

	// Err, if non-nil, is returned by every write.
	Err error
}

// NewStubClient creates a new stub client.
func NewStubClient() *StubClient {
	return &StubClient{
		Steps:   make(map[string][]*types.StepRecord),
		Metrics: make(map[string]metrics.Snapshot),
	}
}

// WriteSteps implements Client.
func (c *StubClient) WriteSteps(_ context.Context, strategy string, records []*types.StepRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.Steps[strategy] = append(c.Steps[strategy], records...)
	return nil
}

// WriteOrdering implements Client.
func (c *StubClient) WriteOrdering(_ context.Context, rec OrderingRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.Orderings = append(c.Orderings, rec)
	return nil
}

// WriteScores implements Client.
func (c *StubClient) WriteScores(_ context.Context, scores []types.StrategyScore) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.Scores = append(c.Scores, scores...)
	return nil
}

// WriteMetrics implements Client.
func (c *StubClient) WriteMetrics(_ context.Context, strategy string, snap metrics.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return c.Err
	}
	c.Metrics[strategy] = snap
	return nil
}

// Close implements Client.
func (c *StubClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Closed = true
	return nil
}

// Verify StubClient implements Client.
var _ Client = (*StubClient)(nil)
