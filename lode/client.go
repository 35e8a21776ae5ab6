package lode

import (
	"context"
	"sync"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/ordo/metrics"
	"github.com/pithecene-io/ordo/types"
)

// LodeClient is a Lode-backed implementation of Client.
// Uses Lode's HiveLayout with PartitionKeys.
type LodeClient struct {
	dataset lode.Dataset
	config  Config

	mu sync.Mutex // serializes dataset writes

	storeFactory lode.StoreFactory
	storeOnce    sync.Once
	store        lode.Store
	storeErr     error
}

// NewLodeClient creates a new Lode client with filesystem storage.
// The root parameter is the base directory for Hive-partitioned storage.
func NewLodeClient(cfg Config, root string) (*LodeClient, error) {
	return NewLodeClientWithFactory(cfg, lode.NewFSFactory(root))
}

// NewLodeClientWithFactory creates a new Lode client with a custom store factory.
// Use lode.NewMemoryFactory() for testing.
func NewLodeClientWithFactory(cfg Config, factory lode.StoreFactory) (*LodeClient, error) {
	ds, err := newDataset(cfg.Dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, cfg.Dataset)
	}
	return newClient(ds, cfg, factory), nil
}

func newClient(ds lode.Dataset, cfg Config, factory lode.StoreFactory) *LodeClient {
	return &LodeClient{
		dataset:      ds,
		config:       cfg,
		storeFactory: factory,
	}
}

func newDataset(id string, factory lode.StoreFactory) (lode.Dataset, error) {
	if id == "" {
		id = DefaultDataset
	}
	return lode.NewDataset(
		lode.DatasetID(id),
		factory,
		lode.WithHiveLayout(PartitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
}

// Config returns the client's partition configuration.
func (c *LodeClient) Config() Config {
	return c.config
}

func (c *LodeClient) write(ctx context.Context, records []any) error {
	if len(records) == 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.dataset.Write(ctx, records, lode.Metadata{}); err != nil {
		return WrapWriteError(err, c.config.Dataset)
	}
	return nil
}

// WriteSteps writes a batch of step records in batch order.
func (c *LodeClient) WriteSteps(ctx context.Context, strategy string, records []*types.StepRecord) error {
	rows := make([]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, toStepRecordMap(rec, strategy, c.config))
	}
	return c.write(ctx, rows)
}

// WriteOrdering writes one candidate or consensus ordering.
func (c *LodeClient) WriteOrdering(ctx context.Context, rec OrderingRecord) error {
	return c.write(ctx, []any{toOrderingRecordMap(rec, c.config)})
}

// WriteScores writes every strategy score as one snapshot.
func (c *LodeClient) WriteScores(ctx context.Context, scores []types.StrategyScore) error {
	rows := make([]any, 0, len(scores))
	for _, s := range scores {
		rows = append(rows, toScoreRecordMap(s, c.config))
	}
	return c.write(ctx, rows)
}

// WriteMetrics writes a metrics snapshot for one strategy.
func (c *LodeClient) WriteMetrics(ctx context.Context, strategy string, snap metrics.Snapshot) error {
	return c.write(ctx, []any{toMetricsRecordMap(snap, strategy, c.config)})
}

// Close releases client resources.
func (c *LodeClient) Close() error {
	// Dataset doesn't require explicit close in current Lode API
	return nil
}

// Verify LodeClient implements Client.
var _ Client = (*LodeClient)(nil)
