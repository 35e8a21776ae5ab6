package lode

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/ordo/metrics"
	"github.com/pithecene-io/ordo/types"
)

// ErrNoRecordsFound is returned when a query matches no records.
var ErrNoRecordsFound = errors.New("no matching records found")

// NewReadDataset creates a Lode Dataset for reading.
// Uses the same codec and layout as the write path.
func NewReadDataset(dataset string, factory lode.StoreFactory) (lode.Dataset, error) {
	ds, err := newDataset(dataset, factory)
	if err != nil {
		return nil, WrapInitError(err, dataset)
	}
	return ds, nil
}

// NewReadDatasetFS creates a read Dataset with filesystem storage.
func NewReadDatasetFS(dataset, rootPath string) (lode.Dataset, error) {
	return NewReadDataset(dataset, lode.NewFSFactory(rootPath))
}

// NewReadDatasetS3 creates a read Dataset with S3 storage.
func NewReadDatasetS3(ctx context.Context, dataset string, s3cfg S3Config) (lode.Dataset, error) {
	factory, err := s3StoreFactory(ctx, s3cfg)
	if err != nil {
		return nil, err
	}
	return NewReadDataset(dataset, factory)
}

// Filter selects records by partition value. Empty fields match anything.
type Filter struct {
	RunID    string
	Strategy string
	Project  string
}

func (f Filter) matchesSnapshot(snap *lode.DatasetSnapshot, kind string) bool {
	return snapshotMatchesFilter(snap, "record_kind", kind) &&
		snapshotMatchesFilter(snap, "run_id", f.RunID) &&
		snapshotMatchesFilter(snap, "strategy", f.Strategy) &&
		snapshotMatchesFilter(snap, "project", f.Project)
}

// matchesRecord applies the filter to record fields. Manifest path
// filtering is a coarse pre-filter; record fields are authoritative.
func (f Filter) matchesRecord(record map[string]any, kind string) bool {
	if toString(record["record_kind"]) != kind {
		return false
	}
	if f.RunID != "" && toString(record["run_id"]) != f.RunID {
		return false
	}
	if f.Strategy != "" && toString(record["strategy"]) != f.Strategy {
		return false
	}
	if f.Project != "" && toString(record["project"]) != f.Project {
		return false
	}
	return true
}

// scan visits every record of kind matching f, oldest snapshot first.
func scan(ctx context.Context, ds lode.Dataset, f Filter, kind string, visit func(map[string]any) error) error {
	snapshots, err := ds.Snapshots(ctx)
	if err != nil {
		return WrapReadError(err, string(ds.ID())+"/snapshots")
	}

	for _, snap := range snapshots {
		if !f.matchesSnapshot(snap, kind) {
			continue
		}
		data, err := ds.Read(ctx, snap.ID)
		if err != nil {
			return WrapReadError(err, fmt.Sprintf("%s/snapshot/%s", ds.ID(), snap.ID))
		}
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || !f.matchesRecord(record, kind) {
				continue
			}
			if err := visit(record); err != nil {
				return err
			}
		}
	}
	return nil
}

// QuerySteps returns stored step records matching f, ordered by strategy
// then step. A step written more than once keeps its latest record.
func QuerySteps(ctx context.Context, ds lode.Dataset, f Filter) ([]*types.StepRecord, error) {
	type key struct {
		strategy string
		step     int
	}
	latest := make(map[key]*types.StepRecord)

	err := scan(ctx, ds, f, RecordKindStep, func(record map[string]any) error {
		var row StepRow
		if err := decodeRow(record, &row); err != nil {
			return err
		}
		rec := row.StepRecord()
		latest[key{rec.Strategy, rec.Step}] = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(latest) == 0 {
		return nil, ErrNoRecordsFound
	}

	out := make([]*types.StepRecord, 0, len(latest))
	for _, rec := range latest {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Strategy != out[j].Strategy {
			return out[i].Strategy < out[j].Strategy
		}
		return out[i].Step < out[j].Step
	})
	return out, nil
}

// QueryScores returns the latest stored score per strategy matching f,
// ordered by strategy.
func QueryScores(ctx context.Context, ds lode.Dataset, f Filter) ([]types.StrategyScore, error) {
	latest := make(map[string]types.StrategyScore)
	err := scan(ctx, ds, f, RecordKindScore, func(record map[string]any) error {
		var s types.StrategyScore
		if err := decodeRow(record, &s); err != nil {
			return err
		}
		latest[s.Strategy] = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(latest) == 0 {
		return nil, ErrNoRecordsFound
	}

	out := make([]types.StrategyScore, 0, len(latest))
	for _, s := range latest {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Strategy < out[j].Strategy })
	return out, nil
}

// QueryLatestMetrics returns the most recent metrics snapshot matching f.
func QueryLatestMetrics(ctx context.Context, ds lode.Dataset, f Filter) (metrics.Snapshot, error) {
	var (
		snap  metrics.Snapshot
		found bool
	)
	err := scan(ctx, ds, f, RecordKindMetrics, func(record map[string]any) error {
		var s metrics.Snapshot
		if err := decodeRow(record, &s); err != nil {
			return err
		}
		snap, found = s, true
		return nil
	})
	if err != nil {
		return metrics.Snapshot{}, err
	}
	if !found {
		return metrics.Snapshot{}, ErrNoRecordsFound
	}
	return snap, nil
}

// snapshotMatchesFilter checks if a snapshot's file paths match
// the given partition key=value filter.
func snapshotMatchesFilter(snap *lode.DatasetSnapshot, key, value string) bool {
	if value == "" {
		return true
	}
	for _, f := range snap.Manifest.Files {
		if matchesPartitionValue(f.Path, key, value) {
			return true
		}
	}
	return false
}

// matchesPartitionValue checks if a Hive-partitioned path contains an exact
// key=value segment. This avoids substring false positives (run_id=run-1
// matching run_id=run-10).
func matchesPartitionValue(path, key, value string) bool {
	segment := key + "=" + value
	for _, part := range strings.Split(path, "/") {
		if part == segment {
			return true
		}
	}
	return false
}

// toString converts a value to string, returning empty string for nil/non-string.
func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
