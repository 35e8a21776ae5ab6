package reader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	lodelib "github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/ordo/lode"
	"github.com/pithecene-io/ordo/metrics"
	"github.com/pithecene-io/ordo/runtime"
	"github.com/pithecene-io/ordo/score"
	"github.com/pithecene-io/ordo/types"
)

// ErrNoRuns is returned when a run directory holds no strategy results.
var ErrNoRuns = errors.New("no strategy results found")

// LoadRunDir reads every strategy directory below runDir that holds a
// coverage progress file, in name order.
func LoadRunDir(runDir string) ([]*types.CoverageRun, error) {
	entries, err := os.ReadDir(runDir)
	if err != nil {
		return nil, fmt.Errorf("read run directory: %w", err)
	}

	var runs []*types.CoverageRun
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(runDir, e.Name())
		if _, err := os.Stat(filepath.Join(dir, runtime.ProgressFile)); err != nil {
			continue
		}
		run, err := runtime.ReadProgress(dir)
		if err != nil {
			return nil, fmt.Errorf("strategy %s: %w", e.Name(), err)
		}
		runs = append(runs, run)
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("%s: %w", runDir, ErrNoRuns)
	}
	return runs, nil
}

// NewLeaderboard builds the score response from ranked strategy scores and
// unit results.
func NewLeaderboard(runDir string, ranked []types.StrategyScore, units []score.UnitResult, names score.DisplayNames) *Leaderboard {
	lb := &Leaderboard{RunDir: runDir, Scores: make([]ScoreRow, 0, len(ranked))}
	for i, s := range ranked {
		lb.Scores = append(lb.Scores, ScoreRow{
			Rank:        i + 1,
			Strategy:    s.Strategy,
			Name:        names.Name(s.Strategy),
			AUC:         s.Value,
			Steps:       s.Steps,
			FailedSteps: s.FailedSteps,
			NoData:      s.NoData,
		})
	}
	if best, ok := score.Best(ranked); ok {
		lb.Best = best.Strategy
	}
	for _, u := range units {
		lb.Units = append(lb.Units, UnitRow{
			Strategy: u.Strategy,
			Name:     names.Name(u.Strategy),
			Unit:     u.Unit,
			AUC:      u.Value,
			Steps:    u.Steps,
			NoData:   u.NoData,
		})
	}
	return lb
}

// RankUnits sets the unit ranking of lb from the scored units.
func (lb *Leaderboard) RankUnits(ranks []score.UnitRank, units int, names score.DisplayNames) {
	lb.UnitRanking = make([]UnitRankRow, 0, len(ranks))
	for i, r := range ranks {
		lb.UnitRanking = append(lb.UnitRanking, UnitRankRow{
			Rank:     i + 1,
			Strategy: r.Strategy,
			Name:     names.Name(r.Strategy),
			AUC:      r.Value,
			Covered:  r.Covered,
			Units:    units,
			NoData:   r.NoData,
		})
	}
}

// Inspect assembles the stored view of one run. Steps are required;
// scores and metrics are included when stored.
func Inspect(ctx context.Context, r Reader, runID, strategy string) (*InspectResponse, error) {
	steps, err := r.Steps(ctx, runID, strategy)
	if err != nil {
		return nil, fmt.Errorf("query steps of run %s: %w", runID, err)
	}

	resp := &InspectResponse{RunID: runID, Strategy: strategy, Steps: make([]StepView, 0, len(steps))}
	for _, rec := range steps {
		v := StepView{
			Strategy: rec.Strategy,
			Step:     rec.Step,
			Status:   string(rec.Status),
			Attempts: rec.Attempts,
			Tests:    len(rec.Tests),
			Reason:   rec.Reason,
		}
		if rec.Result != nil {
			v.CoveragePercent = rec.Result.CoveragePercent
			v.CoveredLines = rec.Result.CoveredLines
			v.TotalLines = rec.Result.TotalLines
		}
		if rec.Status == types.StepSucceeded {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
		resp.Steps = append(resp.Steps, v)
	}

	if strategy == "" {
		return resp, nil
	}

	scores, err := r.Scores(ctx, runID)
	switch {
	case err == nil:
		i := slices.IndexFunc(scores, func(s types.StrategyScore) bool { return s.Strategy == strategy })
		if i >= 0 && !scores[i].NoData {
			v := scores[i].Value
			resp.AUC = &v
		}
	case !errors.Is(err, lode.ErrNoRecordsFound):
		return nil, fmt.Errorf("query scores of run %s: %w", runID, err)
	}

	snap, err := r.Metrics(ctx, runID, strategy)
	switch {
	case err == nil:
		resp.Metrics = &snap
	case !errors.Is(err, lode.ErrNoRecordsFound):
		return nil, fmt.Errorf("query metrics of run %s: %w", runID, err)
	}
	return resp, nil
}

// LodeReader reads a Lode dataset.
type LodeReader struct {
	ds lodelib.Dataset
}

// NewLodeReader creates a reader over ds.
func NewLodeReader(ds lodelib.Dataset) *LodeReader {
	return &LodeReader{ds: ds}
}

// Steps implements Reader.
func (r *LodeReader) Steps(ctx context.Context, runID, strategy string) ([]*types.StepRecord, error) {
	return lode.QuerySteps(ctx, r.ds, lode.Filter{RunID: runID, Strategy: strategy})
}

// Scores implements Reader.
func (r *LodeReader) Scores(ctx context.Context, runID string) ([]types.StrategyScore, error) {
	return lode.QueryScores(ctx, r.ds, lode.Filter{RunID: runID})
}

// Metrics implements Reader.
func (r *LodeReader) Metrics(ctx context.Context, runID, strategy string) (metrics.Snapshot, error) {
	return lode.QueryLatestMetrics(ctx, r.ds, lode.Filter{RunID: runID, Strategy: strategy})
}

var _ Reader = (*LodeReader)(nil)
