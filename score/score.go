// Package score ranks coverage runs by area under their coverage curve.
package score

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/pithecene-io/ordo/types"
)

// ErrNoData is returned when a run has no successful step to score.
// A run without data is never scored as 0.
var ErrNoData = errors.New("no coverage data")

// MissingDataError reports which run (and unit) had nothing to score.
type MissingDataError struct {
	Strategy string
	// Unit is set when scoring a single unit.
	Unit string
	// FailedSteps is the number of steps that failed.
	FailedSteps int
}

func (e *MissingDataError) Error() string {
	if e.Unit != "" {
		return fmt.Sprintf("strategy %s: unit %s: %v", e.Strategy, e.Unit, ErrNoData)
	}
	return fmt.Sprintf("strategy %s: %v (%d failed steps)", e.Strategy, ErrNoData, e.FailedSteps)
}

// Is matches ErrNoData.
func (e *MissingDataError) Is(target error) bool {
	return target == ErrNoData
}

// Score computes the AUC of run: the mean coverage percent over the steps
// with a result. Failed steps are excluded from the mean.
func Score(run *types.CoverageRun) (types.StrategyScore, error) {
	s := types.StrategyScore{
		Strategy:    run.Strategy,
		Steps:       len(run.Steps),
		FailedSteps: len(run.Failed),
	}
	if len(run.Steps) == 0 {
		s.NoData = true
		return s, &MissingDataError{Strategy: run.Strategy, FailedSteps: len(run.Failed)}
	}

	var sum float64
	for _, step := range run.StepIndices() {
		sum += run.Steps[step].CoveragePercent
	}
	s.Value = sum / float64(len(run.Steps))
	return s, nil
}

// Curve returns the coverage percent of each step in index order.
// Failed steps are omitted.
func Curve(run *types.CoverageRun) []float64 {
	steps := run.StepIndices()
	out := make([]float64, len(steps))
	for i, step := range steps {
		out[i] = run.Steps[step].CoveragePercent
	}
	return out
}

// ScoreAll scores every run, labels them with names and ranks them.
// Runs without data are kept as NoData entries.
func ScoreAll(runs []*types.CoverageRun, names DisplayNames) []types.StrategyScore {
	scores := make([]types.StrategyScore, 0, len(runs))
	for _, run := range runs {
		s, _ := Score(run)
		s.DisplayName = names.Name(run.Strategy)
		scores = append(scores, s)
	}
	return Rank(scores)
}

// Rank sorts scores best first. Scores without data sort last; ties are
// broken by strategy name.
func Rank(scores []types.StrategyScore) []types.StrategyScore {
	out := slices.Clone(scores)
	slices.SortStableFunc(out, func(a, b types.StrategyScore) int {
		if a.NoData != b.NoData {
			if a.NoData {
				return 1
			}
			return -1
		}
		if c := cmp.Compare(b.Value, a.Value); c != 0 {
			return c
		}
		return strings.Compare(a.Strategy, b.Strategy)
	})
	return out
}

// Best returns the highest ranked score with data.
func Best(scores []types.StrategyScore) (types.StrategyScore, bool) {
	ranked := Rank(scores)
	if len(ranked) == 0 || ranked[0].NoData {
		return types.StrategyScore{}, false
	}
	return ranked[0], true
}

// DisplayNames maps strategy names to human-readable labels.
type DisplayNames map[string]string

// DefaultDisplayNames labels the standard strategies.
func DefaultDisplayNames() DisplayNames {
	return DisplayNames{
		"strategy1": "TF-IDF Based",
		"strategy2": "Class Diversity",
		"strategy3": "Cross-Class Alternation",
		"strategy4": "Edge-Normal Alternation",
		"strategy5": "Regression Spread",
		"combined":  "Combined Strategy",
	}
}

// Name returns the label for strategy, or strategy itself.
func (n DisplayNames) Name(strategy string) string {
	if name, ok := n[strategy]; ok && name != "" {
		return name
	}
	return strategy
}

// Merge returns a copy of n overlaid with other.
func (n DisplayNames) Merge(other map[string]string) DisplayNames {
	out := make(DisplayNames, len(n)+len(other))
	for k, v := range n {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}
