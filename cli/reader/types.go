// Package reader provides the read-side data access layer for the ordo CLI.
//
// Read-only commands (score, inspect) and the TUI consume the response types
// defined here. Nothing in this package writes.
package reader

import "github.com/pithecene-io/ordo/metrics"

// ScoreRow is one ranked strategy.
type ScoreRow struct {
	Rank        int     `json:"rank"`
	Strategy    string  `json:"strategy"`
	Name        string  `json:"name"`
	AUC         float64 `json:"auc"`
	Steps       int     `json:"steps"`
	FailedSteps int     `json:"failed_steps"`
	NoData      bool    `json:"no_data"`
}

// UnitRow is the AUC of one unit under one strategy.
type UnitRow struct {
	Strategy string  `json:"strategy"`
	Name     string  `json:"name"`
	Unit     string  `json:"unit"`
	AUC      float64 `json:"auc"`
	Steps    int     `json:"steps"`
	NoData   bool    `json:"no_data"`
}

// UnitRankRow is one strategy ranked by mean unit AUC.
type UnitRankRow struct {
	Rank     int     `json:"rank"`
	Strategy string  `json:"strategy"`
	Name     string  `json:"name"`
	AUC      float64 `json:"auc"`
	Covered  int     `json:"covered"`
	Units    int     `json:"units"`
	NoData   bool    `json:"no_data"`
}

// Leaderboard is the response of the score command.
type Leaderboard struct {
	RunDir string     `json:"run_dir"`
	Best   string     `json:"best,omitempty"`
	Scores []ScoreRow `json:"scores"`
	Units  []UnitRow  `json:"units,omitempty"`
	// UnitRanking ranks strategies by mean AUC over the scored units.
	UnitRanking []UnitRankRow `json:"unit_ranking,omitempty"`
}

// StepView is one stored step as shown by inspect.
type StepView struct {
	Strategy        string  `json:"strategy"`
	Step            int     `json:"step"`
	Status          string  `json:"status"`
	Attempts        int     `json:"attempts"`
	Tests           int     `json:"tests"`
	CoveragePercent float64 `json:"coverage_percent"`
	CoveredLines    int64   `json:"covered_lines"`
	TotalLines      int64   `json:"total_lines"`
	Reason          string  `json:"reason,omitempty"`
}

// InspectResponse is the response of the inspect command.
type InspectResponse struct {
	RunID     string     `json:"run_id"`
	Strategy  string     `json:"strategy,omitempty"`
	Succeeded int        `json:"succeeded"`
	Failed    int        `json:"failed"`
	AUC       *float64   `json:"auc,omitempty"`
	Steps     []StepView `json:"steps"`
	// Metrics is the latest stored snapshot, when one exists.
	Metrics *metrics.Snapshot `json:"metrics,omitempty"`
}
