package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ordo/cli/reader"
	"github.com/pithecene-io/ordo/cli/render"
	"github.com/pithecene-io/ordo/iox"
	"github.com/pithecene-io/ordo/score"
)

// UnitScoresFile holds per-unit AUC rows in the output directory.
const UnitScoresFile = "auc_results.csv"

// ScoreCommand returns the score command.
// Score reads a run directory and never executes the build tool.
func ScoreCommand() *cli.Command {
	flags := []cli.Flag{
		ConfigFlag,
		&cli.StringFlag{
			Name:     "run-dir",
			Usage:    "Run directory holding one subdirectory per strategy",
			Required: true,
		},
		&cli.StringSliceFlag{
			Name:  "unit",
			Usage: "Unit (class) to score per strategy (repeatable)",
		},
		&cli.StringFlag{
			Name:  "risk-file",
			Usage: "File with a 'risk order of A > B > C' line naming units to score",
		},
		&cli.StringFlag{
			Name:  "out",
			Usage: "Directory receiving scores.json and auc_results.csv (default: run-dir)",
		},
	}
	return &cli.Command{
		Name:   "score",
		Usage:  "Rank strategies of a run by coverage AUC",
		Flags:  append(flags, ReadOnlyFlags()...),
		Action: scoreAction,
	}
}

func scoreAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	runDir := c.String("run-dir")
	runs, err := reader.LoadRunDir(runDir)
	if err != nil {
		if errors.Is(err, reader.ErrNoRuns) {
			return cli.Exit(fmt.Sprintf("no strategy results in %s", runDir), exitNoData)
		}
		return cli.Exit(err.Error(), exitError)
	}

	units, err := scoreUnits(c)
	if err != nil {
		return cli.Exit(err.Error(), exitError)
	}

	names := score.DefaultDisplayNames().Merge(cfg.Strategies)
	ranked := score.ScoreAll(runs, names)
	unitScores := score.UnitScores(runs, units)

	outDir := c.String("out")
	if outDir == "" {
		outDir = runDir
	}
	if err := writeScores(outDir, ranked); err != nil {
		return cli.Exit(err.Error(), exitError)
	}
	if len(unitScores) > 0 {
		if err := writeUnitScores(outDir, unitScores, names); err != nil {
			return cli.Exit(err.Error(), exitError)
		}
	}

	lb := reader.NewLeaderboard(runDir, ranked, unitScores, names)
	if len(units) > 0 {
		lb.RankUnits(score.RankByUnits(unitScores, units), len(units), names)
	}
	if c.Bool("tui") {
		if err := r.RenderTUI("score_leaderboard", lb); err != nil {
			return cli.Exit(err.Error(), exitError)
		}
	} else if err := r.Render(lb); err != nil {
		return err
	}

	if lb.Best == "" {
		return cli.Exit("no strategy produced coverage data", exitNoData)
	}
	return nil
}

// scoreUnits collects --unit values followed by the units of --risk-file.
func scoreUnits(c *cli.Context) ([]string, error) {
	units := append([]string(nil), c.StringSlice("unit")...)
	path := c.String("risk-file")
	if path == "" {
		return dedupe(units), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open risk file: %w", err)
	}
	defer iox.DiscardClose(f)
	risk, err := score.ParseRiskOrder(f)
	if err != nil {
		return nil, fmt.Errorf("parse risk file %s: %w", path, err)
	}
	return dedupe(append(units, risk...)), nil
}

// dedupe drops repeated units, keeping the first occurrence.
func dedupe(units []string) []string {
	seen := make(map[string]bool, len(units))
	out := units[:0]
	for _, u := range units {
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out
}

func writeUnitScores(dir string, scores []score.UnitResult, names score.DisplayNames) error {
	f, err := os.Create(filepath.Join(dir, UnitScoresFile))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", UnitScoresFile, err)
	}
	if err := score.WriteUnitCSV(f, scores, names); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", UnitScoresFile, err)
	}
	return f.Close()
}
