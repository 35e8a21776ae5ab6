package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/ordo/iox"
	"github.com/pithecene-io/ordo/types"
)

// ParallelConfig configures RunStrategies.
type ParallelConfig struct {
	// Parallel is the maximum number of strategies run at once.
	// Values below 2 run strategies sequentially in the shared project dir.
	Parallel int
	// WorkspaceRoot receives one project copy per strategy when Parallel > 1.
	WorkspaceRoot string
	// SkipDirs are project subdirectories not copied (default: target).
	SkipDirs []string
}

// RunStrategies runs every strategy and returns results in input order.
//
// Sequential runs share the harness project directory. Parallel runs each
// get an isolated copy under WorkspaceRoot, since the tool's build output is
// not safe to share. The first fatal error stops the remaining strategies;
// results of strategies that completed are still returned.
func RunStrategies(ctx context.Context, h *Harness, runs []*StrategyRun, cfg ParallelConfig) ([]*RunResult, error) {
	results := make([]*RunResult, len(runs))

	if cfg.Parallel < 2 {
		for i, sr := range runs {
			res, err := h.Run(ctx, sr)
			results[i] = res
			if err != nil {
				return results, fmt.Errorf("strategy %s: %w", sr.Strategy, err)
			}
		}
		return results, nil
	}

	if cfg.WorkspaceRoot == "" {
		return nil, errors.New("workspace root is required for parallel runs")
	}
	skip := cfg.SkipDirs
	if len(skip) == 0 {
		skip = []string{"target"}
	}

	copyDirs := make([]string, len(runs))
	for i, sr := range runs {
		dir, err := workspaceDir(cfg.WorkspaceRoot, sr.Strategy)
		if err != nil {
			return nil, err
		}
		copyDirs[i] = dir
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Parallel)
	for i, sr := range runs {
		g.Go(func() error {
			copyDir := copyDirs[i]
			if err := os.RemoveAll(copyDir); err != nil {
				return fmt.Errorf("strategy %s: reset project copy: %w", sr.Strategy, err)
			}
			if err := iox.CopyDir(h.config.ProjectDir, copyDir, skip...); err != nil {
				return fmt.Errorf("strategy %s: copy project: %w", sr.Strategy, err)
			}

			isolated := *sr
			isolated.ProjectDir = copyDir
			res, err := h.Run(gctx, &isolated)
			results[i] = res
			if err != nil {
				return fmt.Errorf("strategy %s: %w", sr.Strategy, err)
			}
			return nil
		})
	}
	err := g.Wait()
	return results, err
}

// workspaceDir returns the project copy directory for strategy, which must
// resolve to a direct child of root.
func workspaceDir(root, strategy string) (string, error) {
	if err := types.ValidateStrategyName(strategy); err != nil {
		return "", err
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	dir := filepath.Join(absRoot, strategy)
	rel, err := filepath.Rel(absRoot, dir)
	if err != nil || rel != strategy {
		return "", fmt.Errorf("strategy %q escapes workspace root %s", strategy, root)
	}
	return dir, nil
}
