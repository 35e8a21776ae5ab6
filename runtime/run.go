// Package runtime measures the coverage gained by running an ordering one
// cumulative prefix at a time through an external build tool.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pithecene-io/ordo/journal"
	"github.com/pithecene-io/ordo/lode"
	"github.com/pithecene-io/ordo/log"
	"github.com/pithecene-io/ordo/metrics"
	"github.com/pithecene-io/ordo/policy"
	"github.com/pithecene-io/ordo/types"
)

// Default artifact locations, relative to the project directory.
const (
	DefaultExecPath   = "target/jacoco.exec"
	DefaultReportPath = "target/site/jacoco/jacoco.xml"
	// DefaultMaxAttempts bounds the attempt loop of every step.
	DefaultMaxAttempts = 3
)

// flushTimeout bounds the final policy flush, which runs even after cancellation.
const flushTimeout = 30 * time.Second

// HarnessConfig configures a Harness.
type HarnessConfig struct {
	// RunMeta is the run identity. Required.
	RunMeta *types.RunMeta
	// ProjectDir is the project the tool runs in.
	ProjectDir string
	// ExecPath is the execution data file, relative to the project directory.
	ExecPath string
	// ReportPath is the coverage report file, relative to the project directory.
	ReportPath string
	// MaxAttempts is the number of attempts per step.
	MaxAttempts int
	// PrefixPolicy decides whether exhausted tests stay in later prefixes.
	PrefixPolicy types.PrefixPolicy
	// ToolFactory creates the build tool for a project directory. Required.
	ToolFactory ToolFactory
	// Logger receives harness logs. If nil, a logger is built from RunMeta.
	Logger *log.Logger
}

// StrategyRun describes one ordering to run.
type StrategyRun struct {
	// Strategy names the ordering.
	Strategy string
	// Ordering is the ordering to run.
	Ordering types.Ordering
	// OutputDir receives the strategy's output files. Required.
	OutputDir string
	// ProjectDir overrides HarnessConfig.ProjectDir (isolated copies).
	ProjectDir string
	// Policy persists resolved steps. If nil, steps are not persisted.
	Policy policy.Policy
	// Files receives per-attempt artifacts. If nil, they are written below OutputDir.
	Files lode.FileWriter
	// Collector records metrics. If nil, no metrics are recorded.
	Collector *metrics.Collector
	// Resume continues from the journal in OutputDir if one exists.
	Resume bool
}

// RunResult is the result of running one strategy.
type RunResult struct {
	Strategy string
	// Run holds every resolved step, including resumed ones.
	Run *types.CoverageRun
	// Outcomes lists the steps executed by this call, in order.
	Outcomes []*StepOutcome
	// Resumed is the number of steps replayed from the journal.
	Resumed int
	// Duration is the wall time of this call.
	Duration time.Duration
	// PolicyStats is the final persistence policy snapshot.
	PolicyStats policy.Stats
	// PersistErr is the first persistence failure. Local outputs are
	// written regardless.
	PersistErr error
}

// Harness runs orderings against a project.
type Harness struct {
	config HarnessConfig
	logger *log.Logger
}

// NewHarness validates config and fills in defaults.
func NewHarness(config HarnessConfig) (*Harness, error) {
	if config.RunMeta == nil {
		return nil, errors.New("run metadata is required")
	}
	if err := config.RunMeta.Validate(); err != nil {
		return nil, fmt.Errorf("invalid run metadata: %w", err)
	}
	if config.ToolFactory == nil {
		return nil, errors.New("tool factory is required")
	}
	if config.ExecPath == "" {
		config.ExecPath = DefaultExecPath
	}
	if config.ReportPath == "" {
		config.ReportPath = DefaultReportPath
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultMaxAttempts
	}
	if config.PrefixPolicy == "" {
		config.PrefixPolicy = types.PrefixKeep
	}

	logger := config.Logger
	if logger == nil {
		logger = log.NewLogger(config.RunMeta)
	}
	return &Harness{config: config, logger: logger}, nil
}

// Config returns the effective configuration.
func (h *Harness) Config() HarnessConfig {
	return h.config
}

// Run measures one ordering step by step.
//
// Execution flow:
//  1. Write used_test_order.txt and open (or resume) the journal
//  2. For each unresolved step, run the attempt loop on its prefix
//  3. Journal, persist and write progress after every step
//  4. Flush the policy and write the final outputs
//
// A returned error is fatal: the tool is missing, the context was canceled,
// or local state could not be written. Progress up to that point is on disk
// and can be resumed.
func (h *Harness) Run(ctx context.Context, sr *StrategyRun) (*RunResult, error) {
	start := time.Now()
	if err := types.ValidateStrategyName(sr.Strategy); err != nil {
		return nil, err
	}
	if sr.OutputDir == "" {
		return nil, errors.New("output directory is required")
	}
	if err := os.MkdirAll(sr.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	projectDir := sr.ProjectDir
	if projectDir == "" {
		projectDir = h.config.ProjectDir
	}
	if info, err := os.Stat(projectDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("project dir %q is not a directory", projectDir)
	}

	pol := sr.Policy
	if pol == nil {
		pol = policy.NewNoopPolicy()
	}
	files := sr.Files
	if files == nil {
		files = lode.NewDirFileWriter(sr.OutputDir)
	}
	logger := h.logger.With(sr.Strategy)

	if err := WriteOrder(sr.OutputDir, sr.Ordering); err != nil {
		return nil, err
	}

	run := types.NewCoverageRun(sr.Strategy, len(sr.Ordering))
	result := &RunResult{Strategy: sr.Strategy, Run: run}

	jw, resumed, err := h.openJournal(sr)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := jw.Close(); cerr != nil {
			logger.Warn("failed to close journal", map[string]any{"error": cerr.Error()})
		}
	}()
	if resumed != nil {
		resumed.Apply(run)
		result.Resumed = len(resumed.Records)
		for range resumed.Records {
			sr.Collector.IncStepResumed()
		}
		logger.Info("resuming strategy", map[string]any{
			"resumed_steps": result.Resumed,
			"next_step":     run.NextUnresolved(),
			"truncated":     resumed.Truncated,
		})
	}

	runner := &stepRunner{
		tool:       h.config.ToolFactory(projectDir),
		projectDir: projectDir,
		execPath:   h.config.ExecPath,
		reportPath: h.config.ReportPath,
		attempts:   h.config.MaxAttempts,
		files:      files,
		collector:  sr.Collector,
		logger:     logger,
	}

	logger.Info("starting strategy", map[string]any{
		"tool":          runner.tool.Name(),
		"steps":         len(sr.Ordering),
		"prefix_policy": string(h.config.PrefixPolicy),
		"project_dir":   projectDir,
	})

	runErr := h.runSteps(ctx, sr, run, runner, jw, pol, result, logger)

	flushCtx, flushCancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
	if err := pol.Flush(flushCtx); err != nil {
		logger.Warn("policy flush failed", map[string]any{"error": err.Error()})
		if result.PersistErr == nil {
			result.PersistErr = err
		}
	}
	flushCancel()

	result.PolicyStats = pol.Stats()
	ps := result.PolicyStats
	sr.Collector.AbsorbPolicyStats(ps.TotalRecords, ps.RecordsPersisted, ps.RecordsDropped)

	if err := WriteProgress(sr.OutputDir, run); err != nil {
		return nil, errors.Join(runErr, err)
	}
	result.Duration = time.Since(start)
	if runErr != nil {
		return result, runErr
	}

	logger.Info("strategy completed", map[string]any{
		"succeeded_steps": len(run.Steps),
		"failed_steps":    len(run.Failed),
		"duration":        result.Duration.String(),
	})
	return result, nil
}

// runSteps runs every unresolved step in order.
func (h *Harness) runSteps(
	ctx context.Context,
	sr *StrategyRun,
	run *types.CoverageRun,
	runner *stepRunner,
	jw *journal.Writer,
	pol policy.Policy,
	result *RunResult,
	logger *log.Logger,
) error {
	for step := range sr.Ordering {
		if run.Resolved(step) {
			continue
		}
		prefix := Prefix(sr.Ordering, step, run, h.config.PrefixPolicy)

		outcome, err := runner.run(ctx, step, prefix)
		if err != nil {
			return err
		}
		result.Outcomes = append(result.Outcomes, outcome)

		rec := outcome.Record(h.config.RunMeta.RunID, sr.Strategy)
		rec.Apply(run)
		if err := jw.Append(rec); err != nil {
			return err
		}
		if err := pol.IngestStep(ctx, rec); err != nil {
			logger.Warn("failed to persist step", map[string]any{
				"step":  step,
				"error": err.Error(),
			})
			if result.PersistErr == nil {
				result.PersistErr = err
			}
		}
		if err := WriteProgress(sr.OutputDir, run); err != nil {
			return err
		}
	}
	return nil
}

// openJournal creates the strategy's journal, or replays and reopens it
// when resuming. A resume with no journal on disk starts fresh.
func (h *Harness) openJournal(sr *StrategyRun) (*journal.Writer, *journal.Journal, error) {
	path := filepath.Join(sr.OutputDir, journal.FileName)
	header := journal.NewHeader(h.config.RunMeta.RunID, sr.Strategy, sr.Ordering, h.config.PrefixPolicy)

	if sr.Resume {
		jw, j, err := journal.Resume(path, header)
		if err == nil {
			return jw, j, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("failed to resume %s: %w", sr.Strategy, err)
		}
	}

	jw, err := journal.Create(path, header)
	if err != nil {
		return nil, nil, err
	}
	return jw, nil, nil
}

// Prefix returns the cumulative test filter for step. Under PrefixExclude,
// tests whose own step was exhausted are left out of later prefixes; the
// step's own test is always included.
func Prefix(o types.Ordering, step int, run *types.CoverageRun, p types.PrefixPolicy) []types.TestID {
	prefix := make([]types.TestID, 0, step+1)
	for i, id := range o[:step+1] {
		if p == types.PrefixExclude && i < step {
			if _, failed := run.Failed[i]; failed {
				continue
			}
		}
		prefix = append(prefix, id)
	}
	return prefix
}
