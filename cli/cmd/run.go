package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ordo/adapter"
	redisadapter "github.com/pithecene-io/ordo/adapter/redis"
	"github.com/pithecene-io/ordo/adapter/webhook"
	"github.com/pithecene-io/ordo/cli/config"
	"github.com/pithecene-io/ordo/cli/render"
	"github.com/pithecene-io/ordo/iox"
	"github.com/pithecene-io/ordo/lode"
	"github.com/pithecene-io/ordo/log"
	"github.com/pithecene-io/ordo/metrics"
	"github.com/pithecene-io/ordo/ordering"
	"github.com/pithecene-io/ordo/policy"
	"github.com/pithecene-io/ordo/runtime"
	"github.com/pithecene-io/ordo/score"
	"github.com/pithecene-io/ordo/types"
)

// ScoresFile is the ranked strategy scores written into the run directory.
const ScoresFile = "scores.json"

// newToolFactory builds the build tool for a run. Replaced in tests.
var newToolFactory = func(cfg runtime.ToolConfig) runtime.ToolFactory {
	return runtime.CommandToolFactory(cfg)
}

// RunCommand returns the run command.
// This is the only command that executes the build tool.
func RunCommand() *cli.Command {
	flags := []cli.Flag{
		ConfigFlag,
		// Execution flags
		&cli.StringSliceFlag{
			Name:     "order",
			Usage:    "Ordering to measure as name=path (repeatable)",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "tests",
			Usage: "Test list every ordering must be a permutation of (default: only reject duplicate or malformed identifiers)",
		},
		&cli.StringFlag{
			Name:  "project-dir",
			Usage: "Project the build tool runs in",
			Value: ".",
		},
		&cli.StringFlag{
			Name:  "run-dir",
			Usage: "Directory receiving per-strategy outputs (default: <output_dir>/<run-id>)",
		},
		&cli.StringFlag{
			Name:  "run-id",
			Usage: "Run ID (default: random UUID)",
		},
		&cli.StringFlag{
			Name:  "project",
			Usage: "Project name for stored records (default: project dir name)",
		},
		&cli.BoolFlag{
			Name:  "resume",
			Usage: "Continue each strategy from its journal",
		},
		&cli.BoolFlag{
			Name:  "quiet",
			Usage: "Suppress result output",
		},
		// Tool flags
		&cli.StringFlag{
			Name:  "tool",
			Usage: "Build tool command (default: ./mvnw)",
		},
		// Harness flags
		&cli.IntFlag{
			Name:  "max-attempts",
			Usage: "Attempts per step",
			Value: runtime.DefaultMaxAttempts,
		},
		&cli.StringFlag{
			Name:  "prefix-policy",
			Usage: "Treatment of exhausted tests in later prefixes: keep or exclude",
			Value: string(types.PrefixKeep),
		},
		&cli.IntFlag{
			Name:  "parallel",
			Usage: "Strategies run at once on isolated project copies (1 = sequential)",
			Value: 1,
		},
		&cli.StringFlag{
			Name:  "workspace-root",
			Usage: "Directory receiving project copies when --parallel > 1",
		},
		// Policy flags
		&cli.StringFlag{
			Name:  "policy",
			Usage: "Persistence policy: strict, buffered or noop",
			Value: policy.NameStrict,
		},
		&cli.IntFlag{
			Name:  "max-buffer-records",
			Usage: "Max buffered step records (buffered policy)",
		},
		// Adapter flags
		&cli.StringFlag{
			Name:  "adapter",
			Usage: "Notification adapter: webhook or redis",
		},
		&cli.StringFlag{
			Name:  "adapter-url",
			Usage: "Webhook endpoint or redis URL",
		},
		&cli.StringFlag{
			Name:  "adapter-channel",
			Usage: "Redis pub/sub channel (default: " + redisadapter.DefaultChannel + ")",
		},
		&cli.DurationFlag{
			Name:  "adapter-timeout",
			Usage: "Per-attempt publish timeout",
		},
		&cli.IntFlag{
			Name:  "adapter-retries",
			Usage: "Publish retries after the first attempt",
			Value: -1,
		},
		FormatFlag,
		NoColorFlag,
	}
	return &cli.Command{
		Name:   "run",
		Usage:  "Measure cumulative coverage of each ordering and score it",
		Flags:  append(flags, storageFlags()...),
		Action: runAction,
	}
}

// RunResponse is the response of the run command.
type RunResponse struct {
	RunID      string            `json:"run_id"`
	Project    string            `json:"project"`
	RunDir     string            `json:"run_dir"`
	Best       string            `json:"best,omitempty"`
	DurationMs int64             `json:"duration_ms"`
	Strategies []RunStrategyView `json:"strategies"`
	Storage    *StorageResponse  `json:"storage,omitempty"`
}

// RunStrategyView summarizes one strategy of a run.
type RunStrategyView struct {
	Strategy     string  `json:"strategy"`
	Steps        int     `json:"steps"`
	Succeeded    int     `json:"succeeded"`
	Failed       int     `json:"failed"`
	Resumed      int     `json:"resumed"`
	AUC          float64 `json:"auc"`
	NoData       bool    `json:"no_data"`
	PersistError string  `json:"persist_error,omitempty"`
}

// runChoice holds resolved run configuration.
type runChoice struct {
	meta          *types.RunMeta
	projectDir    string
	runDir        string
	resume        bool
	tool          runtime.ToolConfig
	maxAttempts   int
	prefix        types.PrefixPolicy
	execPath      string
	reportPath    string
	parallel      int
	workspaceRoot string
	policy        policy.Config
	store         storageChoice
	adapter       adapterChoice
	names         score.DisplayNames
}

// adapterChoice holds resolved adapter configuration.
type adapterChoice struct {
	kind    string
	url     string
	channel string
	headers map[string]string
	timeout time.Duration
	retries int
}

func resolveRun(c *cli.Context, cfg *config.Config) (*runChoice, error) {
	rc := &runChoice{
		projectDir:    resolveString(c, "project-dir", cfg.ProjectDir),
		resume:        c.Bool("resume"),
		maxAttempts:   resolveInt(c, "max-attempts", cfg.Harness.MaxAttempts),
		execPath:      cfg.Harness.ExecPath,
		reportPath:    cfg.Harness.ReportPath,
		parallel:      resolveInt(c, "parallel", cfg.Harness.Parallel),
		workspaceRoot: resolveString(c, "workspace-root", cfg.Harness.WorkspaceRoot),
		store:         resolveStorage(c, cfg),
		names:         score.DefaultDisplayNames().Merge(cfg.Strategies),
	}

	prefix, err := types.ParsePrefixPolicy(resolveString(c, "prefix-policy", cfg.Harness.PrefixPolicy))
	if err != nil {
		return nil, fmt.Errorf("invalid --prefix-policy: %w", err)
	}
	rc.prefix = prefix
	if rc.maxAttempts < 1 {
		return nil, fmt.Errorf("--max-attempts must be at least 1, got %d", rc.maxAttempts)
	}
	if rc.parallel > 1 && rc.workspaceRoot == "" {
		return nil, errors.New("--workspace-root is required when --parallel > 1")
	}
	if err := rc.store.validate(); err != nil {
		return nil, err
	}

	rc.tool = runtime.ToolConfig{
		Command:     resolveString(c, "tool", cfg.Tool.Command),
		TestGoals:   cfg.Tool.TestGoals,
		ReportGoals: cfg.Tool.ReportGoals,
		CleanGoal:   cfg.Tool.CleanGoal,
		FilterFlag:  cfg.Tool.FilterFlag,
		Env:         cfg.Tool.EnvList(),
	}

	rc.policy = policy.Config{
		Name:             resolveString(c, "policy", cfg.Policy.Name),
		MaxBufferRecords: resolveInt(c, "max-buffer-records", cfg.Policy.MaxBufferRecords),
	}
	if !rc.store.enabled() {
		// Nothing to persist to.
		rc.policy.Name = policy.NameNoop
	}

	runID := c.String("run-id")
	if runID == "" {
		runID = uuid.NewString()
	}
	project := resolveString(c, "project", cfg.Project)
	if project == "" {
		if abs, err := filepath.Abs(rc.projectDir); err == nil {
			project = filepath.Base(abs)
		} else {
			project = defaultProject
		}
	}
	rc.meta = &types.RunMeta{RunID: runID, Project: project}

	rc.runDir = c.String("run-dir")
	if rc.runDir == "" {
		root := cfg.OutputDir
		if root == "" {
			root = "runs"
		}
		rc.runDir = filepath.Join(root, runID)
	}

	rc.adapter = adapterChoice{
		kind:    resolveString(c, "adapter", cfg.Adapter.Type),
		url:     resolveString(c, "adapter-url", cfg.Adapter.URL),
		channel: resolveString(c, "adapter-channel", cfg.Adapter.Channel),
		headers: cfg.Adapter.Headers,
		timeout: resolveDuration(c, "adapter-timeout", cfg.Adapter.Timeout.Duration),
		retries: c.Int("adapter-retries"),
	}
	if !c.IsSet("adapter-retries") {
		rc.adapter.retries = -1
		if cfg.Adapter.Retries != nil {
			rc.adapter.retries = *cfg.Adapter.Retries
		}
	}
	switch rc.adapter.kind {
	case "", "webhook", "redis":
	default:
		return nil, fmt.Errorf("invalid --adapter %q (must be webhook or redis)", rc.adapter.kind)
	}
	if rc.adapter.kind != "" && rc.adapter.url == "" {
		return nil, fmt.Errorf("--adapter-url is required for --adapter %s", rc.adapter.kind)
	}
	return rc, nil
}

func runAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	rc, err := resolveRun(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitError)
	}

	named, err := parseNamedPaths("order", c.StringSlice("order"), ordering.StrategyFromFileName)
	if err != nil {
		return cli.Exit(err.Error(), exitError)
	}
	orderings, err := readOrderings(named, c.String("tests"))
	if err != nil {
		return cli.Exit(err.Error(), exitError)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := log.NewLogger(rc.meta)
	defer func() { _ = logger.Sync() }()

	startTime := time.Now()
	day := lode.DeriveDay(startTime)

	var client *lode.LodeClient
	if rc.store.enabled() {
		client, err = openClient(ctx, rc.store, lode.Config{
			Project: rc.meta.Project,
			Day:     day,
			RunID:   rc.meta.RunID,
		})
		if err != nil {
			return cli.Exit(fmt.Sprintf("failed to open result store: %v", err), exitError)
		}
		defer iox.DiscardClose(client)
	}

	toolFactory := newToolFactory(rc.tool)
	h, err := runtime.NewHarness(runtime.HarnessConfig{
		RunMeta:      rc.meta,
		ProjectDir:   rc.projectDir,
		ExecPath:     rc.execPath,
		ReportPath:   rc.reportPath,
		MaxAttempts:  rc.maxAttempts,
		PrefixPolicy: rc.prefix,
		ToolFactory:  toolFactory,
		Logger:       logger,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to create harness: %v", err), exitError)
	}
	toolName := toolFactory(rc.projectDir).Name()

	runs := make([]*runtime.StrategyRun, len(named))
	for i, n := range named {
		sr, err := buildStrategyRun(rc, client, n.name, orderings[i], toolName)
		if err != nil {
			return cli.Exit(err.Error(), exitError)
		}
		defer iox.DiscardClose(sr.Policy)
		runs[i] = sr
	}

	results, runErr := runtime.RunStrategies(ctx, h, runs, runtime.ParallelConfig{
		Parallel:      rc.parallel,
		WorkspaceRoot: rc.workspaceRoot,
	})

	// Reports and metrics for every strategy that produced a result,
	// including those cut short by a fatal error.
	var coverage []*types.CoverageRun
	for i, res := range results {
		if res == nil {
			continue
		}
		sr := runs[i]
		snap := sr.Collector.Snapshot()
		report := runtime.BuildRunReport(rc.meta, res, snap, rc.policy.Name, rc.prefix)
		if err := runtime.WriteRunReport(report, sr.OutputDir); err != nil {
			logger.Warn("failed to write run report", map[string]any{"strategy": sr.Strategy, "error": err.Error()})
		}
		if client != nil {
			if err := client.WriteMetrics(context.WithoutCancel(ctx), sr.Strategy, snap); err != nil {
				logger.Warn("failed to persist metrics", map[string]any{"strategy": sr.Strategy, "error": err.Error()})
			}
		}
		coverage = append(coverage, res.Run)
	}

	if runErr != nil {
		logger.Error("run aborted", map[string]any{"error": runErr.Error()})
		if runtime.IsToolNotFound(runErr) {
			return cli.Exit(fmt.Sprintf("build tool unavailable: %v", runErr), exitToolUnavailable)
		}
		return cli.Exit(fmt.Sprintf("run failed: %v", runErr), exitError)
	}

	ranked := score.ScoreAll(coverage, rc.names)
	duration := time.Since(startTime)
	if err := writeScores(rc.runDir, ranked); err != nil {
		return cli.Exit(err.Error(), exitError)
	}

	resp := &RunResponse{
		RunID:      rc.meta.RunID,
		Project:    rc.meta.Project,
		RunDir:     rc.runDir,
		DurationMs: duration.Milliseconds(),
	}
	if best, ok := score.Best(ranked); ok {
		resp.Best = best.Strategy
	}
	resp.Strategies = strategyViews(results, ranked)

	if client != nil {
		resp.Storage = &StorageResponse{Backend: rc.store.backend, Path: rc.store.path, RunID: rc.meta.RunID}
		if err := client.WriteScores(context.WithoutCancel(ctx), ranked); err != nil {
			resp.Storage.Error = err.Error()
			logger.Warn("failed to persist scores", map[string]any{"error": err.Error()})
		}
	}

	if rc.adapter.kind != "" {
		storagePath := ""
		if rc.store.enabled() {
			storagePath = rc.store.path
		}
		event := adapter.NewRunScoredEvent(rc.meta, day, ranked, storagePath, duration)
		if err := publishEvent(ctx, rc.adapter, event); err != nil {
			logger.Warn("failed to publish run event", map[string]any{"adapter": rc.adapter.kind, "error": err.Error()})
		}
	}

	if !c.Bool("quiet") {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}
		if err := r.Render(resp); err != nil {
			return err
		}
	}

	if resp.Best == "" {
		return cli.Exit("no strategy produced coverage data", exitNoData)
	}
	return nil
}

// buildStrategyRun wires the policy, storage and artifact writers of one strategy.
func buildStrategyRun(rc *runChoice, client *lode.LodeClient, name string, o types.Ordering, toolName string) (*runtime.StrategyRun, error) {
	outDir := filepath.Join(rc.runDir, name)
	collector := metrics.NewCollector(rc.policy.Name, toolName, storageBackend(rc.store), rc.meta.RunID, name)

	sr := &runtime.StrategyRun{
		Strategy:  name,
		Ordering:  o,
		OutputDir: outDir,
		Collector: collector,
		Resume:    rc.resume,
	}

	// Without a client the policy is noop and never touches its sink.
	var sink policy.Sink
	if client != nil {
		sink = lode.NewInstrumentedSink(lode.NewSink(client, name), collector)
		sr.Files = lode.TeeFileWriter{lode.NewDirFileWriter(outDir), client.FileWriter(name)}
	}
	pol, err := policy.New(rc.policy, sink)
	if err != nil {
		return nil, err
	}
	sr.Policy = pol
	return sr, nil
}

func storageBackend(s storageChoice) string {
	if !s.enabled() {
		return "none"
	}
	return s.backend
}

// readOrderings reads every ordering file. With a test list each ordering
// must be a permutation of it; without one only duplicate and malformed
// identifiers are rejected.
func readOrderings(named []namedPath, testsPath string) ([]types.Ordering, error) {
	var set *types.TestSet
	if testsPath != "" {
		inv, err := loadInventory(testsPath, "")
		if err != nil {
			return nil, err
		}
		set = inv.Set
	}

	out := make([]types.Ordering, len(named))
	for i, n := range named {
		o, err := ordering.ReadFile(n.path)
		if err != nil {
			return nil, fmt.Errorf("read ordering %s: %w", n.name, err)
		}
		if set != nil {
			if err := ordering.Validate(o.Strings(), set).Err(); err != nil {
				return nil, fmt.Errorf("ordering %s: %w", n.name, err)
			}
		} else if err := checkOrdering(o); err != nil {
			return nil, fmt.Errorf("ordering %s: %w", n.name, err)
		}
		out[i] = o
	}
	return out, nil
}

// checkOrdering rejects duplicate and malformed identifiers.
func checkOrdering(o types.Ordering) error {
	seen := make(map[types.TestID]int, len(o))
	for i, id := range o {
		if !ordering.WellFormed(string(id)) {
			return fmt.Errorf("malformed identifier %q at position %d", id, i+1)
		}
		if prev, dup := seen[id]; dup {
			return fmt.Errorf("duplicate identifier %q at positions %d and %d", id, prev+1, i+1)
		}
		seen[id] = i
	}
	return nil
}

// strategyViews summarizes results in input order.
func strategyViews(results []*runtime.RunResult, ranked []types.StrategyScore) []RunStrategyView {
	byName := make(map[string]types.StrategyScore, len(ranked))
	for _, s := range ranked {
		byName[s.Strategy] = s
	}
	views := make([]RunStrategyView, 0, len(results))
	for _, res := range results {
		if res == nil {
			continue
		}
		s := byName[res.Strategy]
		v := RunStrategyView{
			Strategy:  res.Strategy,
			Steps:     res.Run.Length,
			Succeeded: len(res.Run.Steps),
			Failed:    len(res.Run.Failed),
			Resumed:   res.Resumed,
			AUC:       s.Value,
			NoData:    s.NoData,
		}
		if res.PersistErr != nil {
			v.PersistError = res.PersistErr.Error()
		}
		views = append(views, v)
	}
	return views
}

// writeScores writes ranked scores as JSON into dir.
func writeScores(dir string, ranked []types.StrategyScore) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create run directory: %w", err)
	}
	data, err := json.MarshalIndent(ranked, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal scores: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ScoresFile), append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", ScoresFile, err)
	}
	return nil
}

// newAdapter builds the configured adapter.
func newAdapter(ac adapterChoice) (adapter.Adapter, error) {
	switch ac.kind {
	case "webhook":
		cfg := webhook.Config{URL: ac.url, Headers: ac.headers, Timeout: ac.timeout, Retries: webhook.DefaultRetries}
		if ac.retries >= 0 {
			cfg.Retries = ac.retries
		}
		return webhook.New(cfg)
	case "redis":
		cfg := redisadapter.Config{URL: ac.url, Channel: ac.channel, Timeout: ac.timeout, Retries: redisadapter.DefaultRetries}
		if ac.retries >= 0 {
			cfg.Retries = ac.retries
		}
		return redisadapter.New(cfg)
	default:
		return nil, fmt.Errorf("unknown adapter %q", ac.kind)
	}
}

// publishEvent sends event through a freshly built adapter.
func publishEvent(ctx context.Context, ac adapterChoice, event *adapter.RunScoredEvent) error {
	a, err := newAdapter(ac)
	if err != nil {
		return err
	}
	defer iox.DiscardClose(a)
	return a.Publish(ctx, event)
}
