package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ordo/cli/config"
	"github.com/pithecene-io/ordo/cli/render"
	"github.com/pithecene-io/ordo/iox"
	"github.com/pithecene-io/ordo/lode"
	"github.com/pithecene-io/ordo/log"
	"github.com/pithecene-io/ordo/metrics"
	"github.com/pithecene-io/ordo/ordering"
	"github.com/pithecene-io/ordo/types"
)

// MergeCommand returns the merge command.
// Merge validates candidate orderings and writes their consensus.
func MergeCommand() *cli.Command {
	flags := []cli.Flag{
		ConfigFlag,
		&cli.StringFlag{
			Name:     "tests",
			Usage:    "Path to the test list (<Class>#<method> - description per line)",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "mandatory",
			Usage: "Path to the mandatory test list (one identifier per line)",
		},
		&cli.StringSliceFlag{
			Name:     "candidate",
			Usage:    "Candidate ordering as name=path (repeatable)",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "out",
			Usage: "Directory receiving sorted_test_<name>.txt files (default: output_dir or .)",
		},
		&cli.StringFlag{
			Name:  "project",
			Usage: "Project name for stored records",
		},
		&cli.StringFlag{
			Name:  "run-id",
			Usage: "Run ID for stored records (default: random UUID)",
		},
		FormatFlag,
		NoColorFlag,
	}
	return &cli.Command{
		Name:   "merge",
		Usage:  "Validate candidate orderings and write their consensus",
		Flags:  append(flags, storageFlags()...),
		Action: mergeAction,
	}
}

// MergeResponse is the response of the merge command.
type MergeResponse struct {
	Tests     int              `json:"tests"`
	Mandatory int              `json:"mandatory"`
	Accepted  []string         `json:"accepted"`
	Rejected  []RejectedView   `json:"rejected"`
	Consensus int              `json:"consensus"`
	Files     []string         `json:"files"`
	Storage   *StorageResponse `json:"storage,omitempty"`
}

// RejectedView is one dropped candidate with every reason.
type RejectedView struct {
	Name   string   `json:"name"`
	Errors []string `json:"errors"`
}

// StorageResponse reports where records were persisted.
type StorageResponse struct {
	Backend string `json:"backend"`
	Path    string `json:"path"`
	RunID   string `json:"run_id"`
	Error   string `json:"error,omitempty"`
}

func mergeAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	inv, err := loadInventory(c.String("tests"), c.String("mandatory"))
	if err != nil {
		return cli.Exit(err.Error(), exitError)
	}

	named, err := parseNamedPaths("candidate", c.StringSlice("candidate"), ordering.StrategyFromFileName)
	if err != nil {
		return cli.Exit(err.Error(), exitError)
	}
	candidates, err := readCandidates(named)
	if err != nil {
		return cli.Exit(err.Error(), exitError)
	}

	outDir := resolveString(c, "out", configVal(cfg, func(c *config.Config) string { return c.OutputDir }))
	if outDir == "" {
		outDir = "."
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return cli.Exit(fmt.Sprintf("create output directory: %v", err), exitError)
	}

	meta := &types.RunMeta{
		RunID:   c.String("run-id"),
		Project: resolveString(c, "project", configVal(cfg, func(c *config.Config) string { return c.Project })),
	}
	if meta.RunID == "" {
		meta.RunID = uuid.NewString()
	}
	if meta.Project == "" {
		meta.Project = defaultProject
	}
	logger := log.NewLogger(meta).With(ordering.CombinedName)
	store := resolveStorage(c, cfg)
	collector := metrics.NewCollector("", "", store.backend, meta.RunID, ordering.CombinedName)

	res, mergeErr := ordering.Merge(candidates, inv.Set)
	if mergeErr != nil && !errors.Is(mergeErr, ordering.ErrEmptyConsensus) {
		return cli.Exit(mergeErr.Error(), exitError)
	}

	resp := &MergeResponse{
		Tests:     inv.Set.Len(),
		Mandatory: len(inv.Mandatory),
		Accepted:  []string{},
		Rejected:  []RejectedView{},
		Consensus: len(res.Consensus),
		Files:     []string{},
	}
	for _, rej := range res.Rejected {
		collector.IncCandidateRejected()
		view := RejectedView{Name: rej.Name, Errors: validationMessages(rej.Errors)}
		resp.Rejected = append(resp.Rejected, view)
		logger.Warn("candidate rejected", map[string]any{
			"candidate": rej.Name,
			"errors":    view.Errors,
		})
		if isStderrTTY() {
			fmt.Fprintf(os.Stderr, "Candidate %s rejected:\n", rej.Name)
			for _, msg := range view.Errors {
				fmt.Fprintf(os.Stderr, "  - %s\n", msg)
			}
		}
	}
	for _, acc := range res.Accepted {
		collector.IncCandidateAccepted()
		resp.Accepted = append(resp.Accepted, acc.Name)
		path, err := ordering.WriteFile(outDir, acc.Name, acc.Ordering)
		if err != nil {
			return cli.Exit(err.Error(), exitError)
		}
		resp.Files = append(resp.Files, path)
	}
	if mergeErr == nil {
		path, err := ordering.WriteFile(outDir, ordering.CombinedName, res.Consensus)
		if err != nil {
			return cli.Exit(err.Error(), exitError)
		}
		resp.Files = append(resp.Files, path)
		logger.Info("consensus written", map[string]any{
			"accepted": len(res.Accepted),
			"rejected": len(res.Rejected),
			"path":     filepath.ToSlash(path),
		})
	}

	if store.enabled() {
		resp.Storage = &StorageResponse{Backend: store.backend, Path: store.path, RunID: meta.RunID}
		if err := persistMerge(c.Context, store, meta, res, collector); err != nil {
			resp.Storage.Error = err.Error()
			logger.Warn("failed to persist orderings", map[string]any{"error": err.Error()})
		}
	}

	if err := r.Render(resp); err != nil {
		return err
	}
	if mergeErr != nil {
		return cli.Exit(mergeErr.Error(), exitEmptyConsensus)
	}
	return nil
}

// loadInventory opens the test list and the optional mandatory list.
func loadInventory(testsPath, mandatoryPath string) (*ordering.Inventory, error) {
	tests, err := os.Open(testsPath)
	if err != nil {
		return nil, fmt.Errorf("open test list: %w", err)
	}
	defer iox.DiscardClose(tests)

	if mandatoryPath == "" {
		return ordering.LoadInventory(tests, nil)
	}
	mandatory, err := os.Open(mandatoryPath)
	if err != nil {
		return nil, fmt.Errorf("open mandatory list: %w", err)
	}
	defer iox.DiscardClose(mandatory)
	return ordering.LoadInventory(tests, mandatory)
}

// readCandidates reads and tokenizes every candidate file.
func readCandidates(named []namedPath) ([]ordering.Candidate, error) {
	out := make([]ordering.Candidate, 0, len(named))
	for _, n := range named {
		data, err := os.ReadFile(n.path)
		if err != nil {
			return nil, fmt.Errorf("read candidate %s: %w", n.name, err)
		}
		out = append(out, ordering.Candidate{Name: n.name, Tokens: ordering.ParseCandidate(string(data))})
	}
	return out, nil
}

func validationMessages(errs []*ordering.ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Error()
	}
	return out
}

// persistMerge writes one ordering record per candidate, the consensus and
// the merge metrics.
func persistMerge(ctx context.Context, store storageChoice, meta *types.RunMeta, res *ordering.MergeResult, collector *metrics.Collector) error {
	client, err := openClient(ctx, store, lode.Config{
		Project: meta.Project,
		Day:     lode.DeriveDay(time.Now()),
		RunID:   meta.RunID,
	})
	if err != nil {
		return err
	}
	defer iox.DiscardClose(client)

	records := make([]lode.OrderingRecord, 0, len(res.Accepted)+len(res.Rejected)+1)
	for _, acc := range res.Accepted {
		records = append(records, lode.OrderingRecord{Strategy: acc.Name, Accepted: true, Tests: acc.Ordering.Strings()})
	}
	for _, rej := range res.Rejected {
		records = append(records, lode.OrderingRecord{Strategy: rej.Name, Errors: validationMessages(rej.Errors)})
	}
	if len(res.Consensus) > 0 {
		records = append(records, lode.OrderingRecord{Strategy: ordering.CombinedName, Accepted: true, Tests: res.Consensus.Strings()})
	}

	var errs []error
	for _, rec := range records {
		if err := client.WriteOrdering(ctx, rec); err != nil {
			collector.IncLodeWriteFailure()
			errs = append(errs, fmt.Errorf("ordering %s: %w", rec.Strategy, err))
			continue
		}
		collector.IncLodeWriteSuccess()
	}
	if err := client.WriteMetrics(ctx, ordering.CombinedName, collector.Snapshot()); err != nil {
		errs = append(errs, fmt.Errorf("metrics: %w", err))
	}
	return errors.Join(errs...)
}
