package cmd

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ordo/cli/reader"
	"github.com/pithecene-io/ordo/cli/render"
	"github.com/pithecene-io/ordo/lode"
)

// InspectCommand returns the inspect command.
// Inspect renders the steps of a run stored in the result store.
func InspectCommand() *cli.Command {
	flags := []cli.Flag{
		ConfigFlag,
		&cli.StringFlag{
			Name:     "run-id",
			Usage:    "Run ID to inspect",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "strategy",
			Usage: "Restrict to one strategy (adds its AUC and metrics)",
		},
	}
	flags = append(flags, storageFlags()...)
	return &cli.Command{
		Name:   "inspect",
		Usage:  "Show stored steps of a run",
		Flags:  append(flags, ReadOnlyFlags()...),
		Action: inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	store := resolveStorage(c, cfg)
	if !store.enabled() {
		return cli.Exit("inspect requires --storage-path or storage.path in config", exitError)
	}
	ds, err := openReadDataset(c.Context, store)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to open result store: %v", err), exitError)
	}

	runID := c.String("run-id")
	resp, err := reader.Inspect(c.Context, reader.NewLodeReader(ds), runID, c.String("strategy"))
	if err != nil {
		if errors.Is(err, lode.ErrNoRecordsFound) {
			return cli.Exit(fmt.Sprintf("no stored steps for run %s", runID), exitNoData)
		}
		return cli.Exit(err.Error(), exitError)
	}

	if c.Bool("tui") {
		if err := r.RenderTUI("inspect_steps", resp); err != nil {
			return cli.Exit(err.Error(), exitError)
		}
		return nil
	}
	return r.Render(resp)
}
