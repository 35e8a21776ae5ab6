// Package main provides the ordo CLI entrypoint.
//
// Usage:
//
//	ordo <command> [options]
//
// Commands: merge, run, score, inspect, version. Only run executes the
// build tool.
//
// Exit codes:
//   - 0: success
//   - 1: general error (bad input, config, storage)
//   - 2: build tool unavailable
//   - 3: empty consensus (merge accepted no candidate)
//   - 4: no data (no strategy produced a scorable step)
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ordo/cli/cmd"
	"github.com/pithecene-io/ordo/types"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := &cli.App{
		Name:           "ordo",
		Usage:          "Order tests for early coverage and score orderings by AUC",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.MergeCommand(),
			cmd.RunCommand(),
			cmd.ScoreCommand(),
			cmd.InspectCommand(),
			cmd.VersionCommand(commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		os.Exit(1)
	}
}

// exitErrHandler prints the error and exits with the code carried by cli.Exit.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	code, msg := exitStatus(err)
	if msg != "" {
		fmt.Fprintln(os.Stderr, msg)
	}
	os.Exit(code)
}

// exitStatus maps err to an exit code and the message worth printing.
// Unwrapped errors exit 1.
func exitStatus(err error) (int, string) {
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		// cli.Exit("", N).Error() is "exit status N"
		if msg == fmt.Sprintf("exit status %d", code) {
			msg = ""
		}
		return code, msg
	}
	return 1, fmt.Sprintf("Error: %v", err)
}
