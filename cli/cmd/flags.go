// Package cmd provides CLI commands for the ordo binary.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ordo/types"
)

// Shared flags for read-only commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for score and inspect.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (score, inspect only)",
	}

	// ConfigFlag points at an ordo.yaml file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config file (default: ./ordo.yaml when present)",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error messages
// instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
	}
}

// storageFlags returns the result store flags shared by merge, run and inspect.
func storageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "storage-backend",
			Usage: "Result store backend: fs or s3",
		},
		&cli.StringFlag{
			Name:  "storage-path",
			Usage: "Result store path (fs: directory, s3: bucket/prefix); empty disables the store",
		},
		&cli.StringFlag{
			Name:  "storage-dataset",
			Usage: "Lode dataset ID (default: ordo)",
		},
		&cli.StringFlag{
			Name:  "storage-region",
			Usage: "AWS region for S3 backend (optional, uses default chain)",
		},
		&cli.StringFlag{
			Name:  "storage-endpoint",
			Usage: "Custom S3 endpoint for S3-compatible providers",
		},
		&cli.BoolFlag{
			Name:  "storage-s3-path-style",
			Usage: "Force S3 path-style addressing",
		},
	}
}

// namedPath is a name=path flag value.
type namedPath struct {
	name string
	path string
}

// parseNamedPaths parses name=path values. A value without "=" is named by
// fallback applied to the path.
func parseNamedPaths(flag string, values []string, fallback func(string) string) ([]namedPath, error) {
	seen := make(map[string]bool, len(values))
	out := make([]namedPath, 0, len(values))
	for _, v := range values {
		name, path, ok := strings.Cut(v, "=")
		if !ok {
			path = v
			name = fallback(v)
		}
		name, path = strings.TrimSpace(name), strings.TrimSpace(path)
		if name == "" || path == "" {
			return nil, fmt.Errorf("invalid --%s %q: expected name=path", flag, v)
		}
		if err := types.ValidateStrategyName(name); err != nil {
			return nil, fmt.Errorf("invalid --%s %q: %w", flag, v, err)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate --%s name %q", flag, name)
		}
		seen[name] = true
		out = append(out, namedPath{name: name, path: path})
	}
	return out, nil
}

// isStderrTTY reports whether stderr is attached to a terminal.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
