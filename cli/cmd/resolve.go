package cmd

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ordo/cli/config"
)

// Exit codes shared by every command.
const (
	exitSuccess         = 0
	exitError           = 1
	exitToolUnavailable = 2
	exitEmptyConsensus  = 3
	exitNoData          = 4
)

// loadConfig loads the --config file, or ./ordo.yaml when present.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.LoadOptional(c.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), exitError)
	}
	return cfg, nil
}

// configVal reads a config field, tolerating a nil config.
func configVal[T any](cfg *config.Config, get func(*config.Config) T) T {
	if cfg == nil {
		var zero T
		return zero
	}
	return get(cfg)
}

// resolveString returns the flag value when set on the command line,
// otherwise the config value, otherwise the flag default.
func resolveString(c *cli.Context, name, cfgVal string) string {
	if c.IsSet(name) || cfgVal == "" {
		return c.String(name)
	}
	return cfgVal
}

// resolveInt follows resolveString precedence; zero config values fall through.
func resolveInt(c *cli.Context, name string, cfgVal int) int {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Int(name)
	}
	return cfgVal
}

// resolveBool returns true when either the flag or the config sets it.
func resolveBool(c *cli.Context, name string, cfgVal bool) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	return cfgVal || c.Bool(name)
}

// resolveDuration follows resolveString precedence.
func resolveDuration(c *cli.Context, name string, cfgVal time.Duration) time.Duration {
	if c.IsSet(name) || cfgVal == 0 {
		return c.Duration(name)
	}
	return cfgVal
}

// resolveSlice returns the flag values when set, otherwise cfgVal.
func resolveSlice(c *cli.Context, name string, cfgVal []string) []string {
	if c.IsSet(name) || len(cfgVal) == 0 {
		return c.StringSlice(name)
	}
	return cfgVal
}

// defaultProject names records when neither flag nor config names a project.
const defaultProject = "default"
