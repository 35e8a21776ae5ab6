package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/pithecene-io/ordo/types"
)

// Config represents an ordo.yaml configuration file.
// All values are optional and act as defaults for ordo flags.
// CLI flags always override config values.
type Config struct {
	Project    string            `yaml:"project"`
	ProjectDir string            `yaml:"project_dir"`
	OutputDir  string            `yaml:"output_dir"`
	Tool       ToolConfig        `yaml:"tool"`
	Harness    HarnessConfig     `yaml:"harness"`
	Storage    StorageConfig     `yaml:"storage"`
	Policy     PolicyConfig      `yaml:"policy"`
	Adapter    AdapterConfig     `yaml:"adapter"`
	Strategies map[string]string `yaml:"strategies"`
}

// ToolConfig describes the build tool invocation.
type ToolConfig struct {
	Command     string            `yaml:"command"`
	TestGoals   []string          `yaml:"test_goals"`
	ReportGoals []string          `yaml:"report_goals"`
	CleanGoal   string            `yaml:"clean_goal"`
	FilterFlag  string            `yaml:"filter_flag"`
	Env         map[string]string `yaml:"env"`
}

// HarnessConfig holds coverage harness defaults.
type HarnessConfig struct {
	MaxAttempts   int    `yaml:"max_attempts"`
	PrefixPolicy  string `yaml:"prefix_policy"`
	ExecPath      string `yaml:"exec_path"`
	ReportPath    string `yaml:"report_path"`
	Parallel      int    `yaml:"parallel"`
	WorkspaceRoot string `yaml:"workspace_root"`
}

// StorageConfig holds result store defaults.
type StorageConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// PolicyConfig holds persistence policy defaults.
type PolicyConfig struct {
	Name             string `yaml:"name"`
	MaxBufferRecords int    `yaml:"max_buffer_records"`
}

// AdapterConfig holds notification adapter defaults.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Validate checks enumerated values and bounds. Empty values are left to
// the defaults of the consuming package.
func (c *Config) Validate() error {
	var errs []error
	if c.Harness.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("harness.max_attempts must not be negative, got %d", c.Harness.MaxAttempts))
	}
	if c.Harness.PrefixPolicy != "" {
		if _, err := types.ParsePrefixPolicy(c.Harness.PrefixPolicy); err != nil {
			errs = append(errs, fmt.Errorf("harness.prefix_policy: %w", err))
		}
	}
	if c.Harness.Parallel > 1 && c.Harness.WorkspaceRoot == "" {
		errs = append(errs, errors.New("harness.workspace_root is required when harness.parallel > 1"))
	}
	switch c.Storage.Backend {
	case "", "fs", "s3":
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q (must be fs or s3)", c.Storage.Backend))
	}
	switch c.Adapter.Type {
	case "", "webhook", "redis":
	default:
		errs = append(errs, fmt.Errorf("adapter.type %q (must be webhook or redis)", c.Adapter.Type))
	}
	if c.Adapter.Type != "" && c.Adapter.URL == "" {
		errs = append(errs, fmt.Errorf("adapter.url is required for adapter.type %q", c.Adapter.Type))
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		errs = append(errs, errors.New("adapter.retries must not be negative"))
	}
	return errors.Join(errs...)
}

// EnvList returns the tool environment as sorted KEY=VALUE entries.
func (t ToolConfig) EnvList() []string {
	if len(t.Env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(t.Env))
	for k := range t.Env {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+t.Env[k])
	}
	return env
}
