package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/pithecene-io/ordo/types"
)

// ErrToolNotFound is returned when the build tool executable cannot be found.
// It is fatal for the whole run.
var ErrToolNotFound = errors.New("build tool not found")

// IsToolNotFound reports whether err means the build tool is unavailable.
func IsToolNotFound(err error) bool {
	return errors.Is(err, ErrToolNotFound)
}

// InvocationKind selects what the build tool is asked to do.
type InvocationKind string

const (
	// InvokeTest runs a test filter and produces execution data.
	InvokeTest InvocationKind = "test"
	// InvokeReport regenerates the coverage report from execution data.
	InvokeReport InvocationKind = "report"
)

// Invocation is one build tool call.
type Invocation struct {
	Kind InvocationKind
	// Clean requests a clean build before testing. Test only.
	Clean bool
	// Tests is the cumulative test filter. Test only.
	Tests []types.TestID
}

// ToolResult is the result of a build tool call.
type ToolResult struct {
	// ExitCode is the process exit code.
	ExitCode int
	// Output is the combined stdout and stderr of the process.
	Output []byte
}

// Tool abstracts the external build/test tool for testing.
// Invoke returns an error only when the tool could not be run at all;
// a non-zero exit is reported through ToolResult.ExitCode.
type Tool interface {
	Invoke(ctx context.Context, inv Invocation) (*ToolResult, error)
	// Name identifies the tool in logs and metrics.
	Name() string
}

// ToolFactory creates a Tool bound to a project directory.
// Used to give each parallel strategy its own project copy.
type ToolFactory func(projectDir string) Tool

// ToolConfig configures a command-line build tool.
type ToolConfig struct {
	// Command is the tool executable, e.g. "./mvnw".
	Command string
	// Dir is the project directory the tool runs in.
	Dir string
	// TestGoals precede the test filter (default: test jacoco:report).
	TestGoals []string
	// ReportGoals regenerate the report (default: jacoco:report).
	ReportGoals []string
	// CleanGoal is prepended when a clean build is requested (default: clean).
	CleanGoal string
	// FilterFlag prefixes the comma-joined test filter (default: -Dtest=).
	FilterFlag string
	// Env entries are appended to the inherited environment.
	Env []string
}

// Default Maven + JaCoCo goals.
var (
	DefaultTestGoals   = []string{"test", "jacoco:report"}
	DefaultReportGoals = []string{"jacoco:report"}
)

const (
	// DefaultCommand is the Maven wrapper in the project directory.
	DefaultCommand    = "./mvnw"
	defaultCleanGoal  = "clean"
	defaultFilterFlag = "-Dtest="
)

// CommandTool runs a build tool as a child process.
type CommandTool struct {
	config ToolConfig
}

// NewCommandTool creates a tool, filling in Maven defaults.
func NewCommandTool(config ToolConfig) *CommandTool {
	if config.Command == "" {
		config.Command = DefaultCommand
	}
	if len(config.TestGoals) == 0 {
		config.TestGoals = DefaultTestGoals
	}
	if len(config.ReportGoals) == 0 {
		config.ReportGoals = DefaultReportGoals
	}
	if config.CleanGoal == "" {
		config.CleanGoal = defaultCleanGoal
	}
	if config.FilterFlag == "" {
		config.FilterFlag = defaultFilterFlag
	}
	return &CommandTool{config: config}
}

// CommandToolFactory returns a ToolFactory that copies config and
// rebinds it to each project directory.
func CommandToolFactory(config ToolConfig) ToolFactory {
	return func(projectDir string) Tool {
		c := config
		c.Dir = projectDir
		return NewCommandTool(c)
	}
}

// Name implements Tool.
func (t *CommandTool) Name() string {
	return t.config.Command
}

// Args builds the argument list for inv.
func (t *CommandTool) Args(inv Invocation) []string {
	switch inv.Kind {
	case InvokeReport:
		return append([]string(nil), t.config.ReportGoals...)
	default:
		var args []string
		if inv.Clean {
			args = append(args, t.config.CleanGoal)
		}
		args = append(args, t.config.TestGoals...)
		filter := make([]string, len(inv.Tests))
		for i, id := range inv.Tests {
			filter[i] = string(id)
		}
		return append(args, t.config.FilterFlag+strings.Join(filter, ","))
	}
}

// Invoke runs the tool and waits for it to exit.
func (t *CommandTool) Invoke(ctx context.Context, inv Invocation) (*ToolResult, error) {
	cmd := exec.CommandContext(ctx, t.config.Command, t.Args(inv)...)
	cmd.Dir = t.config.Dir
	if len(t.config.Env) > 0 {
		cmd.Env = deduplicateEnv(append(os.Environ(), t.config.Env...))
	}

	output, err := cmd.CombinedOutput()
	result := &ToolResult{Output: output}
	if err == nil {
		return result, nil
	}
	// A process killed by cancellation is not a tool failure.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			result.ExitCode = status.ExitStatus()
		} else {
			result.ExitCode = -1
		}
		return result, nil
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s: %w", ErrToolNotFound, t.config.Command, err)
	}
	return nil, fmt.Errorf("failed to start %s: %w", t.config.Command, err)
}

// deduplicateEnv keeps the last occurrence of each env var key, so
// configured entries win over inherited ones.
func deduplicateEnv(env []string) []string {
	seen := make(map[string]int, len(env))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		seen[key] = i
	}
	result := make([]string, 0, len(seen))
	for i, entry := range env {
		key, _, _ := strings.Cut(entry, "=")
		if seen[key] == i {
			result = append(result, entry)
		}
	}
	return result
}
