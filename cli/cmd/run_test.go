package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/ordo/adapter"
	"github.com/pithecene-io/ordo/cli/config"
	"github.com/pithecene-io/ordo/runtime"
	"github.com/pithecene-io/ordo/types"
)

func TestExitCodeConstants(t *testing.T) {
	codes := []int{exitSuccess, exitError, exitToolUnavailable, exitEmptyConsensus, exitNoData}
	for i, code := range codes {
		if code != i {
			t.Errorf("exit code %d = %d, want %d", i, code, i)
		}
	}
}

// --- Config precedence tests ---

// newTestCLIContext builds a minimal *cli.Context with the given flags set.
// flagValues maps flag names to their string values. All listed flags are
// registered and marked as explicitly set (c.IsSet returns true).
// defaultFlags maps flag names to default values (not explicitly set).
func newTestCLIContext(t *testing.T, flagValues map[string]string, defaultFlags map[string]string) *cli.Context {
	t.Helper()
	app := cli.NewApp()

	allFlags := make(map[string]string)
	for k, v := range defaultFlags {
		allFlags[k] = v
	}
	for k, v := range flagValues {
		allFlags[k] = v
	}

	var cliFlags []cli.Flag
	for name, val := range allFlags {
		cliFlags = append(cliFlags, &cli.StringFlag{Name: name, Value: val})
	}
	app.Flags = cliFlags

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	for name, val := range allFlags {
		fs.String(name, val, "")
	}

	// Only set the flagValues (not defaults) so c.IsSet works
	for name, val := range flagValues {
		if err := fs.Set(name, val); err != nil {
			t.Fatalf("failed to set flag %s: %v", name, err)
		}
	}

	return cli.NewContext(app, fs, nil)
}

func TestResolveString_CLIWins(t *testing.T) {
	c := newTestCLIContext(t, map[string]string{"tool": "gradle"}, nil)
	got := resolveString(c, "tool", "./mvnw")
	if got != "gradle" {
		t.Errorf("expected CLI to win, got %q", got)
	}
}

func TestResolveString_ConfigFallback(t *testing.T) {
	c := newTestCLIContext(t, nil, map[string]string{"tool": ""})
	got := resolveString(c, "tool", "./mvnw")
	if got != "./mvnw" {
		t.Errorf("expected config fallback, got %q", got)
	}
}

func TestResolveString_UrfaveDefault(t *testing.T) {
	c := newTestCLIContext(t, nil, map[string]string{"prefix-policy": "keep"})
	got := resolveString(c, "prefix-policy", "")
	if got != "keep" {
		t.Errorf("expected urfave default, got %q", got)
	}
}

func TestConfigVal_NilConfig(t *testing.T) {
	got := configVal(nil, func(c *config.Config) string { return c.Project })
	if got != "" {
		t.Errorf("expected empty for nil config, got %q", got)
	}
}

func TestConfigVal_NonNil(t *testing.T) {
	cfg := &config.Config{Project: "petclinic"}
	got := configVal(cfg, func(c *config.Config) string { return c.Project })
	if got != "petclinic" {
		t.Errorf("expected petclinic, got %q", got)
	}
}

func TestResolveInt_CLIWins(t *testing.T) {
	app := cli.NewApp()
	app.Flags = []cli.Flag{&cli.IntFlag{Name: "max-attempts"}}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Int("max-attempts", 3, "")
	_ = fs.Set("max-attempts", "5")
	c := cli.NewContext(app, fs, nil)

	got := resolveInt(c, "max-attempts", 2)
	if got != 5 {
		t.Errorf("expected CLI to win with 5, got %d", got)
	}
}

func TestResolveInt_ConfigFallback(t *testing.T) {
	app := cli.NewApp()
	app.Flags = []cli.Flag{&cli.IntFlag{Name: "max-attempts"}}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Int("max-attempts", 3, "")
	c := cli.NewContext(app, fs, nil)

	got := resolveInt(c, "max-attempts", 2)
	if got != 2 {
		t.Errorf("expected config fallback 2, got %d", got)
	}
}

func TestResolveBool_CLIWins(t *testing.T) {
	app := cli.NewApp()
	app.Flags = []cli.Flag{&cli.BoolFlag{Name: "storage-s3-path-style"}}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Bool("storage-s3-path-style", false, "")
	_ = fs.Set("storage-s3-path-style", "true")
	c := cli.NewContext(app, fs, nil)

	if !resolveBool(c, "storage-s3-path-style", false) {
		t.Error("expected CLI true to win")
	}
}

func TestResolveBool_ConfigTrue(t *testing.T) {
	app := cli.NewApp()
	app.Flags = []cli.Flag{&cli.BoolFlag{Name: "storage-s3-path-style"}}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Bool("storage-s3-path-style", false, "")
	c := cli.NewContext(app, fs, nil)

	if !resolveBool(c, "storage-s3-path-style", true) {
		t.Error("expected config true to apply")
	}
}

func TestResolveDuration_CLIWins(t *testing.T) {
	app := cli.NewApp()
	app.Flags = []cli.Flag{&cli.DurationFlag{Name: "adapter-timeout"}}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Duration("adapter-timeout", 0, "")
	_ = fs.Set("adapter-timeout", "30s")
	c := cli.NewContext(app, fs, nil)

	got := resolveDuration(c, "adapter-timeout", 10*time.Second)
	if got != 30*time.Second {
		t.Errorf("expected CLI 30s to win, got %v", got)
	}
}

func TestResolveDuration_ConfigFallback(t *testing.T) {
	app := cli.NewApp()
	app.Flags = []cli.Flag{&cli.DurationFlag{Name: "adapter-timeout"}}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Duration("adapter-timeout", 0, "")
	c := cli.NewContext(app, fs, nil)

	got := resolveDuration(c, "adapter-timeout", 10*time.Second)
	if got != 10*time.Second {
		t.Errorf("expected config fallback 10s, got %v", got)
	}
}

func TestResolveSlice(t *testing.T) {
	app := cli.NewApp()
	app.Flags = []cli.Flag{&cli.StringSliceFlag{Name: "unit"}}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	c := cli.NewContext(app, fs, nil)
	for _, f := range app.Flags {
		if err := f.Apply(fs); err != nil {
			t.Fatalf("apply flag: %v", err)
		}
	}

	got := resolveSlice(c, "unit", []string{"OwnerService"})
	if len(got) != 1 || got[0] != "OwnerService" {
		t.Errorf("expected config fallback, got %v", got)
	}
}

// --- App-level run tests ---

// cmdFakeTool simulates the build tool: each test invocation covers one
// line per test in the prefix, out of ten.
type cmdFakeTool struct {
	mu      sync.Mutex
	dir     string
	covered int
	fail    map[types.TestID]bool
}

func (f *cmdFakeTool) Name() string { return "fake" }

func (f *cmdFakeTool) Invoke(_ context.Context, inv runtime.Invocation) (*runtime.ToolResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if inv.Kind == runtime.InvokeReport {
		body := fmt.Sprintf(`<report name="demo"><counter type="LINE" missed="%d" covered="%d"/></report>`, 10-f.covered, f.covered)
		if err := writeProjectFile(f.dir, runtime.DefaultReportPath, body); err != nil {
			return nil, err
		}
		return &runtime.ToolResult{Output: []byte("report\n")}, nil
	}

	if last := inv.Tests[len(inv.Tests)-1]; f.fail[last] {
		return &runtime.ToolResult{ExitCode: 1, Output: []byte("BUILD FAILURE\n")}, nil
	}
	f.covered = min(len(inv.Tests), 10)
	if err := writeProjectFile(f.dir, runtime.DefaultExecPath, "exec"); err != nil {
		return nil, err
	}
	return &runtime.ToolResult{Output: []byte("BUILD SUCCESS\n")}, nil
}

func writeProjectFile(dir, rel, body string) error {
	path := filepath.Join(dir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(body), 0o644)
}

// useFakeTool replaces the build tool for the duration of the test.
func useFakeTool(t *testing.T, fail ...types.TestID) {
	t.Helper()
	failing := make(map[types.TestID]bool, len(fail))
	for _, id := range fail {
		failing[id] = true
	}
	prev := newToolFactory
	newToolFactory = func(runtime.ToolConfig) runtime.ToolFactory {
		return func(dir string) runtime.Tool {
			return &cmdFakeTool{dir: dir, fail: failing}
		}
	}
	t.Cleanup(func() { newToolFactory = prev })
}

// newTestApp creates a cli.App with every command wired up and
// ExitErrHandler suppressed so errors are returned instead of calling os.Exit.
func newTestApp(out io.Writer) *cli.App {
	app := cli.NewApp()
	app.Writer = out
	app.Commands = []*cli.Command{
		MergeCommand(),
		RunCommand(),
		ScoreCommand(),
		InspectCommand(),
		VersionCommand("test"),
	}
	app.ExitErrHandler = func(*cli.Context, error) {}
	return app
}

func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return exitError
}

// newProject creates an empty project directory below dir.
func newProject(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "project")
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("create project dir: %v", err)
	}
	return path
}

func writeOrder(t *testing.T, dir, name string, ids ...string) string {
	t.Helper()
	path := filepath.Join(dir, "sorted_test_"+name+".txt")
	if err := os.WriteFile(path, []byte(strings.Join(ids, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write ordering: %v", err)
	}
	return path
}

func TestRunAction_WritesOutputsAndScores(t *testing.T) {
	useFakeTool(t, "A#b")
	dir := t.TempDir()
	projectDir := newProject(t, dir)
	runDir := filepath.Join(dir, "run")
	storeDir := filepath.Join(dir, "store")
	first := writeOrder(t, dir, "strategy1", "A#a", "A#b", "A#c")
	second := writeOrder(t, dir, "strategy2", "A#c", "A#a", "A#b")

	var out bytes.Buffer
	err := newTestApp(&out).Run([]string{"ordo", "run",
		"--order", "strategy1=" + first,
		"--order", second,
		"--project-dir", projectDir,
		"--run-dir", runDir,
		"--run-id", "run-001",
		"--max-attempts", "2",
		"--storage-path", storeDir,
		"--format", "json",
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	var resp RunResponse
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v\n%s", err, out.String())
	}
	if resp.RunID != "run-001" {
		t.Errorf("RunID = %q, want run-001", resp.RunID)
	}
	if resp.Project != "project" {
		t.Errorf("Project = %q, want project dir name", resp.Project)
	}
	if len(resp.Strategies) != 2 {
		t.Fatalf("expected 2 strategies, got %d", len(resp.Strategies))
	}
	for _, s := range resp.Strategies {
		if s.Steps != 3 || s.Succeeded != 2 || s.Failed != 1 {
			t.Errorf("%s: steps=%d succeeded=%d failed=%d, want 3/2/1", s.Strategy, s.Steps, s.Succeeded, s.Failed)
		}
	}
	if resp.Best == "" {
		t.Error("expected a best strategy")
	}
	if resp.Storage == nil || resp.Storage.Error != "" {
		t.Errorf("expected clean storage response, got %+v", resp.Storage)
	}

	for _, name := range []string{"strategy1", "strategy2"} {
		for _, file := range []string{runtime.ProgressFile, "failed_steps.json", "report.json"} {
			if _, err := os.Stat(filepath.Join(runDir, name, file)); err != nil {
				t.Errorf("missing %s/%s: %v", name, file, err)
			}
		}
	}
	if _, err := os.Stat(filepath.Join(runDir, ScoresFile)); err != nil {
		t.Errorf("missing %s: %v", ScoresFile, err)
	}
}

func TestRunAction_InspectReadsStoredSteps(t *testing.T) {
	useFakeTool(t)
	dir := t.TempDir()
	storeDir := filepath.Join(dir, "store")
	order := writeOrder(t, dir, "strategy1", "A#a", "A#b")

	err := newTestApp(io.Discard).Run([]string{"ordo", "run",
		"--order", order,
		"--project-dir", newProject(t, dir),
		"--run-dir", filepath.Join(dir, "run"),
		"--run-id", "run-002",
		"--storage-path", storeDir,
		"--quiet",
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	var out bytes.Buffer
	err = newTestApp(&out).Run([]string{"ordo", "inspect",
		"--run-id", "run-002",
		"--strategy", "strategy1",
		"--storage-path", storeDir,
		"--format", "json",
	})
	if err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	var resp struct {
		RunID     string   `json:"run_id"`
		Succeeded int      `json:"succeeded"`
		Failed    int      `json:"failed"`
		AUC       *float64 `json:"auc"`
	}
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("decode inspect: %v\n%s", err, out.String())
	}
	if resp.Succeeded != 2 || resp.Failed != 0 {
		t.Errorf("succeeded=%d failed=%d, want 2/0", resp.Succeeded, resp.Failed)
	}
	if resp.AUC == nil {
		t.Error("expected stored AUC")
	}
}

func TestRunAction_AllStepsFailExitsNoData(t *testing.T) {
	useFakeTool(t, "A#a")
	dir := t.TempDir()
	order := writeOrder(t, dir, "strategy1", "A#a")

	err := newTestApp(io.Discard).Run([]string{"ordo", "run",
		"--order", order,
		"--project-dir", newProject(t, dir),
		"--run-dir", filepath.Join(dir, "run"),
		"--max-attempts", "1",
		"--quiet",
	})
	if got := exitCode(err); got != exitNoData {
		t.Errorf("exit code = %d, want %d (err: %v)", got, exitNoData, err)
	}
}

func TestRunAction_PublishesWebhook(t *testing.T) {
	useFakeTool(t)
	dir := t.TempDir()
	order := writeOrder(t, dir, "strategy1", "A#a", "A#b")

	var mu sync.Mutex
	var events []adapter.RunScoredEvent
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ev adapter.RunScoredEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	err := newTestApp(io.Discard).Run([]string{"ordo", "run",
		"--order", order,
		"--project-dir", newProject(t, dir),
		"--run-dir", filepath.Join(dir, "run"),
		"--run-id", "run-003",
		"--adapter", "webhook",
		"--adapter-url", srv.URL,
		"--adapter-retries", "0",
		"--quiet",
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].EventType != adapter.EventTypeRunScored || events[0].RunID != "run-003" {
		t.Errorf("unexpected event: %+v", events[0])
	}
	if events[0].Best != "strategy1" {
		t.Errorf("Best = %q, want strategy1", events[0].Best)
	}
}

func TestRunAction_RejectsInvalidOrderings(t *testing.T) {
	useFakeTool(t)
	dir := t.TempDir()
	tests := writeFile(t, dir, "tests.txt", "A#a - owners\nA#b - pets\n")

	cases := []struct {
		name    string
		ids     []string
		args    []string
		wantMsg string
	}{
		{
			name:    "duplicate identifier",
			ids:     []string{"A#a", "A#b", "A#a"},
			wantMsg: `duplicate identifier "A#a" at positions 1 and 3`,
		},
		{
			name:    "malformed identifier",
			ids:     []string{"A#a", "Ab"},
			wantMsg: `malformed identifier "Ab"`,
		},
		{
			name:    "missing from test list",
			ids:     []string{"A#a"},
			args:    []string{"--tests", tests},
			wantMsg: "missing",
		},
		{
			name:    "unknown to test list",
			ids:     []string{"A#a", "A#b", "C#z"},
			args:    []string{"--tests", tests},
			wantMsg: "unknown",
		},
		{
			name:    "missing test list file",
			ids:     []string{"A#a", "A#b"},
			args:    []string{"--tests", filepath.Join(dir, "nope.txt")},
			wantMsg: "open test list",
		},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			runDir := filepath.Join(t.TempDir(), "run")
			args := append([]string{"ordo", "run",
				"--order", writeOrder(t, t.TempDir(), "strategy1", tt.ids...),
				"--project-dir", newProject(t, dir),
				"--run-dir", runDir,
				"--quiet",
			}, tt.args...)
			err := newTestApp(io.Discard).Run(args)
			if got := exitCode(err); got != exitError {
				t.Fatalf("exit code = %d, want %d (err: %v)", got, exitError, err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q should contain %q", err.Error(), tt.wantMsg)
			}
			if _, err := os.Stat(runDir); !os.IsNotExist(err) {
				t.Errorf("run dir created for invalid ordering: %v", err)
			}
		})
	}
}

func TestRunAction_ValidatesAgainstTestList(t *testing.T) {
	useFakeTool(t)
	dir := t.TempDir()
	tests := writeFile(t, dir, "tests.txt", "A#a - owners\nA#b - pets\n")
	order := writeOrder(t, dir, "strategy1", "A#b", "A#a")

	err := newTestApp(io.Discard).Run([]string{"ordo", "run",
		"--order", order,
		"--tests", tests,
		"--project-dir", newProject(t, dir),
		"--run-dir", filepath.Join(dir, "run"),
		"--quiet",
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
}

func TestRunAction_Errors(t *testing.T) {
	useFakeTool(t)
	dir := t.TempDir()
	order := writeOrder(t, dir, "strategy1", "A#a")

	tests := []struct {
		name    string
		args    []string
		wantMsg string
	}{
		{
			name:    "bad prefix policy",
			args:    []string{"--prefix-policy", "drop"},
			wantMsg: "invalid --prefix-policy",
		},
		{
			name:    "zero attempts",
			args:    []string{"--max-attempts", "0"},
			wantMsg: "--max-attempts must be at least 1",
		},
		{
			name:    "parallel without workspace",
			args:    []string{"--parallel", "2"},
			wantMsg: "--workspace-root is required",
		},
		{
			name:    "adapter without url",
			args:    []string{"--adapter", "redis"},
			wantMsg: "--adapter-url is required",
		},
		{
			name:    "unknown adapter",
			args:    []string{"--adapter", "kafka", "--adapter-url", "x"},
			wantMsg: "invalid --adapter",
		},
		{
			name:    "unknown policy",
			args:    []string{"--policy", "eager", "--storage-path", filepath.Join(dir, "store")},
			wantMsg: "invalid policy",
		},
		{
			name:    "bad storage backend",
			args:    []string{"--storage-backend", "gcs"},
			wantMsg: "invalid --storage-backend",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"ordo", "run",
				"--order", order,
				"--project-dir", newProject(t, dir),
				"--run-dir", filepath.Join(dir, "run"),
				"--quiet",
			}, tt.args...)
			err := newTestApp(io.Discard).Run(args)
			if got := exitCode(err); got != exitError {
				t.Fatalf("exit code = %d, want %d (err: %v)", got, exitError, err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q should contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestRunAction_ToolNotFoundExitsToolUnavailable(t *testing.T) {
	dir := t.TempDir()
	order := writeOrder(t, dir, "strategy1", "A#a")

	err := newTestApp(io.Discard).Run([]string{"ordo", "run",
		"--order", order,
		"--project-dir", newProject(t, dir),
		"--run-dir", filepath.Join(dir, "run"),
		"--tool", filepath.Join(dir, "no-such-tool"),
		"--quiet",
	})
	if got := exitCode(err); got != exitToolUnavailable {
		t.Errorf("exit code = %d, want %d (err: %v)", got, exitToolUnavailable, err)
	}
}

func TestRunAction_ConfigFileNotFound(t *testing.T) {
	err := newTestApp(io.Discard).Run([]string{"ordo", "run",
		"--config", filepath.Join(t.TempDir(), "missing.yaml"),
		"--order", "x.txt",
	})
	if got := exitCode(err); got != exitError {
		t.Errorf("exit code = %d, want %d (err: %v)", got, exitError, err)
	}
}

func TestRunAction_ConfigProvidesRunDirRoot(t *testing.T) {
	useFakeTool(t)
	dir := t.TempDir()
	order := writeOrder(t, dir, "strategy1", "A#a")
	outRoot := filepath.Join(dir, "runs")
	cfgPath := filepath.Join(dir, "ordo.yaml")
	cfg := fmt.Sprintf("project: petclinic\noutput_dir: %s\nharness:\n  max_attempts: 1\n", outRoot)
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	var out bytes.Buffer
	err := newTestApp(&out).Run([]string{"ordo", "run",
		"--config", cfgPath,
		"--order", order,
		"--project-dir", newProject(t, dir),
		"--run-id", "run-004",
		"--format", "json",
	})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	var resp RunResponse
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Project != "petclinic" {
		t.Errorf("Project = %q, want petclinic", resp.Project)
	}
	if want := filepath.Join(outRoot, "run-004"); resp.RunDir != want {
		t.Errorf("RunDir = %q, want %q", resp.RunDir, want)
	}
}
