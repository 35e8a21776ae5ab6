package runtime

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pithecene-io/ordo/log"
	"github.com/pithecene-io/ordo/types"
)

func TestRunStrategies_Parallel(t *testing.T) {
	project := t.TempDir()
	if err := os.WriteFile(filepath.Join(project, "pom.xml"), []byte("<project/>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := writeArtifact(project, DefaultExecPath, "stale"); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	dirs := map[string]bool{}
	h, err := NewHarness(HarnessConfig{
		RunMeta:    &types.RunMeta{RunID: "run-1", Project: "demo"},
		ProjectDir: project,
		ToolFactory: func(dir string) Tool {
			mu.Lock()
			dirs[dir] = true
			mu.Unlock()
			return newFakeTool(dir, nil)
		},
		Logger: log.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}

	out := t.TempDir()
	workspace := t.TempDir()
	var runs []*StrategyRun
	for _, name := range []string{"strategy1", "strategy2", "combined"} {
		runs = append(runs, &StrategyRun{
			Strategy:  name,
			Ordering:  order,
			OutputDir: filepath.Join(out, name),
		})
	}

	results, err := RunStrategies(t.Context(), h, runs, ParallelConfig{Parallel: 2, WorkspaceRoot: workspace})
	if err != nil {
		t.Fatalf("RunStrategies failed: %v", err)
	}

	for i, res := range results {
		if res == nil || res.Strategy != runs[i].Strategy {
			t.Fatalf("result %d out of order: %+v", i, res)
		}
		if !res.Run.Complete() || len(res.Run.Steps) != 3 {
			t.Errorf("%s incomplete: %+v", res.Strategy, res.Run)
		}
	}

	if len(dirs) != 3 {
		t.Errorf("strategies shared project dirs: %v", dirs)
	}
	for dir := range dirs {
		if filepath.Dir(dir) != workspace {
			t.Errorf("project copy %s outside workspace", dir)
		}
		if _, err := os.Stat(filepath.Join(dir, "pom.xml")); err != nil {
			t.Errorf("project copy %s missing pom.xml: %v", dir, err)
		}
	}
}

func TestRunStrategies_SequentialStopsOnFatal(t *testing.T) {
	project := t.TempDir()
	h, err := NewHarness(HarnessConfig{
		RunMeta:    &types.RunMeta{RunID: "run-1", Project: "demo"},
		ProjectDir: project,
		ToolFactory: func(dir string) Tool {
			return newFakeTool(dir, func(types.TestID, int) fakeBehavior { return fakeBehavior{notFound: true} })
		},
		Logger: log.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}

	out := t.TempDir()
	runs := []*StrategyRun{
		{Strategy: "strategy1", Ordering: order, OutputDir: filepath.Join(out, "strategy1")},
		{Strategy: "strategy2", Ordering: order, OutputDir: filepath.Join(out, "strategy2")},
	}
	results, err := RunStrategies(t.Context(), h, runs, ParallelConfig{})
	if !IsToolNotFound(err) {
		t.Fatalf("expected ErrToolNotFound, got %v", err)
	}
	if results[1] != nil {
		t.Error("second strategy ran after fatal error")
	}
	if _, err := os.Stat(filepath.Join(out, "strategy2")); !os.IsNotExist(err) {
		t.Errorf("second strategy dir created: %v", err)
	}
}

func TestRunStrategies_ParallelRequiresWorkspace(t *testing.T) {
	h, err := NewHarness(HarnessConfig{
		RunMeta:     &types.RunMeta{RunID: "run-1", Project: "demo"},
		ProjectDir:  t.TempDir(),
		ToolFactory: func(dir string) Tool { return newFakeTool(dir, nil) },
		Logger:      log.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := RunStrategies(t.Context(), h, nil, ParallelConfig{Parallel: 4}); err == nil {
		t.Fatal("expected error")
	}
}

func TestRunStrategies_RejectsEscapingStrategyName(t *testing.T) {
	base := t.TempDir()
	precious := filepath.Join(base, "precious.txt")
	if err := os.WriteFile(precious, []byte("keep"), 0o644); err != nil {
		t.Fatal(err)
	}
	workspace := filepath.Join(base, "ws")
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		t.Fatal(err)
	}

	h, err := NewHarness(HarnessConfig{
		RunMeta:     &types.RunMeta{RunID: "run-1", Project: "demo"},
		ProjectDir:  t.TempDir(),
		ToolFactory: func(dir string) Tool { return newFakeTool(dir, nil) },
		Logger:      log.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}

	out := t.TempDir()
	for _, name := range []string{"..", ".", "../ws", "a/../.."} {
		t.Run(name, func(t *testing.T) {
			runs := []*StrategyRun{
				{Strategy: "strategy1", Ordering: order, OutputDir: filepath.Join(out, "strategy1")},
				{Strategy: name, Ordering: order, OutputDir: filepath.Join(out, "escape")},
			}
			if _, err := RunStrategies(t.Context(), h, runs, ParallelConfig{Parallel: 2, WorkspaceRoot: workspace}); err == nil {
				t.Fatalf("strategy %q: expected error", name)
			}
			if _, err := os.Stat(precious); err != nil {
				t.Fatalf("file outside workspace removed: %v", err)
			}
			if _, err := os.Stat(workspace); err != nil {
				t.Fatalf("workspace root removed: %v", err)
			}
		})
	}
}

func TestRunStrategies_SequentialRejectsInvalidName(t *testing.T) {
	h, err := NewHarness(HarnessConfig{
		RunMeta:     &types.RunMeta{RunID: "run-1", Project: "demo"},
		ProjectDir:  t.TempDir(),
		ToolFactory: func(dir string) Tool { return newFakeTool(dir, nil) },
		Logger:      log.Nop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	runs := []*StrategyRun{{Strategy: "..", Ordering: order, OutputDir: t.TempDir()}}
	if _, err := RunStrategies(t.Context(), h, runs, ParallelConfig{}); err == nil {
		t.Fatal("expected error")
	}
}
