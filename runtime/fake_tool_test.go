package runtime

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/goleak"

	"github.com/pithecene-io/ordo/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeBehavior scripts one test invocation of fakeTool.
type fakeBehavior struct {
	exitCode    int
	notFound    bool
	noExec      bool
	noReport    bool
	reportExit  int
	badReport   bool
	launchError bool
	// cancel is called before returning the exit code of a killed process.
	cancel context.CancelFunc
}

// fakeTool writes JaCoCo artifacts into its project directory instead of
// running a build. Covered lines equal the prefix length out of 10.
type fakeTool struct {
	mu       sync.Mutex
	dir      string
	calls    []Invocation
	attempts map[types.TestID]int
	pending  *fakeBehavior
	covered  int
	// behave returns the behavior for the given attempt of the step whose
	// own test is last. Nil means always succeed.
	behave func(last types.TestID, attempt int) fakeBehavior
}

func newFakeTool(dir string, behave func(types.TestID, int) fakeBehavior) *fakeTool {
	return &fakeTool{dir: dir, attempts: make(map[types.TestID]int), behave: behave}
}

func (f *fakeTool) Name() string { return "fake" }

func (f *fakeTool) Invoke(_ context.Context, inv Invocation) (*ToolResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, inv)

	if inv.Kind == InvokeReport {
		b := f.pending
		if b == nil {
			b = &fakeBehavior{}
		}
		if b.reportExit != 0 {
			return &ToolResult{ExitCode: b.reportExit, Output: []byte("report failed\n")}, nil
		}
		if b.noReport {
			return &ToolResult{Output: []byte("no report\n")}, nil
		}
		body := jacocoXML(f.covered, 10-f.covered)
		if b.badReport {
			body = `<report><counter type="LINE" covered="x" missed="1"/></report>`
		}
		if err := writeArtifact(f.dir, DefaultReportPath, body); err != nil {
			return nil, err
		}
		return &ToolResult{Output: []byte("report ok\n")}, nil
	}

	last := inv.Tests[len(inv.Tests)-1]
	f.attempts[last]++
	b := fakeBehavior{}
	if f.behave != nil {
		b = f.behave(last, f.attempts[last])
	}
	f.pending = &b

	switch {
	case b.notFound:
		return nil, fmt.Errorf("%w: fake", ErrToolNotFound)
	case b.launchError:
		return nil, fmt.Errorf("fork failed")
	case b.cancel != nil:
		b.cancel()
		return &ToolResult{ExitCode: -1, Output: []byte("killed\n")}, nil
	case b.exitCode != 0:
		return &ToolResult{ExitCode: b.exitCode, Output: []byte("BUILD FAILURE\n")}, nil
	}
	f.covered = len(inv.Tests)
	if !b.noExec {
		if err := writeArtifact(f.dir, DefaultExecPath, "exec:"+strings.Join(idStrings(inv.Tests), ",")); err != nil {
			return nil, err
		}
	}
	return &ToolResult{Output: []byte("BUILD SUCCESS\n")}, nil
}

func (f *fakeTool) testCalls() []Invocation {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Invocation
	for _, c := range f.calls {
		if c.Kind == InvokeTest {
			out = append(out, c)
		}
	}
	return out
}

func writeArtifact(dir, rel, body string) error {
	p := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, []byte(body), 0o644)
}

func jacocoXML(covered, missed int) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<report name="demo">
  <package name="com/acme">
    <class name="com/acme/AuthService">
      <counter type="LINE" missed="%d" covered="%d"/>
    </class>
  </package>
</report>`, missed, covered)
}

func idStrings(ids []types.TestID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func failUntil(test types.TestID, attempts int, b fakeBehavior) func(types.TestID, int) fakeBehavior {
	return func(last types.TestID, attempt int) fakeBehavior {
		if last == test && attempt <= attempts {
			return b
		}
		return fakeBehavior{}
	}
}
