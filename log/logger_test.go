package log

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/pithecene-io/ordo/types"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLogger_RunContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newLoggerWithWriter(&types.RunMeta{RunID: "run-1", Project: "auth"}, &buf)

	logger.Info("step resolved", map[string]any{"step": 3})

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	entry := lines[0]
	if entry["run_id"] != "run-1" || entry["project"] != "auth" {
		t.Errorf("missing run context: %v", entry)
	}
	if entry["level"] != "info" || entry["message"] != "step resolved" {
		t.Errorf("unexpected level/message: %v", entry)
	}
	fields, ok := entry["fields"].(map[string]any)
	if !ok || fields["step"] != float64(3) {
		t.Errorf("fields = %v", entry["fields"])
	}
}

func TestLogger_WithStrategyKeepsContext(t *testing.T) {
	var buf bytes.Buffer
	base := newLoggerWithWriter(&types.RunMeta{RunID: "run-2"}, &buf)

	base.With("strategy3").Warn("attempt failed", nil)

	entry := decodeLines(t, &buf)[0]
	if entry["strategy"] != "strategy3" {
		t.Errorf("strategy = %v", entry["strategy"])
	}
	if entry["run_id"] != "run-2" {
		t.Errorf("run_id = %v", entry["run_id"])
	}
	if _, ok := entry["project"]; ok {
		t.Error("empty project should be omitted")
	}
}

func TestLogger_WithOutputRedirects(t *testing.T) {
	var first, second bytes.Buffer
	logger := newLoggerWithWriter(&types.RunMeta{RunID: "run-3"}, &first)

	logger.WithOutput(&second).Error("boom", nil)

	if first.Len() != 0 {
		t.Errorf("original writer received %q", first.String())
	}
	entry := decodeLines(t, &second)[0]
	if entry["run_id"] != "run-3" {
		t.Errorf("context lost after WithOutput: %v", entry)
	}
}

func TestNop(t *testing.T) {
	Nop().Info("ignored", map[string]any{"x": 1})
	Nop().Sugar().Infof("ignored %d", 1)
}
