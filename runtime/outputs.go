package runtime

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pithecene-io/ordo/ordering"
	"github.com/pithecene-io/ordo/types"
)

// Per-strategy output file names.
const (
	UsedOrderFile      = "used_test_order.txt"
	ProgressFile       = "coverage_progress.json"
	FailedStepsFile    = "failed_steps.json"
	ModuleCoverageFile = "module_coverage.json"
	ResultFile         = "result.txt"
	ReportFile         = "report.json"
)

// ProgressEntry is one step of coverage_progress.json.
type ProgressEntry struct {
	CoveredLines    int64   `json:"covered_lines"`
	MissedLines     int64   `json:"missed_lines"`
	TotalLines      int64   `json:"total_lines"`
	CoveragePercent float64 `json:"coverage_percent"`
}

func progressEntry(res types.StepResult) ProgressEntry {
	return ProgressEntry{
		CoveredLines:    res.CoveredLines,
		MissedLines:     res.MissedLines,
		TotalLines:      res.TotalLines,
		CoveragePercent: res.CoveragePercent,
	}
}

// WriteOrder writes the ordering that was run.
func WriteOrder(dir string, o types.Ordering) error {
	var buf bytes.Buffer
	if err := ordering.Write(&buf, o); err != nil {
		return err
	}
	return writeFile(dir, UsedOrderFile, buf.Bytes())
}

// WriteProgress writes the coverage progress, failed steps, module coverage
// and result summary of run into dir.
func WriteProgress(dir string, run *types.CoverageRun) error {
	steps := run.StepIndices()

	progress := make([]keyedValue, len(steps))
	modules := make([]keyedValue, len(steps))
	for i, step := range steps {
		res := run.Steps[step]
		progress[i] = keyedValue{key: types.StepKey(step), value: progressEntry(res)}
		units := res.Units
		if units == nil {
			units = map[string]types.UnitCoverage{}
		}
		modules[i] = keyedValue{key: types.StepKey(step), value: units}
	}

	data, err := marshalOrdered(progress)
	if err != nil {
		return err
	}
	if err := writeFile(dir, ProgressFile, data); err != nil {
		return err
	}

	data, err = marshalOrdered(modules)
	if err != nil {
		return err
	}
	if err := writeFile(dir, ModuleCoverageFile, data); err != nil {
		return err
	}

	failed := make([]string, 0, len(run.Failed))
	for _, step := range run.FailedIndices() {
		failed = append(failed, types.StepKey(step))
	}
	data, err = json.MarshalIndent(failed, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal failed steps: %w", err)
	}
	if err := writeFile(dir, FailedStepsFile, append(data, '\n')); err != nil {
		return err
	}

	return writeFile(dir, ResultFile, FormatResult(run))
}

// FormatResult renders the human-readable result summary.
func FormatResult(run *types.CoverageRun) []byte {
	var buf bytes.Buffer
	buf.WriteString("=== COVERAGE RESULTS ===\n")
	for _, step := range run.StepIndices() {
		res := run.Steps[step]
		fmt.Fprintf(&buf, "%s: %.2f%% covered | Covered: %d, Missed: %d, Total: %d\n",
			types.StepKey(step), res.CoveragePercent, res.CoveredLines, res.MissedLines, res.TotalLines)
	}
	buf.WriteString("\n=== FAILED STEPS ===\n")
	for _, step := range run.FailedIndices() {
		fmt.Fprintf(&buf, "%s: %s\n", types.StepKey(step), run.Failed[step])
	}
	return buf.Bytes()
}

// ReadProgress loads a strategy directory written by WriteProgress.
// The strategy name is the directory's base name. The run length comes from
// used_test_order.txt when present, otherwise from the highest step index.
func ReadProgress(dir string) (*types.CoverageRun, error) {
	var progress map[string]ProgressEntry
	if err := readJSON(filepath.Join(dir, ProgressFile), &progress); err != nil {
		return nil, err
	}

	var modules map[string]map[string]types.UnitCoverage
	if err := readJSON(filepath.Join(dir, ModuleCoverageFile), &modules); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	var failed []string
	if err := readJSON(filepath.Join(dir, FailedStepsFile), &failed); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	length := 0
	if o, err := ordering.ReadFile(filepath.Join(dir, UsedOrderFile)); err == nil {
		length = len(o)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	run := types.NewCoverageRun(filepath.Base(dir), 0)
	maxStep := -1
	for key, entry := range progress {
		step, err := types.ParseStepKey(key)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ProgressFile, err)
		}
		run.Record(types.StepResult{
			Step:            step,
			CoveredLines:    entry.CoveredLines,
			MissedLines:     entry.MissedLines,
			TotalLines:      entry.TotalLines,
			CoveragePercent: entry.CoveragePercent,
			Units:           modules[key],
		})
		maxStep = max(maxStep, step)
	}
	for _, key := range failed {
		step, err := types.ParseStepKey(key)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", FailedStepsFile, err)
		}
		if _, ok := run.Steps[step]; !ok {
			run.Fail(step, "")
		}
		maxStep = max(maxStep, step)
	}
	run.Length = max(length, maxStep+1)
	return run, nil
}

type keyedValue struct {
	key   string
	value any
}

// marshalOrdered encodes an indented JSON object keeping key order.
func marshalOrdered(kvs []keyedValue) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{")
	for i, kv := range kvs {
		if i > 0 {
			buf.WriteString(",")
		}
		value, err := json.MarshalIndent(kv.value, "  ", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", kv.key, err)
		}
		buf.WriteString("\n  ")
		buf.WriteString(strconv.Quote(kv.key))
		buf.WriteString(": ")
		buf.Write(value)
	}
	if len(kvs) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func writeFile(dir, name string, data []byte) error {
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}
