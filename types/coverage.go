//nolint:revive // types is a common Go package naming convention
package types

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// StepKeyPrefix prefixes step indices in progress files ("Step_0", "Step_1", ...).
const StepKeyPrefix = "Step_"

// LineCounts holds aggregate line coverage counters.
type LineCounts struct {
	Covered int64 `json:"covered" msgpack:"covered"`
	Missed  int64 `json:"missed" msgpack:"missed"`
}

// Total returns covered + missed.
func (c LineCounts) Total() int64 {
	return c.Covered + c.Missed
}

// Percent returns covered/total*100 rounded to 2 decimals, or 0 when total is 0.
func (c LineCounts) Percent() float64 {
	total := c.Total()
	if total == 0 {
		return 0
	}
	return Round2(float64(c.Covered) / float64(total) * 100)
}

// Round2 rounds v to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// UnitCoverage is the line coverage of one unit (class) in a report.
type UnitCoverage struct {
	Covered int64 `json:"covered" msgpack:"covered"`
	Missed  int64 `json:"missed" msgpack:"missed"`
	Total   int64 `json:"total" msgpack:"total"`
}

// StepResult is one successful coverage measurement for a cumulative prefix.
type StepResult struct {
	// Step is the 0-based step index (prefix length - 1).
	Step            int     `json:"step" msgpack:"step"`
	CoveredLines    int64   `json:"covered_lines" msgpack:"covered_lines"`
	MissedLines     int64   `json:"missed_lines" msgpack:"missed_lines"`
	TotalLines      int64   `json:"total_lines" msgpack:"total_lines"`
	CoveragePercent float64 `json:"coverage_percent" msgpack:"coverage_percent"`
	// Attempts is the number of attempts used, including the successful one.
	Attempts int `json:"attempts,omitempty" msgpack:"attempts"`
	// Units is the per-unit breakdown keyed by fully qualified name.
	Units map[string]UnitCoverage `json:"units,omitempty" msgpack:"units,omitempty"`
}

// NewStepResult builds a StepResult from aggregate counts.
func NewStepResult(step int, counts LineCounts) StepResult {
	return StepResult{
		Step:            step,
		CoveredLines:    counts.Covered,
		MissedLines:     counts.Missed,
		TotalLines:      counts.Total(),
		CoveragePercent: counts.Percent(),
	}
}

// CoverageRun is the step-indexed coverage time series of one ordering.
// Every index in [0, Length) is in exactly one of Steps or Failed once the
// run is complete.
type CoverageRun struct {
	Strategy string `json:"strategy"`
	// Length is the length of the ordering that was run.
	Length int                `json:"length"`
	Steps  map[int]StepResult `json:"steps"`
	// Failed maps failed step indices to the last failure reason.
	Failed map[int]string `json:"failed"`
}

// NewCoverageRun creates an empty run for an ordering of the given length.
func NewCoverageRun(strategy string, length int) *CoverageRun {
	return &CoverageRun{
		Strategy: strategy,
		Length:   length,
		Steps:    make(map[int]StepResult),
		Failed:   make(map[int]string),
	}
}

// Record stores a successful step, clearing any earlier failure marker.
func (r *CoverageRun) Record(res StepResult) {
	delete(r.Failed, res.Step)
	r.Steps[res.Step] = res
}

// Fail marks a step as failed with the given reason.
func (r *CoverageRun) Fail(step int, reason string) {
	delete(r.Steps, step)
	r.Failed[step] = reason
}

// Resolved reports whether step has either a result or a failure marker.
func (r *CoverageRun) Resolved(step int) bool {
	if _, ok := r.Steps[step]; ok {
		return true
	}
	_, ok := r.Failed[step]
	return ok
}

// NextUnresolved returns the lowest step index with no outcome, or Length.
func (r *CoverageRun) NextUnresolved() int {
	for i := 0; i < r.Length; i++ {
		if !r.Resolved(i) {
			return i
		}
	}
	return r.Length
}

// StepIndices returns the indices with a StepResult in ascending order.
func (r *CoverageRun) StepIndices() []int {
	out := make([]int, 0, len(r.Steps))
	for i := range r.Steps {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// FailedIndices returns the failed step indices in ascending order.
func (r *CoverageRun) FailedIndices() []int {
	out := make([]int, 0, len(r.Failed))
	for i := range r.Failed {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Complete reports whether every index in [0, Length) is resolved exactly once.
func (r *CoverageRun) Complete() bool {
	if len(r.Steps)+len(r.Failed) != r.Length {
		return false
	}
	return r.NextUnresolved() == r.Length
}

// StepKey formats a step index as a progress file key ("Step_3").
func StepKey(step int) string {
	return StepKeyPrefix + strconv.Itoa(step)
}

// ParseStepKey parses a progress file key back into a step index.
func ParseStepKey(key string) (int, error) {
	rest, ok := strings.CutPrefix(key, StepKeyPrefix)
	if !ok {
		return 0, fmt.Errorf("invalid step key %q", key)
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid step key %q", key)
	}
	return n, nil
}
