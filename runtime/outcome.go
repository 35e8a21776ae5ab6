package runtime

import (
	"fmt"

	"github.com/pithecene-io/ordo/types"
)

// Attempt failure reasons. The last reason of an exhausted step is recorded
// in failed_steps and the step record.
const (
	// ReasonToolFailed means the test invocation exited non-zero or could not start.
	ReasonToolFailed = "tool_failed"
	// ReasonExecMissing means the tool succeeded but left no execution data.
	ReasonExecMissing = "exec_missing"
	// ReasonReportFailed means the report invocation exited non-zero.
	ReasonReportFailed = "report_failed"
	// ReasonReportMissing means no coverage report was produced.
	ReasonReportMissing = "report_missing"
	// ReasonParseFailed means the coverage report could not be parsed.
	ReasonParseFailed = "parse_failed"
	// ReasonArtifactFailed means the execution data or report could not be copied.
	ReasonArtifactFailed = "artifact_failed"
)

// StepError describes why one attempt of a step failed.
// It never aborts the run; the attempt loop moves on to the next attempt.
type StepError struct {
	Step    int
	Attempt int
	Reason  string
	Err     error
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("step %d attempt %d: %s: %v", e.Step, e.Attempt, e.Reason, e.Err)
	}
	return fmt.Sprintf("step %d attempt %d: %s", e.Step, e.Attempt, e.Reason)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// StepOutcome is the terminal result of one step's attempt loop:
// either a StepResult or the reason the last attempt failed.
type StepOutcome struct {
	Step     int
	Tests    []types.TestID
	Status   types.StepStatus
	Attempts int
	Result   *types.StepResult
	Reason   string
	// Errors lists every failed attempt in order.
	Errors []*StepError
}

// Succeeded reports whether the step produced coverage data.
func (o *StepOutcome) Succeeded() bool {
	return o.Status == types.StepSucceeded
}

// Record converts the outcome into a persisted step record.
func (o *StepOutcome) Record(runID, strategy string) *types.StepRecord {
	return &types.StepRecord{
		RunID:    runID,
		Strategy: strategy,
		Step:     o.Step,
		Tests:    o.Tests,
		Status:   o.Status,
		Attempts: o.Attempts,
		Result:   o.Result,
		Reason:   o.Reason,
	}
}
