package runtime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pithecene-io/ordo/lode"
	"github.com/pithecene-io/ordo/log"
	"github.com/pithecene-io/ordo/metrics"
	"github.com/pithecene-io/ordo/report"
	"github.com/pithecene-io/ordo/types"
)

// attemptState is a state of the per-attempt machine.
type attemptState int

const (
	stateInvoke attemptState = iota
	stateCollectExec
	stateRegenerate
	stateCollectReport
	stateParse
	stateSucceeded
	stateFailed
)

// stepRunner drives the attempt loop of one step.
type stepRunner struct {
	tool       Tool
	projectDir string
	execPath   string
	reportPath string
	attempts   int
	files      lode.FileWriter
	collector  *metrics.Collector
	logger     *log.Logger
}

// attempt holds the state of one attempt.
type attempt struct {
	step   int
	n      int
	tests  []types.TestID
	log    bytes.Buffer
	report []byte
	result types.StepResult
	err    *StepError
}

func (a *attempt) fail(reason string, err error) attemptState {
	a.err = &StepError{Step: a.step, Attempt: a.n, Reason: reason, Err: err}
	return stateFailed
}

// run executes up to r.attempts attempts for one step.
// The returned error is fatal for the run (tool missing or context canceled);
// per-attempt failures are folded into the outcome.
func (r *stepRunner) run(ctx context.Context, step int, tests []types.TestID) (*StepOutcome, error) {
	outcome := &StepOutcome{Step: step, Tests: tests, Status: types.StepExhausted}
	r.collector.IncStepStarted()

	for n := 1; n <= r.attempts; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.collector.IncAttempt()
		outcome.Attempts = n

		a := &attempt{step: step, n: n, tests: tests}
		state, err := r.runAttempt(ctx, a)
		r.persistLog(ctx, a)
		if err != nil {
			return nil, err
		}

		if state == stateSucceeded {
			res := a.result
			res.Attempts = n
			outcome.Status = types.StepSucceeded
			outcome.Result = &res
			r.collector.IncStepSucceeded()
			r.logger.Info("step succeeded", map[string]any{
				"step":             step,
				"attempt":          n,
				"coverage_percent": res.CoveragePercent,
			})
			return outcome, nil
		}

		// Cancellation mid-attempt leaves the step unresolved so resume retries it.
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		r.collector.IncAttemptFailure(a.err.Reason)
		outcome.Errors = append(outcome.Errors, a.err)
		outcome.Reason = a.err.Reason
		r.logger.Warn("attempt failed", map[string]any{
			"step":    step,
			"attempt": n,
			"reason":  a.err.Reason,
			"error":   errString(a.err.Err),
		})
	}

	r.collector.IncStepFailed()
	r.logger.Error("step exhausted attempts", map[string]any{
		"step":     step,
		"attempts": r.attempts,
		"reason":   outcome.Reason,
	})
	return outcome, nil
}

// runAttempt advances one attempt from stateInvoke to a terminal state.
func (r *stepRunner) runAttempt(ctx context.Context, a *attempt) (attemptState, error) {
	state := stateInvoke
	for {
		var err error
		switch state {
		case stateInvoke:
			state, err = r.invokeTests(ctx, a)
		case stateCollectExec:
			state = r.collectExec(ctx, a)
		case stateRegenerate:
			state, err = r.regenerate(ctx, a)
		case stateCollectReport:
			state = r.collectReport(ctx, a)
		case stateParse:
			state = r.parse(a)
		case stateSucceeded, stateFailed:
			return state, nil
		}
		if err != nil {
			return stateFailed, err
		}
	}
}

func (r *stepRunner) invokeTests(ctx context.Context, a *attempt) (attemptState, error) {
	// Stale artifacts from an earlier step must not satisfy this attempt.
	for _, p := range []string{r.execPath, r.reportPath} {
		if err := os.Remove(filepath.Join(r.projectDir, p)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return a.fail(ReasonToolFailed, fmt.Errorf("remove stale artifact: %w", err)), nil
		}
	}

	inv := Invocation{Kind: InvokeTest, Clean: a.step == 0 && a.n == 1, Tests: a.tests}
	res, err := r.tool.Invoke(ctx, inv)
	if err != nil {
		r.collector.IncToolLaunchFailure()
		if IsToolNotFound(err) || ctx.Err() != nil {
			return stateFailed, err
		}
		return a.fail(ReasonToolFailed, err), nil
	}
	a.log.Write(res.Output)
	if res.ExitCode != 0 {
		return a.fail(ReasonToolFailed, fmt.Errorf("exit code %d", res.ExitCode)), nil
	}
	return stateCollectExec, nil
}

func (r *stepRunner) collectExec(ctx context.Context, a *attempt) attemptState {
	data, err := os.ReadFile(filepath.Join(r.projectDir, r.execPath))
	if errors.Is(err, os.ErrNotExist) {
		return a.fail(ReasonExecMissing, nil)
	}
	if err != nil {
		return a.fail(ReasonExecMissing, err)
	}
	if err := r.files.PutFile(ctx, ExecFileName(a.step), "application/octet-stream", data); err != nil {
		return a.fail(ReasonArtifactFailed, err)
	}
	return stateRegenerate
}

func (r *stepRunner) regenerate(ctx context.Context, a *attempt) (attemptState, error) {
	res, err := r.tool.Invoke(ctx, Invocation{Kind: InvokeReport})
	if err != nil {
		r.collector.IncToolLaunchFailure()
		if IsToolNotFound(err) || ctx.Err() != nil {
			return stateFailed, err
		}
		return a.fail(ReasonReportFailed, err), nil
	}
	a.log.Write(res.Output)
	if res.ExitCode != 0 {
		return a.fail(ReasonReportFailed, fmt.Errorf("exit code %d", res.ExitCode)), nil
	}
	return stateCollectReport, nil
}

func (r *stepRunner) collectReport(ctx context.Context, a *attempt) attemptState {
	data, err := os.ReadFile(filepath.Join(r.projectDir, r.reportPath))
	if errors.Is(err, os.ErrNotExist) {
		return a.fail(ReasonReportMissing, nil)
	}
	if err != nil {
		return a.fail(ReasonReportMissing, err)
	}
	if err := r.files.PutFile(ctx, ReportFileName(a.step), "application/xml", data); err != nil {
		return a.fail(ReasonArtifactFailed, err)
	}
	a.report = data
	return stateParse
}

func (r *stepRunner) parse(a *attempt) attemptState {
	rep, err := report.Parse(bytes.NewReader(a.report))
	if err != nil {
		r.collector.IncParseError()
		return a.fail(ReasonParseFailed, err)
	}
	a.result = rep.StepResult(a.step)
	return stateSucceeded
}

// persistLog stores the attempt's tool output. Failures are logged only.
func (r *stepRunner) persistLog(ctx context.Context, a *attempt) {
	if err := r.files.PutFile(ctx, LogFileName(a.step, a.n), "text/plain", a.log.Bytes()); err != nil {
		r.logger.Warn("failed to persist attempt log", map[string]any{
			"step":    a.step,
			"attempt": a.n,
			"error":   err.Error(),
		})
	}
}

// LogFileName names the tool log of one attempt.
func LogFileName(step, attempt int) string {
	return fmt.Sprintf("logs/step_%d_attempt%d.log", step, attempt)
}

// ExecFileName names the copied execution data of a step.
func ExecFileName(step int) string {
	return fmt.Sprintf("execs/step_%d.exec", step)
}

// ReportFileName names the copied coverage report of a step.
func ReportFileName(step int) string {
	return fmt.Sprintf("xmls/step_%d.xml", step)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
