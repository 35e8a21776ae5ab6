package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pithecene-io/ordo/metrics"
	"github.com/pithecene-io/ordo/types"
)

// RunReport is the structured JSON report written to report.json.
type RunReport struct {
	RunID        string             `json:"run_id"`
	Project      string             `json:"project"`
	Strategy     string             `json:"strategy"`
	Tool         string             `json:"tool"`
	PrefixPolicy types.PrefixPolicy `json:"prefix_policy"`
	Steps        int                `json:"steps"`
	Succeeded    int                `json:"succeeded"`
	Failed       int                `json:"failed"`
	Resumed      int                `json:"resumed"`
	DurationMs   int64              `json:"duration_ms"`

	// FailedSteps maps Step_i keys to the last failure reason.
	FailedSteps map[string]string `json:"failed_steps"`
	// Attempts lists every failed attempt of the steps executed by this run.
	Attempts []ReportAttempt `json:"attempt_failures,omitempty"`

	Policy  *ReportPolicy     `json:"policy"`
	Metrics *metrics.Snapshot `json:"metrics"`

	PersistError string `json:"persist_error,omitempty"`
}

// ReportAttempt is one failed attempt.
type ReportAttempt struct {
	Step    int    `json:"step"`
	Attempt int    `json:"attempt"`
	Reason  string `json:"reason"`
	Error   string `json:"error,omitempty"`
}

// ReportPolicy holds policy stats in the report.
type ReportPolicy struct {
	Name             string `json:"name"`
	RecordsReceived  int64  `json:"records_received"`
	RecordsPersisted int64  `json:"records_persisted"`
	RecordsDropped   int64  `json:"records_dropped"`
	Flushes          int64  `json:"flushes"`
	Errors           int64  `json:"errors"`
}

// BuildRunReport composes a RunReport from a RunResult and metrics snapshot.
func BuildRunReport(meta *types.RunMeta, result *RunResult, snap metrics.Snapshot, policyName string, prefix types.PrefixPolicy) *RunReport {
	run := result.Run
	report := &RunReport{
		RunID:        meta.RunID,
		Project:      meta.Project,
		Strategy:     result.Strategy,
		Tool:         snap.Tool,
		PrefixPolicy: prefix,
		Steps:        run.Length,
		Succeeded:    len(run.Steps),
		Failed:       len(run.Failed),
		Resumed:      result.Resumed,
		DurationMs:   result.Duration.Milliseconds(),
		FailedSteps:  make(map[string]string, len(run.Failed)),
		Policy: &ReportPolicy{
			Name:             policyName,
			RecordsReceived:  result.PolicyStats.TotalRecords,
			RecordsPersisted: result.PolicyStats.RecordsPersisted,
			RecordsDropped:   result.PolicyStats.RecordsDropped,
			Flushes:          result.PolicyStats.FlushCount,
			Errors:           result.PolicyStats.Errors,
		},
		Metrics: &snap,
	}
	for step, reason := range run.Failed {
		report.FailedSteps[types.StepKey(step)] = reason
	}
	for _, o := range result.Outcomes {
		for _, e := range o.Errors {
			report.Attempts = append(report.Attempts, ReportAttempt{
				Step:    e.Step,
				Attempt: e.Attempt,
				Reason:  e.Reason,
				Error:   errString(e.Err),
			})
		}
	}
	if result.PersistErr != nil {
		report.PersistError = result.PersistErr.Error()
	}
	return report
}

// WriteRunReport writes the report as JSON into dir/report.json.
func WriteRunReport(report *RunReport, dir string) error {
	if dir == "" {
		return errors.New("report dir must not be empty")
	}
	f, err := os.Create(filepath.Join(dir, ReportFile))
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	if err := writeRunReportTo(report, f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// writeRunReportTo writes report JSON to any writer.
func writeRunReportTo(report *RunReport, w io.Writer) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
