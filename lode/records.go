package lode

import (
	"encoding/json"
	"fmt"

	"github.com/pithecene-io/ordo/metrics"
	"github.com/pithecene-io/ordo/types"
)

// RecordKind discriminator values. Each is also the record_kind partition value.
const (
	RecordKindStep     = "step"
	RecordKindOrdering = "ordering"
	RecordKindScore    = "score"
	RecordKindMetrics  = "metrics"
)

// OrderingRecord is the outcome of validating one candidate ordering.
// The consensus is written with Strategy "combined" and Accepted true.
type OrderingRecord struct {
	Strategy string   `json:"strategy"`
	Accepted bool     `json:"accepted"`
	Tests    []string `json:"tests"`
	// Errors holds every validation error message of a rejected candidate.
	Errors []string `json:"errors,omitempty"`
}

// StepRow is the storage format for a resolved step.
// Result fields are flattened; they are zero for exhausted steps.
type StepRow struct {
	RecordKind string `json:"record_kind"`

	Step            int                           `json:"step"`
	Tests           []string                      `json:"tests"`
	Status          string                        `json:"status"`
	Attempts        int                           `json:"attempts"`
	CoveredLines    int64                         `json:"covered_lines"`
	MissedLines     int64                         `json:"missed_lines"`
	TotalLines      int64                         `json:"total_lines"`
	CoveragePercent float64                       `json:"coverage_percent"`
	Units           map[string]types.UnitCoverage `json:"units,omitempty"`
	Reason          string                        `json:"reason,omitempty"`

	// Partition keys
	Project  string `json:"project"`
	Strategy string `json:"strategy"`
	Day      string `json:"day"`
	RunID    string `json:"run_id"`
}

// StepRecord converts the row back to the domain record.
func (r *StepRow) StepRecord() *types.StepRecord {
	rec := &types.StepRecord{
		RunID:    r.RunID,
		Strategy: r.Strategy,
		Step:     r.Step,
		Status:   types.StepStatus(r.Status),
		Attempts: r.Attempts,
		Reason:   r.Reason,
	}
	for _, t := range r.Tests {
		rec.Tests = append(rec.Tests, types.TestID(t))
	}
	if rec.Status == types.StepSucceeded {
		rec.Result = &types.StepResult{
			Step:            r.Step,
			CoveredLines:    r.CoveredLines,
			MissedLines:     r.MissedLines,
			TotalLines:      r.TotalLines,
			CoveragePercent: r.CoveragePercent,
			Attempts:        r.Attempts,
			Units:           r.Units,
		}
	}
	return rec
}

// partitionMap returns the partition key fields for a record.
func partitionMap(cfg Config, strategy, kind string) map[string]any {
	return map[string]any{
		"record_kind": kind,
		"project":     cfg.Project,
		"strategy":    strategy,
		"day":         cfg.Day,
		"run_id":      cfg.RunID,
	}
}

// toStepRecordMap converts a StepRecord to a map for Lode storage.
// Lode HiveLayout requires records as map[string]any.
func toStepRecordMap(rec *types.StepRecord, strategy string, cfg Config) map[string]any {
	tests := make([]string, len(rec.Tests))
	for i, t := range rec.Tests {
		tests[i] = string(t)
	}

	m := partitionMap(cfg, strategy, RecordKindStep)
	m["step"] = rec.Step
	m["tests"] = tests
	m["status"] = string(rec.Status)
	m["attempts"] = rec.Attempts
	if rec.Result != nil {
		m["covered_lines"] = rec.Result.CoveredLines
		m["missed_lines"] = rec.Result.MissedLines
		m["total_lines"] = rec.Result.TotalLines
		m["coverage_percent"] = rec.Result.CoveragePercent
		if len(rec.Result.Units) > 0 {
			m["units"] = rec.Result.Units
		}
	}
	if rec.Reason != "" {
		m["reason"] = rec.Reason
	}
	return m
}

func toOrderingRecordMap(rec OrderingRecord, cfg Config) map[string]any {
	m := partitionMap(cfg, rec.Strategy, RecordKindOrdering)
	m["accepted"] = rec.Accepted
	m["tests"] = rec.Tests
	if len(rec.Errors) > 0 {
		m["errors"] = rec.Errors
	}
	return m
}

func toScoreRecordMap(s types.StrategyScore, cfg Config) map[string]any {
	m := partitionMap(cfg, s.Strategy, RecordKindScore)
	m["display_name"] = s.DisplayName
	m["value"] = s.Value
	m["steps"] = s.Steps
	m["failed_steps"] = s.FailedSteps
	m["no_data"] = s.NoData
	return m
}

func toMetricsRecordMap(snap metrics.Snapshot, strategy string, cfg Config) map[string]any {
	m := partitionMap(cfg, strategy, RecordKindMetrics)
	m["steps_started"] = snap.StepsStarted
	m["steps_succeeded"] = snap.StepsSucceeded
	m["steps_failed"] = snap.StepsFailed
	m["steps_resumed"] = snap.StepsResumed
	m["attempts"] = snap.Attempts
	m["attempt_failures"] = snap.AttemptFailures
	m["failures_by_reason"] = snap.FailuresByReason
	m["tool_launch_failure"] = snap.ToolLaunchFailure
	m["parse_errors"] = snap.ParseErrors
	m["candidates_accepted"] = snap.CandidatesAccepted
	m["candidates_rejected"] = snap.CandidatesRejected
	m["records_received"] = snap.RecordsReceived
	m["records_persisted"] = snap.RecordsPersisted
	m["records_dropped"] = snap.RecordsDropped
	m["lode_write_success"] = snap.LodeWriteSuccess
	m["lode_write_failure"] = snap.LodeWriteFailure
	m["policy"] = snap.Policy
	m["tool"] = snap.Tool
	m["storage_backend"] = snap.StorageBackend
	return m
}

// decodeRow re-decodes a stored record map into a typed row.
// Stored numbers come back as float64; a JSON round trip restores field types.
func decodeRow(record map[string]any, out any) error {
	b, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode stored record: %w", err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("decode stored record: %w", err)
	}
	return nil
}
