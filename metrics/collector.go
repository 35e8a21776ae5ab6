// Package metrics provides per-run metrics collection.
//
// The Collector accumulates counters during a single harness run. It is a leaf
// package with no internal dependencies. Persistence policy counters are
// absorbed from policy.Stats at run completion rather than recorded live.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all run metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Steps
	StepsStarted   int64 `json:"steps_started"`
	StepsSucceeded int64 `json:"steps_succeeded"`
	StepsFailed    int64 `json:"steps_failed"`
	StepsResumed   int64 `json:"steps_resumed"`

	// Attempts
	Attempts          int64            `json:"attempts"`
	AttemptFailures   int64            `json:"attempt_failures"`
	FailuresByReason  map[string]int64 `json:"failures_by_reason"`
	ToolLaunchFailure int64            `json:"tool_launch_failure"`
	ParseErrors       int64            `json:"parse_errors"`

	// Candidates
	CandidatesAccepted int64 `json:"candidates_accepted"`
	CandidatesRejected int64 `json:"candidates_rejected"`

	// Persistence (absorbed from policy.Stats at run completion)
	RecordsReceived  int64 `json:"records_received"`
	RecordsPersisted int64 `json:"records_persisted"`
	RecordsDropped   int64 `json:"records_dropped"`

	// Lode / Storage
	LodeWriteSuccess int64 `json:"lode_write_success"`
	LodeWriteFailure int64 `json:"lode_write_failure"`

	// Dimensions (informational, set at construction)
	Policy         string `json:"policy"`
	Tool           string `json:"tool"`
	StorageBackend string `json:"storage_backend"`
	RunID          string `json:"run_id"`
	Strategy       string `json:"strategy,omitempty"`
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	stepsStarted   int64
	stepsSucceeded int64
	stepsFailed    int64
	stepsResumed   int64

	attempts          int64
	attemptFailures   int64
	failuresByReason  map[string]int64
	toolLaunchFailure int64
	parseErrors       int64

	candidatesAccepted int64
	candidatesRejected int64

	recordsReceived  int64
	recordsPersisted int64
	recordsDropped   int64

	lodeWriteSuccess int64
	lodeWriteFailure int64

	policy         string
	tool           string
	storageBackend string
	runID          string
	strategy       string
}

// NewCollector creates a Collector with dimension labels.
// strategy may be empty for run-level collectors.
func NewCollector(policy, tool, storageBackend, runID, strategy string) *Collector {
	return &Collector{
		failuresByReason: make(map[string]int64),
		policy:           policy,
		tool:             tool,
		storageBackend:   storageBackend,
		runID:            runID,
		strategy:         strategy,
	}
}

func (c *Collector) inc(field *int64) {
	c.mu.Lock()
	*field++
	c.mu.Unlock()
}

// --- Steps ---

// IncStepStarted records a step entering its attempt loop.
func (c *Collector) IncStepStarted() {
	if c == nil {
		return
	}
	c.inc(&c.stepsStarted)
}

// IncStepSucceeded records a step that produced a StepResult.
func (c *Collector) IncStepSucceeded() {
	if c == nil {
		return
	}
	c.inc(&c.stepsSucceeded)
}

// IncStepFailed records a step whose attempts were exhausted.
func (c *Collector) IncStepFailed() {
	if c == nil {
		return
	}
	c.inc(&c.stepsFailed)
}

// IncStepResumed records a step restored from the journal instead of run.
func (c *Collector) IncStepResumed() {
	if c == nil {
		return
	}
	c.inc(&c.stepsResumed)
}

// --- Attempts ---

// IncAttempt records one tool attempt.
func (c *Collector) IncAttempt() {
	if c == nil {
		return
	}
	c.inc(&c.attempts)
}

// IncAttemptFailure records a failed attempt under its failure reason.
func (c *Collector) IncAttemptFailure(reason string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.attemptFailures++
	c.failuresByReason[reason]++
	c.mu.Unlock()
}

// IncToolLaunchFailure records a tool that could not be started.
func (c *Collector) IncToolLaunchFailure() {
	if c == nil {
		return
	}
	c.inc(&c.toolLaunchFailure)
}

// IncParseError records a report that failed to parse.
func (c *Collector) IncParseError() {
	if c == nil {
		return
	}
	c.inc(&c.parseErrors)
}

// --- Candidates ---

// IncCandidateAccepted records an accepted candidate ordering.
func (c *Collector) IncCandidateAccepted() {
	if c == nil {
		return
	}
	c.inc(&c.candidatesAccepted)
}

// IncCandidateRejected records a rejected candidate ordering.
func (c *Collector) IncCandidateRejected() {
	if c == nil {
		return
	}
	c.inc(&c.candidatesRejected)
}

// --- Lode / Storage ---
// Lode counters are per-call, not per-record.

// IncLodeWriteSuccess records a successful Lode write operation (per-call).
func (c *Collector) IncLodeWriteSuccess() {
	if c == nil {
		return
	}
	c.inc(&c.lodeWriteSuccess)
}

// IncLodeWriteFailure records a failed Lode write operation (per-call).
func (c *Collector) IncLodeWriteFailure() {
	if c == nil {
		return
	}
	c.inc(&c.lodeWriteFailure)
}

// --- Persistence (absorbed from policy.Stats) ---

// AbsorbPolicyStats copies persistence counters from policy.Stats.
// Called once after the run with the final policy stats snapshot.
func (c *Collector) AbsorbPolicyStats(received, persisted, dropped int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.recordsReceived = received
	c.recordsPersisted = persisted
	c.recordsDropped = dropped
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{FailuresByReason: map[string]int64{}}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	reasons := make(map[string]int64, len(c.failuresByReason))
	for k, v := range c.failuresByReason {
		reasons[k] = v
	}

	return Snapshot{
		StepsStarted:   c.stepsStarted,
		StepsSucceeded: c.stepsSucceeded,
		StepsFailed:    c.stepsFailed,
		StepsResumed:   c.stepsResumed,

		Attempts:          c.attempts,
		AttemptFailures:   c.attemptFailures,
		FailuresByReason:  reasons,
		ToolLaunchFailure: c.toolLaunchFailure,
		ParseErrors:       c.parseErrors,

		CandidatesAccepted: c.candidatesAccepted,
		CandidatesRejected: c.candidatesRejected,

		RecordsReceived:  c.recordsReceived,
		RecordsPersisted: c.recordsPersisted,
		RecordsDropped:   c.recordsDropped,

		LodeWriteSuccess: c.lodeWriteSuccess,
		LodeWriteFailure: c.lodeWriteFailure,

		Policy:         c.policy,
		Tool:           c.tool,
		StorageBackend: c.storageBackend,
		RunID:          c.runID,
		Strategy:       c.strategy,
	}
}
