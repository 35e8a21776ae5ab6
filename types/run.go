//nolint:revive // types is a common Go package naming convention
package types

import (
	"errors"
	"fmt"
	"strings"
)

// RunMeta contains run identity metadata.
type RunMeta struct {
	// RunID identifies one experiment run. Must be non-empty.
	RunID string
	// Project names the project under test (used as a partition key).
	Project string
}

// Validate checks that required identity fields are present.
func (r *RunMeta) Validate() error {
	if r.RunID == "" {
		return errors.New("run_id must be non-empty")
	}
	if r.Project == "" {
		return errors.New("project must be non-empty")
	}
	return nil
}

// ValidateStrategyName checks that name can be used as a single path
// element: strategy names become directory and file names.
func ValidateStrategyName(name string) error {
	switch {
	case name == "":
		return errors.New("strategy name must be non-empty")
	case name == "." || name == "..":
		return fmt.Errorf("invalid strategy name %q", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("invalid strategy name %q: must not contain a path separator", name)
	case strings.TrimSpace(name) != name:
		return fmt.Errorf("invalid strategy name %q: must not start or end with whitespace", name)
	}
	return nil
}

// PrefixPolicy decides how a test whose step exhausted its attempts is
// treated in later cumulative prefixes.
type PrefixPolicy string

const (
	// PrefixKeep keeps failing tests in every later prefix.
	PrefixKeep PrefixPolicy = "keep"
	// PrefixExclude drops a failing test from every later prefix.
	PrefixExclude PrefixPolicy = "exclude"
)

// ParsePrefixPolicy parses a policy name. Empty means PrefixKeep.
func ParsePrefixPolicy(s string) (PrefixPolicy, error) {
	switch PrefixPolicy(s) {
	case "", PrefixKeep:
		return PrefixKeep, nil
	case PrefixExclude:
		return PrefixExclude, nil
	default:
		return "", fmt.Errorf("invalid prefix policy %q (must be keep or exclude)", s)
	}
}

// StepStatus is the terminal state of one step.
type StepStatus string

const (
	// StepSucceeded means a StepResult was recorded.
	StepSucceeded StepStatus = "succeeded"
	// StepExhausted means every attempt failed.
	StepExhausted StepStatus = "exhausted"
)

// StepRecord is the persisted form of one resolved step.
// Exactly one of Result or Reason is meaningful, selected by Status.
type StepRecord struct {
	RunID    string      `json:"run_id" msgpack:"run_id"`
	Strategy string      `json:"strategy" msgpack:"strategy"`
	Step     int         `json:"step" msgpack:"step"`
	Tests    []TestID    `json:"tests" msgpack:"tests"`
	Status   StepStatus  `json:"status" msgpack:"status"`
	Attempts int         `json:"attempts" msgpack:"attempts"`
	Result   *StepResult `json:"result,omitempty" msgpack:"result,omitempty"`
	Reason   string      `json:"reason,omitempty" msgpack:"reason,omitempty"`
}

// Apply folds the record into run.
func (s *StepRecord) Apply(run *CoverageRun) {
	switch s.Status {
	case StepSucceeded:
		if s.Result != nil {
			run.Record(*s.Result)
		}
	case StepExhausted:
		run.Fail(s.Step, s.Reason)
	}
}
