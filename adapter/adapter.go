// Package adapter defines the notification boundary.
//
// Adapters publish a run_scored event to downstream systems once every
// strategy of a run has been measured and scored.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/ordo/types"
)

// EventTypeRunScored is the event_type of RunScoredEvent.
const EventTypeRunScored = "run_scored"

// RunScoredEvent is the payload published when a run has been scored.
type RunScoredEvent struct {
	ContractVersion string `json:"contract_version"`
	EventType       string `json:"event_type"` // always "run_scored"
	RunID           string `json:"run_id"`
	Project         string `json:"project"`
	Day             string `json:"day"`
	// Best is the highest ranked strategy with data, empty if none had data.
	Best        string                `json:"best,omitempty"`
	Scores      []types.StrategyScore `json:"scores"`
	StoragePath string                `json:"storage_path,omitempty"`
	Timestamp   string                `json:"timestamp"` // RFC 3339
	DurationMs  int64                 `json:"duration_ms"`
}

// NewRunScoredEvent builds an event from ranked scores.
func NewRunScoredEvent(meta *types.RunMeta, day string, ranked []types.StrategyScore, storagePath string, duration time.Duration) *RunScoredEvent {
	ev := &RunScoredEvent{
		ContractVersion: types.ContractVersion,
		EventType:       EventTypeRunScored,
		RunID:           meta.RunID,
		Project:         meta.Project,
		Day:             day,
		Scores:          ranked,
		StoragePath:     storagePath,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		DurationMs:      duration.Milliseconds(),
	}
	if len(ranked) > 0 && !ranked[0].NoData {
		ev.Best = ranked[0].Strategy
	}
	return ev
}

// Adapter publishes run scored events to a downstream system.
type Adapter interface {
	// Publish sends the event to the downstream system.
	// Must respect context cancellation and deadlines.
	Publish(ctx context.Context, event *RunScoredEvent) error

	// Close releases adapter resources.
	Close() error
}

// PermanentError marks a failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

func (e *PermanentError) Unwrap() error { return e.Err }

// Backoff returns the delay before retry i (1-based): 500ms, 1s, 2s, ...
func Backoff(i int) time.Duration {
	return time.Duration(1<<uint(i-1)) * 500 * time.Millisecond
}

// Retry calls fn up to 1+retries times with exponential backoff between
// attempts. A *PermanentError from fn stops immediately. The name prefixes
// returned errors.
func Retry(ctx context.Context, name string, retries int, fn func(ctx context.Context) error) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(Backoff(i)):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}

		var permanent *PermanentError
		if errors.As(lastErr, &permanent) {
			return fmt.Errorf("%s: non-retriable error: %w", name, permanent.Err)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
