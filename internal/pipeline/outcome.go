package pipeline

import (
	"time"

	"voicepipe/internal/services"
)

// Status is the terminal state of one stage.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Skip reasons recorded on skipped outcomes.
const (
	SkipUpstreamFailure = "upstream failure"
	SkipDuplicate       = "duplicate"
	SkipCancelled       = "cancelled"
)

// Outcome is the terminal result of one stage within a run. Detail carries
// the success summary; Reason carries the skip reason.
type Outcome struct {
	Stage    string        `json:"stage"`
	Status   Status        `json:"status"`
	Reason   string        `json:"reason,omitempty"`
	Attempts int           `json:"attempts"`
	Kind     services.Kind `json:"kind,omitempty"`
	Detail   string        `json:"detail,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`

	// err keeps the last error for in-process inspection; the persisted form
	// carries only the rendered Error string.
	err error
}

// RunStatus aggregates the stage outcomes of one run.
type RunStatus string

const (
	RunAllSucceeded   RunStatus = "all_succeeded"
	RunPartialFailure RunStatus = "partial_failure"
	RunAllFailed      RunStatus = "all_failed"
	// RunCancelled marks a run stopped before every stage could execute.
	RunCancelled RunStatus = "cancelled"
)

// RunReport is the full record of one pipeline run.
type RunReport struct {
	RunID       string        `json:"run_id"`
	Status      RunStatus     `json:"status"`
	WindowStart time.Time     `json:"window_start"`
	WindowEnd   time.Time     `json:"window_end"`
	StartedAt   time.Time     `json:"started_at"`
	Duration    time.Duration `json:"duration"`
	Outcomes    []Outcome     `json:"outcomes"`
}

// Failures returns the failed outcomes in stage order.
func (r RunReport) Failures() []Outcome {
	var failed []Outcome
	for _, outcome := range r.Outcomes {
		if outcome.Status == StatusFailed {
			failed = append(failed, outcome)
		}
	}
	return failed
}

// aggregateStatus folds stage outcomes into the run status. Intentional skips
// (duplicate, upstream failure) count toward neither side, but a cancellation
// skip marks the whole run cancelled so a stopped run is never reported as a
// clean success.
func aggregateStatus(outcomes []Outcome) RunStatus {
	var succeeded, failed, cancelled int
	for _, outcome := range outcomes {
		switch {
		case outcome.Status == StatusSucceeded:
			succeeded++
		case outcome.Status == StatusFailed:
			failed++
		case outcome.Status == StatusSkipped && outcome.Reason == SkipCancelled:
			cancelled++
		}
	}
	switch {
	case cancelled > 0:
		return RunCancelled
	case failed == 0:
		return RunAllSucceeded
	case succeeded > 0:
		return RunPartialFailure
	default:
		return RunAllFailed
	}
}
