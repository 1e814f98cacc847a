package pipeline

import (
	"context"
	"time"

	"voicepipe/internal/session"
)

// RunContext carries the per-run state handed to every stage executor.
type RunContext struct {
	RunID       string
	WindowStart time.Time
	WindowEnd   time.Time
	// Session is populated before Execute when the stage declares a
	// SessionPurpose, and is the zero Handle otherwise.
	Session session.Handle
}

// Executor performs one stage attempt. The returned detail is a short
// human-readable result recorded on the outcome, for example "3 files
// transcribed". Errors wrapped with a services sentinel drive the retry
// decision; unwrapped errors are treated as transient.
type Executor interface {
	Execute(ctx context.Context, run *RunContext) (string, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, run *RunContext) (string, error)

func (f ExecutorFunc) Execute(ctx context.Context, run *RunContext) (string, error) {
	return f(ctx, run)
}

// StageDefinition describes one stage in orchestrator order.
type StageDefinition struct {
	// Name identifies the stage in outcomes and logs. Must be unique within
	// a pipeline.
	Name string
	// Executor performs the work. Required.
	Executor Executor
	// Isolated stages do not block downstream stages when they fail.
	Isolated bool
	// SessionPurpose, when set, makes the orchestrator acquire a conversation
	// thread for that purpose before the stage runs.
	SessionPurpose string
	// Guarded stages are subject to the duplicate work guard: they are
	// skipped when the work window was already processed, and a successful
	// execution marks the window processed.
	Guarded bool
}
