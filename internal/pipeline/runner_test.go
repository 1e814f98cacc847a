package pipeline_test

import (
	"context"
	"testing"
	"time"

	"voicepipe/internal/pipeline"
	"voicepipe/internal/services"
)

type flakyExecutor struct {
	failures int
	calls    int
	err      error
}

func (f *flakyExecutor) Execute(ctx context.Context, run *pipeline.RunContext) (string, error) {
	f.calls++
	if f.calls <= f.failures {
		if f.err != nil {
			return "", f.err
		}
		return "", services.Wrap(services.ErrUnavailable, "test", "call", "temporary", nil)
	}
	return "done", nil
}

func newTestRunner(policy pipeline.RetryPolicy) (*pipeline.StageRunner, *[]time.Duration) {
	runner := pipeline.NewStageRunner(policy, nil)
	var slept []time.Duration
	runner.SetSleep(func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	})
	return runner, &slept
}

func TestRunRetriesTransientThenSucceeds(t *testing.T) {
	policy := pipeline.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 60 * time.Second}
	runner, slept := newTestRunner(policy)
	exec := &flakyExecutor{failures: 2}

	outcome := runner.Run(context.Background(), pipeline.StageDefinition{
		Name:     "transcribe",
		Executor: exec,
	}, &pipeline.RunContext{RunID: "r1"})

	if outcome.Status != pipeline.StatusSucceeded {
		t.Fatalf("status = %s, want succeeded", outcome.Status)
	}
	if outcome.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", outcome.Attempts)
	}
	if outcome.Detail != "done" {
		t.Fatalf("detail = %q", outcome.Detail)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(*slept) != len(want) || (*slept)[0] != want[0] || (*slept)[1] != want[1] {
		t.Fatalf("backoffs = %v, want %v", *slept, want)
	}
}

func TestRunExhaustsAttempts(t *testing.T) {
	policy := pipeline.RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}
	runner, _ := newTestRunner(policy)
	exec := &flakyExecutor{failures: 10}

	outcome := runner.Run(context.Background(), pipeline.StageDefinition{
		Name:     "transcribe",
		Executor: exec,
	}, &pipeline.RunContext{RunID: "r1"})

	if outcome.Status != pipeline.StatusFailed {
		t.Fatalf("status = %s, want failed", outcome.Status)
	}
	if outcome.Attempts != 3 {
		t.Fatalf("attempts = %d, want 3", outcome.Attempts)
	}
	if outcome.Kind != services.KindTransient {
		t.Fatalf("kind = %s, want transient", outcome.Kind)
	}
	if exec.calls != 3 {
		t.Fatalf("executor called %d times, want 3", exec.calls)
	}
}

func TestRunStopsOnPermanentError(t *testing.T) {
	policy := pipeline.RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second}
	runner, slept := newTestRunner(policy)
	exec := &flakyExecutor{
		failures: 10,
		err:      services.Wrap(services.ErrUnauthorized, "summarize", "request", "bad api key", nil),
	}

	outcome := runner.Run(context.Background(), pipeline.StageDefinition{
		Name:     "summarize",
		Executor: exec,
	}, &pipeline.RunContext{RunID: "r1"})

	if outcome.Status != pipeline.StatusFailed {
		t.Fatalf("status = %s, want failed", outcome.Status)
	}
	if outcome.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", outcome.Attempts)
	}
	if outcome.Kind != services.KindPermanent {
		t.Fatalf("kind = %s, want permanent", outcome.Kind)
	}
	if len(*slept) != 0 {
		t.Fatalf("unexpected backoffs: %v", *slept)
	}
}

func TestRunAbortsWhenContextCancelledDuringBackoff(t *testing.T) {
	policy := pipeline.RetryPolicy{MaxAttempts: 5, BaseDelay: time.Second}
	runner := pipeline.NewStageRunner(policy, nil)

	ctx, cancel := context.WithCancel(context.Background())
	runner.SetSleep(func(sleepCtx context.Context, d time.Duration) error {
		cancel()
		return sleepCtx.Err()
	})

	exec := &flakyExecutor{failures: 10}
	outcome := runner.Run(ctx, pipeline.StageDefinition{
		Name:     "transcribe",
		Executor: exec,
	}, &pipeline.RunContext{RunID: "r1"})

	if outcome.Status != pipeline.StatusFailed {
		t.Fatalf("status = %s, want failed", outcome.Status)
	}
	if exec.calls != 1 {
		t.Fatalf("executor called %d times after cancel, want 1", exec.calls)
	}
}
