package pipeline

import (
	"context"
	"log/slog"
	"time"

	"voicepipe/internal/logging"
	"voicepipe/internal/services"
)

// StageRunner executes one stage to a terminal outcome, absorbing transient
// failures according to the retry policy. Callers never see a retryable error
// escape: the outcome is Succeeded or Failed, with the attempt count recorded.
type StageRunner struct {
	policy RetryPolicy
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewStageRunner builds a runner. A nil logger disables logging.
func NewStageRunner(policy RetryPolicy, logger *slog.Logger) *StageRunner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StageRunner{
		policy: policy,
		logger: logger.With(logging.String(logging.FieldComponent, "runner")),
		sleep:  sleepContext,
	}
}

// SetSleep overrides the backoff sleep. Intended for tests.
func (r *StageRunner) SetSleep(sleep func(ctx context.Context, d time.Duration) error) {
	r.sleep = sleep
}

// Run executes the stage until it succeeds, exhausts its attempts, fails
// permanently, or the context is cancelled.
func (r *StageRunner) Run(ctx context.Context, def StageDefinition, run *RunContext) Outcome {
	stageCtx := services.WithStage(ctx, def.Name)
	logger := r.logger.With(
		logging.String(logging.FieldStage, def.Name),
		logging.String(logging.FieldRunID, run.RunID),
	)
	started := time.Now()

	var lastErr error
	attempt := 0
	for {
		attempt++
		logger.Debug("stage attempt", logging.Int("attempt", attempt))
		detail, err := def.Executor.Execute(stageCtx, run)
		if err == nil {
			return Outcome{
				Stage:    def.Name,
				Status:   StatusSucceeded,
				Attempts: attempt,
				Detail:   detail,
				Duration: time.Since(started),
			}
		}
		lastErr = err

		delay, retry := r.policy.Decide(attempt, err)
		if !retry {
			break
		}
		logger.Warn("stage attempt failed, retrying",
			logging.Int("attempt", attempt),
			logging.Duration("backoff", delay),
			logging.Error(err))
		if sleepErr := r.sleep(stageCtx, delay); sleepErr != nil {
			lastErr = services.Wrap(services.ErrTransient, def.Name, "retry wait", "interrupted", sleepErr)
			break
		}
	}

	logger.Error("stage failed",
		logging.Int("attempts", attempt),
		logging.String("kind", string(services.Classify(lastErr))),
		logging.Error(lastErr))
	return Outcome{
		Stage:    def.Name,
		Status:   StatusFailed,
		Attempts: attempt,
		Kind:     services.Classify(lastErr),
		Error:    services.Details(lastErr),
		Duration: time.Since(started),
		err:      lastErr,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
