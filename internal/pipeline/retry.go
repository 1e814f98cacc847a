package pipeline

import (
	"time"

	"voicepipe/internal/config"
	"voicepipe/internal/services"
)

// RetryPolicy decides whether a failed attempt gets another try and how long
// to wait before it. Delays double per attempt from BaseDelay up to MaxDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// PolicyFromConfig builds the policy from the retry configuration section.
func PolicyFromConfig(cfg *config.Config) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   time.Duration(cfg.Retry.BaseDelaySeconds) * time.Second,
		MaxDelay:    time.Duration(cfg.Retry.MaxDelaySeconds) * time.Second,
	}
}

// Decide reports whether the attempt that just failed with err should be
// retried, and the backoff to wait first. attempt is 1-based.
func (p RetryPolicy) Decide(attempt int, err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}
	if attempt >= p.maxAttempts() {
		return 0, false
	}
	if !services.Retryable(err) {
		return 0, false
	}
	return p.backoff(attempt), true
}

func (p RetryPolicy) maxAttempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := p.BaseDelay
	if delay <= 0 {
		return 0
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}
