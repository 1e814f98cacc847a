package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrTransient     = errors.New("transient failure")
	ErrTimeout       = errors.New("timeout")
	ErrRateLimited   = errors.New("rate limited")
	ErrUnavailable   = errors.New("service unavailable")
	ErrPermanent     = errors.New("permanent failure")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
)

// Kind partitions stage failures for retry decisions. Executors report it by
// wrapping errors with the sentinel markers above; Classify recovers it.
type Kind string

const (
	KindTransient Kind = "transient"
	KindPermanent Kind = "permanent"
	// KindUpstream is assigned by the orchestrator to stages skipped after a
	// non-isolated failure. Executors never produce it.
	KindUpstream Kind = "upstream"
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later retry classification. The marker should
// be one of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps a stage error to its retry kind. Unmarked errors are treated
// as transient: an executor that cannot say otherwise gets the benefit of a
// retry rather than a silent permanent failure.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindTransient
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrPermanent):
		return KindPermanent
	default:
		return KindTransient
	}
}

// Retryable reports whether err should be handed to the retry policy.
func Retryable(err error) bool {
	return Classify(err) == KindTransient
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

// Details extracts a human-readable message from a wrapped stage error,
// stripping the leading sentinel text when present.
func Details(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	for _, marker := range []error{
		ErrTransient, ErrTimeout, ErrRateLimited, ErrUnavailable,
		ErrPermanent, ErrValidation, ErrConfiguration, ErrNotFound, ErrUnauthorized,
	} {
		prefix := marker.Error() + ": "
		if strings.HasPrefix(msg, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(msg, prefix))
		}
	}
	return strings.TrimSpace(msg)
}
