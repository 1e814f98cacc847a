// Package httpapi carries the request plumbing shared by the external API
// clients: timeouts, status-code classification, and JSON decoding.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"voicepipe/internal/services"
)

// UserAgent identifies voicepipe requests to external APIs.
const UserAgent = "Voicepipe-Go/0.1.0"

// NewClient builds an HTTP client with the configured timeout, falling back
// when the setting is unset.
func NewClient(timeoutSeconds int, fallback time.Duration) *http.Client {
	timeout := fallback
	if timeoutSeconds > 0 {
		timeout = time.Duration(timeoutSeconds) * time.Second
	}
	return &http.Client{Timeout: timeout}
}

// WrapTransport classifies a transport-level failure. Timeouts are marked
// retryable as timeouts, everything else as service unavailability.
func WrapTransport(stage, operation string, err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return services.Wrap(services.ErrTimeout, stage, operation, "request timed out", err)
	}
	return services.Wrap(services.ErrUnavailable, stage, operation, "request failed", err)
}

// StatusError reads a bounded amount of the response body and classifies the
// non-2xx status into the retry taxonomy.
func StatusError(stage, operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	detail := fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))

	var marker error
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		marker = services.ErrUnauthorized
	case resp.StatusCode == http.StatusNotFound:
		marker = services.ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		marker = services.ErrRateLimited
	case resp.StatusCode == http.StatusRequestTimeout:
		marker = services.ErrTimeout
	case resp.StatusCode >= 500:
		marker = services.ErrUnavailable
	default:
		marker = services.ErrPermanent
	}
	return services.Wrap(marker, stage, operation, detail, nil)
}

// DecodeJSON drains and decodes a JSON response body.
func DecodeJSON(stage, operation string, resp *http.Response, out any) error {
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return StatusError(stage, operation, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return services.Wrap(services.ErrPermanent, stage, operation, "decode response", err)
	}
	return nil
}
