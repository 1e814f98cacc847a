package httpapi_test

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"voicepipe/internal/services"
	"voicepipe/internal/services/httpapi"
)

func responseWithStatus(status int) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader("details")),
	}
}

func TestStatusErrorClassification(t *testing.T) {
	tests := []struct {
		status int
		marker error
	}{
		{http.StatusUnauthorized, services.ErrUnauthorized},
		{http.StatusForbidden, services.ErrUnauthorized},
		{http.StatusNotFound, services.ErrNotFound},
		{http.StatusTooManyRequests, services.ErrRateLimited},
		{http.StatusRequestTimeout, services.ErrTimeout},
		{http.StatusBadGateway, services.ErrUnavailable},
		{http.StatusBadRequest, services.ErrPermanent},
	}
	for _, tc := range tests {
		err := httpapi.StatusError("drive", "list", responseWithStatus(tc.status))
		if !errors.Is(err, tc.marker) {
			t.Errorf("status %d: error %v not marked with %v", tc.status, err, tc.marker)
		}
	}
}

func TestStatusErrorRetryability(t *testing.T) {
	if services.Retryable(httpapi.StatusError("drive", "list", responseWithStatus(http.StatusUnauthorized))) {
		t.Fatal("401 must not be retryable")
	}
	if !services.Retryable(httpapi.StatusError("drive", "list", responseWithStatus(http.StatusServiceUnavailable))) {
		t.Fatal("503 must be retryable")
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "deadline exceeded" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestWrapTransportTimeout(t *testing.T) {
	err := httpapi.WrapTransport("drive", "download", timeoutErr{})
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("error %v not marked as timeout", err)
	}
	if !services.Retryable(err) {
		t.Fatal("timeouts must be retryable")
	}

	other := httpapi.WrapTransport("drive", "download", errors.New("connection refused"))
	if !errors.Is(other, services.ErrUnavailable) {
		t.Fatalf("error %v not marked unavailable", other)
	}
}
