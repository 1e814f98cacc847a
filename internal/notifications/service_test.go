package notifications_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voicepipe/internal/config"
	"voicepipe/internal/notifications"
	"voicepipe/internal/pipeline"
)

func TestNewServiceReturnsNoopWhenAPIKeyMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Mail.APIKey = ""
	svc := notifications.NewService(&cfg)
	if err := svc.TestNotification(context.Background()); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func newMailServer(t *testing.T, status int, capture *map[string]any) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/emails" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer re_test" {
			t.Errorf("authorization = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if capture != nil {
			var decoded map[string]any
			if err := json.Unmarshal(body, &decoded); err != nil {
				t.Errorf("decode payload: %v", err)
			}
			*capture = decoded
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server
}

func mailConfig(baseURL string) config.Config {
	cfg := config.Default()
	cfg.Mail.BaseURL = baseURL
	cfg.Mail.APIKey = "re_test"
	cfg.Mail.From = "diary@example.com"
	cfg.Mail.To = "me@example.com"
	return cfg
}

func TestNotifyRunReportPostsMail(t *testing.T) {
	var captured map[string]any
	server := newMailServer(t, http.StatusOK, &captured)
	cfg := mailConfig(server.URL)
	svc := notifications.NewService(&cfg)

	report := pipeline.RunReport{
		RunID:       "run-1",
		Status:      pipeline.RunPartialFailure,
		WindowStart: time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC),
		WindowEnd:   time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC),
		Outcomes: []pipeline.Outcome{
			{Stage: "ingest", Status: pipeline.StatusSucceeded, Attempts: 1, Detail: "2 files"},
			{Stage: "transcribe", Status: pipeline.StatusFailed, Attempts: 3, Error: "api down"},
			{Stage: "summarize", Status: pipeline.StatusSkipped, Reason: pipeline.SkipUpstreamFailure},
		},
	}
	if err := svc.NotifyRunReport(context.Background(), report); err != nil {
		t.Fatalf("NotifyRunReport: %v", err)
	}

	if captured["from"] != "diary@example.com" {
		t.Fatalf("from = %v", captured["from"])
	}
	text, _ := captured["text"].(string)
	for _, want := range []string{"partial_failure", "transcribe: failed after 3 attempt(s): api down", "summarize: skipped (upstream failure)"} {
		if !strings.Contains(text, want) {
			t.Fatalf("mail body missing %q:\n%s", want, text)
		}
	}
}

func TestNotifySummarySetsSubject(t *testing.T) {
	var captured map[string]any
	server := newMailServer(t, http.StatusOK, &captured)
	cfg := mailConfig(server.URL)
	svc := notifications.NewService(&cfg)

	if err := svc.NotifySummary(context.Background(), "2026-08-29", "=== Diary Summary: 2026-08-29 ===\nA day."); err != nil {
		t.Fatalf("NotifySummary: %v", err)
	}
	if captured["subject"] != "Diary summary for 2026-08-29" {
		t.Fatalf("subject = %v", captured["subject"])
	}
}

func TestSendSurfacesAPIErrors(t *testing.T) {
	server := newMailServer(t, http.StatusBadGateway, nil)
	cfg := mailConfig(server.URL)
	svc := notifications.NewService(&cfg)

	err := svc.TestNotification(context.Background())
	if err == nil {
		t.Fatal("expected error for 502 response")
	}
	if !strings.Contains(err.Error(), "502") {
		t.Fatalf("error = %v", err)
	}
}
