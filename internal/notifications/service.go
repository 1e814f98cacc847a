package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"voicepipe/internal/config"
	"voicepipe/internal/pipeline"
)

const userAgent = "Voicepipe-Go/0.1.0"

// Service defines the notification surface exposed to the daemon.
type Service interface {
	NotifyRunReport(ctx context.Context, report pipeline.RunReport) error
	NotifySummary(ctx context.Context, date string, summary string) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by a Resend-style mail API
// when configured. When no mail API key is configured, a noop implementation
// is returned.
func NewService(cfg *config.Config) Service {
	apiKey := strings.TrimSpace(cfg.Mail.APIKey)
	if apiKey == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Mail.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &mailService{
		endpoint: cfg.Mail.BaseURL + "/emails",
		apiKey:   apiKey,
		from:     cfg.Mail.From,
		to:       cfg.Mail.To,
		client:   &http.Client{Timeout: timeout},
	}
}

type mailService struct {
	endpoint string
	apiKey   string
	from     string
	to       string
	client   *http.Client
}

type message struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Text    string   `json:"text"`
}

func (m *mailService) NotifyRunReport(ctx context.Context, report pipeline.RunReport) error {
	var body strings.Builder
	fmt.Fprintf(&body, "Run %s finished with status %s in %s.\n\n", report.RunID, report.Status, report.Duration.Round(time.Millisecond))
	fmt.Fprintf(&body, "Window: %s to %s\n\n", report.WindowStart.Format("2006-01-02 15:04"), report.WindowEnd.Format("2006-01-02 15:04"))
	for _, outcome := range report.Outcomes {
		fmt.Fprintf(&body, "- %s: %s", outcome.Stage, outcome.Status)
		switch outcome.Status {
		case pipeline.StatusFailed:
			fmt.Fprintf(&body, " after %d attempt(s): %s", outcome.Attempts, outcome.Error)
		case pipeline.StatusSkipped:
			fmt.Fprintf(&body, " (%s)", outcome.Reason)
		default:
			if outcome.Detail != "" {
				fmt.Fprintf(&body, ": %s", outcome.Detail)
			}
		}
		body.WriteString("\n")
	}
	subject := fmt.Sprintf("Voicepipe run %s", report.Status)
	return m.send(ctx, subject, body.String())
}

func (m *mailService) NotifySummary(ctx context.Context, date string, summary string) error {
	subject := fmt.Sprintf("Diary summary for %s", date)
	return m.send(ctx, subject, summary)
}

func (m *mailService) NotifyError(ctx context.Context, err error, context string) error {
	context = strings.TrimSpace(context)
	body := fmt.Sprintf("Error: %v", err)
	if context != "" {
		body = fmt.Sprintf("%s\nContext: %s", body, context)
	}
	return m.send(ctx, "Voicepipe error", body)
}

func (m *mailService) TestNotification(ctx context.Context) error {
	return m.send(ctx, "Voicepipe test", "Test notification from voicepipe.")
}

func (m *mailService) send(ctx context.Context, subject, text string) error {
	if m == nil || m.client == nil {
		return nil
	}

	payload, err := json.Marshal(message{
		From:    m.from,
		To:      []string{m.to},
		Subject: subject,
		Text:    text,
	})
	if err != nil {
		return fmt.Errorf("encode mail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build mail request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("mail API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyRunReport(context.Context, pipeline.RunReport) error { return nil }
func (noopService) NotifySummary(context.Context, string, string) error       { return nil }
func (noopService) NotifyError(context.Context, error, string) error          { return nil }
func (noopService) TestNotification(context.Context) error                    { return nil }
