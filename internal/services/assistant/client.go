// Package assistant talks to an OpenAI Assistants style API: it opens
// conversation threads, posts prompts, and polls runs until the model has
// produced a reply.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"voicepipe/internal/config"
	"voicepipe/internal/services"
	"voicepipe/internal/services/httpapi"
)

const (
	defaultTimeout      = 2 * time.Minute
	defaultPollInterval = time.Second
)

// Client wraps the threads and runs endpoints.
type Client struct {
	baseURL      string
	apiKey       string
	assistantID  string
	model        string
	pollInterval time.Duration
	httpClient   *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithPollInterval overrides how often run status is polled.
func WithPollInterval(interval time.Duration) Option {
	return func(c *Client) {
		if interval > 0 {
			c.pollInterval = interval
		}
	}
}

// NewClient constructs an assistant client from the assistant configuration
// section.
func NewClient(cfg *config.Config, opts ...Option) *Client {
	pollInterval := defaultPollInterval
	if cfg.Assistant.PollIntervalSeconds > 0 {
		pollInterval = time.Duration(cfg.Assistant.PollIntervalSeconds) * time.Second
	}
	client := &Client{
		baseURL:      strings.TrimRight(cfg.Assistant.BaseURL, "/"),
		apiKey:       strings.TrimSpace(cfg.Assistant.APIKey),
		assistantID:  strings.TrimSpace(cfg.Assistant.AssistantID),
		model:        strings.TrimSpace(cfg.Assistant.Model),
		pollInterval: pollInterval,
		httpClient:   httpapi.NewClient(cfg.Assistant.TimeoutSeconds, defaultTimeout),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Configured reports whether the client has enough settings to operate.
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.assistantID != ""
}

// CreateThread opens a fresh conversation thread and returns its id. It
// satisfies the session ledger's Creator interface; purpose travels as thread
// metadata.
func (c *Client) CreateThread(ctx context.Context, purpose string) (string, error) {
	if !c.Configured() {
		return "", services.Wrap(services.ErrConfiguration, "summarize", "create thread", "assistant api_key and assistant_id required", nil)
	}

	payload := map[string]any{}
	if purpose != "" {
		payload["metadata"] = map[string]string{"purpose": purpose}
	}
	var created struct {
		ID string `json:"id"`
	}
	if err := c.postJSON(ctx, "create thread", "/threads", payload, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", services.Wrap(services.ErrPermanent, "summarize", "create thread", "response missing thread id", nil)
	}
	return created.ID, nil
}

// Complete posts the prompt to the thread, starts a run, and polls it until
// the assistant's reply is available.
func (c *Client) Complete(ctx context.Context, threadID, prompt string) (string, error) {
	if !c.Configured() {
		return "", services.Wrap(services.ErrConfiguration, "summarize", "complete", "assistant api_key and assistant_id required", nil)
	}
	if strings.TrimSpace(prompt) == "" {
		return "", services.Wrap(services.ErrValidation, "summarize", "complete", "prompt must not be empty", nil)
	}

	messagePayload := map[string]any{"role": "user", "content": prompt}
	if err := c.postJSON(ctx, "post message", "/threads/"+url.PathEscape(threadID)+"/messages", messagePayload, nil); err != nil {
		return "", err
	}

	runPayload := map[string]any{"assistant_id": c.assistantID}
	if c.model != "" {
		runPayload["model"] = c.model
	}
	var run struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := c.postJSON(ctx, "start run", "/threads/"+url.PathEscape(threadID)+"/runs", runPayload, &run); err != nil {
		return "", err
	}

	if err := c.awaitRun(ctx, threadID, run.ID, run.Status); err != nil {
		return "", err
	}
	return c.latestReply(ctx, threadID)
}

func (c *Client) awaitRun(ctx context.Context, threadID, runID, status string) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		switch status {
		case "completed":
			return nil
		case "failed", "cancelled", "expired", "incomplete":
			return services.Wrap(services.ErrTransient, "summarize", "await run", fmt.Sprintf("run ended with status %s", status), nil)
		case "requires_action":
			return services.Wrap(services.ErrPermanent, "summarize", "await run", "run requires tool action, none supported", nil)
		}

		select {
		case <-ctx.Done():
			return services.Wrap(services.ErrTimeout, "summarize", "await run", "polling interrupted", ctx.Err())
		case <-ticker.C:
		}

		var polled struct {
			Status string `json:"status"`
		}
		if err := c.getJSON(ctx, "poll run", "/threads/"+url.PathEscape(threadID)+"/runs/"+url.PathEscape(runID), &polled); err != nil {
			return err
		}
		status = polled.Status
	}
}

func (c *Client) latestReply(ctx context.Context, threadID string) (string, error) {
	var listed struct {
		Data []struct {
			Role    string `json:"role"`
			Content []struct {
				Type string `json:"type"`
				Text struct {
					Value string `json:"value"`
				} `json:"text"`
			} `json:"content"`
		} `json:"data"`
	}
	path := "/threads/" + url.PathEscape(threadID) + "/messages?order=desc&limit=10"
	if err := c.getJSON(ctx, "read reply", path, &listed); err != nil {
		return "", err
	}

	for _, message := range listed.Data {
		if message.Role != "assistant" {
			continue
		}
		var parts []string
		for _, content := range message.Content {
			if content.Type == "text" && content.Text.Value != "" {
				parts = append(parts, content.Text.Value)
			}
		}
		if len(parts) > 0 {
			return strings.TrimSpace(strings.Join(parts, "\n")), nil
		}
	}
	return "", services.Wrap(services.ErrPermanent, "summarize", "read reply", "no assistant reply in thread", nil)
}

func (c *Client) postJSON(ctx context.Context, operation, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return services.Wrap(services.ErrPermanent, "summarize", operation, "encode payload", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return services.Wrap(services.ErrPermanent, "summarize", operation, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, operation, out)
}

func (c *Client) getJSON(ctx context.Context, operation, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return services.Wrap(services.ErrPermanent, "summarize", operation, "build request", err)
	}
	return c.do(req, operation, out)
}

func (c *Client) do(req *http.Request, operation string, out any) error {
	req.Header.Set("User-Agent", httpapi.UserAgent)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("OpenAI-Beta", "assistants=v2")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return httpapi.WrapTransport("summarize", operation, err)
	}
	return httpapi.DecodeJSON("summarize", operation, resp, out)
}
