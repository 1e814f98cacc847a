// Package transcriber turns downloaded voice memos into text through a
// Whisper-style transcription API.
package transcriber

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"voicepipe/internal/config"
	"voicepipe/internal/services"
	"voicepipe/internal/services/httpapi"
)

const defaultTimeout = 5 * time.Minute

// Client wraps the audio transcription endpoint.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
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

// NewClient constructs a transcriber client from the transcriber
// configuration section.
func NewClient(cfg *config.Config, opts ...Option) *Client {
	client := &Client{
		baseURL:    strings.TrimRight(cfg.Transcriber.BaseURL, "/"),
		apiKey:     strings.TrimSpace(cfg.Transcriber.APIKey),
		model:      strings.TrimSpace(cfg.Transcriber.Model),
		httpClient: httpapi.NewClient(cfg.Transcriber.TimeoutSeconds, defaultTimeout),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Configured reports whether the client has an API key.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Transcribe uploads the audio file and returns its transcript.
func (c *Client) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if !c.Configured() {
		return "", services.Wrap(services.ErrConfiguration, "transcribe", "request", "transcriber api_key required", nil)
	}

	audio, err := os.Open(audioPath)
	if err != nil {
		return "", services.Wrap(services.ErrPermanent, "transcribe", "request", "open audio file", err)
	}
	defer func() { _ = audio.Close() }()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	if err := form.WriteField("model", c.model); err != nil {
		return "", services.Wrap(services.ErrPermanent, "transcribe", "request", "write model field", err)
	}
	part, err := form.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", services.Wrap(services.ErrPermanent, "transcribe", "request", "create form file", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", services.Wrap(services.ErrPermanent, "transcribe", "request", "copy audio", err)
	}
	if err := form.Close(); err != nil {
		return "", services.Wrap(services.ErrPermanent, "transcribe", "request", "finalize form", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", services.Wrap(services.ErrPermanent, "transcribe", "request", "build request", err)
	}
	req.Header.Set("User-Agent", httpapi.UserAgent)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", httpapi.WrapTransport("transcribe", "request", err)
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := httpapi.DecodeJSON("transcribe", "request", resp, &payload); err != nil {
		return "", err
	}
	text := strings.TrimSpace(payload.Text)
	if text == "" {
		return "", services.Wrap(services.ErrPermanent, "transcribe", "request", "empty transcript", nil)
	}
	return text, nil
}
