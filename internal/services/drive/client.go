// Package drive fetches voice memos from a Google Drive folder and archives
// them once they have been ingested.
package drive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"voicepipe/internal/config"
	"voicepipe/internal/services"
	"voicepipe/internal/services/httpapi"
)

const defaultTimeout = 2 * time.Minute

// File is one remote memo awaiting ingestion.
type File struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MimeType    string `json:"mimeType"`
	CreatedTime string `json:"createdTime"`
}

// Client wraps the Drive v3 files API.
type Client struct {
	baseURL         string
	token           string
	folderID        string
	archiveFolderID string
	httpClient      *http.Client
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

// NewClient constructs a Drive client from the drive configuration section.
func NewClient(cfg *config.Config, opts ...Option) *Client {
	client := &Client{
		baseURL:         strings.TrimRight(cfg.Drive.BaseURL, "/"),
		token:           strings.TrimSpace(cfg.Drive.Token),
		folderID:        strings.TrimSpace(cfg.Drive.FolderID),
		archiveFolderID: strings.TrimSpace(cfg.Drive.ArchiveFolderID),
		httpClient:      httpapi.NewClient(cfg.Drive.TimeoutSeconds, defaultTimeout),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Configured reports whether the client has enough settings to operate.
func (c *Client) Configured() bool {
	return c.token != "" && c.folderID != ""
}

// ListAudio returns the audio files currently in the inbox folder.
func (c *Client) ListAudio(ctx context.Context) ([]File, error) {
	if !c.Configured() {
		return nil, services.Wrap(services.ErrConfiguration, "ingest", "list", "drive token and folder_id required", nil)
	}

	query := url.Values{}
	query.Set("q", fmt.Sprintf("'%s' in parents and mimeType contains 'audio/' and trashed = false", c.folderID))
	query.Set("fields", "files(id, name, mimeType, createdTime)")
	query.Set("orderBy", "createdTime")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/files?"+query.Encode(), nil)
	if err != nil {
		return nil, services.Wrap(services.ErrPermanent, "ingest", "list", "build request", err)
	}
	c.decorate(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, httpapi.WrapTransport("ingest", "list", err)
	}

	var payload struct {
		Files []File `json:"files"`
	}
	if err := httpapi.DecodeJSON("ingest", "list", resp, &payload); err != nil {
		return nil, err
	}
	return payload.Files, nil
}

// Download streams the file content to destDir, returning the local path.
func (c *Client) Download(ctx context.Context, file File, destDir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/files/%s?alt=media", c.baseURL, url.PathEscape(file.ID)), nil)
	if err != nil {
		return "", services.Wrap(services.ErrPermanent, "ingest", "download", "build request", err)
	}
	c.decorate(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", httpapi.WrapTransport("ingest", "download", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", httpapi.StatusError("ingest", "download", resp)
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", services.Wrap(services.ErrPermanent, "ingest", "download", "create destination dir", err)
	}
	destPath := filepath.Join(destDir, filepath.Base(file.Name))
	tmpPath := destPath + ".partial"
	out, err := os.Create(tmpPath)
	if err != nil {
		return "", services.Wrap(services.ErrPermanent, "ingest", "download", "create file", err)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		_ = out.Close()
		_ = os.Remove(tmpPath)
		return "", services.Wrap(services.ErrTransient, "ingest", "download", "copy content", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", services.Wrap(services.ErrPermanent, "ingest", "download", "close file", err)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		return "", services.Wrap(services.ErrPermanent, "ingest", "download", "finalize file", err)
	}
	return destPath, nil
}

// Archive moves the file out of the inbox folder into the archive folder.
// With no archive folder configured the file stays where it is.
func (c *Client) Archive(ctx context.Context, file File) error {
	if c.archiveFolderID == "" {
		return nil
	}

	query := url.Values{}
	query.Set("addParents", c.archiveFolderID)
	query.Set("removeParents", c.folderID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch,
		fmt.Sprintf("%s/files/%s?%s", c.baseURL, url.PathEscape(file.ID), query.Encode()), strings.NewReader("{}"))
	if err != nil {
		return services.Wrap(services.ErrPermanent, "ingest", "archive", "build request", err)
	}
	c.decorate(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return httpapi.WrapTransport("ingest", "archive", err)
	}
	return httpapi.DecodeJSON("ingest", "archive", resp, nil)
}

func (c *Client) decorate(req *http.Request) {
	req.Header.Set("User-Agent", httpapi.UserAgent)
	req.Header.Set("Authorization", "Bearer "+c.token)
}
