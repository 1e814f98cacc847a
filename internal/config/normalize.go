package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Normalize expands user-relative paths and trims string settings.
func (c *Config) Normalize() error {
	for _, field := range []*string{
		&c.Paths.DataDir, &c.Paths.InboxDir, &c.Paths.ArchiveDir, &c.Paths.LogDir,
	} {
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}

	c.Drive.BaseURL = strings.TrimRight(strings.TrimSpace(c.Drive.BaseURL), "/")
	c.Transcriber.BaseURL = strings.TrimRight(strings.TrimSpace(c.Transcriber.BaseURL), "/")
	c.Assistant.BaseURL = strings.TrimRight(strings.TrimSpace(c.Assistant.BaseURL), "/")
	c.Mail.BaseURL = strings.TrimRight(strings.TrimSpace(c.Mail.BaseURL), "/")

	c.Drive.Token = strings.TrimSpace(c.Drive.Token)
	c.Transcriber.APIKey = strings.TrimSpace(c.Transcriber.APIKey)
	c.Assistant.APIKey = strings.TrimSpace(c.Assistant.APIKey)
	c.Mail.APIKey = strings.TrimSpace(c.Mail.APIKey)
	c.Mail.From = strings.TrimSpace(c.Mail.From)
	c.Mail.To = strings.TrimSpace(c.Mail.To)

	instants := make([]string, 0, len(c.Scheduler.DailyAt))
	for _, raw := range c.Scheduler.DailyAt {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			instants = append(instants, trimmed)
		}
	}
	c.Scheduler.DailyAt = instants

	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	return nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("expand path %q: %w", path, err)
		}
		if trimmed == "~" {
			return home, nil
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	return filepath.Clean(trimmed), nil
}
