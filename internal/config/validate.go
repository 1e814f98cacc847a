package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateScheduler(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateSession(); err != nil {
		return err
	}
	if err := c.validateMail(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.DataDir == "" {
		return errors.New("paths.data_dir must be set")
	}
	if c.Paths.InboxDir == "" {
		return errors.New("paths.inbox_dir must be set")
	}
	if c.Paths.ArchiveDir == "" {
		return errors.New("paths.archive_dir must be set")
	}
	return nil
}

func (c *Config) validateScheduler() error {
	if c.Scheduler.RunsPerDay < 0 {
		return errors.New("scheduler.runs_per_day must not be negative")
	}
	if c.Scheduler.RunsPerDay > 1440 {
		return errors.New("scheduler.runs_per_day must not exceed 1440")
	}
	for _, instant := range c.Scheduler.DailyAt {
		if _, _, err := ParseClock(instant); err != nil {
			return fmt.Errorf("scheduler.daily_at: %w", err)
		}
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxAttempts < 1 {
		return errors.New("retry.max_attempts must be at least 1")
	}
	if c.Retry.BaseDelaySeconds < 0 {
		return errors.New("retry.base_delay_seconds must not be negative")
	}
	if c.Retry.MaxDelaySeconds > 0 && c.Retry.MaxDelaySeconds < c.Retry.BaseDelaySeconds {
		return errors.New("retry.max_delay_seconds must not be below retry.base_delay_seconds")
	}
	return nil
}

func (c *Config) validateSession() error {
	if c.Session.RetentionDays < 1 {
		return errors.New("session.retention_days must be at least 1")
	}
	return nil
}

func (c *Config) validateMail() error {
	// Mail is optional; when an API key is present the addresses must be too.
	if c.Mail.APIKey == "" {
		return nil
	}
	if c.Mail.From == "" {
		return errors.New("mail.from must be set when mail.api_key is configured")
	}
	if c.Mail.To == "" {
		return errors.New("mail.to must be set when mail.api_key is configured")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

// ParseClock parses an HH:MM instant into hour and minute components.
func ParseClock(value string) (int, int, error) {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", value)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", value)
	}
	return hour, minute, nil
}
