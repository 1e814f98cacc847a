package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	InboxDir   string `toml:"inbox_dir"`
	ArchiveDir string `toml:"archive_dir"`
	LogDir     string `toml:"log_dir"`
}

// Scheduler contains trigger configuration for the pipeline daemon.
type Scheduler struct {
	// RunsPerDay spaces fixed-interval runs evenly across the day
	// (interval = 86400 / runs_per_day seconds). Zero disables the
	// interval trigger; the daemon then runs once and exits unless
	// daily_at instants are configured.
	RunsPerDay int `toml:"runs_per_day"`
	// DailyAt lists additional HH:MM instants at which a run fires.
	DailyAt []string `toml:"daily_at"`
}

// Retry contains the stage retry policy settings.
type Retry struct {
	MaxAttempts      int `toml:"max_attempts"`
	BaseDelaySeconds int `toml:"base_delay_seconds"`
	MaxDelaySeconds  int `toml:"max_delay_seconds"`
}

// Session contains assistant conversation-thread lifecycle settings.
type Session struct {
	RetentionDays int `toml:"retention_days"`
}

// Summary contains summarization behavior settings.
type Summary struct {
	AllowOverwrite bool   `toml:"allow_overwrite"`
	Prompt         string `toml:"prompt"`
}

// Drive contains configuration for the remote audio-storage provider.
type Drive struct {
	BaseURL         string `toml:"base_url"`
	Token           string `toml:"token"`
	FolderID        string `toml:"folder_id"`
	ArchiveFolderID string `toml:"archive_folder_id"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
}

// Transcriber contains configuration for the speech-to-text service.
type Transcriber struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Assistant contains configuration for the summarization assistant API.
type Assistant struct {
	BaseURL             string `toml:"base_url"`
	APIKey              string `toml:"api_key"`
	AssistantID         string `toml:"assistant_id"`
	Model               string `toml:"model"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	TimeoutSeconds      int    `toml:"timeout_seconds"`
}

// Mail contains configuration for report delivery.
type Mail struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	From           string `toml:"from"`
	To             string `toml:"to"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Logging contains log output settings.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the root voicepipe configuration.
type Config struct {
	Paths       Paths       `toml:"paths"`
	Scheduler   Scheduler   `toml:"scheduler"`
	Retry       Retry       `toml:"retry"`
	Session     Session     `toml:"session"`
	Summary     Summary     `toml:"summary"`
	Drive       Drive       `toml:"drive"`
	Transcriber Transcriber `toml:"transcriber"`
	Assistant   Assistant   `toml:"assistant"`
	Mail        Mail        `toml:"mail"`
	Logging     Logging     `toml:"logging"`
}

// DefaultConfigPath returns the per-user configuration file location.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", "voicepipe", "config.toml"), nil
}

// Load reads configuration from path (or the default location when empty),
// applies environment overrides, normalizes paths, and validates the result.
// It returns the config, the path that was read, and whether a file existed.
func Load(path string) (*Config, string, bool, error) {
	resolved := strings.TrimSpace(path)
	if resolved == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return nil, "", false, err
		}
		resolved = defaultPath
	}

	cfg := Default()
	exists := true
	data, err := os.ReadFile(resolved)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, resolved, true, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		exists = false
	default:
		return nil, resolved, false, fmt.Errorf("read config %s: %w", resolved, err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Normalize(); err != nil {
		return nil, resolved, exists, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, resolved, exists, err
	}
	return &cfg, resolved, exists, nil
}

func (c *Config) applyEnvOverrides() {
	if v := strings.TrimSpace(os.Getenv("VOICEPIPE_DRIVE_TOKEN")); v != "" {
		c.Drive.Token = v
	}
	if v := strings.TrimSpace(os.Getenv("VOICEPIPE_TRANSCRIBER_API_KEY")); v != "" {
		c.Transcriber.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("VOICEPIPE_ASSISTANT_API_KEY")); v != "" {
		c.Assistant.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("VOICEPIPE_MAIL_API_KEY")); v != "" {
		c.Mail.APIKey = v
	}
}

// HasTriggers reports whether any scheduler trigger is configured. Without
// triggers the daemon runs the pipeline once and exits.
func (c *Config) HasTriggers() bool {
	return c.Scheduler.RunsPerDay > 0 || len(c.Scheduler.DailyAt) > 0
}

// EnsureDirectories creates the directories the pipeline writes to.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.InboxDir, c.Paths.ArchiveDir, c.Paths.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// WriteSample writes the embedded sample configuration to path.
func WriteSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Sample returns the embedded sample configuration text.
func Sample() string {
	return sampleConfig
}
