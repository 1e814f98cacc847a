package testsupport

import (
	"path/filepath"
	"testing"

	"voicepipe/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.InboxDir = filepath.Join(base, "inbox")
	cfgVal.Paths.ArchiveDir = filepath.Join(base, "archive")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithRetry overrides the retry settings on the test config.
func WithRetry(maxAttempts, baseDelaySeconds, maxDelaySeconds int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Retry.MaxAttempts = maxAttempts
		b.cfg.Retry.BaseDelaySeconds = baseDelaySeconds
		b.cfg.Retry.MaxDelaySeconds = maxDelaySeconds
	}
}

// WithMail configures the mail section on the test config.
func WithMail(baseURL, apiKey, from, to string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Mail.BaseURL = baseURL
		b.cfg.Mail.APIKey = apiKey
		b.cfg.Mail.From = from
		b.cfg.Mail.To = to
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
