package config

const (
	defaultDataDir    = "~/.local/share/voicepipe"
	defaultInboxDir   = "~/.local/share/voicepipe/inbox"
	defaultArchiveDir = "~/.local/share/voicepipe/archive"
	defaultLogDir     = "~/.local/share/voicepipe/logs"

	defaultRunsPerDay = 12
	defaultDailyAt    = "23:55"

	defaultRetryMaxAttempts = 3
	defaultRetryBaseDelay   = 1
	defaultRetryMaxDelay    = 60

	defaultSessionRetentionDays = 30

	defaultDriveBaseURL       = "https://www.googleapis.com/drive/v3"
	defaultDriveTimeout       = 120
	defaultTranscriberBaseURL = "https://api.openai.com/v1"
	defaultTranscriberModel   = "whisper-1"
	defaultTranscriberTimeout = 300
	defaultAssistantBaseURL   = "https://api.openai.com/v1"
	defaultAssistantModel     = "gpt-4o"
	defaultAssistantPoll      = 1
	defaultAssistantTimeout   = 120
	defaultMailBaseURL        = "https://api.resend.com"
	defaultMailTimeout        = 30

	defaultLogFormat = "console"
	defaultLogLevel  = "info"

	defaultSummaryPrompt = "Summarize the following diary entries into a short, " +
		"readable account of the day. Keep the voice personal and note any " +
		"recurring themes.\n\n{{entries}}"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:    defaultDataDir,
			InboxDir:   defaultInboxDir,
			ArchiveDir: defaultArchiveDir,
			LogDir:     defaultLogDir,
		},
		Scheduler: Scheduler{
			RunsPerDay: defaultRunsPerDay,
			DailyAt:    []string{defaultDailyAt},
		},
		Retry: Retry{
			MaxAttempts:      defaultRetryMaxAttempts,
			BaseDelaySeconds: defaultRetryBaseDelay,
			MaxDelaySeconds:  defaultRetryMaxDelay,
		},
		Session: Session{
			RetentionDays: defaultSessionRetentionDays,
		},
		Summary: Summary{
			Prompt: defaultSummaryPrompt,
		},
		Drive: Drive{
			BaseURL:        defaultDriveBaseURL,
			TimeoutSeconds: defaultDriveTimeout,
		},
		Transcriber: Transcriber{
			BaseURL:        defaultTranscriberBaseURL,
			Model:          defaultTranscriberModel,
			TimeoutSeconds: defaultTranscriberTimeout,
		},
		Assistant: Assistant{
			BaseURL:             defaultAssistantBaseURL,
			Model:               defaultAssistantModel,
			PollIntervalSeconds: defaultAssistantPoll,
			TimeoutSeconds:      defaultAssistantTimeout,
		},
		Mail: Mail{
			BaseURL:        defaultMailBaseURL,
			TimeoutSeconds: defaultMailTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
