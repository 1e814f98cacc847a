package stages

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"voicepipe/internal/logging"
	"voicepipe/internal/pipeline"
	"voicepipe/internal/services"
	"voicepipe/internal/session"
	"voicepipe/internal/store"
)

const entriesPlaceholder = "{{entries}}"

// Completer is the assistant surface the summarize stage needs.
type Completer interface {
	Complete(ctx context.Context, threadID, prompt string) (string, error)
}

// SummaryStore reads window entries and persists the generated summary.
type SummaryStore interface {
	EntriesBetween(ctx context.Context, start, end time.Time) ([]store.JournalEntry, error)
	SaveSummary(ctx context.Context, summary store.Summary) error
}

// SummaryNotifier delivers the finished summary. Delivery is best effort.
type SummaryNotifier interface {
	NotifySummary(ctx context.Context, date string, summary string) error
}

// Summarize asks the assistant for a digest of the window's journal entries
// on the run's conversation thread.
type Summarize struct {
	assistant Completer
	store     SummaryStore
	notifier  SummaryNotifier
	prompt    string
	logger    *slog.Logger
}

// NewSummarize builds the summarize executor. Notifier may be nil; a nil
// logger disables logging.
func NewSummarize(assistant Completer, st SummaryStore, notifier SummaryNotifier, prompt string, logger *slog.Logger) *Summarize {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Summarize{
		assistant: assistant,
		store:     st,
		notifier:  notifier,
		prompt:    prompt,
		logger:    logger.With(logging.String(logging.FieldComponent, "summarize")),
	}
}

// Header formats the summary banner for a window start date.
func Header(date time.Time) string {
	return fmt.Sprintf("=== Diary Summary: %s ===", date.Format("2006-01-02"))
}

// Execute implements pipeline.Executor.
func (s *Summarize) Execute(ctx context.Context, run *pipeline.RunContext) (string, error) {
	if run.Session.ID == "" {
		return "", services.Wrap(services.ErrConfiguration, "summarize", "thread", "no conversation thread on run", nil)
	}

	entries, err := s.store.EntriesBetween(ctx, run.WindowStart, run.WindowEnd)
	if err != nil {
		return "", services.Wrap(services.ErrUnavailable, "summarize", "read entries", "query journal entries", err)
	}
	if len(entries) == 0 {
		return "no entries in window", nil
	}

	reply, err := s.assistant.Complete(ctx, run.Session.ID, s.buildPrompt(entries))
	if err != nil {
		return "", err
	}

	header := Header(run.WindowStart)
	content := reply
	if !strings.HasPrefix(content, header) {
		content = header + "\n" + content
	}

	summary := store.Summary{
		GuardKey:    session.SummaryKey(run.WindowStart, run.WindowEnd),
		WindowStart: run.WindowStart,
		WindowEnd:   run.WindowEnd,
		Content:     content,
	}
	if err := s.store.SaveSummary(ctx, summary); err != nil {
		return "", services.Wrap(services.ErrUnavailable, "summarize", "persist", "save summary", err)
	}

	if s.notifier != nil {
		date := run.WindowStart.Format("2006-01-02")
		if err := s.notifier.NotifySummary(ctx, date, content); err != nil {
			s.logger.Warn("summary notification failed", logging.Error(err))
		}
	}
	return fmt.Sprintf("%d entries summarized", len(entries)), nil
}

func (s *Summarize) buildPrompt(entries []store.JournalEntry) string {
	var joined strings.Builder
	for i, entry := range entries {
		if i > 0 {
			joined.WriteString("\n\n")
		}
		fmt.Fprintf(&joined, "[%s] %s", entry.RecordedAt.Format("15:04"), entry.Content)
	}

	if strings.Contains(s.prompt, entriesPlaceholder) {
		return strings.ReplaceAll(s.prompt, entriesPlaceholder, joined.String())
	}
	return s.prompt + "\n\n" + joined.String()
}
