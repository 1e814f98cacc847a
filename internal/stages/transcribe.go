package stages

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"voicepipe/internal/logging"
	"voicepipe/internal/pipeline"
	"voicepipe/internal/services"
	"voicepipe/internal/store"
)

// audioExtensions lists the memo formats the transcribe stage picks up.
var audioExtensions = map[string]bool{
	".m4a":  true,
	".mp3":  true,
	".wav":  true,
	".ogg":  true,
	".flac": true,
	".webm": true,
}

// Transcriber is the speech-to-text surface the transcribe stage needs.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// EntryWriter persists transcribed journal entries.
type EntryWriter interface {
	InsertJournalEntry(ctx context.Context, entry store.JournalEntry) (int64, error)
}

// Transcribe converts every audio file in the inbox into a journal entry and
// moves the file to the local archive.
type Transcribe struct {
	client     Transcriber
	entries    EntryWriter
	inboxDir   string
	archiveDir string
	logger     *slog.Logger
}

// NewTranscribe builds the transcribe executor. A nil logger disables logging.
func NewTranscribe(client Transcriber, entries EntryWriter, inboxDir, archiveDir string, logger *slog.Logger) *Transcribe {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Transcribe{
		client:     client,
		entries:    entries,
		inboxDir:   inboxDir,
		archiveDir: archiveDir,
		logger:     logger.With(logging.String(logging.FieldComponent, "transcribe")),
	}
}

// Execute implements pipeline.Executor.
func (s *Transcribe) Execute(ctx context.Context, run *pipeline.RunContext) (string, error) {
	files, err := s.pendingFiles()
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "nothing to transcribe", nil
	}

	transcribed := 0
	for _, path := range files {
		if ctx.Err() != nil {
			return "", services.Wrap(services.ErrTransient, "transcribe", "scan", "interrupted", ctx.Err())
		}

		text, err := s.client.Transcribe(ctx, path)
		if err != nil {
			return "", err
		}

		info, err := os.Stat(path)
		if err != nil {
			return "", services.Wrap(services.ErrPermanent, "transcribe", "stat", path, err)
		}
		id, err := s.entries.InsertJournalEntry(ctx, store.JournalEntry{
			SourceFile: filepath.Base(path),
			Content:    text,
			RecordedAt: info.ModTime(),
		})
		if err != nil {
			return "", services.Wrap(services.ErrUnavailable, "transcribe", "persist", "insert journal entry", err)
		}

		if err := s.archive(path); err != nil {
			return "", err
		}
		s.logger.Info("memo transcribed",
			logging.String("file", filepath.Base(path)),
			logging.Int64("entry_id", id))
		transcribed++
	}
	return fmt.Sprintf("%d memo(s) transcribed", transcribed), nil
}

func (s *Transcribe) pendingFiles() ([]string, error) {
	entries, err := os.ReadDir(s.inboxDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, services.Wrap(services.ErrPermanent, "transcribe", "scan", "read inbox", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if !audioExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		files = append(files, filepath.Join(s.inboxDir, entry.Name()))
	}
	return files, nil
}

func (s *Transcribe) archive(path string) error {
	if err := os.MkdirAll(s.archiveDir, 0o755); err != nil {
		return services.Wrap(services.ErrPermanent, "transcribe", "archive", "create archive dir", err)
	}
	dest := filepath.Join(s.archiveDir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		return services.Wrap(services.ErrPermanent, "transcribe", "archive", "move memo", err)
	}
	return nil
}
