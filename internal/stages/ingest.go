package stages

import (
	"context"
	"fmt"
	"log/slog"

	"voicepipe/internal/logging"
	"voicepipe/internal/pipeline"
	"voicepipe/internal/services/drive"
)

// Downloader is the remote storage surface the ingest stage needs.
type Downloader interface {
	ListAudio(ctx context.Context) ([]drive.File, error)
	Download(ctx context.Context, file drive.File, destDir string) (string, error)
	Archive(ctx context.Context, file drive.File) error
}

// Ingest downloads pending voice memos into the inbox directory and archives
// the remote copies.
type Ingest struct {
	client   Downloader
	inboxDir string
	logger   *slog.Logger
}

// NewIngest builds the ingest executor. A nil logger disables logging.
func NewIngest(client Downloader, inboxDir string, logger *slog.Logger) *Ingest {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Ingest{
		client:   client,
		inboxDir: inboxDir,
		logger:   logger.With(logging.String(logging.FieldComponent, "ingest")),
	}
}

// Execute implements pipeline.Executor.
func (s *Ingest) Execute(ctx context.Context, run *pipeline.RunContext) (string, error) {
	files, err := s.client.ListAudio(ctx)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "no new memos", nil
	}

	downloaded := 0
	for _, file := range files {
		path, err := s.client.Download(ctx, file, s.inboxDir)
		if err != nil {
			return "", err
		}
		if err := s.client.Archive(ctx, file); err != nil {
			// The memo is already safe locally, so a failed archive move is
			// not worth failing the stage over.
			s.logger.Warn("archiving remote memo failed",
				logging.String("file", file.Name),
				logging.Error(err))
		}
		s.logger.Info("memo downloaded",
			logging.String("file", file.Name),
			logging.String("path", path))
		downloaded++
	}
	return fmt.Sprintf("%d memo(s) downloaded", downloaded), nil
}
