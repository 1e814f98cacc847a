package stages_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voicepipe/internal/pipeline"
	"voicepipe/internal/services"
	"voicepipe/internal/services/drive"
	"voicepipe/internal/session"
	"voicepipe/internal/stages"
	"voicepipe/internal/testsupport"
)

type fakeDrive struct {
	files     []drive.File
	archived  []string
	listErr   error
	downErr   error
	archErr   error
	downloads int
}

func (f *fakeDrive) ListAudio(ctx context.Context) ([]drive.File, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.files, nil
}

func (f *fakeDrive) Download(ctx context.Context, file drive.File, destDir string) (string, error) {
	if f.downErr != nil {
		return "", f.downErr
	}
	f.downloads++
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(destDir, file.Name)
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func (f *fakeDrive) Archive(ctx context.Context, file drive.File) error {
	if f.archErr != nil {
		return f.archErr
	}
	f.archived = append(f.archived, file.ID)
	return nil
}

func TestIngestDownloadsAndArchives(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	client := &fakeDrive{files: []drive.File{
		{ID: "f1", Name: "a.m4a"},
		{ID: "f2", Name: "b.m4a"},
	}}
	ingest := stages.NewIngest(client, cfg.Paths.InboxDir, nil)

	detail, err := ingest.Execute(context.Background(), &pipeline.RunContext{RunID: "r1"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if detail != "2 memo(s) downloaded" {
		t.Fatalf("detail = %q", detail)
	}
	if len(client.archived) != 2 {
		t.Fatalf("archived = %v", client.archived)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.InboxDir, "a.m4a")); err != nil {
		t.Fatalf("downloaded file missing: %v", err)
	}
}

func TestIngestEmptyInboxSucceeds(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ingest := stages.NewIngest(&fakeDrive{}, cfg.Paths.InboxDir, nil)
	detail, err := ingest.Execute(context.Background(), &pipeline.RunContext{RunID: "r1"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if detail != "no new memos" {
		t.Fatalf("detail = %q", detail)
	}
}

func TestIngestToleratesArchiveFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	client := &fakeDrive{
		files:   []drive.File{{ID: "f1", Name: "a.m4a"}},
		archErr: errors.New("archive folder gone"),
	}
	ingest := stages.NewIngest(client, cfg.Paths.InboxDir, nil)
	if _, err := ingest.Execute(context.Background(), &pipeline.RunContext{RunID: "r1"}); err != nil {
		t.Fatalf("Execute should tolerate archive failure, got %v", err)
	}
}

func TestIngestSurfacesListFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	client := &fakeDrive{listErr: services.Wrap(services.ErrUnavailable, "ingest", "list", "down", nil)}
	ingest := stages.NewIngest(client, cfg.Paths.InboxDir, nil)
	_, err := ingest.Execute(context.Background(), &pipeline.RunContext{RunID: "r1"})
	if !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("error = %v", err)
	}
}

type fakeTranscriber struct {
	err   error
	calls []string
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	f.calls = append(f.calls, filepath.Base(audioPath))
	if f.err != nil {
		return "", f.err
	}
	return "transcript of " + filepath.Base(audioPath), nil
}

func writeInbox(t *testing.T, dir string, names ...string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir inbox: %v", err)
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("audio"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestTranscribePersistsEntriesAndArchives(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	writeInbox(t, cfg.Paths.InboxDir, "a.m4a", "b.mp3", "notes.txt")

	client := &fakeTranscriber{}
	stage := stages.NewTranscribe(client, st, cfg.Paths.InboxDir, cfg.Paths.ArchiveDir, nil)

	detail, err := stage.Execute(context.Background(), &pipeline.RunContext{RunID: "r1"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if detail != "2 memo(s) transcribed" {
		t.Fatalf("detail = %q", detail)
	}
	if len(client.calls) != 2 {
		t.Fatalf("transcriber calls = %v", client.calls)
	}

	// Audio moved to archive, non-audio left alone.
	if _, err := os.Stat(filepath.Join(cfg.Paths.ArchiveDir, "a.m4a")); err != nil {
		t.Fatalf("archived file missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.InboxDir, "notes.txt")); err != nil {
		t.Fatalf("non-audio file should stay: %v", err)
	}

	entries, err := st.EntriesBetween(context.Background(), time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("EntriesBetween: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].SourceFile == "" || !strings.HasPrefix(entries[0].Content, "transcript of ") {
		t.Fatalf("entry = %#v", entries[0])
	}
}

func TestTranscribeEmptyInboxSucceeds(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	stage := stages.NewTranscribe(&fakeTranscriber{}, st, cfg.Paths.InboxDir, cfg.Paths.ArchiveDir, nil)

	detail, err := stage.Execute(context.Background(), &pipeline.RunContext{RunID: "r1"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if detail != "nothing to transcribe" {
		t.Fatalf("detail = %q", detail)
	}
}

func TestTranscribeSurfacesAPIFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	writeInbox(t, cfg.Paths.InboxDir, "a.m4a")

	client := &fakeTranscriber{err: services.Wrap(services.ErrRateLimited, "transcribe", "request", "slow down", nil)}
	stage := stages.NewTranscribe(client, st, cfg.Paths.InboxDir, cfg.Paths.ArchiveDir, nil)

	_, err := stage.Execute(context.Background(), &pipeline.RunContext{RunID: "r1"})
	if !errors.Is(err, services.ErrRateLimited) {
		t.Fatalf("error = %v", err)
	}
	// Failed memo stays in the inbox for the retry.
	if _, err := os.Stat(filepath.Join(cfg.Paths.InboxDir, "a.m4a")); err != nil {
		t.Fatalf("memo should remain in inbox: %v", err)
	}
}

type fakeCompleter struct {
	reply   string
	err     error
	prompts []string
	threads []string
}

func (f *fakeCompleter) Complete(ctx context.Context, threadID, prompt string) (string, error) {
	f.threads = append(f.threads, threadID)
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type capturedSummary struct {
	date    string
	content string
}

type fakeSummaryNotifier struct {
	sent []capturedSummary
}

func (f *fakeSummaryNotifier) NotifySummary(ctx context.Context, date string, summary string) error {
	f.sent = append(f.sent, capturedSummary{date: date, content: summary})
	return nil
}

func summarizeRun() *pipeline.RunContext {
	start := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	return &pipeline.RunContext{
		RunID:       "r1",
		WindowStart: start,
		WindowEnd:   start.Add(24 * time.Hour),
		Session:     session.Handle{ID: "thread_1", Purpose: "summarize"},
	}
}

func TestSummarizeWritesHeaderedSummary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	run := summarizeRun()
	testsupport.InsertEntry(t, st, "walked the dog", run.WindowStart.Add(9*time.Hour))
	testsupport.InsertEntry(t, st, "finished the report", run.WindowStart.Add(17*time.Hour))

	completer := &fakeCompleter{reply: "A productive day."}
	notifier := &fakeSummaryNotifier{}
	stage := stages.NewSummarize(completer, st, notifier, "Summarize these entries:\n{{entries}}", nil)

	detail, err := stage.Execute(context.Background(), run)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if detail != "2 entries summarized" {
		t.Fatalf("detail = %q", detail)
	}
	if len(completer.threads) != 1 || completer.threads[0] != "thread_1" {
		t.Fatalf("threads = %v", completer.threads)
	}
	if !strings.Contains(completer.prompts[0], "walked the dog") {
		t.Fatalf("prompt missing entry: %q", completer.prompts[0])
	}

	key := session.SummaryKey(run.WindowStart, run.WindowEnd)
	saved, err := st.LookupSummary(context.Background(), key)
	if err != nil {
		t.Fatalf("LookupSummary: %v", err)
	}
	if saved == nil {
		t.Fatal("summary not persisted")
	}
	wantHeader := "=== Diary Summary: 2026-08-29 ==="
	if !strings.HasPrefix(saved.Content, wantHeader) {
		t.Fatalf("summary missing header: %q", saved.Content)
	}

	if len(notifier.sent) != 1 || notifier.sent[0].date != "2026-08-29" {
		t.Fatalf("notifications = %#v", notifier.sent)
	}
}

func TestSummarizeKeepsExistingHeader(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	run := summarizeRun()
	testsupport.InsertEntry(t, st, "an entry", run.WindowStart.Add(time.Hour))

	reply := stages.Header(run.WindowStart) + "\nAll done."
	stage := stages.NewSummarize(&fakeCompleter{reply: reply}, st, nil, "{{entries}}", nil)

	if _, err := stage.Execute(context.Background(), run); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	saved, err := st.LookupSummary(context.Background(), session.SummaryKey(run.WindowStart, run.WindowEnd))
	if err != nil {
		t.Fatalf("LookupSummary: %v", err)
	}
	if strings.Count(saved.Content, "=== Diary Summary:") != 1 {
		t.Fatalf("header duplicated: %q", saved.Content)
	}
}

func TestSummarizeEmptyWindowSucceedsWithoutAssistant(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	completer := &fakeCompleter{reply: "unused"}
	stage := stages.NewSummarize(completer, st, nil, "{{entries}}", nil)

	detail, err := stage.Execute(context.Background(), summarizeRun())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if detail != "no entries in window" {
		t.Fatalf("detail = %q", detail)
	}
	if len(completer.prompts) != 0 {
		t.Fatal("assistant must not be called for an empty window")
	}
}

func TestSummarizeRequiresThread(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	stage := stages.NewSummarize(&fakeCompleter{}, st, nil, "{{entries}}", nil)

	run := summarizeRun()
	run.Session = session.Handle{}
	_, err := stage.Execute(context.Background(), run)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("error = %v, want configuration", err)
	}
}

func TestSummarizePropagatesAssistantFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	run := summarizeRun()
	testsupport.InsertEntry(t, st, "an entry", run.WindowStart.Add(time.Hour))

	completer := &fakeCompleter{err: services.Wrap(services.ErrUnavailable, "summarize", "complete", "down", nil)}
	stage := stages.NewSummarize(completer, st, nil, "{{entries}}", nil)

	_, err := stage.Execute(context.Background(), run)
	if !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("error = %v", err)
	}
}
