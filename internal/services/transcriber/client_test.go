package transcriber_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"voicepipe/internal/services"
	"voicepipe/internal/services/transcriber"
	"voicepipe/internal/testsupport"
)

func newClient(t *testing.T, handler http.Handler) *transcriber.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	cfg := testsupport.NewConfig(t)
	cfg.Transcriber.BaseURL = server.URL
	cfg.Transcriber.APIKey = "sk-test"
	return transcriber.NewClient(cfg)
}

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memo.m4a")
	if err := os.WriteFile(path, []byte("fake-audio"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return path
}

func TestTranscribeUploadsMultipart(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/transcriptions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model = %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		if header.Filename != "memo.m4a" {
			t.Errorf("filename = %q", header.Filename)
		}
		data, _ := io.ReadAll(file)
		if string(data) != "fake-audio" {
			t.Errorf("file content = %q", data)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"  walked the dog today  "}`))
	}))

	text, err := client.Transcribe(context.Background(), writeAudio(t))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "walked the dog today" {
		t.Fatalf("text = %q", text)
	}
}

func TestTranscribeRequiresAPIKey(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	client := transcriber.NewClient(cfg)
	_, err := client.Transcribe(context.Background(), writeAudio(t))
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("error = %v, want configuration", err)
	}
}

func TestTranscribeClassifiesRateLimit(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	_, err := client.Transcribe(context.Background(), writeAudio(t))
	if !errors.Is(err, services.ErrRateLimited) {
		t.Fatalf("error = %v, want rate limited", err)
	}
	if !services.Retryable(err) {
		t.Fatal("429 must be retryable")
	}
}

func TestTranscribeRejectsEmptyTranscript(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":"   "}`))
	}))
	_, err := client.Transcribe(context.Background(), writeAudio(t))
	if !errors.Is(err, services.ErrPermanent) {
		t.Fatalf("error = %v, want permanent", err)
	}
}
