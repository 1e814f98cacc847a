package testsupport

import (
	"context"
	"testing"
	"time"

	"voicepipe/internal/config"
	"voicepipe/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// InsertEntry stores a journal entry for tests using the provided store.
func InsertEntry(t testing.TB, st *store.Store, content string, recordedAt time.Time) int64 {
	t.Helper()

	id, err := st.InsertJournalEntry(context.Background(), store.JournalEntry{
		Content:    content,
		RecordedAt: recordedAt,
	})
	if err != nil {
		t.Fatalf("store.InsertJournalEntry: %v", err)
	}
	return id
}
