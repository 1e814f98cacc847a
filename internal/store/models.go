package store

import "time"

// SessionRecord is a persisted assistant conversation thread keyed by the
// purpose it serves.
type SessionRecord struct {
	Purpose    string
	ExternalID string
	CreatedAt  time.Time
}

// JournalEntry is one transcribed voice memo.
type JournalEntry struct {
	ID         int64
	SourceFile string
	Content    string
	RecordedAt time.Time
	CreatedAt  time.Time
}

// Summary is a generated digest for one work window.
type Summary struct {
	ID          int64
	GuardKey    string
	WindowStart time.Time
	WindowEnd   time.Time
	Content     string
	CreatedAt   time.Time
}

// RunRecord is one persisted pipeline run.
type RunRecord struct {
	ID          int64
	RunID       string
	Status      string
	WindowStart time.Time
	WindowEnd   time.Time
	StartedAt   time.Time
	Duration    time.Duration
	Outcomes    string
}
