package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"voicepipe/internal/config"
)

// Store manages voicepipe persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the state database under the data directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(filepath.Join(cfg.Paths.DataDir, "voicepipe.db"))
}

// OpenPath initializes or connects to the state database at the given path.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// LookupSession returns the persisted session for a purpose, or nil when none
// has been recorded.
func (s *Store) LookupSession(ctx context.Context, purpose string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT purpose, external_id, created_at FROM sessions WHERE purpose = ?", purpose)

	var record SessionRecord
	var createdRaw string
	if err := row.Scan(&record.Purpose, &record.ExternalID, &createdRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	created, err := parseTimeString(createdRaw)
	if err != nil {
		return nil, fmt.Errorf("parse session created_at: %w", err)
	}
	record.CreatedAt = created
	return &record, nil
}

// SaveSession records a session for a purpose, replacing any previous one.
func (s *Store) SaveSession(ctx context.Context, record SessionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (purpose, external_id, created_at) VALUES (?, ?, ?)
         ON CONFLICT(purpose) DO UPDATE SET external_id = excluded.external_id, created_at = excluded.created_at`,
		record.Purpose,
		record.ExternalID,
		record.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// DeleteSession removes the persisted session for a purpose. Deleting an
// unknown purpose is a no-op.
func (s *Store) DeleteSession(ctx context.Context, purpose string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM sessions WHERE purpose = ?", purpose); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// IsWindowProcessed reports whether a guard key has already been marked processed.
func (s *Store) IsWindowProcessed(ctx context.Context, guardKey string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM processed_windows WHERE guard_key = ?", guardKey).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check processed window: %w", err)
	}
	return count > 0, nil
}

// MarkWindowProcessed records a guard key as processed. Marking the same key
// twice is a no-op.
func (s *Store) MarkWindowProcessed(ctx context.Context, guardKey string, processedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO processed_windows (guard_key, processed_at) VALUES (?, ?)",
		guardKey,
		processedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("mark window processed: %w", err)
	}
	return nil
}

// ClearWindow removes the processed marker for a guard key so a later run may
// regenerate it.
func (s *Store) ClearWindow(ctx context.Context, guardKey string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM processed_windows WHERE guard_key = ?", guardKey); err != nil {
		return fmt.Errorf("clear processed window: %w", err)
	}
	return nil
}

// InsertJournalEntry stores one transcribed memo and returns its id.
func (s *Store) InsertJournalEntry(ctx context.Context, entry JournalEntry) (int64, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO journal_entries (source_file, content, recorded_at, created_at) VALUES (?, ?, ?, ?)",
		nullableString(entry.SourceFile),
		entry.Content,
		entry.RecordedAt.UTC().Format(time.RFC3339Nano),
		now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert journal entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read journal entry id: %w", err)
	}
	return id, nil
}

// EntriesBetween returns journal entries recorded in [start, end), oldest first.
func (s *Store) EntriesBetween(ctx context.Context, start, end time.Time) ([]JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_file, content, recorded_at, created_at
         FROM journal_entries
         WHERE recorded_at >= ? AND recorded_at < ?
         ORDER BY recorded_at ASC, id ASC`,
		start.UTC().Format(time.RFC3339Nano),
		end.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("query journal entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []JournalEntry
	for rows.Next() {
		var entry JournalEntry
		var sourceFile sql.NullString
		var recordedRaw, createdRaw string
		if err := rows.Scan(&entry.ID, &sourceFile, &entry.Content, &recordedRaw, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan journal entry: %w", err)
		}
		entry.SourceFile = sourceFile.String
		if entry.RecordedAt, err = parseTimeString(recordedRaw); err != nil {
			return nil, fmt.Errorf("parse recorded_at: %w", err)
		}
		if entry.CreatedAt, err = parseTimeString(createdRaw); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate journal entries: %w", err)
	}
	return entries, nil
}

// SaveSummary stores a generated summary, replacing any previous one for the
// same guard key.
func (s *Store) SaveSummary(ctx context.Context, summary Summary) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO summaries (guard_key, window_start, window_end, content, created_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(guard_key) DO UPDATE SET
             window_start = excluded.window_start,
             window_end = excluded.window_end,
             content = excluded.content,
             created_at = excluded.created_at`,
		summary.GuardKey,
		summary.WindowStart.UTC().Format(time.RFC3339Nano),
		summary.WindowEnd.UTC().Format(time.RFC3339Nano),
		summary.Content,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	return nil
}

// LookupSummary returns the summary for a guard key, or nil when none exists.
func (s *Store) LookupSummary(ctx context.Context, guardKey string) (*Summary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, guard_key, window_start, window_end, content, created_at
         FROM summaries WHERE guard_key = ?`, guardKey)

	var summary Summary
	var startRaw, endRaw, createdRaw string
	err := row.Scan(&summary.ID, &summary.GuardKey, &startRaw, &endRaw, &summary.Content, &createdRaw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup summary: %w", err)
	}
	if summary.WindowStart, err = parseTimeString(startRaw); err != nil {
		return nil, fmt.Errorf("parse window_start: %w", err)
	}
	if summary.WindowEnd, err = parseTimeString(endRaw); err != nil {
		return nil, fmt.Errorf("parse window_end: %w", err)
	}
	if summary.CreatedAt, err = parseTimeString(createdRaw); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &summary, nil
}

// SaveRun persists one pipeline run.
func (s *Store) SaveRun(ctx context.Context, record RunRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, status, window_start, window_end, started_at, duration_ms, outcomes_json)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.RunID,
		record.Status,
		record.WindowStart.UTC().Format(time.RFC3339Nano),
		record.WindowEnd.UTC().Format(time.RFC3339Nano),
		record.StartedAt.UTC().Format(time.RFC3339Nano),
		record.Duration.Milliseconds(),
		record.Outcomes,
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// RecentRuns returns the most recent runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, status, window_start, window_end, started_at, duration_ms, outcomes_json
         FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []RunRecord
	for rows.Next() {
		var record RunRecord
		var startRaw, endRaw, startedRaw string
		var durationMS int64
		if err := rows.Scan(&record.ID, &record.RunID, &record.Status, &startRaw, &endRaw, &startedRaw, &durationMS, &record.Outcomes); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if record.WindowStart, err = parseTimeString(startRaw); err != nil {
			return nil, fmt.Errorf("parse window_start: %w", err)
		}
		if record.WindowEnd, err = parseTimeString(endRaw); err != nil {
			return nil, fmt.Errorf("parse window_end: %w", err)
		}
		if record.StartedAt, err = parseTimeString(startedRaw); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		record.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return records, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
