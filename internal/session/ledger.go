package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"voicepipe/internal/logging"
	"voicepipe/internal/services"
	"voicepipe/internal/store"
)

// Creator opens a fresh conversation thread with the assistant backend and
// returns its external identifier.
type Creator interface {
	CreateThread(ctx context.Context, purpose string) (string, error)
}

// CreatorFunc adapts a function to the Creator interface.
type CreatorFunc func(ctx context.Context, purpose string) (string, error)

func (f CreatorFunc) CreateThread(ctx context.Context, purpose string) (string, error) {
	return f(ctx, purpose)
}

// Store is the persistence the ledger needs.
type Store interface {
	LookupSession(ctx context.Context, purpose string) (*store.SessionRecord, error)
	SaveSession(ctx context.Context, record store.SessionRecord) error
	DeleteSession(ctx context.Context, purpose string) error
	IsWindowProcessed(ctx context.Context, guardKey string) (bool, error)
	MarkWindowProcessed(ctx context.Context, guardKey string, processedAt time.Time) error
	ClearWindow(ctx context.Context, guardKey string) error
}

// Ledger hands out conversation threads per purpose and tracks processed work
// windows. Safe for concurrent use.
type Ledger struct {
	store     Store
	creator   Creator
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu    sync.Mutex
	cache map[string]Handle
}

// NewLedger builds a ledger. A nil logger disables logging.
func NewLedger(st Store, creator Creator, retention time.Duration, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Ledger{
		store:     st,
		creator:   creator,
		retention: retention,
		logger:    logger.With(logging.String(logging.FieldComponent, "session")),
		now:       time.Now,
	}
}

// SetClock overrides the ledger clock. Intended for tests.
func (l *Ledger) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Acquire returns a live thread for the purpose, creating or rotating one as
// needed. An expired thread is replaced and the replacement persisted before
// it is returned.
func (l *Ledger) Acquire(ctx context.Context, purpose string) (Handle, error) {
	if purpose == "" {
		return Handle{}, services.Wrap(services.ErrValidation, "session", "acquire", "purpose must not be empty", nil)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if handle, ok := l.cache[purpose]; ok && !handle.Expired(now) {
		return handle, nil
	}

	record, err := l.store.LookupSession(ctx, purpose)
	if err != nil {
		return Handle{}, services.Wrap(services.ErrUnavailable, "session", "acquire", "lookup session", err)
	}
	if record != nil {
		handle := Handle{
			ID:        record.ExternalID,
			Purpose:   purpose,
			CreatedAt: record.CreatedAt,
			Retention: l.retention,
		}
		if !handle.Expired(now) {
			l.remember(handle)
			return handle, nil
		}
		l.logger.Info("rotating expired thread",
			logging.String("purpose", purpose),
			logging.String("thread_id", handle.ID),
			logging.Time("created_at", handle.CreatedAt))
	}

	id, err := l.creator.CreateThread(ctx, purpose)
	if err != nil {
		return Handle{}, fmt.Errorf("create thread for %s: %w", purpose, err)
	}
	handle := Handle{ID: id, Purpose: purpose, CreatedAt: now, Retention: l.retention}
	if err := l.store.SaveSession(ctx, store.SessionRecord{
		Purpose:    purpose,
		ExternalID: id,
		CreatedAt:  now,
	}); err != nil {
		return Handle{}, services.Wrap(services.ErrUnavailable, "session", "acquire", "persist session", err)
	}
	l.remember(handle)
	l.logger.Info("opened thread", logging.String("purpose", purpose), logging.String("thread_id", id))
	return handle, nil
}

func (l *Ledger) remember(handle Handle) {
	if l.cache == nil {
		l.cache = make(map[string]Handle)
	}
	l.cache[handle.Purpose] = handle
}

// Invalidate discards the handle for a purpose so the next Acquire opens a
// fresh thread. Used when the backend reports the thread gone.
func (l *Ledger) Invalidate(ctx context.Context, purpose string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.cache, purpose)
	if err := l.store.DeleteSession(ctx, purpose); err != nil {
		return services.Wrap(services.ErrUnavailable, "session", "invalidate", "delete session", err)
	}
	l.logger.Info("discarded thread", logging.String("purpose", purpose))
	return nil
}

// IsProcessed reports whether the guard key has already produced output.
func (l *Ledger) IsProcessed(ctx context.Context, guardKey string) (bool, error) {
	processed, err := l.store.IsWindowProcessed(ctx, guardKey)
	if err != nil {
		return false, services.Wrap(services.ErrUnavailable, "session", "guard", "check processed window", err)
	}
	return processed, nil
}

// MarkProcessed records the guard key as done. Safe to call repeatedly.
func (l *Ledger) MarkProcessed(ctx context.Context, guardKey string) error {
	if err := l.store.MarkWindowProcessed(ctx, guardKey, l.now()); err != nil {
		return services.Wrap(services.ErrUnavailable, "session", "guard", "mark processed window", err)
	}
	return nil
}

// ClearProcessed removes the guard marker so the window can be regenerated.
func (l *Ledger) ClearProcessed(ctx context.Context, guardKey string) error {
	if err := l.store.ClearWindow(ctx, guardKey); err != nil {
		return services.Wrap(services.ErrUnavailable, "session", "guard", "clear processed window", err)
	}
	return nil
}
