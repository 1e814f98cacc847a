package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"voicepipe/internal/session"
	"voicepipe/internal/testsupport"
)

type countingCreator struct {
	calls int
	err   error
}

func (c *countingCreator) CreateThread(ctx context.Context, purpose string) (string, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return "thread_" + purpose + "_" + string(rune('0'+c.calls)), nil
}

func TestAcquireCreatesAndCaches(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	creator := &countingCreator{}
	ledger := session.NewLedger(st, creator, 30*24*time.Hour, nil)

	ctx := context.Background()
	first, err := ledger.Acquire(ctx, "summarize")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected thread id")
	}

	second, err := ledger.Acquire(ctx, "summarize")
	if err != nil {
		t.Fatalf("Acquire again: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected cached thread %q, got %q", first.ID, second.ID)
	}
	if creator.calls != 1 {
		t.Fatalf("creator called %d times, want 1", creator.calls)
	}
}

func TestAcquireReusesPersistedThread(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	creator := &countingCreator{}
	first := session.NewLedger(st, creator, 30*24*time.Hour, nil)
	handle, err := first.Acquire(ctx, "summarize")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	// A fresh ledger backed by the same store finds the persisted thread.
	second := session.NewLedger(st, creator, 30*24*time.Hour, nil)
	reused, err := second.Acquire(ctx, "summarize")
	if err != nil {
		t.Fatalf("Acquire after restart: %v", err)
	}
	if reused.ID != handle.ID {
		t.Fatalf("expected persisted thread %q, got %q", handle.ID, reused.ID)
	}
	if creator.calls != 1 {
		t.Fatalf("creator called %d times, want 1", creator.calls)
	}
}

func TestAcquireRotatesExpiredThread(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	creator := &countingCreator{}
	ledger := session.NewLedger(st, creator, 30*24*time.Hour, nil)

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	now := base
	ledger.SetClock(func() time.Time { return now })

	handle, err := ledger.Acquire(ctx, "summarize")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	// Just inside retention the thread survives.
	now = base.Add(30*24*time.Hour - time.Minute)
	same, err := ledger.Acquire(ctx, "summarize")
	if err != nil {
		t.Fatalf("Acquire inside retention: %v", err)
	}
	if same.ID != handle.ID {
		t.Fatalf("thread rotated early: %q vs %q", same.ID, handle.ID)
	}

	now = base.Add(30*24*time.Hour + time.Minute)
	rotated, err := ledger.Acquire(ctx, "summarize")
	if err != nil {
		t.Fatalf("Acquire after retention: %v", err)
	}
	if rotated.ID == handle.ID {
		t.Fatal("expected a new thread after retention")
	}
	if creator.calls != 2 {
		t.Fatalf("creator called %d times, want 2", creator.calls)
	}
}

func TestAcquirePropagatesCreatorFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	creator := &countingCreator{err: errors.New("backend down")}
	ledger := session.NewLedger(st, creator, time.Hour, nil)

	if _, err := ledger.Acquire(context.Background(), "summarize"); err == nil {
		t.Fatal("expected error when creator fails")
	}
}

func TestInvalidateForcesFreshThread(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	creator := &countingCreator{}
	ledger := session.NewLedger(st, creator, 30*24*time.Hour, nil)

	first, err := ledger.Acquire(ctx, "summarize")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := ledger.Invalidate(ctx, "summarize"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}

	replacement, err := ledger.Acquire(ctx, "summarize")
	if err != nil {
		t.Fatalf("Acquire after invalidate: %v", err)
	}
	if replacement.ID == first.ID {
		t.Fatal("expected a new thread after invalidation")
	}
	if creator.calls != 2 {
		t.Fatalf("creator called %d times, want 2", creator.calls)
	}

	// A ledger restart must not resurrect the invalidated thread either.
	if err := ledger.Invalidate(ctx, "summarize"); err != nil {
		t.Fatalf("Invalidate again: %v", err)
	}
	restarted := session.NewLedger(st, creator, 30*24*time.Hour, nil)
	fresh, err := restarted.Acquire(ctx, "summarize")
	if err != nil {
		t.Fatalf("Acquire after restart: %v", err)
	}
	if fresh.ID == replacement.ID {
		t.Fatal("expected invalidation to survive a restart")
	}
}

func TestGuardRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ledger := session.NewLedger(st, &countingCreator{}, time.Hour, nil)
	ctx := context.Background()

	start := time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC)
	key := session.SummaryKey(start, start.Add(24*time.Hour))
	if key != "summary:20260829-20260830" {
		t.Fatalf("SummaryKey = %q", key)
	}

	processed, err := ledger.IsProcessed(ctx, key)
	if err != nil {
		t.Fatalf("IsProcessed: %v", err)
	}
	if processed {
		t.Fatal("fresh key should not be processed")
	}

	if err := ledger.MarkProcessed(ctx, key); err != nil {
		t.Fatalf("MarkProcessed: %v", err)
	}
	processed, err = ledger.IsProcessed(ctx, key)
	if err != nil {
		t.Fatalf("IsProcessed: %v", err)
	}
	if !processed {
		t.Fatal("expected key to be processed")
	}

	if err := ledger.ClearProcessed(ctx, key); err != nil {
		t.Fatalf("ClearProcessed: %v", err)
	}
	processed, err = ledger.IsProcessed(ctx, key)
	if err != nil {
		t.Fatalf("IsProcessed after clear: %v", err)
	}
	if processed {
		t.Fatal("expected key to be cleared")
	}
}

func TestHandleExpired(t *testing.T) {
	created := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	handle := session.Handle{ID: "t", CreatedAt: created, Retention: 24 * time.Hour}
	if handle.Expired(created.Add(23 * time.Hour)) {
		t.Fatal("expired before retention")
	}
	if !handle.Expired(created.Add(24 * time.Hour)) {
		t.Fatal("not expired at retention boundary")
	}
	unlimited := session.Handle{ID: "t", CreatedAt: created}
	if unlimited.Expired(created.Add(1000 * time.Hour)) {
		t.Fatal("zero retention must never expire")
	}
}
