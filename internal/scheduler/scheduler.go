package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"voicepipe/internal/logging"
)

// RunFunc executes one pipeline run for the trigger instant. The context is
// cancelled when the scheduler stops; a run in flight finishes its current
// stage and skips the rest.
type RunFunc func(ctx context.Context, now time.Time)

// Scheduler owns the trigger goroutines. At most one run is in flight at a
// time: triggers arriving during a run are dropped, not queued.
type Scheduler struct {
	spec   TriggerSpec
	run    RunFunc
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	inFlight atomic.Bool
}

// New builds a scheduler. A nil logger disables logging.
func New(spec TriggerSpec, run RunFunc, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scheduler{
		spec:   spec,
		run:    run,
		logger: logger.With(logging.String(logging.FieldComponent, "scheduler")),
		now:    time.Now,
	}
}

// SetClock overrides the scheduler clock. Intended for tests.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Start begins the trigger loops.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return errors.New("scheduler already running")
	}
	if s.spec.Empty() {
		return errors.New("scheduler has no triggers configured")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	if s.spec.Interval > 0 {
		s.wg.Add(1)
		go s.runInterval(runCtx)
	}
	for _, instant := range s.spec.DailyAt {
		s.wg.Add(1)
		go s.runDaily(runCtx, instant)
	}

	s.logger.Info("scheduler started",
		logging.Duration("interval", s.spec.Interval),
		logging.Int("daily_triggers", len(s.spec.DailyAt)))
	return nil
}

// Stop cancels the trigger loops and waits for them and any dispatched run
// to exit. A run in flight observes the cancellation between stages.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel := s.cancel
	s.running = false
	s.cancel = nil
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runInterval(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.spec.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Trigger(ctx, "interval")
		}
	}
}

func (s *Scheduler) runDaily(ctx context.Context, instant Clock) {
	defer s.wg.Done()
	for {
		wait := instant.Next(s.now()).Sub(s.now())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.Trigger(ctx, "daily "+instant.String())
		}
	}
}

// Trigger dispatches one run unless another is already in flight, in which
// case the trigger is dropped. The run executes on its own goroutine so the
// timing loops keep draining ticks while a run is active; a tick that fires
// mid-run is dropped here, never queued behind the running one.
func (s *Scheduler) Trigger(ctx context.Context, source string) bool {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.logger.Warn("trigger dropped, run already in flight", logging.String("trigger", source))
		return false
	}

	s.logger.Info("run triggered", logging.String("trigger", source))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.inFlight.Store(false)
		s.run(ctx, s.now())
	}()
	return true
}
