package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"voicepipe/internal/logging"
	"voicepipe/internal/services"
	"voicepipe/internal/session"
	"voicepipe/internal/store"
)

// ReportStore persists completed run reports.
type ReportStore interface {
	SaveRun(ctx context.Context, record store.RunRecord) error
}

// ReportNotifier receives completed run reports. Delivery is best effort: a
// notifier error is logged, never surfaced.
type ReportNotifier interface {
	NotifyRunReport(ctx context.Context, report RunReport) error
}

// Orchestrator sequences the configured stages for one work window per run.
type Orchestrator struct {
	stages         []StageDefinition
	runner         *StageRunner
	ledger         *session.Ledger
	reports        ReportStore
	notifier       ReportNotifier
	allowOverwrite bool
	logger         *slog.Logger
	now            func() time.Time
}

// Options configures an orchestrator.
type Options struct {
	Stages []StageDefinition
	Runner *StageRunner
	// Ledger supplies conversation threads and the duplicate work guard.
	Ledger  *session.Ledger
	Reports ReportStore
	// Notifier may be nil.
	Notifier ReportNotifier
	// AllowOverwrite clears the duplicate guard for each run's window so
	// guarded stages run again.
	AllowOverwrite bool
	Logger         *slog.Logger
}

// NewOrchestrator validates the stage list and builds an orchestrator.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if len(opts.Stages) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new", "at least one stage required", nil)
	}
	seen := make(map[string]struct{}, len(opts.Stages))
	for _, def := range opts.Stages {
		if def.Name == "" {
			return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new", "stage name must not be empty", nil)
		}
		if def.Executor == nil {
			return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new", fmt.Sprintf("stage %s has no executor", def.Name), nil)
		}
		if _, dup := seen[def.Name]; dup {
			return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new", fmt.Sprintf("duplicate stage name %s", def.Name), nil)
		}
		seen[def.Name] = struct{}{}
	}
	if opts.Runner == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new", "runner required", nil)
	}
	if opts.Ledger == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new", "session ledger required", nil)
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		stages:         opts.Stages,
		runner:         opts.Runner,
		ledger:         opts.Ledger,
		reports:        opts.Reports,
		notifier:       opts.Notifier,
		allowOverwrite: opts.AllowOverwrite,
		logger:         logger.With(logging.String(logging.FieldComponent, "pipeline")),
		now:            time.Now,
	}, nil
}

// SetClock overrides the orchestrator clock. Intended for tests.
func (o *Orchestrator) SetClock(now func() time.Time) {
	o.now = now
}

// RunOnce executes every stage in order for the given work window and returns
// the run report. Stage failures never abort the run: a non-isolated failure
// skips the stages behind it, an isolated one does not. The report itself is
// always returned; persisting and notifying it are best effort.
func (o *Orchestrator) RunOnce(ctx context.Context, windowStart, windowEnd time.Time) RunReport {
	runID := uuid.New().String()
	ctx = services.WithRunID(ctx, runID)
	logger := o.logger.With(
		logging.String(logging.FieldRunID, runID),
		logging.String(logging.FieldWindow, session.SummaryKey(windowStart, windowEnd)),
	)

	started := o.now()
	logger.Info("run started",
		logging.Time("window_start", windowStart),
		logging.Time("window_end", windowEnd))

	guardKey := session.SummaryKey(windowStart, windowEnd)
	duplicate := o.checkGuard(ctx, logger, guardKey)

	run := &RunContext{RunID: runID, WindowStart: windowStart, WindowEnd: windowEnd}
	outcomes := make([]Outcome, 0, len(o.stages))
	upstreamFailed := false

	for _, def := range o.stages {
		outcome := o.runStage(ctx, logger, def, run, duplicate, upstreamFailed, guardKey)
		if outcome.Status == StatusFailed && !def.Isolated {
			upstreamFailed = true
		}
		o.logOutcome(logger, outcome)
		outcomes = append(outcomes, outcome)
	}

	report := RunReport{
		RunID:       runID,
		Status:      aggregateStatus(outcomes),
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		StartedAt:   started,
		Duration:    o.now().Sub(started),
		Outcomes:    outcomes,
	}

	logger.Info("run finished",
		logging.String("status", string(report.Status)),
		logging.Duration("duration", report.Duration))

	o.persist(ctx, logger, report)
	o.notify(ctx, logger, report)
	return report
}

// checkGuard reports whether guarded stages must be skipped as duplicates.
// With overwrite enabled the guard marker is cleared instead.
func (o *Orchestrator) checkGuard(ctx context.Context, logger *slog.Logger, guardKey string) bool {
	processed, err := o.ledger.IsProcessed(ctx, guardKey)
	if err != nil {
		// Guard state unknown: run the stages rather than silently drop work.
		logger.Warn("duplicate guard check failed", logging.Error(err))
		return false
	}
	if !processed {
		return false
	}
	if !o.allowOverwrite {
		return true
	}
	if err := o.ledger.ClearProcessed(ctx, guardKey); err != nil {
		logger.Warn("clearing duplicate guard failed", logging.Error(err))
		return true
	}
	logger.Info("duplicate guard cleared for overwrite")
	return false
}

func (o *Orchestrator) runStage(ctx context.Context, logger *slog.Logger, def StageDefinition, run *RunContext, duplicate, upstreamFailed bool, guardKey string) Outcome {
	switch {
	case ctx.Err() != nil:
		return Outcome{Stage: def.Name, Status: StatusSkipped, Reason: SkipCancelled}
	case upstreamFailed:
		return Outcome{Stage: def.Name, Status: StatusSkipped, Kind: services.KindUpstream, Reason: SkipUpstreamFailure}
	case duplicate && def.Guarded:
		return Outcome{Stage: def.Name, Status: StatusSkipped, Reason: SkipDuplicate}
	}

	run.Session = session.Handle{}
	if def.SessionPurpose != "" {
		handle, err := o.ledger.Acquire(ctx, def.SessionPurpose)
		if err != nil {
			// The stage never ran, so it records zero attempts.
			return Outcome{
				Stage:  def.Name,
				Status: StatusFailed,
				Kind:   services.Classify(err),
				Error:  services.Details(err),
			}
		}
		run.Session = handle
	}

	outcome := o.runner.Run(ctx, def, run)
	if outcome.Status == StatusFailed && def.SessionPurpose != "" && errors.Is(outcome.err, services.ErrNotFound) {
		// The backend no longer knows the thread. Drop the stored handle so
		// the next run opens a fresh one instead of failing the same way.
		if err := o.ledger.Invalidate(ctx, def.SessionPurpose); err != nil {
			logger.Warn("invalidating lost thread failed",
				logging.String(logging.FieldStage, def.Name),
				logging.Error(err))
		}
	}
	if outcome.Status == StatusSucceeded && def.Guarded {
		if err := o.ledger.MarkProcessed(ctx, guardKey); err != nil {
			logger.Warn("marking window processed failed",
				logging.String(logging.FieldStage, def.Name),
				logging.Error(err))
		}
	}
	return outcome
}

func (o *Orchestrator) logOutcome(logger *slog.Logger, outcome Outcome) {
	attrs := []any{
		logging.String(logging.FieldStage, outcome.Stage),
		logging.String("status", string(outcome.Status)),
		logging.Int("attempts", outcome.Attempts),
	}
	switch outcome.Status {
	case StatusFailed:
		attrs = append(attrs, logging.String("kind", string(outcome.Kind)), logging.String("error", outcome.Error))
		logger.Error("stage outcome", attrs...)
	case StatusSkipped:
		attrs = append(attrs, logging.String("reason", outcome.Reason))
		logger.Info("stage outcome", attrs...)
	default:
		if outcome.Detail != "" {
			attrs = append(attrs, logging.String("detail", outcome.Detail))
		}
		logger.Info("stage outcome", attrs...)
	}
}

func (o *Orchestrator) persist(ctx context.Context, logger *slog.Logger, report RunReport) {
	if o.reports == nil {
		return
	}
	payload, err := json.Marshal(report.Outcomes)
	if err != nil {
		logger.Warn("encoding run outcomes failed", logging.Error(err))
		return
	}
	record := store.RunRecord{
		RunID:       report.RunID,
		Status:      string(report.Status),
		WindowStart: report.WindowStart,
		WindowEnd:   report.WindowEnd,
		StartedAt:   report.StartedAt,
		Duration:    report.Duration,
		Outcomes:    string(payload),
	}
	if err := o.reports.SaveRun(ctx, record); err != nil {
		logger.Warn("persisting run report failed", logging.Error(err))
	}
}

func (o *Orchestrator) notify(ctx context.Context, logger *slog.Logger, report RunReport) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.NotifyRunReport(ctx, report); err != nil {
		logger.Warn("run report notification failed", logging.Error(err))
	}
}
