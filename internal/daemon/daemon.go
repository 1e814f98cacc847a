package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"voicepipe/internal/config"
	"voicepipe/internal/logging"
	"voicepipe/internal/notifications"
	"voicepipe/internal/pipeline"
	"voicepipe/internal/scheduler"
	"voicepipe/internal/services/assistant"
	"voicepipe/internal/services/drive"
	"voicepipe/internal/services/transcriber"
	"voicepipe/internal/session"
	"voicepipe/internal/stages"
	"voicepipe/internal/store"
)

// Daemon coordinates the scheduled pipeline and enforces single-instance
// execution.
type Daemon struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        *store.Store
	orchestrator *pipeline.Orchestrator
	scheduler    *scheduler.Scheduler
	notifier     notifications.Service
	triggers     scheduler.TriggerSpec

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
}

// Options adjusts daemon construction beyond the configuration file.
type Options struct {
	// AllowOverwrite forces regeneration of already-processed windows.
	AllowOverwrite bool
}

// New constructs a daemon with all dependencies wired from the configuration.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, opts Options) (*Daemon, error) {
	if cfg == nil || st == nil {
		return nil, errors.New("daemon requires config and store")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	triggers, err := scheduler.TriggersFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	notifier := notifications.NewService(cfg)
	assistantClient := assistant.NewClient(cfg)
	ledger := session.NewLedger(st, assistantClient, time.Duration(cfg.Session.RetentionDays)*24*time.Hour, logger)

	stageDefs := buildStages(cfg, st, assistantClient, notifier, logger)

	runner := pipeline.NewStageRunner(pipeline.PolicyFromConfig(cfg), logger)
	orchestrator, err := pipeline.NewOrchestrator(pipeline.Options{
		Stages:         stageDefs,
		Runner:         runner,
		Ledger:         ledger,
		Reports:        st,
		Notifier:       notifier,
		AllowOverwrite: opts.AllowOverwrite || cfg.Summary.AllowOverwrite,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:          cfg,
		logger:       logger.With(logging.String(logging.FieldComponent, "daemon")),
		store:        st,
		orchestrator: orchestrator,
		notifier:     notifier,
		triggers:     triggers,
		lockPath:     filepath.Join(cfg.Paths.DataDir, "voicepiped.lock"),
	}
	d.lock = flock.New(d.lockPath)
	d.scheduler = scheduler.New(triggers, d.runWindow, logger)
	return d, nil
}

// buildStages assembles the stage list. Stages whose service is not
// configured are left out so a partial setup still runs the rest.
func buildStages(cfg *config.Config, st *store.Store, assistantClient *assistant.Client, notifier notifications.Service, logger *slog.Logger) []pipeline.StageDefinition {
	var defs []pipeline.StageDefinition

	driveClient := drive.NewClient(cfg)
	if driveClient.Configured() {
		defs = append(defs, pipeline.StageDefinition{
			Name:     "ingest",
			Executor: stages.NewIngest(driveClient, cfg.Paths.InboxDir, logger),
			Isolated: true,
		})
	}

	transcriberClient := transcriber.NewClient(cfg)
	if transcriberClient.Configured() {
		defs = append(defs, pipeline.StageDefinition{
			Name:     "transcribe",
			Executor: stages.NewTranscribe(transcriberClient, st, cfg.Paths.InboxDir, cfg.Paths.ArchiveDir, logger),
		})
	}

	if assistantClient.Configured() {
		defs = append(defs, pipeline.StageDefinition{
			Name:           "summarize",
			Executor:       stages.NewSummarize(assistantClient, st, notifier, cfg.Summary.Prompt, logger),
			SessionPurpose: "summarize",
			Guarded:        true,
		})
	}
	return defs
}

// Start acquires the daemon lock and begins scheduling. With no triggers
// configured the pipeline runs once synchronously instead.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("another voicepipe instance holds %s", d.lockPath)
	}
	d.running.Store(true)

	if d.triggers.Empty() {
		d.logger.Info("no triggers configured, running pipeline once")
		d.runWindow(ctx, time.Now())
		return nil
	}

	if err := d.scheduler.Start(ctx); err != nil {
		d.release()
		return err
	}
	d.logger.Info("daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts scheduling and releases the lock. An in-flight run finishes its
// current stage and skips the rest.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if !d.triggers.Empty() {
		d.scheduler.Stop()
	}
	d.release()
	d.logger.Info("daemon stopped")
}

// RunOnce executes a single pipeline run for now's day window, outside the
// scheduler. Used by the CLI.
func (d *Daemon) RunOnce(ctx context.Context, now time.Time) pipeline.RunReport {
	start, end := DayWindow(now)
	return d.orchestrator.RunOnce(ctx, start, end)
}

// TestNotification sends a test message through the configured notifier.
func (d *Daemon) TestNotification(ctx context.Context) error {
	return d.notifier.TestNotification(ctx)
}

func (d *Daemon) runWindow(ctx context.Context, now time.Time) {
	report := d.RunOnce(ctx, now)
	if report.Status != pipeline.RunAllSucceeded {
		d.logger.Warn("run completed with failures",
			logging.String(logging.FieldRunID, report.RunID),
			logging.String("status", string(report.Status)))
	}
}

func (d *Daemon) release() {
	d.running.Store(false)
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("releasing daemon lock failed", logging.Error(err))
	}
}

// DayWindow returns the local calendar-day window containing now.
func DayWindow(now time.Time) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return start, start.AddDate(0, 0, 1)
}
