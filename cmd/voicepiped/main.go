// Command voicepiped runs the voice diary pipeline daemon: it schedules
// pipeline runs, holds the single-instance lock, and shuts down cleanly on
// SIGINT or SIGTERM.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"voicepipe/internal/config"
	"voicepipe/internal/daemon"
	"voicepipe/internal/logging"
	"voicepipe/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var overwrite bool
	flag.StringVar(&configPath, "config", "", "configuration file path")
	flag.BoolVar(&overwrite, "overwrite", false, "regenerate summaries for already-processed windows")
	flag.Parse()

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err := logging.NewForDir(cfg.Logging.Level, cfg.Logging.Format, cfg.Paths.LogDir)
	if err != nil {
		return err
	}
	if !exists {
		logger.Warn("no configuration file found, using defaults",
			logging.String("path", resolved))
	}

	st, err := store.Open(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	d, err := daemon.New(cfg, st, logger, daemon.Options{AllowOverwrite: overwrite})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := d.Start(ctx); err != nil {
		return err
	}
	defer d.Stop()

	if !cfg.HasTriggers() {
		// Run-once mode already finished inside Start.
		return nil
	}

	<-ctx.Done()
	return nil
}
