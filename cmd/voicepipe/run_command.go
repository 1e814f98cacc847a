package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"voicepipe/internal/daemon"
	"voicepipe/internal/logging"
	"voicepipe/internal/pipeline"
	"voicepipe/internal/store"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var overwrite bool
	var dateFlag string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the diary pipeline once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			now := time.Now()
			if strings.TrimSpace(dateFlag) != "" {
				day, err := time.ParseInLocation("2006-01-02", strings.TrimSpace(dateFlag), time.Local)
				if err != nil {
					return fmt.Errorf("parse --date: %w", err)
				}
				now = day.Add(12 * time.Hour)
			}

			logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
			if err != nil {
				return err
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

			report := d.RunOnce(cmd.Context(), now)
			printReport(cmd, report)

			if report.Status == pipeline.RunAllFailed {
				return fmt.Errorf("run %s failed", report.RunID)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Regenerate the summary even if the window was already processed")
	cmd.Flags().StringVar(&dateFlag, "date", "", "Process this calendar day (YYYY-MM-DD) instead of today")
	return cmd
}

func printReport(cmd *cobra.Command, report pipeline.RunReport) {
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	fmt.Fprintf(out, "Run %s (%s to %s): %s in %s\n",
		report.RunID,
		report.WindowStart.Format("2006-01-02"),
		report.WindowEnd.Format("2006-01-02"),
		colorizeStatus(string(report.Status), colorize),
		report.Duration.Round(time.Millisecond),
	)

	rows := make([][]string, 0, len(report.Outcomes))
	for _, outcome := range report.Outcomes {
		detail := outcome.Detail
		switch outcome.Status {
		case pipeline.StatusFailed:
			detail = outcome.Error
		case pipeline.StatusSkipped:
			detail = outcome.Reason
		}
		rows = append(rows, []string{
			outcome.Stage,
			colorizeStatus(string(outcome.Status), colorize),
			fmt.Sprintf("%d", outcome.Attempts),
			detail,
		})
	}
	fmt.Fprintln(out, renderTable([]column{
		{name: "Stage"},
		{name: "Status"},
		{name: "Attempts", rightAlign: true},
		{name: "Detail"},
	}, rows))
}
