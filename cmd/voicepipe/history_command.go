package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"voicepipe/internal/pipeline"
	"voicepipe/internal/store"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent pipeline runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			st, err := store.Open(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			runs, err := st.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet.")
				return nil
			}

			colorize := shouldColorize(cmd.OutOrStdout())
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					run.StartedAt.Local().Format("2006-01-02 15:04"),
					run.WindowStart.Local().Format("2006-01-02"),
					colorizeStatus(run.Status, colorize),
					summarizeOutcomes(run.Outcomes),
					run.Duration.Round(time.Millisecond).String(),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]column{
				{name: "Started"},
				{name: "Window"},
				{name: "Status"},
				{name: "Stages"},
				{name: "Duration", rightAlign: true},
			}, rows))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show")
	return cmd
}

// summarizeOutcomes condenses the persisted outcome list to "2 ok, 1 failed,
// 1 skipped".
func summarizeOutcomes(outcomesJSON string) string {
	var outcomes []pipeline.Outcome
	if err := json.Unmarshal([]byte(outcomesJSON), &outcomes); err != nil {
		return "-"
	}
	var ok, failed, skipped int
	for _, outcome := range outcomes {
		switch outcome.Status {
		case pipeline.StatusSucceeded:
			ok++
		case pipeline.StatusFailed:
			failed++
		case pipeline.StatusSkipped:
			skipped++
		}
	}
	summary := fmt.Sprintf("%d ok", ok)
	if failed > 0 {
		summary += fmt.Sprintf(", %d failed", failed)
	}
	if skipped > 0 {
		summary += fmt.Sprintf(", %d skipped", skipped)
	}
	return summary
}
