package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ilearnhow/lessongen/pkg/models"
	"github.com/ilearnhow/lessongen/pkg/tracker"
)

func newCostCmd() *cobra.Command {
	var (
		lessonID string
		since    string
	)

	cmd := &cobra.Command{
		Use:   "cost",
		Short: "Show recorded spend by lesson and model",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			tr, err := tracker.New(cfg.DBPath)
			if err != nil {
				return err
			}
			defer func() { _ = tr.Close() }()

			ctx := cmd.Context()
			rows, err := tr.Summary(ctx, lessonID)
			if err != nil {
				return err
			}
			fmt.Print(formatCostTable(rows))

			if since == "" {
				return nil
			}
			t, err := time.Parse("2006-01-02", since)
			if err != nil {
				return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
			}
			days, err := tr.DailyTotals(ctx, t)
			if err != nil {
				return err
			}
			fmt.Println()
			fmt.Print(formatDailyTable(days))
			return nil
		},
	}

	cmd.Flags().StringVar(&lessonID, "lesson", "", "filter by lesson")
	cmd.Flags().StringVar(&since, "since", "", "also show daily totals from this date (YYYY-MM-DD)")
	return cmd
}

func formatCostTable(rows []models.CostSummary) string {
	if len(rows) == 0 {
		return "No cost data found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %-30s %8s %12s %12s %12s\n",
		"LESSON", "MODEL", "REQUESTS", "INPUT", "OUTPUT", "COST")
	b.WriteString(strings.Repeat("-", 91) + "\n")

	var totalCost float64
	for _, r := range rows {
		fmt.Fprintf(&b, "%-12s %-30s %8d %12d %12d $%11.6f\n",
			r.LessonID, r.Model, r.RequestCount, r.InputTokens, r.OutputTokens, r.TotalCost)
		totalCost += r.TotalCost
	}
	b.WriteString(strings.Repeat("-", 91) + "\n")
	fmt.Fprintf(&b, "%78s $%11.6f\n", "TOTAL:", totalCost)
	return b.String()
}

func formatDailyTable(days []models.DailyCost) string {
	if len(days) == 0 {
		return "No spend in range.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %12s\n", "DATE", "COST")
	b.WriteString(strings.Repeat("-", 25) + "\n")
	for _, d := range days {
		fmt.Fprintf(&b, "%-12s $%11.6f\n", d.Date, d.Cost)
	}
	return b.String()
}
