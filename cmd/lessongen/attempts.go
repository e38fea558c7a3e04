package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ilearnhow/lessongen/pkg/audit"
	"github.com/ilearnhow/lessongen/pkg/models"
)

func newAttemptsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "attempts",
		Aliases: []string{"audit"},
		Short:   "Query and manage the generation attempt ledger",
	}

	cmd.AddCommand(
		newAttemptsSearchCmd(),
		newAttemptsFailuresCmd(),
		newAttemptsStatsCmd(),
		newAttemptsCleanupCmd(),
	)
	return cmd
}

// withLedger runs fn against the attempt ledger alone.
func withLedger(cmd *cobra.Command, fn func(ctx context.Context, l *audit.Ledger) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	l, err := openLedger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = l.Close() }()
	return fn(context.Background(), l)
}

func newAttemptsSearchCmd() *cobra.Command {
	var (
		lessonID  string
		variantID string
		batchID   string
		status    string
		since     string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search attempt records",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := models.AttemptQueryOpts{
				LessonID:  lessonID,
				VariantID: variantID,
				BatchID:   batchID,
				Status:    models.AttemptStatus(status),
				Limit:     limit,
			}
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date (use YYYY-MM-DD): %w", err)
				}
				opts.Since = t
			}
			return withLedger(cmd, func(ctx context.Context, l *audit.Ledger) error {
				attempts, err := l.Query(ctx, opts)
				if err != nil {
					return err
				}
				fmt.Print(formatAttempts(attempts))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&lessonID, "lesson", "", "filter by lesson")
	cmd.Flags().StringVar(&variantID, "variant", "", "filter by variant")
	cmd.Flags().StringVar(&batchID, "batch", "", "filter by batch")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (succeeded, cached, failed)")
	cmd.Flags().StringVar(&since, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&limit, "limit", 50, "max attempts to return")
	return cmd
}

func newAttemptsFailuresCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "failures <lesson-id>",
		Short: "List variants whose most recent attempt failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, func(ctx context.Context, l *audit.Ledger) error {
				ids, err := l.FailedVariants(ctx, args[0])
				if err != nil {
					return err
				}
				if len(ids) == 0 {
					fmt.Printf("No failed variants for %s.\n", args[0])
					return nil
				}
				for _, id := range ids {
					fmt.Println(id)
				}
				return nil
			})
		},
	}
}

func newAttemptsStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show attempt counts by lesson and status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd, func(ctx context.Context, l *audit.Ledger) error {
				stats, err := l.Stats(ctx)
				if err != nil {
					return err
				}
				fmt.Print(formatAttemptStats(stats))
				return nil
			})
		},
	}
}

func newAttemptsCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete attempts older than the retention period",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cfg.Audit.RetentionDays <= 0 {
				return errors.New("audit.retention_days is not set; refusing to delete every attempt")
			}
			return withLedger(cmd, func(ctx context.Context, l *audit.Ledger) error {
				deleted, err := l.Cleanup(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Deleted %d attempt records.\n", deleted)
				return nil
			})
		},
	}
}

func formatAttempts(attempts []models.Attempt) string {
	if len(attempts) == 0 {
		return "No attempts found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %-10s %-45s %-10s %-22s %9s %10s\n",
		"TIME", "LESSON", "VARIANT", "STATUS", "REASON", "LATENCY", "COST")
	b.WriteString(strings.Repeat("-", 132) + "\n")
	for _, a := range attempts {
		fmt.Fprintf(&b, "%-20s %-10s %-45s %-10s %-22s %7dms %10.6f\n",
			a.CreatedAt.Format("2006-01-02 15:04:05"), a.LessonID, a.VariantID,
			a.Status, defaultStr(a.Reason, "-"), a.LatencyMs, a.Cost)
	}
	return b.String()
}

func formatAttemptStats(stats []models.AttemptStat) string {
	if len(stats) == 0 {
		return "No attempt stats found.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-12s %-10s %8s\n", "LESSON", "STATUS", "COUNT")
	b.WriteString(strings.Repeat("-", 32) + "\n")
	for _, s := range stats {
		fmt.Fprintf(&b, "%-12s %-10s %8d\n", s.LessonID, s.Status, s.Count)
	}
	return b.String()
}

func defaultStr(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
