package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ilearnhow/lessongen/pkg/orchestrator"
)

func newCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage cached lesson content",
	}

	var filter orchestrator.Filter
	statusCmd := &cobra.Command{
		Use:   "status <lesson-id>",
		Short: "Show which variants of a lesson are cached",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				found, missing, err := rt.orch.Lookup(ctx, args[0], filter)
				if err != nil {
					return err
				}
				fmt.Printf("Cached:  %d\nMissing: %d\n", len(found), len(missing))
				if len(found) > 0 {
					fmt.Println()
					w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
					fmt.Fprintln(w, "VARIANT\tPROVIDER\tMODEL\tCOST\tDEGRADED\tGENERATED")
					for _, r := range found {
						fmt.Fprintf(w, "%s\t%s\t%s\t%.6f\t%t\t%s\n",
							r.VariantID, r.Provider, r.Model, r.Cost, r.Degraded, r.GeneratedAt.Format("2006-01-02 15:04:05"))
					}
					if err := w.Flush(); err != nil {
						return err
					}
				}
				for _, id := range missing {
					fmt.Println("missing:", id)
				}
				return nil
			})
		},
	}
	statusCmd.Flags().StringVar(&filter.AgeGroup, "age", "", "filter by age group")
	statusCmd.Flags().StringVar(&filter.Tone, "tone", "", "filter by tone")
	statusCmd.Flags().StringVar(&filter.ContentType, "content-type", "", "filter by content type")
	statusCmd.Flags().StringVar(&filter.QuestionType, "question", "", "filter by question type")
	statusCmd.Flags().StringVar(&filter.Choice, "choice", "", "filter by choice")

	invalidateCmd := &cobra.Command{
		Use:   "invalidate <lesson-id>",
		Short: "Delete every cached variant of a lesson",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				n, err := rt.orch.InvalidateLesson(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Printf("Invalidated %d cached variant(s) of %s.\n", n, args[0])
				return nil
			})
		},
	}

	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete all cached lesson content (budget and quota counters are kept)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				n, err := rt.store.InvalidatePattern(ctx, orchestrator.ContentKey("*", "*"))
				if err != nil {
					return err
				}
				fmt.Printf("Purged %d cached variant(s).\n", n)
				return nil
			})
		},
	}

	cmd.AddCommand(statusCmd, invalidateCmd, purgeCmd)
	return cmd
}
