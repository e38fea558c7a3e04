package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/ilearnhow/lessongen/pkg/cache"
	"github.com/ilearnhow/lessongen/pkg/curriculum"
	"github.com/ilearnhow/lessongen/pkg/models"
)

// withRuntime loads config, opens the runtime and runs fn with a context
// cancelled on SIGINT or SIGTERM.
func withRuntime(cmd *cobra.Command, fn func(ctx context.Context, rt *runtime) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := openRuntime(ctx, cfg, newLogger(cfg.Log))
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()
	return fn(ctx, rt)
}

func lessonArg(args []string, day int) (string, error) {
	switch {
	case len(args) == 1:
		return args[0], nil
	case day > 0:
		return curriculum.LessonID(day), nil
	default:
		return "", errors.New("a lesson id or --day is required")
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printBatch(res *models.BatchResult) error {
	st := res.Stats
	fmt.Printf("Batch:      %s\n", res.BatchID)
	fmt.Printf("Lesson:     %s\n", res.LessonID)
	fmt.Printf("Client:     %s\n", res.ClientID)
	fmt.Printf("Variants:   %d\n", st.TotalVariants)
	fmt.Printf("Succeeded:  %d (%d cached, %d remote, %d degraded)\n",
		st.SuccessfulGenerations, st.CacheHits, st.RemoteCalls, st.Degraded)
	fmt.Printf("Failed:     %d\n", st.FailedGenerations)
	fmt.Printf("Cost:       $%.6f\n", st.TotalCost)
	fmt.Printf("Duration:   %s\n", st.EndTime.Sub(st.StartTime))
	if st.BudgetStopped {
		fmt.Println("Budget ceiling reached; remaining variants were not requested.")
	}
	if len(res.Failures) == 0 {
		return nil
	}
	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VARIANT\tREASON\tRETRY AFTER\tERROR")
	for _, f := range res.Failures {
		retry := "-"
		if f.RetryAfter > 0 {
			retry = f.RetryAfter.String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", f.VariantID, f.Reason, retry, f.Error)
	}
	return w.Flush()
}

func newGenerateCmd() *cobra.Command {
	var (
		clientID string
		day      int
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "generate [lesson-id]",
		Short: "Generate every variant of a lesson",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lessonID, err := lessonArg(args, day)
			if err != nil {
				return err
			}
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				res, err := rt.orch.GenerateAll(ctx, lessonID, clientID)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(res)
				}
				return printBatch(res)
			})
		},
	}

	cmd.Flags().StringVar(&clientID, "client", "", "client identity for rate limiting")
	cmd.Flags().IntVar(&day, "day", 0, "curriculum day instead of a lesson id")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full batch result as JSON")
	return cmd
}

func newResumeCmd() *cobra.Command {
	var (
		clientID   string
		variantIDs []string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "resume <lesson-id>",
		Short: "Retry the variants of a lesson whose last attempt failed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				res, err := rt.orch.ResumeFailed(ctx, args[0], clientID, variantIDs)
				if err != nil {
					return err
				}
				if asJSON {
					return printJSON(res)
				}
				return printBatch(res)
			})
		},
	}

	cmd.Flags().StringVar(&clientID, "client", "", "client identity for rate limiting")
	cmd.Flags().StringSliceVar(&variantIDs, "variant", nil, "variant ids to retry (default: failed variants from the attempt ledger)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full batch result as JSON")
	return cmd
}

func newVariantCmd() *cobra.Command {
	var (
		clientID string
		generate bool
	)

	cmd := &cobra.Command{
		Use:   "variant <lesson-id> <variant-id>",
		Short: "Show one cached variant, or generate it with --generate",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				var (
					res *models.GenerationResult
					err error
				)
				if generate {
					res, err = rt.orch.GenerateVariant(ctx, args[0], clientID, args[1])
				} else {
					res, err = rt.orch.GetVariant(ctx, args[0], args[1])
				}
				if errors.Is(err, cache.ErrNotFound) {
					fmt.Printf("Variant %s of %s is not cached.\n", args[1], args[0])
					return nil
				}
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}

	cmd.Flags().StringVar(&clientID, "client", "", "client identity for rate limiting")
	cmd.Flags().BoolVar(&generate, "generate", false, "generate the variant when it is not cached")
	return cmd
}
