package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newBudgetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "budget",
		Short: "Show and reconcile spend against the budget ceilings",
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show budget usage vs limits",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				st, err := rt.budget.CheckBudget(ctx)
				if err != nil {
					return err
				}
				alerts, err := rt.budget.Alerts(ctx)
				if err != nil {
					return err
				}

				if st.Allowed {
					fmt.Println("Status: allowed")
				} else {
					fmt.Printf("Status: denied (%s), resets %s\n", st.Reason, st.ResetTime.Format("2006-01-02 15:04:05"))
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "PERIOD\tLIMIT\tSPENT\tREMAINING")
				fmt.Fprintf(w, "daily\t%.2f\t%.6f\t%.6f\n", st.Limits.Daily, st.Current.Daily, st.Remaining.Daily)
				fmt.Fprintf(w, "monthly\t%.2f\t%.6f\t%.6f\n", st.Limits.Monthly, st.Current.Monthly, st.Remaining.Monthly)
				if err := w.Flush(); err != nil {
					return err
				}
				for _, a := range alerts {
					fmt.Printf("ALERT: %s spend at %.1f%% (threshold %.0f%%)\n", a.Period, a.Percentage, a.Threshold)
				}
				return nil
			})
		},
	}

	var days int
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show daily spend from the cost log",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				hist, err := rt.budget.History(ctx, days)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "DATE\tCOST")
				for _, d := range hist {
					fmt.Fprintf(w, "%s\t%.6f\n", d.Date, d.Cost)
				}
				return w.Flush()
			})
		},
	}
	historyCmd.Flags().IntVar(&days, "days", 7, "number of days to show")

	reconcileCmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Raise the spend accumulators to the cost log totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				spend, err := rt.budget.Reconcile(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Daily:   $%.6f\nMonthly: $%.6f\n", spend.Daily, spend.Monthly)
				return nil
			})
		},
	}

	cmd.AddCommand(statusCmd, historyCmd, reconcileCmd)
	return cmd
}
