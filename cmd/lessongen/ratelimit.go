package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newRateLimitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ratelimit",
		Short: "Inspect and reset per-client quotas",
	}

	statusCmd := &cobra.Command{
		Use:   "status [client-id]",
		Short: "Show quota usage for a client",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				clientID := rt.orch.DefaultClientID()
				if len(args) == 1 {
					clientID = args[0]
				}
				st, err := rt.limiter.Status(ctx, clientID)
				if err != nil {
					return err
				}
				fmt.Printf("Client: %s (tier %s)\n", st.ClientID, st.Tier)
				w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "WINDOW\tCOUNT\tLIMIT\tREMAINING\tRESETS")
				for _, ws := range st.Windows {
					fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n",
						ws.Granularity, ws.Count, ws.Limit, ws.Remaining, ws.ResetAt.Format("2006-01-02 15:04:05"))
				}
				return w.Flush()
			})
		},
	}

	resetCmd := &cobra.Command{
		Use:   "reset <client-id>",
		Short: "Clear the current windows of a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				if err := rt.limiter.Reset(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Quota windows for %s reset.\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(statusCmd, resetCmd)
	return cmd
}
