package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/ilearnhow/lessongen/pkg/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve lessongen tools over MCP (JSON-RPC on stdio)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, func(ctx context.Context, rt *runtime) error {
				srv := mcp.New(mcp.Services{
					Orchestrator: rt.orch,
					Budget:       rt.budget,
					Limiter:      rt.limiter,
					Tracker:      rt.tracker,
					Attempts:     rt.ledger,
				}, version, rt.log)
				return srv.Run(ctx, os.Stdin, os.Stdout)
			})
		},
	}
}
