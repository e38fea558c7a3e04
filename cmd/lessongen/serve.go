package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/ilearnhow/lessongen/pkg/api"
	"github.com/ilearnhow/lessongen/pkg/clock"
	"github.com/ilearnhow/lessongen/pkg/scheduler"
)

func newServeCmd() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API (and the scheduler when enabled)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Listen = listen
			}
			log := newLogger(cfg.Log)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := openRuntime(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			var metricsHandler http.Handler
			if cfg.Metrics.Enabled {
				metricsHandler = promhttp.HandlerFor(rt.registry, promhttp.HandlerOpts{})
			}

			if cfg.Scheduler.Enabled {
				sch, err := scheduler.New(cfg.Scheduler, rt.orch, rt.budget, rt.catalog, clock.Real{}, log)
				if err != nil {
					return err
				}
				sch.Start(ctx)
				defer sch.Stop()
			}

			srv := api.New(cfg.Listen, rt.orch, rt.budget, rt.limiter, metricsHandler, log)
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "override the listen address")
	return cmd
}
