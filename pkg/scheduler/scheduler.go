// Package scheduler runs background jobs on cron schedules: pre-generating
// upcoming lessons and reconciling budget accumulators with the cost log.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/ilearnhow/lessongen/pkg/clock"
	"github.com/ilearnhow/lessongen/pkg/config"
	"github.com/ilearnhow/lessongen/pkg/curriculum"
	"github.com/ilearnhow/lessongen/pkg/models"
)

// Generator produces every variant of a lesson.
type Generator interface {
	GenerateAll(ctx context.Context, lessonID, clientID string) (*models.BatchResult, error)
}

// Reconciler repairs budget accumulators from the durable cost log.
type Reconciler interface {
	Reconcile(ctx context.Context) (models.BudgetSpend, error)
}

// Scheduler owns the cron runner and the job bodies.
type Scheduler struct {
	cron     *cron.Cron
	gen      Generator
	rec      Reconciler
	catalog  *curriculum.Catalog
	leadDays int
	clock    clock.Clock
	log      zerolog.Logger

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
}

// New validates the schedules in cfg and registers the jobs. An empty
// schedule disables its job; rec may be nil.
func New(cfg config.SchedulerConfig, gen Generator, rec Reconciler, cat *curriculum.Catalog, clk clock.Clock, log zerolog.Logger) (*Scheduler, error) {
	if clk == nil {
		clk = clock.Real{}
	}
	if cat == nil {
		cat = curriculum.Default()
	}
	s := &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		gen:      gen,
		rec:      rec,
		catalog:  cat,
		leadDays: max(cfg.LeadDays, 0),
		clock:    clk,
		log:      log.With().Str("component", "scheduler").Logger(),
	}
	if cfg.Pregenerate != "" {
		if _, err := s.cron.AddFunc(cfg.Pregenerate, s.job("pregenerate", s.Pregenerate)); err != nil {
			return nil, fmt.Errorf("schedule pregenerate %q: %w", cfg.Pregenerate, err)
		}
	}
	if cfg.Reconcile != "" && rec != nil {
		if _, err := s.cron.AddFunc(cfg.Reconcile, s.job("reconcile", s.Reconcile)); err != nil {
			return nil, fmt.Errorf("schedule reconcile %q: %w", cfg.Reconcile, err)
		}
	}
	return s, nil
}

func (s *Scheduler) job(name string, fn func(context.Context) error) func() {
	return func() {
		s.mu.Lock()
		ctx := s.ctx
		s.mu.Unlock()
		if ctx == nil {
			ctx = context.Background()
		}
		start := time.Now()
		if err := fn(ctx); err != nil {
			s.log.Error().Err(err).Str("job", name).Msg("job failed")
			return
		}
		s.log.Info().Str("job", name).Dur("duration", time.Since(start)).Msg("job finished")
	}
}

// Start runs the cron loop until ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.ctx, s.cancel = runCtx, cancel
	s.mu.Unlock()

	s.cron.Start()
	s.log.Info().Int("jobs", len(s.cron.Entries())).Msg("scheduler started")

	go func() {
		<-runCtx.Done()
		s.Stop()
	}()
}

// Stop cancels running jobs and waits up to five seconds for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()

	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("stop timeout waiting for running jobs")
	}
	s.log.Info().Msg("scheduler stopped")
}

// Pregenerate generates the lessons for today and the next lead days.
// Days without a curriculum lesson are skipped.
func (s *Scheduler) Pregenerate(ctx context.Context) error {
	now := s.clock.Now().UTC()
	var errs []error
	for d := 0; d <= s.leadDays; d++ {
		day := now.AddDate(0, 0, d).YearDay()
		lesson, ok := s.catalog.ForDay(day)
		if !ok {
			s.log.Debug().Int("day", day).Msg("no lesson scheduled")
			continue
		}
		res, err := s.gen.GenerateAll(ctx, lesson.ID, "")
		if err != nil {
			errs = append(errs, fmt.Errorf("pregenerate %s: %w", lesson.ID, err))
			continue
		}
		s.log.Info().
			Str("lesson_id", lesson.ID).
			Int("succeeded", res.Stats.SuccessfulGenerations).
			Int("failed", res.Stats.FailedGenerations).
			Float64("cost", res.Stats.TotalCost).
			Msg("lesson pregenerated")
	}
	return errors.Join(errs...)
}

// Reconcile raises the budget accumulators to the cost log totals.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	if s.rec == nil {
		return nil
	}
	spend, err := s.rec.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("reconcile budget: %w", err)
	}
	s.log.Debug().Float64("daily", spend.Daily).Float64("monthly", spend.Monthly).Msg("budget reconciled")
	return nil
}
