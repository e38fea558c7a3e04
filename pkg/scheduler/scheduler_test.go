package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ilearnhow/lessongen/pkg/clock"
	"github.com/ilearnhow/lessongen/pkg/config"
	"github.com/ilearnhow/lessongen/pkg/curriculum"
	"github.com/ilearnhow/lessongen/pkg/models"
)

type recordingGenerator struct {
	mu      sync.Mutex
	lessons []string
	failOn  string
}

func (g *recordingGenerator) GenerateAll(_ context.Context, lessonID, _ string) (*models.BatchResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lessons = append(g.lessons, lessonID)
	if lessonID == g.failOn {
		return nil, errors.New("store unavailable")
	}
	return &models.BatchResult{LessonID: lessonID}, nil
}

type countingReconciler struct {
	calls int
	err   error
}

func (r *countingReconciler) Reconcile(_ context.Context) (models.BudgetSpend, error) {
	r.calls++
	return models.BudgetSpend{Daily: 1, Monthly: 2}, r.err
}

func TestPregenerateLeadDays(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 1, 1, 2, 0, 0, 0, time.UTC))
	gen := &recordingGenerator{}
	s, err := New(config.SchedulerConfig{LeadDays: 2}, gen, nil, curriculum.Default(), clk, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Pregenerate(context.Background()); err != nil {
		t.Fatal(err)
	}
	// Day 3 has no lesson in the default catalog.
	if len(gen.lessons) != 2 || gen.lessons[0] != "day1" || gen.lessons[1] != "day2" {
		t.Errorf("lessons = %v, want [day1 day2]", gen.lessons)
	}
}

func TestPregenerateContinuesAfterError(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 1, 1, 2, 0, 0, 0, time.UTC))
	gen := &recordingGenerator{failOn: "day1"}
	s, err := New(config.SchedulerConfig{LeadDays: 1}, gen, nil, nil, clk, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	err = s.Pregenerate(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(gen.lessons) != 2 {
		t.Errorf("expected both days attempted, got %v", gen.lessons)
	}
}

func TestPregenerateSkipsDaysWithoutLesson(t *testing.T) {
	clk := clock.NewFake(time.Date(2025, 6, 1, 2, 0, 0, 0, time.UTC))
	gen := &recordingGenerator{}
	s, _ := New(config.SchedulerConfig{LeadDays: 1}, gen, nil, nil, clk, zerolog.Nop())
	if err := s.Pregenerate(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(gen.lessons) != 0 {
		t.Errorf("expected no generation, got %v", gen.lessons)
	}
}

func TestReconcile(t *testing.T) {
	rec := &countingReconciler{}
	s, err := New(config.SchedulerConfig{}, &recordingGenerator{}, rec, nil, nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Reconcile(context.Background()); err != nil {
		t.Fatal(err)
	}
	rec.err = errors.New("tracker closed")
	if err := s.Reconcile(context.Background()); err == nil {
		t.Error("expected error")
	}
	if rec.calls != 2 {
		t.Errorf("calls = %d, want 2", rec.calls)
	}
}

func TestNewRegistersJobs(t *testing.T) {
	cfg := config.SchedulerConfig{Pregenerate: "0 2 * * *", Reconcile: "*/15 * * * *"}
	s, err := New(cfg, &recordingGenerator{}, &countingReconciler{}, nil, nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if n := len(s.cron.Entries()); n != 2 {
		t.Errorf("entries = %d, want 2", n)
	}

	s, err = New(cfg, &recordingGenerator{}, nil, nil, nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if n := len(s.cron.Entries()); n != 1 {
		t.Errorf("entries without reconciler = %d, want 1", n)
	}
}

func TestNewRejectsBadSchedule(t *testing.T) {
	_, err := New(config.SchedulerConfig{Pregenerate: "every day"}, &recordingGenerator{}, nil, nil, nil, zerolog.Nop())
	if err == nil {
		t.Error("expected parse error")
	}
}

func TestStartStop(t *testing.T) {
	s, err := New(config.SchedulerConfig{Reconcile: "@every 1h"}, &recordingGenerator{}, &countingReconciler{}, nil, nil, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()
	s.Stop()
	s.Stop()
}
