package budget

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ilearnhow/lessongen/pkg/cache"
	"github.com/ilearnhow/lessongen/pkg/cache/memory"
	"github.com/ilearnhow/lessongen/pkg/clock"
	"github.com/ilearnhow/lessongen/pkg/models"
	"github.com/ilearnhow/lessongen/pkg/tracker"
)

var testNow = time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC)

func setup(t *testing.T, limits models.BudgetLimits) (*Enforcer, *memory.Tier, *tracker.SQLiteTracker, *clock.Fake) {
	t.Helper()
	tr, err := tracker.New(filepath.Join(t.TempDir(), "budget_test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { tr.Close() })
	clk := clock.NewFake(testNow)
	store := memory.New(clk)
	return New(store, tr, limits, 90, clk, zerolog.Nop()), store, tr, clk
}

func costRec(cost float64) models.CostRecord {
	return models.CostRecord{LessonID: "day1", VariantID: "v", ClientID: "c", Provider: "anthropic", Model: "m", Cost: cost}
}

func TestEleventhCheckDenied(t *testing.T) {
	ctx := context.Background()
	e, _, _, _ := setup(t, models.BudgetLimits{Daily: 1.0, Monthly: 100})

	for i := 1; i <= 10; i++ {
		st, err := e.CheckBudget(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !st.Allowed {
			t.Fatalf("check %d should be allowed, got %+v", i, st)
		}
		if err := e.RecordCost(ctx, costRec(0.10)); err != nil {
			t.Fatal(err)
		}
	}

	st, err := e.CheckBudget(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Allowed {
		t.Fatalf("11th check should be denied, spent %+v", st.Current)
	}
	if st.Reason != ReasonDaily {
		t.Errorf("expected %s, got %s", ReasonDaily, st.Reason)
	}
	if want := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC); !st.ResetTime.Equal(want) {
		t.Errorf("expected reset at %v, got %v", want, st.ResetTime)
	}

	var be *BudgetExceededError
	if err := e.Check(ctx); !errors.As(err, &be) || !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("expected BudgetExceededError, got %v", err)
	}
}

func TestMonthlyCeiling(t *testing.T) {
	ctx := context.Background()
	e, _, _, _ := setup(t, models.BudgetLimits{Daily: 100, Monthly: 0.5})

	_ = e.RecordCost(ctx, costRec(0.5))
	st, _ := e.CheckBudget(ctx)
	if st.Allowed || st.Reason != ReasonMonthly {
		t.Fatalf("expected monthly denial, got %+v", st)
	}
	if want := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC); !st.ResetTime.Equal(want) {
		t.Errorf("expected reset at %v, got %v", want, st.ResetTime)
	}
}

func TestNewDayResetsDaily(t *testing.T) {
	ctx := context.Background()
	e, _, _, clk := setup(t, models.BudgetLimits{Daily: 0.2, Monthly: 100})

	_ = e.RecordCost(ctx, costRec(0.2))
	if st, _ := e.CheckBudget(ctx); st.Allowed {
		t.Fatal("expected denial")
	}
	clk.Advance(24 * time.Hour)
	st, _ := e.CheckBudget(ctx)
	if !st.Allowed {
		t.Fatalf("expected new day to allow, got %+v", st)
	}
	if st.Current.Monthly != 0.2 {
		t.Errorf("monthly spend should carry over: %v", st.Current.Monthly)
	}
}

type failingStore struct{}

func (failingStore) Incr(context.Context, string, float64, time.Duration) (float64, error) {
	return 0, cache.ErrUnavailable
}
func (failingStore) Counter(context.Context, string) (float64, error) {
	return 0, cache.ErrUnavailable
}

func TestStoreErrorDenies(t *testing.T) {
	e := New(failingStore{}, nil, models.BudgetLimits{Daily: 1, Monthly: 1}, 90, clock.NewFake(testNow), zerolog.Nop())

	st, err := e.CheckBudget(context.Background())
	if st.Allowed {
		t.Error("budget must deny when the store is unavailable")
	}
	if st.Reason != ReasonUnavailable {
		t.Errorf("expected %s, got %s", ReasonUnavailable, st.Reason)
	}
	if !errors.Is(err, cache.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
	if err := e.Check(context.Background()); !errors.Is(err, ErrBudgetExceeded) {
		t.Errorf("Check should report a budget denial, got %v", err)
	}
}

func TestAlerts(t *testing.T) {
	ctx := context.Background()
	e, _, _, _ := setup(t, models.BudgetLimits{Daily: 1, Monthly: 10})

	_ = e.RecordCost(ctx, costRec(0.85))
	alerts, err := e.Alerts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(alerts) != 0 {
		t.Fatalf("expected no alerts at 85%%, got %+v", alerts)
	}

	_ = e.RecordCost(ctx, costRec(0.05))
	alerts, _ = e.Alerts(ctx)
	if len(alerts) != 1 || alerts[0].Period != models.BudgetDaily || alerts[0].Percentage != 90 {
		t.Errorf("expected one daily alert at 90%%, got %+v", alerts)
	}
}

func TestHistoryFillsGaps(t *testing.T) {
	ctx := context.Background()
	e, _, tr, _ := setup(t, models.BudgetLimits{Daily: 10, Monthly: 100})

	r := costRec(0.3)
	r.CreatedAt = testNow.AddDate(0, 0, -2)
	_ = tr.Record(ctx, r)
	_ = e.RecordCost(ctx, costRec(0.1))

	hist, err := e.History(ctx, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 3 {
		t.Fatalf("expected 3 days, got %d", len(hist))
	}
	if hist[0].Date != "2025-03-12" || hist[0].Cost != 0.3 {
		t.Errorf("unexpected first day %+v", hist[0])
	}
	if hist[1].Cost != 0 {
		t.Errorf("expected empty middle day, got %+v", hist[1])
	}
	if hist[2].Cost != 0.1 {
		t.Errorf("unexpected today %+v", hist[2])
	}
}

func TestReconcileOnlyRaises(t *testing.T) {
	ctx := context.Background()
	e, store, tr, _ := setup(t, models.BudgetLimits{Daily: 10, Monthly: 100})

	// Spend logged while the counters were lost.
	r := costRec(0.4)
	r.CreatedAt = testNow
	_ = tr.Record(ctx, r)

	got, err := e.Reconcile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.Daily != 0.4 || got.Monthly != 0.4 {
		t.Errorf("expected accumulators raised to 0.4, got %+v", got)
	}

	// Accumulator ahead of the log stays put.
	_, _ = store.Incr(ctx, DailyKey(testNow), 1, time.Hour)
	got, _ = e.Reconcile(ctx)
	if got.Daily != 1.4 {
		t.Errorf("reconcile must not decrement, got %v", got.Daily)
	}
}

func TestConcurrentOvershootBounded(t *testing.T) {
	ctx := context.Background()
	const (
		workers = 8
		maxCost = 0.05
		ceiling = 1.0
	)
	e, _, _, _ := setup(t, models.BudgetLimits{Daily: ceiling, Monthly: 100, MaxCostPerCall: maxCost})

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				st, err := e.CheckBudget(ctx)
				if err != nil || !st.Allowed {
					return
				}
				_ = e.RecordCost(ctx, costRec(maxCost))
			}
		}()
	}
	wg.Wait()

	st, _ := e.CheckBudget(ctx)
	if st.Current.Daily > ceiling+workers*maxCost {
		t.Errorf("spend %v exceeds bound %v", st.Current.Daily, ceiling+workers*maxCost)
	}
	if st.Current.Daily < ceiling {
		t.Errorf("spend %v should reach the ceiling", st.Current.Daily)
	}
}

func TestPerMillion(t *testing.T) {
	cost := PerMillion(models.ModelPricing{})(models.Usage{InputTokens: 1000, OutputTokens: 500})
	if cost != 0.0105 {
		t.Errorf("expected 0.0105, got %v", cost)
	}
	custom := PerMillion(models.ModelPricing{InputPerMillion: 0.15, OutputPerMillion: 0.6})
	if c := custom(models.Usage{InputTokens: 2_000_000}); c != 0.3 {
		t.Errorf("expected 0.3, got %v", c)
	}
}
