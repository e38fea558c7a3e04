package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ilearnhow/lessongen/pkg/metrics"
	"github.com/ilearnhow/lessongen/pkg/models"
)

func TestObserveCall(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	m.ObserveCall("anthropic", "ok", 2*time.Second)
	m.ObserveCall("anthropic", "ok", time.Second)
	m.ObserveCall("anthropic", "error", time.Second)

	if got := testutil.ToFloat64(m.ProviderCalls.WithLabelValues("anthropic", "ok")); got != 2 {
		t.Errorf("expected 2 ok calls, got %v", got)
	}
	if got := testutil.CollectAndCount(m.ProviderDuration); got != 1 {
		t.Errorf("expected 1 duration series, got %d", got)
	}
}

func TestBreakerState(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	m.SetBreakerState("anthropic", "open")
	if got := testutil.ToFloat64(m.BreakerState.WithLabelValues("anthropic")); got != 2 {
		t.Errorf("expected open=2, got %v", got)
	}
	m.SetBreakerState("anthropic", "closed")
	if got := testutil.ToFloat64(m.BreakerState.WithLabelValues("anthropic")); got != 0 {
		t.Errorf("expected closed=0, got %v", got)
	}
}

func TestQuotaMetrics(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	m.ObserveRateLimit(true, "")
	m.ObserveRateLimit(false, "minute_limit_exceeded")
	m.ObserveBudget(models.BudgetStatus{
		Allowed: false,
		Reason:  "daily_budget_exceeded",
		Current: models.BudgetSpend{Daily: 10, Monthly: 42},
	})

	if got := testutil.ToFloat64(m.RateLimitDecisions.WithLabelValues("minute_limit_exceeded")); got != 1 {
		t.Errorf("expected 1 denial, got %v", got)
	}
	if got := testutil.ToFloat64(m.BudgetSpend.WithLabelValues("monthly")); got != 42 {
		t.Errorf("expected monthly spend 42, got %v", got)
	}
	if got := testutil.ToFloat64(m.BudgetDenials.WithLabelValues("daily_budget_exceeded")); got != 1 {
		t.Errorf("expected 1 budget denial, got %v", got)
	}
}

func TestVariantAndBatch(t *testing.T) {
	m := metrics.NewWithRegistry(prometheus.NewRegistry())

	m.ObserveVariant(models.AttemptSucceeded, true, 0.5)
	m.ObserveVariant(models.AttemptCached, false, 0)
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m.ObserveBatch(models.BatchStats{StartTime: start, EndTime: start.Add(3 * time.Second)})

	if got := testutil.ToFloat64(m.Variants.WithLabelValues("degraded")); got != 1 {
		t.Errorf("expected 1 degraded, got %v", got)
	}
	if got := testutil.ToFloat64(m.GenerationUSD); got != 0.5 {
		t.Errorf("expected cost 0.5, got %v", got)
	}
	if got := testutil.ToFloat64(m.Batches); got != 1 {
		t.Errorf("expected 1 batch, got %v", got)
	}
}

func TestNilCollectorSafe(t *testing.T) {
	var m *metrics.Collector
	m.ObserveCall("x", "ok", time.Second)
	m.ObserveBatch(models.BatchStats{})
	m.ObserveCache(models.CacheStats{})
}
