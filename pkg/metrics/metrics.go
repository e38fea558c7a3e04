// Package metrics provides Prometheus metrics for lesson generation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ilearnhow/lessongen/pkg/models"
)

const namespace = "lessongen"

// Collector holds all Prometheus metrics.
type Collector struct {
	// Provider metrics
	ProviderCalls    *prometheus.CounterVec
	ProviderDuration *prometheus.HistogramVec
	BreakerState     *prometheus.GaugeVec

	// Quota metrics
	RateLimitDecisions *prometheus.CounterVec
	BudgetSpend        *prometheus.GaugeVec
	BudgetDenials      *prometheus.CounterVec

	// Cache metrics
	CacheLookups *prometheus.GaugeVec

	// Generation metrics
	Variants      *prometheus.CounterVec
	GenerationUSD prometheus.Counter
	Batches       prometheus.Counter
	BatchDuration prometheus.Histogram
}

// New creates a collector registered with the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a collector registered with reg.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		ProviderCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "provider_calls_total",
				Help:      "Remote generation calls by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		ProviderDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "provider_call_duration_seconds",
				Help:      "Remote generation call duration including retries",
				Buckets:   []float64{.25, .5, 1, 2.5, 5, 10, 20, 30, 60, 120},
			},
			[]string{"provider"},
		),
		BreakerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "provider_breaker_state",
				Help:      "Circuit breaker state (0=closed, 1=half-open, 2=open)",
			},
			[]string{"provider"},
		),
		RateLimitDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rate_limit_decisions_total",
				Help:      "Rate limit decisions by result",
			},
			[]string{"result"},
		),
		BudgetSpend: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "budget_spend_usd",
				Help:      "Accumulated spend in the current period",
			},
			[]string{"period"},
		),
		BudgetDenials: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "budget_denials_total",
				Help:      "Budget checks that denied a call",
			},
			[]string{"reason"},
		),
		CacheLookups: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "cache_lookups",
				Help:      "Cache lookup counters per tier since start",
			},
			[]string{"tier", "kind"},
		),
		Variants: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "variants_total",
				Help:      "Variant outcomes",
			},
			[]string{"status"},
		),
		GenerationUSD: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "generation_cost_usd_total",
				Help:      "Total cost of remote generation",
			},
		),
		Batches: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Completed generation batches",
			},
		),
		BatchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Wall time of a generation batch",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
	}
}

// ObserveCall records one provider call.
func (c *Collector) ObserveCall(provider, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.ProviderCalls.WithLabelValues(provider, outcome).Inc()
	c.ProviderDuration.WithLabelValues(provider).Observe(d.Seconds())
}

// SetBreakerState records a breaker transition.
func (c *Collector) SetBreakerState(provider, state string) {
	if c == nil {
		return
	}
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	c.BreakerState.WithLabelValues(provider).Set(v)
}

// ObserveRateLimit records a limiter decision. reason is empty when allowed.
func (c *Collector) ObserveRateLimit(allowed bool, reason string) {
	if c == nil {
		return
	}
	if allowed {
		reason = "allowed"
	}
	c.RateLimitDecisions.WithLabelValues(reason).Inc()
}

// ObserveBudget records a budget check.
func (c *Collector) ObserveBudget(st models.BudgetStatus) {
	if c == nil {
		return
	}
	c.BudgetSpend.WithLabelValues(string(models.BudgetDaily)).Set(st.Current.Daily)
	c.BudgetSpend.WithLabelValues(string(models.BudgetMonthly)).Set(st.Current.Monthly)
	if !st.Allowed {
		c.BudgetDenials.WithLabelValues(st.Reason).Inc()
	}
}

// ObserveCache copies the store counters into gauges.
func (c *Collector) ObserveCache(st models.CacheStats) {
	if c == nil {
		return
	}
	for _, t := range []models.TierStats{st.Volatile, st.Durable} {
		c.CacheLookups.WithLabelValues(t.Name, "hit").Set(float64(t.Hits))
		c.CacheLookups.WithLabelValues(t.Name, "miss").Set(float64(t.Misses))
		c.CacheLookups.WithLabelValues(t.Name, "error").Set(float64(t.Errors))
		c.CacheLookups.WithLabelValues(t.Name, "write_failure").Set(float64(t.WriteFailures))
	}
}

// ObserveVariant records one variant outcome.
func (c *Collector) ObserveVariant(status models.AttemptStatus, degraded bool, cost float64) {
	if c == nil {
		return
	}
	c.Variants.WithLabelValues(string(status)).Inc()
	if degraded {
		c.Variants.WithLabelValues("degraded").Inc()
	}
	if cost > 0 {
		c.GenerationUSD.Add(cost)
	}
}

// ObserveBatch records a finished batch.
func (c *Collector) ObserveBatch(st models.BatchStats) {
	if c == nil {
		return
	}
	c.Batches.Inc()
	c.BatchDuration.Observe(st.EndTime.Sub(st.StartTime).Seconds())
}
