// Package budget enforces organization-wide daily and monthly spend ceilings.
package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ilearnhow/lessongen/pkg/clock"
	"github.com/ilearnhow/lessongen/pkg/models"
	"github.com/ilearnhow/lessongen/pkg/tracker"
)

// CounterStore is the subset of the cache store the enforcer needs.
type CounterStore interface {
	Incr(ctx context.Context, key string, delta float64, ttl time.Duration) (float64, error)
	Counter(ctx context.Context, key string) (float64, error)
}

// Enforcer checks spend against the ceilings and records cost.
//
// Checks and records are not a reservation: callers admitted concurrently
// can together overshoot a ceiling by at most concurrency × MaxCostPerCall.
type Enforcer struct {
	store     CounterStore
	costLog   tracker.Tracker
	limits    models.BudgetLimits
	threshold float64
	clock     clock.Clock
	logger    zerolog.Logger
}

// New creates an Enforcer. costLog may be nil, in which case History and
// Reconcile are unavailable. threshold is the alert level in percent.
func New(store CounterStore, costLog tracker.Tracker, limits models.BudgetLimits, threshold float64, clk clock.Clock, log zerolog.Logger) *Enforcer {
	return &Enforcer{
		store:     store,
		costLog:   costLog,
		limits:    limits,
		threshold: threshold,
		clock:     clk,
		logger:    log.With().Str("component", "budget").Logger(),
	}
}

// Limits returns the configured ceilings.
func (e *Enforcer) Limits() models.BudgetLimits {
	return e.limits
}

func (e *Enforcer) spend(ctx context.Context, now time.Time) (models.BudgetSpend, error) {
	daily, err := e.store.Counter(ctx, DailyKey(now))
	if err != nil {
		return models.BudgetSpend{}, err
	}
	monthly, err := e.store.Counter(ctx, MonthlyKey(now))
	if err != nil {
		return models.BudgetSpend{}, err
	}
	return models.BudgetSpend{
		Daily:   round(daily).InexactFloat64(),
		Monthly: round(monthly).InexactFloat64(),
	}, nil
}

func remaining(limit, spent float64) float64 {
	r := decimal.NewFromFloat(limit).Sub(round(spent))
	if r.IsNegative() {
		return 0
	}
	return r.InexactFloat64()
}

func reached(spent, limit float64) bool {
	return round(spent).GreaterThanOrEqual(decimal.NewFromFloat(limit))
}

// CheckBudget reports whether a new paid call may start. A store error
// denies with ReasonUnavailable and is returned alongside the status.
func (e *Enforcer) CheckBudget(ctx context.Context) (models.BudgetStatus, error) {
	now := e.clock.Now()
	st := models.BudgetStatus{Limits: e.limits}

	spent, err := e.spend(ctx, now)
	if err != nil {
		st.Reason = ReasonUnavailable
		e.logger.Error().Err(err).Msg("budget store unreadable, denying")
		return st, fmt.Errorf("budget check: %w", err)
	}
	st.Current = spent
	st.Remaining = models.BudgetSpend{
		Daily:   remaining(e.limits.Daily, spent.Daily),
		Monthly: remaining(e.limits.Monthly, spent.Monthly),
	}

	switch {
	case reached(spent.Daily, e.limits.Daily):
		st.Reason = ReasonDaily
		st.ResetTime = NextMidnight(now)
	case reached(spent.Monthly, e.limits.Monthly):
		st.Reason = ReasonMonthly
		st.ResetTime = NextMonth(now)
	default:
		st.Allowed = true
	}
	return st, nil
}

// Check is CheckBudget for single-request callers: a denial comes back as a
// *BudgetExceededError.
func (e *Enforcer) Check(ctx context.Context) error {
	st, err := e.CheckBudget(ctx)
	if err != nil {
		return errors.Join(&BudgetExceededError{Reason: st.Reason}, err)
	}
	if !st.Allowed {
		return &BudgetExceededError{Reason: st.Reason, ResetTime: st.ResetTime}
	}
	return nil
}

// RecordCost adds rec.Cost to the daily and monthly accumulators and appends
// rec to the cost log.
func (e *Enforcer) RecordCost(ctx context.Context, rec models.CostRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = e.clock.Now()
	}
	if rec.Cost <= 0 {
		return nil
	}
	if e.limits.MaxCostPerCall > 0 && rec.Cost > e.limits.MaxCostPerCall {
		e.logger.Warn().Float64("cost", rec.Cost).Float64("max_cost_per_call", e.limits.MaxCostPerCall).
			Str("lesson_id", rec.LessonID).Str("variant_id", rec.VariantID).Msg("call cost above per-call ceiling")
	}

	var errs []error
	if _, err := e.store.Incr(ctx, DailyKey(rec.CreatedAt), rec.Cost, dailyTTL); err != nil {
		errs = append(errs, fmt.Errorf("record daily cost: %w", err))
	}
	if _, err := e.store.Incr(ctx, MonthlyKey(rec.CreatedAt), rec.Cost, monthlyTTL); err != nil {
		errs = append(errs, fmt.Errorf("record monthly cost: %w", err))
	}
	if e.costLog != nil {
		if err := e.costLog.Record(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Alerts returns the periods whose spend is at or above the alert threshold.
func (e *Enforcer) Alerts(ctx context.Context) ([]models.BudgetAlert, error) {
	spent, err := e.spend(ctx, e.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("budget alerts: %w", err)
	}
	var alerts []models.BudgetAlert
	check := func(p models.BudgetPeriod, spent, limit float64) {
		if limit <= 0 {
			return
		}
		pct := round(spent).Div(decimal.NewFromFloat(limit)).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
		if pct >= e.threshold {
			alerts = append(alerts, models.BudgetAlert{
				Period:     p,
				Percentage: pct,
				Remaining:  remaining(limit, spent),
				Threshold:  e.threshold,
			})
		}
	}
	check(models.BudgetDaily, spent.Daily, e.limits.Daily)
	check(models.BudgetMonthly, spent.Monthly, e.limits.Monthly)
	return alerts, nil
}

// History returns one entry per UTC day for the last days days, oldest
// first, with zero for days without spend.
func (e *Enforcer) History(ctx context.Context, days int) ([]models.DailyCost, error) {
	if e.costLog == nil {
		return nil, errors.New("budget history: no cost log configured")
	}
	if days < 1 {
		days = 1
	}
	since := dayStart(e.clock.Now()).AddDate(0, 0, -(days - 1))
	totals, err := e.costLog.DailyTotals(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("budget history: %w", err)
	}
	byDay := make(map[string]float64, len(totals))
	for _, d := range totals {
		byDay[d.Date] = d.Cost
	}
	out := make([]models.DailyCost, 0, days)
	for i := 0; i < days; i++ {
		d := since.AddDate(0, 0, i).Format(time.DateOnly)
		out = append(out, models.DailyCost{Date: d, Cost: round(byDay[d]).InexactFloat64()})
	}
	return out, nil
}

// Reconcile raises the accumulators to the cost-log totals for the current
// day and month. Accumulators are never decremented.
func (e *Enforcer) Reconcile(ctx context.Context) (models.BudgetSpend, error) {
	if e.costLog == nil {
		return models.BudgetSpend{}, errors.New("budget reconcile: no cost log configured")
	}
	now := e.clock.Now()
	logged := models.BudgetSpend{}
	var err error
	if logged.Daily, err = e.costLog.TotalBetween(ctx, dayStart(now), NextMidnight(now)); err != nil {
		return models.BudgetSpend{}, fmt.Errorf("budget reconcile: %w", err)
	}
	if logged.Monthly, err = e.costLog.TotalBetween(ctx, monthStart(now), NextMonth(now)); err != nil {
		return models.BudgetSpend{}, fmt.Errorf("budget reconcile: %w", err)
	}

	current, err := e.spend(ctx, now)
	if err != nil {
		return models.BudgetSpend{}, fmt.Errorf("budget reconcile: %w", err)
	}
	raise := func(key string, have, want float64, ttl time.Duration) (float64, error) {
		diff := round(want).Sub(round(have))
		if !diff.IsPositive() {
			return have, nil
		}
		e.logger.Info().Str("key", key).Float64("from", have).Float64("to", want).Msg("raising budget accumulator")
		return e.store.Incr(ctx, key, diff.InexactFloat64(), ttl)
	}
	if current.Daily, err = raise(DailyKey(now), current.Daily, logged.Daily, dailyTTL); err != nil {
		return models.BudgetSpend{}, fmt.Errorf("budget reconcile daily: %w", err)
	}
	if current.Monthly, err = raise(MonthlyKey(now), current.Monthly, logged.Monthly, monthlyTTL); err != nil {
		return models.BudgetSpend{}, fmt.Errorf("budget reconcile monthly: %w", err)
	}
	return current, nil
}
