package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/ilearnhow/lessongen/pkg/budget"
	"github.com/ilearnhow/lessongen/pkg/cache"
	"github.com/ilearnhow/lessongen/pkg/models"
	"github.com/ilearnhow/lessongen/pkg/provider"
)

func round6(f float64) float64 {
	return decimal.NewFromFloat(f).Round(6).InexactFloat64()
}

func (o *Orchestrator) request(b *batch, v models.Variant) provider.Request {
	if v.Kind == models.KindFortune {
		return provider.Request{
			Prompt:      FortunePrompt(b.lesson),
			Model:       o.opts.Model,
			MaxTokens:   o.opts.FortuneMaxTokens,
			Temperature: o.opts.FortuneTemperature,
			Mode:        provider.ModeText,
		}
	}
	return provider.Request{
		Prompt:      VariantPrompt(o.Catalog, b.lesson, v),
		Model:       o.opts.Model,
		MaxTokens:   o.opts.MaxTokens,
		Temperature: o.opts.Temperature,
		Mode:        provider.ModeStructured,
	}
}

func fail(v models.Variant, reason string, err error) outcome {
	return outcome{
		variant: v,
		failure: &models.Failure{VariantID: v.ID(), Reason: reason, Error: err.Error()},
		err:     err,
	}
}

// process drives one variant from cache check to a terminal state.
// Concurrent requests for the same content key share one execution; callers
// that joined another caller's remote call see it as a cache hit.
func (o *Orchestrator) process(ctx context.Context, b *batch, v models.Variant) outcome {
	if err := ctx.Err(); err != nil {
		return fail(v, models.ReasonCanceled, err)
	}
	key := ContentKey(b.lessonID, v.ID())
	executed := false
	val, _, _ := o.flight.Do(key, func() (any, error) {
		executed = true
		return o.generate(ctx, b, v, key), nil
	})
	oc := val.(outcome)
	if !executed && oc.remote {
		oc.remote, oc.cached, oc.latency = false, true, 0
	}
	return oc
}

func (o *Orchestrator) generate(ctx context.Context, b *batch, v models.Variant, key string) outcome {
	req := o.request(b, v)
	fp := Fingerprint(o.opts.TemplateVersion, req.Model, req.Prompt)

	cached, err := o.lookup(ctx, key, fp)
	switch {
	case err == nil:
		o.Metrics.ObserveVariant(models.AttemptCached, false, 0)
		return outcome{variant: v, result: cached, cached: true, provider: cached.Provider, model: cached.Model}
	case errors.Is(err, cache.ErrUnavailable):
		o.log.Error().Err(err).Str("variant_id", v.ID()).Msg("cache unavailable")
		return o.failed(v, models.ReasonCacheError, err)
	}

	if b.stopped.Load() {
		return o.failed(v, models.ReasonBudgetStopped, &budget.BudgetExceededError{Reason: models.ReasonBudgetStopped})
	}

	st, err := o.Budget.CheckBudget(ctx)
	o.Metrics.ObserveBudget(st)
	if err != nil || !st.Allowed {
		b.stopped.Store(true)
		denial := &budget.BudgetExceededError{Reason: st.Reason, ResetTime: st.ResetTime}
		oc := o.failed(v, st.Reason, denial)
		if err != nil {
			oc.err = errors.Join(denial, err)
		}
		if !st.ResetTime.IsZero() {
			oc.failure.RetryAfter = st.ResetTime.Sub(o.Clock.Now())
		}
		o.log.Warn().Str("batch_id", b.id).Str("reason", st.Reason).Msg("budget denied, stopping new remote calls")
		return oc
	}

	d, err := o.Limiter.CheckAndConsume(ctx, b.clientID, 1)
	if err != nil {
		o.log.Warn().Err(err).Str("client_id", b.clientID).Msg("rate limiter unavailable, admitting")
	}
	o.Metrics.ObserveRateLimit(d.Allowed, d.Reason)
	if !d.Allowed {
		oc := o.failed(v, d.Reason, d.Err(b.clientID))
		oc.failure.RetryAfter = d.RetryAfter
		return oc
	}

	if b.pacer != nil {
		if err := b.pacer.Wait(ctx); err != nil {
			return o.failed(v, models.ReasonCanceled, err)
		}
	}

	callCtx := ctx
	if o.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.opts.CallTimeout)
		defer cancel()
	}
	start := time.Now()
	resp, err := o.Generator.Generate(callCtx, req)
	latency := time.Since(start)
	if err != nil {
		reason := models.ReasonProviderError
		if ctx.Err() != nil {
			reason = models.ReasonCanceled
		}
		o.log.Warn().Err(err).Str("variant_id", v.ID()).Msg("generation failed")
		oc := o.failed(v, reason, err)
		oc.latency = latency
		return oc
	}

	now := o.Clock.Now()
	if err := o.Budget.RecordCost(ctx, models.CostRecord{
		LessonID:     b.lessonID,
		VariantID:    v.ID(),
		ClientID:     b.clientID,
		Provider:     resp.Provider,
		Model:        resp.Model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		Cost:         resp.Cost,
		CreatedAt:    now,
	}); err != nil {
		o.log.Error().Err(err).Str("variant_id", v.ID()).Float64("cost", resp.Cost).Msg("record cost")
	}

	res := &models.GenerationResult{
		VariantID:   v.ID(),
		Variant:     v,
		Content:     resp.Content,
		Usage:       resp.Usage,
		Cost:        resp.Cost,
		Provider:    resp.Provider,
		Model:       resp.Model,
		Degraded:    resp.Degraded,
		Fingerprint: fp,
		GeneratedAt: now,
	}
	if err := o.store(ctx, key, res); err != nil {
		o.log.Error().Err(err).Str("variant_id", v.ID()).Msg("cache write failed")
	}
	o.Metrics.ObserveVariant(models.AttemptSucceeded, res.Degraded, res.Cost)

	return outcome{
		variant:  v,
		result:   res,
		remote:   true,
		provider: resp.Provider,
		model:    resp.Model,
		latency:  latency,
	}
}

func (o *Orchestrator) failed(v models.Variant, reason string, err error) outcome {
	o.Metrics.ObserveVariant(models.AttemptFailed, false, 0)
	return fail(v, reason, err)
}

// lookup returns a cached result whose fingerprint matches. Entries that do
// not decode or were produced by other inputs count as misses.
func (o *Orchestrator) lookup(ctx context.Context, key, fp string) (*models.GenerationResult, error) {
	data, err := o.Store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	var r models.GenerationResult
	if err := json.Unmarshal(data, &r); err != nil {
		o.log.Warn().Err(err).Str("key", key).Msg("discarding undecodable cache entry")
		return nil, cache.ErrNotFound
	}
	if r.Fingerprint != fp {
		return nil, cache.ErrNotFound
	}
	return &r, nil
}

func (o *Orchestrator) store(ctx context.Context, key string, r *models.GenerationResult) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return o.Store.Set(ctx, key, data, o.opts.ContentTTL)
}
