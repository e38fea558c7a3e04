// Package orchestrator generates every variant of a lesson through the cache,
// the budget and rate gates, and the provider client, tolerating per-variant
// failures.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/ilearnhow/lessongen/pkg/cache"
	"github.com/ilearnhow/lessongen/pkg/clock"
	"github.com/ilearnhow/lessongen/pkg/config"
	"github.com/ilearnhow/lessongen/pkg/curriculum"
	"github.com/ilearnhow/lessongen/pkg/metrics"
	"github.com/ilearnhow/lessongen/pkg/models"
	"github.com/ilearnhow/lessongen/pkg/provider"
	"github.com/ilearnhow/lessongen/pkg/ratelimit"
)

// ReasonUnknownVariant marks a requested id that the axes do not produce.
const ReasonUnknownVariant = "unknown_variant"

var (
	// ErrUnknownVariant is returned for a variant id outside the axis space.
	ErrUnknownVariant = errors.New("unknown variant")
	// ErrNoLedger is returned by ResumeFailed without ids when no ledger is set.
	ErrNoLedger = errors.New("no attempt ledger configured")
)

// Store is the subset of the cache store the orchestrator needs.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	InvalidatePattern(ctx context.Context, pattern string) (int, error)
	Ping(ctx context.Context) error
	Stats() models.CacheStats
}

// Limiter admits remote calls per client.
type Limiter interface {
	CheckAndConsume(ctx context.Context, clientID string, cost int) (ratelimit.Decision, error)
	LimitsFor(clientID string) (string, models.RateLimits)
}

// Budget gates and records spend.
type Budget interface {
	CheckBudget(ctx context.Context) (models.BudgetStatus, error)
	RecordCost(ctx context.Context, rec models.CostRecord) error
}

// Generator performs one logical remote generation.
type Generator interface {
	Generate(ctx context.Context, req provider.Request) (*provider.Response, error)
}

// Ledger persists attempt outcomes.
type Ledger interface {
	Record(ctx context.Context, attempts ...models.Attempt) error
	FailedVariants(ctx context.Context, lessonID string) ([]string, error)
}

// Options are the generation parameters.
type Options struct {
	ClientID           string
	Model              string
	Concurrency        int
	MaxTokens          int
	Temperature        float64
	FortuneMaxTokens   int
	FortuneTemperature float64
	CallTimeout        time.Duration
	Pace               float64
	TemplateVersion    string
	Axes               models.AxisConfig
	ContentTTL         time.Duration
}

// OptionsFromConfig maps configuration onto Options.
func OptionsFromConfig(cfg config.OrchestratorConfig, contentTTL time.Duration) Options {
	return Options{
		ClientID:           cfg.ClientID,
		Model:              cfg.Model,
		Concurrency:        cfg.Concurrency,
		MaxTokens:          cfg.MaxTokens,
		Temperature:        cfg.Temperature,
		FortuneMaxTokens:   cfg.FortuneMaxTokens,
		FortuneTemperature: cfg.FortuneTemperature,
		CallTimeout:        cfg.CallTimeout,
		Pace:               cfg.Pace,
		TemplateVersion:    cfg.TemplateVersion,
		Axes:               cfg.Axes,
		ContentTTL:         contentTTL,
	}
}

// Deps are the collaborators of an Orchestrator. Ledger and Metrics are
// optional.
type Deps struct {
	Store     Store
	Limiter   Limiter
	Budget    Budget
	Generator Generator
	Catalog   *curriculum.Catalog
	Ledger    Ledger
	Metrics   *metrics.Collector
	Clock     clock.Clock
	Logger    zerolog.Logger
}

// Orchestrator runs generation batches.
type Orchestrator struct {
	Deps
	opts   Options
	log    zerolog.Logger
	flight singleflight.Group

	batches       atomic.Int64
	totalVariants atomic.Int64
	successes     atomic.Int64
	failures      atomic.Int64
	cacheHits     atomic.Int64
	remoteCalls   atomic.Int64
	degraded      atomic.Int64

	mu        sync.Mutex
	totalCost float64
	lastBatch *models.BatchStats
}

// New creates an Orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.Catalog == nil {
		deps.Catalog = curriculum.Default()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Axes.Size() == 0 {
		opts.Axes = models.DefaultAxes()
	}
	return &Orchestrator{
		Deps: deps,
		opts: opts,
		log:  deps.Logger.With().Str("component", "orchestrator").Logger(),
	}
}

// Axes returns the axis configuration used for enumeration.
func (o *Orchestrator) Axes() models.AxisConfig {
	return o.opts.Axes
}

// DefaultClientID is the identity used when a caller supplies none.
func (o *Orchestrator) DefaultClientID() string {
	return o.opts.ClientID
}

// outcome is the terminal state of one variant.
type outcome struct {
	variant  models.Variant
	result   *models.GenerationResult
	failure  *models.Failure
	err      error
	cached   bool
	remote   bool
	provider string
	model    string
	latency  time.Duration
}

// batch is the shared state of one run.
type batch struct {
	id       string
	lessonID string
	clientID string
	lesson   curriculum.Lesson
	stopped  atomic.Bool
	pacer    *rate.Limiter
}

func (o *Orchestrator) clientOr(clientID string) string {
	if clientID == "" {
		return o.opts.ClientID
	}
	return clientID
}

func (o *Orchestrator) newBatch(lessonID, clientID string) *batch {
	lesson, _ := o.Catalog.Lesson(lessonID)
	b := &batch{
		id:       uuid.NewString(),
		lessonID: lessonID,
		clientID: clientID,
		lesson:   lesson,
	}
	if o.opts.Pace > 0 {
		b.pacer = rate.NewLimiter(rate.Limit(o.opts.Pace), 1)
	}
	return b
}

// concurrency clamps the worker count to the client's per-minute quota.
func (o *Orchestrator) concurrency(clientID string) int {
	n := o.opts.Concurrency
	if o.Limiter != nil {
		if _, lim := o.Limiter.LimitsFor(clientID); lim.PerMinute > 0 && n > lim.PerMinute {
			n = lim.PerMinute
		}
	}
	return max(n, 1)
}

// GenerateAll generates every variant of a lesson. Per-variant failures are
// reported in the result; an error is returned only when the batch cannot
// start.
func (o *Orchestrator) GenerateAll(ctx context.Context, lessonID, clientID string) (*models.BatchResult, error) {
	return o.run(ctx, lessonID, o.clientOr(clientID), Enumerate(lessonID, o.opts.Axes), nil)
}

// ResumeFailed re-runs only the given variants. With no ids, the variants
// whose latest recorded attempt failed are used.
func (o *Orchestrator) ResumeFailed(ctx context.Context, lessonID, clientID string, variantIDs []string) (*models.BatchResult, error) {
	if len(variantIDs) == 0 {
		if o.Ledger == nil {
			return nil, ErrNoLedger
		}
		ids, err := o.Ledger.FailedVariants(ctx, lessonID)
		if err != nil {
			return nil, fmt.Errorf("resume %s: %w", lessonID, err)
		}
		variantIDs = ids
	}
	variants, unknown := selectIDs(Enumerate(lessonID, o.opts.Axes), variantIDs)
	return o.run(ctx, lessonID, o.clientOr(clientID), variants, unknown)
}

func (o *Orchestrator) run(ctx context.Context, lessonID, clientID string, variants []models.Variant, unknown []string) (*models.BatchResult, error) {
	if err := o.Store.Ping(ctx); err != nil && errors.Is(err, cache.ErrUnavailable) {
		return nil, fmt.Errorf("generate %s: %w", lessonID, err)
	}

	b := o.newBatch(lessonID, clientID)
	start := o.Clock.Now()
	workers := o.concurrency(clientID)
	o.log.Info().Str("batch_id", b.id).Str("lesson_id", lessonID).Str("client_id", clientID).
		Int("variants", len(variants)).Int("workers", workers).Msg("batch started")

	outcomes := make([]outcome, len(variants))
	var g errgroup.Group
	g.SetLimit(workers)
	for i, v := range variants {
		g.Go(func() error {
			outcomes[i] = o.process(ctx, b, v)
			return nil
		})
	}
	_ = g.Wait()

	res := &models.BatchResult{
		BatchID:  b.id,
		LessonID: lessonID,
		ClientID: clientID,
		Results:  make([]models.GenerationResult, 0, len(variants)),
	}
	st := &res.Stats
	st.StartTime = start
	st.TotalVariants = len(variants) + len(unknown)
	st.BudgetStopped = b.stopped.Load()

	for _, oc := range outcomes {
		if oc.failure != nil {
			res.Failures = append(res.Failures, *oc.failure)
			st.FailedGenerations++
			continue
		}
		res.Results = append(res.Results, *oc.result)
		st.SuccessfulGenerations++
		if oc.cached {
			st.CacheHits++
		}
		if oc.remote {
			st.RemoteCalls++
			st.TotalCost += oc.result.Cost
		}
		if oc.result.Degraded {
			st.Degraded++
		}
	}
	for _, id := range unknown {
		res.Failures = append(res.Failures, models.Failure{VariantID: id, Reason: ReasonUnknownVariant, Error: ErrUnknownVariant.Error()})
		st.FailedGenerations++
	}
	st.TotalCost = round6(st.TotalCost)
	st.EndTime = o.Clock.Now()

	o.recordAttempts(b, outcomes)
	o.accumulate(*st)
	o.Metrics.ObserveBatch(*st)
	o.Metrics.ObserveCache(o.Store.Stats())

	o.log.Info().Str("batch_id", b.id).Str("lesson_id", lessonID).
		Int("succeeded", st.SuccessfulGenerations).Int("failed", st.FailedGenerations).
		Int("cache_hits", st.CacheHits).Int("remote_calls", st.RemoteCalls).
		Float64("cost", st.TotalCost).Bool("budget_stopped", st.BudgetStopped).
		Msg("batch finished")
	return res, nil
}

// GenerateVariant generates a single variant. Gate denials are returned as
// *ratelimit.QuotaExceededError or *budget.BudgetExceededError.
func (o *Orchestrator) GenerateVariant(ctx context.Context, lessonID, clientID, variantID string) (*models.GenerationResult, error) {
	variants, unknown := selectIDs(Enumerate(lessonID, o.opts.Axes), []string{variantID})
	if len(unknown) > 0 {
		return nil, fmt.Errorf("generate %s/%s: %w", lessonID, variantID, ErrUnknownVariant)
	}
	b := o.newBatch(lessonID, o.clientOr(clientID))
	oc := o.process(ctx, b, variants[0])
	o.recordAttempts(b, []outcome{oc})

	st := models.BatchStats{TotalVariants: 1}
	if oc.failure != nil {
		st.FailedGenerations = 1
	} else {
		st.SuccessfulGenerations = 1
		if oc.cached {
			st.CacheHits = 1
		}
		if oc.remote {
			st.RemoteCalls = 1
			st.TotalCost = oc.result.Cost
		}
		if oc.result.Degraded {
			st.Degraded = 1
		}
	}
	o.accumulateCounts(st)

	if oc.failure != nil {
		return nil, oc.err
	}
	return oc.result, nil
}

// GetVariant returns a cached variant or cache.ErrNotFound.
func (o *Orchestrator) GetVariant(ctx context.Context, lessonID, variantID string) (*models.GenerationResult, error) {
	data, err := o.Store.Get(ctx, ContentKey(lessonID, variantID))
	if err != nil {
		return nil, err
	}
	var r models.GenerationResult
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", lessonID, variantID, err)
	}
	return &r, nil
}

// Lookup returns the cached variants of a lesson that match f, in
// enumeration order, and the ids of matching variants not yet cached.
func (o *Orchestrator) Lookup(ctx context.Context, lessonID string, f Filter) ([]models.GenerationResult, []string, error) {
	var found []models.GenerationResult
	var missing []string
	for _, v := range FilterVariants(Enumerate(lessonID, o.opts.Axes), f) {
		r, err := o.GetVariant(ctx, lessonID, v.ID())
		switch {
		case err == nil:
			found = append(found, *r)
		case errors.Is(err, cache.ErrNotFound):
			missing = append(missing, v.ID())
		default:
			return nil, nil, err
		}
	}
	return found, missing, nil
}

// InvalidateLesson deletes every cached variant of a lesson.
func (o *Orchestrator) InvalidateLesson(ctx context.Context, lessonID string) (int, error) {
	n, err := o.Store.InvalidatePattern(ctx, ContentKey(lessonID, "*"))
	if err != nil {
		return n, fmt.Errorf("invalidate %s: %w", lessonID, err)
	}
	o.log.Info().Str("lesson_id", lessonID).Int("deleted", n).Msg("lesson cache invalidated")
	return n, nil
}

// Stats returns activity accumulated since start.
func (o *Orchestrator) Stats() models.OrchestratorStats {
	o.mu.Lock()
	cost := o.totalCost
	var last *models.BatchStats
	if o.lastBatch != nil {
		cp := *o.lastBatch
		last = &cp
	}
	o.mu.Unlock()

	return models.OrchestratorStats{
		Batches:               o.batches.Load(),
		TotalVariants:         o.totalVariants.Load(),
		SuccessfulGenerations: o.successes.Load(),
		FailedGenerations:     o.failures.Load(),
		CacheHits:             o.cacheHits.Load(),
		RemoteCalls:           o.remoteCalls.Load(),
		Degraded:              o.degraded.Load(),
		TotalCost:             round6(cost),
		LastBatch:             last,
		Cache:                 o.Store.Stats(),
	}
}

func (o *Orchestrator) accumulate(st models.BatchStats) {
	o.batches.Add(1)
	o.accumulateCounts(st)
	o.mu.Lock()
	o.lastBatch = &st
	o.mu.Unlock()
}

func (o *Orchestrator) accumulateCounts(st models.BatchStats) {
	o.totalVariants.Add(int64(st.TotalVariants))
	o.successes.Add(int64(st.SuccessfulGenerations))
	o.failures.Add(int64(st.FailedGenerations))
	o.cacheHits.Add(int64(st.CacheHits))
	o.remoteCalls.Add(int64(st.RemoteCalls))
	o.degraded.Add(int64(st.Degraded))
	o.mu.Lock()
	o.totalCost += st.TotalCost
	o.mu.Unlock()
}

func (o *Orchestrator) recordAttempts(b *batch, outcomes []outcome) {
	if o.Ledger == nil || len(outcomes) == 0 {
		return
	}
	now := o.Clock.Now()
	attempts := make([]models.Attempt, 0, len(outcomes))
	for _, oc := range outcomes {
		a := models.Attempt{
			BatchID:   b.id,
			LessonID:  b.lessonID,
			VariantID: oc.variant.ID(),
			ClientID:  b.clientID,
			Provider:  oc.provider,
			Model:     oc.model,
			LatencyMs: oc.latency.Milliseconds(),
			CreatedAt: now,
		}
		switch {
		case oc.failure != nil:
			a.Status = models.AttemptFailed
			a.Reason = oc.failure.Reason
			a.Error = oc.failure.Error
		case oc.cached:
			a.Status = models.AttemptCached
		default:
			a.Status = models.AttemptSucceeded
			a.Cost = oc.result.Cost
		}
		attempts = append(attempts, a)
	}
	if err := o.Ledger.Record(context.Background(), attempts...); err != nil {
		o.log.Error().Err(err).Str("batch_id", b.id).Msg("record attempts")
	}
}
