package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ilearnhow/lessongen/pkg/cache"
	"github.com/ilearnhow/lessongen/pkg/clock"
	"github.com/ilearnhow/lessongen/pkg/models"
)

// CounterStore is the subset of the cache store the limiter needs.
type CounterStore interface {
	ConsumeAll(ctx context.Context, delta float64, bounds []cache.Bound) ([]float64, bool, error)
	Counter(ctx context.Context, key string) (float64, error)
	Delete(ctx context.Context, keys ...string) error
}

// WindowStatus reports one granularity for a client.
type WindowStatus struct {
	Granularity Granularity `json:"granularity"`
	Count       int         `json:"count"`
	Limit       int         `json:"limit"`
	Remaining   int         `json:"remaining"`
	ResetAt     time.Time   `json:"reset_at"`
}

// Decision is the outcome of CheckAndConsume.
type Decision struct {
	Allowed     bool           `json:"allowed"`
	Reason      string         `json:"reason,omitempty"`
	Granularity Granularity    `json:"granularity,omitempty"`
	RetryAfter  time.Duration  `json:"retry_after,omitempty"`
	Windows     []WindowStatus `json:"windows"`
}

// Err converts a denial into a QuotaExceededError, or nil when allowed.
func (d Decision) Err(clientID string) error {
	if d.Allowed {
		return nil
	}
	return &QuotaExceededError{ClientID: clientID, Granularity: d.Granularity, RetryAfter: d.RetryAfter}
}

// Status is a read-only view of a client's quota.
type Status struct {
	ClientID string         `json:"client_id"`
	Tier     string         `json:"tier"`
	Windows  []WindowStatus `json:"windows"`
}

// Limiter checks and consumes per-client quotas.
type Limiter struct {
	store    CounterStore
	defaults models.RateLimits
	tiers    []models.RateTier
	clock    clock.Clock
	log      zerolog.Logger
}

// New creates a Limiter. Tiers are matched by longest client-id prefix.
func New(store CounterStore, defaults models.RateLimits, tiers []models.RateTier, clk clock.Clock, log zerolog.Logger) *Limiter {
	sorted := append([]models.RateTier(nil), tiers...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].Prefix) > len(sorted[j].Prefix)
	})
	return &Limiter{
		store:    store,
		defaults: defaults,
		tiers:    sorted,
		clock:    clk,
		log:      log.With().Str("component", "ratelimit").Logger(),
	}
}

// LimitsFor returns the tier name and limits that apply to clientID.
func (l *Limiter) LimitsFor(clientID string) (string, models.RateLimits) {
	for _, t := range l.tiers {
		if strings.HasPrefix(clientID, t.Prefix) {
			return t.Name, t.Limits
		}
	}
	return "default", l.defaults
}

func limitOf(lim models.RateLimits, g Granularity) int {
	switch g {
	case Minute:
		return lim.PerMinute
	case Hour:
		return lim.PerHour
	default:
		return lim.PerDay
	}
}

func unavailable(err error) error {
	if errors.Is(err, cache.ErrUnavailable) {
		return err
	}
	return errors.Join(cache.ErrUnavailable, err)
}

// CheckAndConsume admits a request of the given cost if every window has
// room and increments all windows in the same atomic step. A denial consumes
// nothing. When the store cannot serve the call the request is allowed and
// the error is returned for logging.
func (l *Limiter) CheckAndConsume(ctx context.Context, clientID string, cost int) (Decision, error) {
	if cost < 1 {
		cost = 1
	}
	now := l.clock.Now()
	_, lim := l.LimitsFor(clientID)

	bounds := make([]cache.Bound, len(Granularities))
	for i, g := range Granularities {
		bounds[i] = cache.Bound{
			Key:   Key(clientID, g, now),
			Limit: float64(limitOf(lim, g)),
			TTL:   g.Length(),
		}
	}
	counts, ok, err := l.store.ConsumeAll(ctx, float64(cost), bounds)
	if err != nil {
		l.log.Warn().Err(err).Str("client_id", clientID).Msg("rate limit store unavailable, failing open")
		return Decision{Allowed: true}, fmt.Errorf("rate limit consume %s: %w", clientID, unavailable(err))
	}

	windows := make([]WindowStatus, len(Granularities))
	var binding Granularity
	var wait time.Duration
	for i, g := range Granularities {
		limit := limitOf(lim, g)
		windows[i] = status(g, int(counts[i]), limit, now)
		if !ok && int(counts[i])+cost > limit {
			if ra := RetryAfter(now, g); ra > wait {
				wait, binding = ra, g
			}
		}
	}
	if ok {
		return Decision{Allowed: true, Windows: windows}, nil
	}

	l.log.Debug().Str("client_id", clientID).Str("granularity", string(binding)).
		Dur("retry_after", wait).Msg("rate limited")
	return Decision{
		Allowed:     false,
		Reason:      ReasonFor(binding),
		Granularity: binding,
		RetryAfter:  wait,
		Windows:     windows,
	}, nil
}

func status(g Granularity, count, limit int, now time.Time) WindowStatus {
	return WindowStatus{
		Granularity: g,
		Count:       count,
		Limit:       limit,
		Remaining:   max(limit-count, 0),
		ResetAt:     WindowEnd(now, g),
	}
}

// Status returns the client's current usage without consuming quota.
func (l *Limiter) Status(ctx context.Context, clientID string) (Status, error) {
	now := l.clock.Now()
	tier, lim := l.LimitsFor(clientID)
	st := Status{ClientID: clientID, Tier: tier}
	for _, g := range Granularities {
		count, err := l.store.Counter(ctx, Key(clientID, g, now))
		if err != nil {
			return Status{}, fmt.Errorf("rate limit status %s: %w", clientID, unavailable(err))
		}
		st.Windows = append(st.Windows, status(g, int(count), limitOf(lim, g), now))
	}
	return st, nil
}

// Reset deletes the client's current windows.
func (l *Limiter) Reset(ctx context.Context, clientID string) error {
	now := l.clock.Now()
	keys := make([]string, 0, len(Granularities))
	for _, g := range Granularities {
		keys = append(keys, Key(clientID, g, now))
	}
	if err := l.store.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("reset rate limit %s: %w", clientID, err)
	}
	l.log.Info().Str("client_id", clientID).Msg("rate limits reset")
	return nil
}
