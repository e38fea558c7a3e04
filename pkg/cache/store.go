package cache

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ilearnhow/lessongen/pkg/models"
)

// Store reads through a volatile tier into a durable tier and writes to both.
type Store struct {
	volatile Tier
	durable  Tier
	warmTTL  time.Duration
	log      zerolog.Logger

	// consumeMu orders ConsumeAll calls in this process so the volatile
	// floors and mirror writes match the durable decision.
	consumeMu sync.Mutex

	hits    atomic.Int64
	misses  atomic.Int64
	warmups atomic.Int64
	vstats  tierCounters
	dstats  tierCounters
}

type tierCounters struct {
	hits          atomic.Int64
	misses        atomic.Int64
	errors        atomic.Int64
	writeFailures atomic.Int64
}

func (c *tierCounters) snapshot(name string) models.TierStats {
	return models.TierStats{
		Name:          name,
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Errors:        c.errors.Load(),
		WriteFailures: c.writeFailures.Load(),
	}
}

// NewStore creates a Store. warmTTL is used when a durable hit is copied back
// into the volatile tier.
func NewStore(volatile, durable Tier, warmTTL time.Duration, log zerolog.Logger) *Store {
	return &Store{
		volatile: volatile,
		durable:  durable,
		warmTTL:  warmTTL,
		log:      log.With().Str("component", "cache").Logger(),
	}
}

// Get returns the value for key, trying the volatile tier first.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.volatile.Get(ctx, key)
	switch {
	case err == nil:
		s.vstats.hits.Add(1)
		s.hits.Add(1)
		return val, nil
	case errors.Is(err, ErrNotFound):
		s.vstats.misses.Add(1)
	default:
		s.vstats.errors.Add(1)
		s.log.Warn().Err(err).Str("tier", s.volatile.Name()).Str("key", key).Msg("volatile get failed")
	}
	vErr := err

	val, err = s.durable.Get(ctx, key)
	switch {
	case err == nil:
		s.dstats.hits.Add(1)
	case errors.Is(err, ErrNotFound):
		s.dstats.misses.Add(1)
		s.misses.Add(1)
		return nil, ErrNotFound
	default:
		s.dstats.errors.Add(1)
		s.misses.Add(1)
		if !errors.Is(vErr, ErrNotFound) {
			return nil, fmt.Errorf("cache get %s: %w", key, errors.Join(ErrUnavailable, vErr, err))
		}
		s.log.Warn().Err(err).Str("tier", s.durable.Name()).Str("key", key).Msg("durable get failed")
		return nil, ErrNotFound
	}

	s.hits.Add(1)
	if err := s.volatile.Set(ctx, key, val, s.warmTTL); err != nil {
		s.vstats.writeFailures.Add(1)
		s.log.Warn().Err(err).Str("key", key).Msg("warm volatile tier failed")
	} else {
		s.warmups.Add(1)
	}
	return val, nil
}

// Set writes value to both tiers. It fails only when both writes fail.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	vErr := s.volatile.Set(ctx, key, value, ttl)
	if vErr != nil {
		s.vstats.writeFailures.Add(1)
	}
	dErr := s.durable.Set(ctx, key, value, ttl)
	if dErr != nil {
		s.dstats.writeFailures.Add(1)
	}
	switch {
	case vErr != nil && dErr != nil:
		return fmt.Errorf("cache set %s: %w", key, errors.Join(ErrUnavailable, vErr, dErr))
	case vErr != nil:
		s.log.Warn().Err(vErr).Str("tier", s.volatile.Name()).Str("key", key).Msg("partial cache write")
	case dErr != nil:
		s.log.Warn().Err(dErr).Str("tier", s.durable.Name()).Str("key", key).Msg("partial cache write")
	}
	return nil
}

// Delete removes keys from both tiers.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	vErr := s.volatile.Delete(ctx, keys...)
	dErr := s.durable.Delete(ctx, keys...)
	if vErr != nil && dErr != nil {
		return fmt.Errorf("cache delete: %w", errors.Join(ErrUnavailable, vErr, dErr))
	}
	if err := errors.Join(vErr, dErr); err != nil {
		s.log.Warn().Err(err).Int("keys", len(keys)).Msg("partial cache delete")
	}
	return nil
}

// InvalidatePattern deletes every key matching the glob pattern from both
// tiers and returns how many keys were found.
func (s *Store) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	keys, err := s.keys(ctx, pattern)
	if err != nil {
		return 0, err
	}
	for _, k := range keys {
		if err := s.Delete(ctx, k); err != nil {
			return 0, fmt.Errorf("invalidate %s: %w", pattern, err)
		}
	}
	s.log.Info().Str("pattern", pattern).Int("deleted", len(keys)).Msg("cache invalidated")
	return len(keys), nil
}

// keys returns the union of matching keys across every tier that can list
// them. A tier that fails the scan is skipped while another one answers.
func (s *Store) keys(ctx context.Context, pattern string) ([]string, error) {
	seen := make(map[string]struct{})
	var errs []error
	answered := false
	for _, t := range []Tier{s.volatile, s.durable} {
		sc, ok := t.(Scanner)
		if !ok {
			continue
		}
		keys, err := sc.Keys(ctx, pattern)
		if err != nil {
			errs = append(errs, err)
			s.log.Warn().Err(err).Str("tier", t.Name()).Msg("key scan failed")
			continue
		}
		answered = true
		for _, k := range keys {
			seen[k] = struct{}{}
		}
	}
	if !answered {
		return nil, fmt.Errorf("scan %s: %w", pattern, errors.Join(append([]error{ErrUnavailable}, errs...)...))
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// Incr applies delta to the counter in both tiers and returns the larger
// result, so an eviction in one tier cannot reset the counter.
func (s *Store) Incr(ctx context.Context, key string, delta float64, ttl time.Duration) (float64, error) {
	v, vErr := s.volatile.Incr(ctx, key, delta, ttl)
	if vErr != nil {
		s.vstats.writeFailures.Add(1)
	}
	d, dErr := s.durable.Incr(ctx, key, delta, ttl)
	if dErr != nil {
		s.dstats.writeFailures.Add(1)
	}
	switch {
	case vErr != nil && dErr != nil:
		return 0, fmt.Errorf("incr %s: %w", key, errors.Join(ErrUnavailable, vErr, dErr))
	case vErr != nil:
		s.log.Warn().Err(vErr).Str("key", key).Msg("volatile incr failed")
		return d, nil
	case dErr != nil:
		s.log.Warn().Err(dErr).Str("key", key).Msg("durable incr failed")
		return v, nil
	}
	return max(v, d), nil
}

// ConsumeAll admits delta against every bound atomically. The durable tier
// decides, with the volatile counts as floors, and admitted values are
// mirrored into the volatile tier. When the durable tier is down the
// volatile tier decides alone.
func (s *Store) ConsumeAll(ctx context.Context, delta float64, bounds []Bound) ([]float64, bool, error) {
	s.consumeMu.Lock()
	defer s.consumeMu.Unlock()

	floored := append([]Bound(nil), bounds...)
	current := make([]float64, len(bounds))
	mirror := true
	for i, b := range bounds {
		v, err := s.volatile.Counter(ctx, b.Key)
		if err != nil {
			s.vstats.errors.Add(1)
			mirror = false
			copy(floored, bounds)
			break
		}
		current[i] = v
		floored[i].Floor = max(b.Floor, v)
	}

	vals, ok, dErr := s.durable.ConsumeAll(ctx, delta, floored)
	if dErr != nil {
		s.dstats.writeFailures.Add(1)
		vals, ok, vErr := s.volatile.ConsumeAll(ctx, delta, bounds)
		if vErr != nil {
			s.vstats.writeFailures.Add(1)
			return nil, false, fmt.Errorf("consume: %w", errors.Join(ErrUnavailable, vErr, dErr))
		}
		s.log.Warn().Err(dErr).Msg("durable consume failed, volatile tier decided")
		return vals, ok, nil
	}

	if ok && mirror {
		for i, b := range bounds {
			diff := vals[i] - current[i]
			if diff <= 0 {
				continue
			}
			if _, err := s.volatile.Incr(ctx, b.Key, diff, b.TTL); err != nil {
				s.vstats.writeFailures.Add(1)
				s.log.Warn().Err(err).Str("key", b.Key).Msg("volatile mirror failed")
				break
			}
		}
	}
	return vals, ok, nil
}

// Counter returns the larger of the two tiers' counter values.
func (s *Store) Counter(ctx context.Context, key string) (float64, error) {
	v, vErr := s.volatile.Counter(ctx, key)
	d, dErr := s.durable.Counter(ctx, key)
	switch {
	case vErr != nil && dErr != nil:
		return 0, fmt.Errorf("counter %s: %w", key, errors.Join(ErrUnavailable, vErr, dErr))
	case vErr != nil:
		return d, nil
	case dErr != nil:
		return v, nil
	}
	return max(v, d), nil
}

// Ping reports ErrUnavailable when neither tier answers.
func (s *Store) Ping(ctx context.Context) error {
	const pingKey = "health:ping"
	_, vErr := s.volatile.Counter(ctx, pingKey)
	_, dErr := s.durable.Counter(ctx, pingKey)
	if vErr != nil && dErr != nil {
		return fmt.Errorf("ping: %w", errors.Join(ErrUnavailable, vErr, dErr))
	}
	return nil
}

// Stats returns cache performance counters.
func (s *Store) Stats() models.CacheStats {
	return models.CacheStats{
		Volatile: s.vstats.snapshot(s.volatile.Name()),
		Durable:  s.dstats.snapshot(s.durable.Name()),
		Hits:     s.hits.Load(),
		Misses:   s.misses.Load(),
		Warmups:  s.warmups.Load(),
	}
}

// Close closes both tiers.
func (s *Store) Close() error {
	return errors.Join(s.volatile.Close(), s.durable.Close())
}
