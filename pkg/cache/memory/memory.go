// Package memory is an in-process cache tier.
package memory

import (
	"context"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/ilearnhow/lessongen/pkg/cache"
	"github.com/ilearnhow/lessongen/pkg/clock"
)

type entry struct {
	value     []byte
	counter   float64
	isCounter bool
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Tier is a mutex-guarded map with lazy expiry.
type Tier struct {
	mu      sync.Mutex
	clock   clock.Clock
	entries map[string]entry
}

// New creates an empty memory tier.
func New(clk clock.Clock) *Tier {
	return &Tier{clock: clk, entries: make(map[string]entry)}
}

// Name implements cache.Tier.
func (t *Tier) Name() string { return "memory" }

// lookup returns a live entry. Callers must hold mu.
func (t *Tier) lookup(key string) (entry, bool) {
	e, ok := t.entries[key]
	if !ok {
		return entry{}, false
	}
	if e.expired(t.clock.Now()) {
		delete(t.entries, key)
		return entry{}, false
	}
	return e, true
}

// Get implements cache.Tier.
func (t *Tier) Get(_ context.Context, key string) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.lookup(key)
	if !ok {
		return nil, cache.ErrNotFound
	}
	if e.isCounter {
		return cache.FormatCounter(e.counter), nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

// Set implements cache.Tier.
func (t *Tier) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = t.clock.Now().Add(ttl)
	}
	t.mu.Lock()
	t.entries[key] = e
	t.mu.Unlock()
	return nil
}

// Delete implements cache.Tier.
func (t *Tier) Delete(_ context.Context, keys ...string) error {
	t.mu.Lock()
	for _, k := range keys {
		delete(t.entries, k)
	}
	t.mu.Unlock()
	return nil
}

// counterEntry returns the live counter at key, converting a plain value.
// Callers must hold mu.
func (t *Tier) counterEntry(key string) (entry, error) {
	e, ok := t.lookup(key)
	if !ok {
		return entry{isCounter: true}, nil
	}
	if e.isCounter {
		return e, nil
	}
	v, err := cache.ParseCounter(e.value)
	if err != nil {
		return entry{}, err
	}
	return entry{isCounter: true, counter: v, expiresAt: e.expiresAt}, nil
}

func (t *Tier) add(key string, e entry, delta float64, ttl time.Duration) float64 {
	e.counter += delta
	if e.expiresAt.IsZero() && ttl > 0 {
		e.expiresAt = t.clock.Now().Add(ttl)
	}
	t.entries[key] = e
	return e.counter
}

// Incr implements cache.Tier.
func (t *Tier) Incr(_ context.Context, key string, delta float64, ttl time.Duration) (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, err := t.counterEntry(key)
	if err != nil {
		return 0, err
	}
	return t.add(key, e, delta, ttl), nil
}

// ConsumeAll implements cache.Tier under the tier mutex.
func (t *Tier) ConsumeAll(_ context.Context, delta float64, bounds []cache.Bound) ([]float64, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entries := make([]entry, len(bounds))
	stored := make([]float64, len(bounds))
	for i, b := range bounds {
		e, err := t.counterEntry(b.Key)
		if err != nil {
			return nil, false, err
		}
		entries[i], stored[i] = e, e.counter
	}
	vals, ok := cache.Admit(stored, delta, bounds)
	if !ok {
		return vals, false, nil
	}
	for i, b := range bounds {
		entries[i].counter = vals[i]
		vals[i] = t.add(b.Key, entries[i], delta, b.TTL)
	}
	return vals, true, nil
}

// Counter implements cache.Tier.
func (t *Tier) Counter(_ context.Context, key string) (float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.lookup(key)
	if !ok {
		return 0, nil
	}
	if e.isCounter {
		return e.counter, nil
	}
	return cache.ParseCounter(e.value)
}

// Keys implements cache.Scanner using path.Match globbing.
func (t *Tier) Keys(_ context.Context, pattern string) ([]string, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	var keys []string
	for k, e := range t.entries {
		if e.expired(now) {
			continue
		}
		if ok, _ := path.Match(pattern, k); ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Len returns the number of stored entries, including expired ones not yet evicted.
func (t *Tier) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// Close implements cache.Tier.
func (t *Tier) Close() error { return nil }
