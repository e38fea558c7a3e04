// Package cache provides the two-tier key/value and counter store shared by
// the rate limiter, the budget tracker and content memoization.
package cache

import (
	"context"
	"errors"
	"strconv"
	"time"
)

var (
	// ErrNotFound is returned by a tier when the key is absent or expired.
	ErrNotFound = errors.New("cache: key not found")
	// ErrUnavailable is returned when no tier could serve an operation.
	ErrUnavailable = errors.New("cache: store unavailable")
)

// Tier is one storage layer of the Store.
type Tier interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// Incr atomically adds delta to the counter at key and returns the new
	// value. ttl is applied only when the counter has no expiry yet.
	Incr(ctx context.Context, key string, delta float64, ttl time.Duration) (float64, error)
	// Counter returns the counter at key, or 0 when absent.
	Counter(ctx context.Context, key string) (float64, error)
	// ConsumeAll atomically adds delta to every bounded counter when each
	// one stays within its limit. It returns the counter values, after the
	// increment when admitted, and whether delta was admitted. A refusal
	// leaves every counter untouched.
	ConsumeAll(ctx context.Context, delta float64, bounds []Bound) ([]float64, bool, error)
	Close() error
}

// Bound is one counter in a ConsumeAll call.
type Bound struct {
	Key   string
	Limit float64
	// TTL is applied only when the counter has no expiry yet.
	TTL time.Duration
	// Floor raises the stored value before the check, for counts held
	// higher by another tier.
	Floor float64
}

// Admit applies the floors to stored and reports whether delta fits within
// every limit.
func Admit(stored []float64, delta float64, bounds []Bound) ([]float64, bool) {
	vals := make([]float64, len(bounds))
	ok := true
	for i, b := range bounds {
		vals[i] = max(stored[i], b.Floor)
		if vals[i]+delta > b.Limit {
			ok = false
		}
	}
	return vals, ok
}

// Scanner is implemented by tiers that can enumerate keys by glob pattern.
type Scanner interface {
	Keys(ctx context.Context, pattern string) ([]string, error)
}

// FormatCounter renders a counter value the way tiers store it.
func FormatCounter(v float64) []byte {
	return strconv.AppendFloat(nil, v, 'f', -1, 64)
}

// ParseCounter parses a stored counter value.
func ParseCounter(b []byte) (float64, error) {
	return strconv.ParseFloat(string(b), 64)
}
