// Package ratelimit enforces per-client request quotas over fixed minute,
// hour and day windows kept in the shared counter store.
package ratelimit

import (
	"fmt"
	"time"
)

// Granularity is the length class of a fixed window.
type Granularity string

const (
	Minute Granularity = "minute"
	Hour   Granularity = "hour"
	Day    Granularity = "day"
)

// Granularities lists every window checked per request, shortest first.
var Granularities = []Granularity{Minute, Hour, Day}

// Length returns the window duration.
func (g Granularity) Length() time.Duration {
	switch g {
	case Minute:
		return time.Minute
	case Hour:
		return time.Hour
	default:
		return 24 * time.Hour
	}
}

// WindowIndex is floor(unixMillis / windowLengthMillis).
func WindowIndex(now time.Time, g Granularity) int64 {
	return now.UnixMilli() / g.Length().Milliseconds()
}

// WindowEnd returns the first instant of the next window.
func WindowEnd(now time.Time, g Granularity) time.Time {
	next := (WindowIndex(now, g) + 1) * g.Length().Milliseconds()
	return time.UnixMilli(next).UTC()
}

// RetryAfter returns the time remaining until the current window closes.
// It is always in (0, window length].
func RetryAfter(now time.Time, g Granularity) time.Duration {
	return WindowEnd(now, g).Sub(now)
}

// Key returns the counter key for clientID in the window containing now.
func Key(clientID string, g Granularity, now time.Time) string {
	return fmt.Sprintf("rate:%s:%s:%d", clientID, g, WindowIndex(now, g))
}
