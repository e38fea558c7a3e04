package ratelimit

import (
	"fmt"
	"time"
)

// QuotaExceededError is returned to single-request callers on denial.
type QuotaExceededError struct {
	ClientID    string
	Granularity Granularity
	RetryAfter  time.Duration
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: %s limit, retry after %s",
		e.ClientID, e.Granularity, e.RetryAfter.Round(time.Second))
}

// Reason returns the machine-readable denial reason.
func (e *QuotaExceededError) Reason() string {
	return ReasonFor(e.Granularity)
}

// ReasonFor returns the denial reason for a granularity, e.g. "minute_limit_exceeded".
func ReasonFor(g Granularity) string {
	return string(g) + "_limit_exceeded"
}
