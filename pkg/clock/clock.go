// Package clock provides wall clocks for window and period math.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// Real returns the actual current time in UTC.
type Real struct{}

// Now returns the current time.
func (Real) Now() time.Time {
	return time.Now().UTC()
}

// Fake is a controllable clock for tests.
type Fake struct {
	mu      sync.RWMutex
	current time.Time
}

// NewFake creates a fake clock set to t.
func NewFake(t time.Time) *Fake {
	return &Fake{current: t.UTC()}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

// Set moves the clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = t.UTC()
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}
