package clock

import (
	"testing"
	"time"
)

func TestFakeAdvance(t *testing.T) {
	start := time.Date(2026, 3, 1, 23, 59, 30, 0, time.UTC)
	c := NewFake(start)

	c.Advance(45 * time.Second)
	if got := c.Now(); !got.Equal(start.Add(45 * time.Second)) {
		t.Errorf("now = %v, want %v", got, start.Add(45*time.Second))
	}

	c.Set(start)
	if got := c.Now(); !got.Equal(start) {
		t.Errorf("now after set = %v, want %v", got, start)
	}
}

func TestRealIsUTC(t *testing.T) {
	if loc := (Real{}).Now().Location(); loc != time.UTC {
		t.Errorf("location = %v, want UTC", loc)
	}
}
