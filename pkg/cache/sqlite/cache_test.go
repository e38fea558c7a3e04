package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ilearnhow/lessongen/pkg/cache"
	"github.com/ilearnhow/lessongen/pkg/clock"
)

func newTestCache(t *testing.T, clk clock.Clock) *Cache {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "cache_test.db")
	c, err := New(dbPath, clk)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestPutAndGet(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, clock.Real{})

	if err := c.Set(ctx, "content:l1:v1", []byte(`{"response":"hello"}`), time.Hour); err != nil {
		t.Fatal(err)
	}

	data, err := c.Get(ctx, "content:l1:v1")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"response":"hello"}` {
		t.Errorf("unexpected response: %s", data)
	}

	if _, err := c.Get(ctx, "content:l1:v2"); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestTTLExpiration(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	c := newTestCache(t, clk)

	if err := c.Set(ctx, "k", []byte("data"), time.Minute); err != nil {
		t.Fatal(err)
	}
	clk.Advance(2 * time.Minute)

	if _, err := c.Get(ctx, "k"); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("expected cache miss after TTL expiration, got %v", err)
	}
	n, err := c.Purge(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 purged, got %d", n)
	}
}

func TestIncr(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))
	c := newTestCache(t, clk)

	v, err := c.Incr(ctx, "cost:daily:2025-03-01", 0.5, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if v != 0.5 {
		t.Errorf("expected 0.5, got %v", v)
	}
	v, _ = c.Incr(ctx, "cost:daily:2025-03-01", 0.25, time.Hour)
	if v != 0.75 {
		t.Errorf("expected 0.75, got %v", v)
	}

	got, err := c.Counter(ctx, "cost:daily:2025-03-01")
	if err != nil || got != 0.75 {
		t.Errorf("expected 0.75, got %v %v", got, err)
	}

	// The first TTL holds; after it lapses the counter restarts.
	clk.Advance(time.Hour)
	if got, _ := c.Counter(ctx, "cost:daily:2025-03-01"); got != 0 {
		t.Errorf("expected expired counter to read 0, got %v", got)
	}
	v, _ = c.Incr(ctx, "cost:daily:2025-03-01", 1, time.Hour)
	if v != 1 {
		t.Errorf("expected restart at 1, got %v", v)
	}
}

func TestIncrConcurrent(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, clock.Real{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.Incr(ctx, "rate:c:minute:1", 1, time.Minute); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if got, _ := c.Counter(ctx, "rate:c:minute:1"); got != 20 {
		t.Errorf("expected 20, got %v", got)
	}
}

func TestKeysAndDelete(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, clock.Real{})

	_ = c.Set(ctx, "content:l1:a", []byte("x"), 0)
	_ = c.Set(ctx, "content:l1:b", []byte("x"), 0)
	_ = c.Set(ctx, "content:l2:a", []byte("x"), 0)

	keys, err := c.Keys(ctx, "content:l1:*")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}
	if err := c.Delete(ctx, keys...); err != nil {
		t.Fatal(err)
	}
	n, _ := c.Count(ctx)
	if n != 1 {
		t.Errorf("expected 1 entry left, got %d", n)
	}
}

func TestConsumeAllRefusalTouchesNothing(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, clock.Real{})
	bounds := []cache.Bound{
		{Key: "rate:c:minute:1", Limit: 2, TTL: time.Minute},
		{Key: "rate:c:hour:1", Limit: 10, TTL: time.Hour},
	}

	for i := 0; i < 2; i++ {
		vals, ok, err := c.ConsumeAll(ctx, 1, bounds)
		if err != nil || !ok {
			t.Fatalf("call %d: expected admit, got %v %v", i, ok, err)
		}
		if vals[0] != float64(i+1) {
			t.Errorf("call %d: expected %d, got %v", i, i+1, vals[0])
		}
	}
	vals, ok, err := c.ConsumeAll(ctx, 1, bounds)
	if err != nil || ok {
		t.Fatalf("expected refusal, got %v %v", ok, err)
	}
	if vals[1] != 2 {
		t.Errorf("expected hour count 2, got %v", vals[1])
	}
	if got, _ := c.Counter(ctx, "rate:c:hour:1"); got != 2 {
		t.Errorf("refusal must not touch the hour counter, got %v", got)
	}
}

func TestConsumeAllResetsExpiredRow(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFake(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	c := newTestCache(t, clk)
	bounds := []cache.Bound{{Key: "rate:c:minute:1", Limit: 3, TTL: time.Minute}}

	if _, ok, _ := c.ConsumeAll(ctx, 3, bounds); !ok {
		t.Fatal("expected admit")
	}
	clk.Advance(time.Minute)
	vals, ok, err := c.ConsumeAll(ctx, 1, bounds)
	if err != nil || !ok || vals[0] != 1 {
		t.Errorf("expected fresh window at 1, got %v %v %v", vals, ok, err)
	}
}

func TestConsumeAllSharedFile(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "shared.db")
	handles := make([]*Cache, 2)
	for i := range handles {
		c, err := New(dbPath, clock.Real{})
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { _ = c.Close() })
		handles[i] = c
	}
	bounds := []cache.Bound{
		{Key: "rate:c:minute:1", Limit: 5, TTL: time.Minute},
		{Key: "rate:c:day:1", Limit: 100, TTL: 24 * time.Hour},
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(c *Cache) {
			defer wg.Done()
			for j := 0; j < 3; j++ {
				_, ok, err := c.ConsumeAll(ctx, 1, bounds)
				if err != nil {
					t.Error(err)
					return
				}
				if ok {
					mu.Lock()
					admitted++
					mu.Unlock()
				}
			}
		}(handles[i%2])
	}
	wg.Wait()

	if admitted != 5 {
		t.Errorf("expected exactly 5 admitted across handles, got %d", admitted)
	}
	if got, _ := handles[0].Counter(ctx, "rate:c:day:1"); got != 5 {
		t.Errorf("expected day counter 5, got %v", got)
	}
}
