package badger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/ilearnhow/lessongen/pkg/cache"
)

func newTestTier(t *testing.T) *Tier {
	t.Helper()
	tier, err := Open("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = tier.Close() })
	return tier
}

func TestGetSetDelete(t *testing.T) {
	ctx := context.Background()
	tier := newTestTier(t)

	if _, err := tier.Get(ctx, "k"); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := tier.Set(ctx, "k", []byte("v"), time.Hour); err != nil {
		t.Fatal(err)
	}
	got, err := tier.Get(ctx, "k")
	if err != nil || string(got) != "v" {
		t.Fatalf("expected v, got %q %v", got, err)
	}
	if err := tier.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if _, err := tier.Get(ctx, "k"); !errors.Is(err, cache.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestIncrPreservesExpiry(t *testing.T) {
	ctx := context.Background()
	tier := newTestTier(t)

	if _, err := tier.Incr(ctx, "c", 1, time.Hour); err != nil {
		t.Fatal(err)
	}
	var first uint64
	_ = tier.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("c"))
		if err == nil {
			first = item.ExpiresAt()
		}
		return err
	})

	v, err := tier.Incr(ctx, "c", 1.5, 10*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if v != 2.5 {
		t.Errorf("expected 2.5, got %v", v)
	}
	var second uint64
	_ = tier.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte("c"))
		if err == nil {
			second = item.ExpiresAt()
		}
		return err
	})
	if first == 0 || first != second {
		t.Errorf("expiry changed: %d -> %d", first, second)
	}
}

func TestIncrConcurrent(t *testing.T) {
	ctx := context.Background()
	tier := newTestTier(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := tier.Incr(ctx, "c", 1, 0); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if v, _ := tier.Counter(ctx, "c"); v != 10 {
		t.Errorf("expected 10, got %v", v)
	}
}

func TestKeys(t *testing.T) {
	ctx := context.Background()
	tier := newTestTier(t)
	_ = tier.Set(ctx, "content:l1:a", []byte("x"), 0)
	_ = tier.Set(ctx, "content:l1:b", []byte("x"), 0)
	_ = tier.Set(ctx, "content:l2:a", []byte("x"), 0)

	keys, err := tier.Keys(ctx, "content:l1:*")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 {
		t.Errorf("expected 2 keys, got %v", keys)
	}
	if p := literalPrefix("content:l1:*"); p != "content:l1:" {
		t.Errorf("unexpected prefix %q", p)
	}
}

func TestConsumeAll(t *testing.T) {
	ctx := context.Background()
	tier := newTestTier(t)
	bounds := []cache.Bound{
		{Key: "rate:c:minute:1", Limit: 4, TTL: time.Minute},
		{Key: "rate:c:hour:1", Limit: 50, TTL: time.Hour},
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	admitted := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := tier.ConsumeAll(ctx, 1, bounds)
			if err != nil {
				t.Error(err)
				return
			}
			if ok {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != 4 {
		t.Errorf("expected 4 admitted, got %d", admitted)
	}
	if v, _ := tier.Counter(ctx, "rate:c:hour:1"); v != 4 {
		t.Errorf("refusals must not touch the hour counter, got %v", v)
	}
}
