// Package badger is an alternative durable cache tier backed by BadgerDB.
package badger

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/ilearnhow/lessongen/pkg/cache"
)

// maxConflictRetries bounds optimistic-transaction retries for Incr.
const maxConflictRetries = 16

// Tier stores entries in BadgerDB using native key TTLs.
type Tier struct {
	db *badger.DB
}

// Open opens (or creates) a Badger database at dir. An empty dir opens an
// in-memory database.
func Open(dir string) (*Tier, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Tier{db: db}, nil
}

// New wraps an already opened database.
func New(db *badger.DB) *Tier {
	return &Tier{db: db}
}

// Name implements cache.Tier.
func (t *Tier) Name() string { return "badger" }

// Get implements cache.Tier.
func (t *Tier) Get(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := t.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get: %w", err)
	}
	return out, nil
}

// Set implements cache.Tier.
func (t *Tier) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	err := t.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("badger set: %w", err)
	}
	return nil
}

// Delete implements cache.Tier.
func (t *Tier) Delete(_ context.Context, keys ...string) error {
	err := t.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Delete([]byte(k)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger delete: %w", err)
	}
	return nil
}

// readCounter returns the counter at key and its expiry, or zeros when absent.
func readCounter(txn *badger.Txn, key string) (float64, uint64, error) {
	item, err := txn.Get([]byte(key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	var current float64
	err = item.Value(func(val []byte) error {
		current, err = cache.ParseCounter(val)
		return err
	})
	return current, item.ExpiresAt(), err
}

func writeCounter(txn *badger.Txn, key string, v float64, expiresAt uint64, ttl time.Duration) error {
	e := badger.NewEntry([]byte(key), cache.FormatCounter(v))
	switch {
	case expiresAt != 0:
		e.ExpiresAt = expiresAt
	case ttl > 0:
		e = e.WithTTL(ttl)
	}
	return txn.SetEntry(e)
}

// update runs fn in a read-write transaction, retrying on conflict.
func (t *Tier) update(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxConflictRetries; i++ {
		err = t.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	return err
}

// Incr implements cache.Tier. The read-modify-write runs in one transaction
// and is retried on conflict.
func (t *Tier) Incr(_ context.Context, key string, delta float64, ttl time.Duration) (float64, error) {
	var result float64
	err := t.update(func(txn *badger.Txn) error {
		current, expiresAt, err := readCounter(txn, key)
		if err != nil {
			return err
		}
		result = current + delta
		return writeCounter(txn, key, result, expiresAt, ttl)
	})
	if err != nil {
		return 0, fmt.Errorf("badger incr: %w", err)
	}
	return result, nil
}

// ConsumeAll implements cache.Tier. The check and every increment share one
// transaction, so a conflicting writer forces a fresh check.
func (t *Tier) ConsumeAll(_ context.Context, delta float64, bounds []cache.Bound) ([]float64, bool, error) {
	var vals []float64
	var ok bool
	err := t.update(func(txn *badger.Txn) error {
		stored := make([]float64, len(bounds))
		expiries := make([]uint64, len(bounds))
		for i, b := range bounds {
			v, exp, err := readCounter(txn, b.Key)
			if err != nil {
				return err
			}
			stored[i], expiries[i] = v, exp
		}
		vals, ok = cache.Admit(stored, delta, bounds)
		if !ok {
			return nil
		}
		for i, b := range bounds {
			vals[i] += delta
			if err := writeCounter(txn, b.Key, vals[i], expiries[i], b.TTL); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("badger consume: %w", err)
	}
	return vals, ok, nil
}

// Counter implements cache.Tier.
func (t *Tier) Counter(ctx context.Context, key string) (float64, error) {
	b, err := t.Get(ctx, key)
	if errors.Is(err, cache.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	v, err := cache.ParseCounter(b)
	if err != nil {
		return 0, fmt.Errorf("badger counter: %w", err)
	}
	return v, nil
}

// Keys implements cache.Scanner. The literal prefix of the pattern narrows the
// iteration and path.Match filters the rest.
func (t *Tier) Keys(_ context.Context, pattern string) ([]string, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}
	prefix := []byte(literalPrefix(pattern))
	var keys []string
	err := t.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			k := string(it.Item().Key())
			if ok, _ := path.Match(pattern, k); ok {
				keys = append(keys, k)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger keys: %w", err)
	}
	return keys, nil
}

func literalPrefix(pattern string) string {
	for i := 0; i < len(pattern); i++ {
		switch pattern[i] {
		case '*', '?', '[', '\\':
			return pattern[:i]
		}
	}
	return pattern
}

// Close implements cache.Tier.
func (t *Tier) Close() error {
	return t.db.Close()
}
