// Package sqlite is the durable cache tier backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ilearnhow/lessongen/pkg/cache"
	"github.com/ilearnhow/lessongen/pkg/clock"
)

// Cache is a key/value and counter table with per-row expiry.
type Cache struct {
	db    *sql.DB
	clock clock.Clock
}

const createCacheTable = `
CREATE TABLE IF NOT EXISTS cache_entries (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_cache_entries_expires ON cache_entries(expires_at);
`

// expires_at is unix milliseconds; 0 means no expiry.
const liveClause = `(expires_at = 0 OR expires_at > ?)`

const upsertCounter = `
INSERT INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	value = CASE
		WHEN cache_entries.expires_at != 0 AND cache_entries.expires_at <= ? THEN excluded.value
		ELSE CAST(cache_entries.value AS REAL) + excluded.value
	END,
	expires_at = CASE
		WHEN cache_entries.expires_at = 0 OR cache_entries.expires_at <= ? THEN excluded.expires_at
		ELSE cache_entries.expires_at
	END
RETURNING CAST(value AS REAL)`

// New opens the cache database at dbPath.
func New(dbPath string, clk clock.Clock) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	// One writer keeps UPSERT increments serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Cache{db: db, clock: clk}, nil
}

func (c *Cache) now() int64 {
	return c.clock.Now().UnixMilli()
}

func (c *Cache) expiry(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return c.clock.Now().Add(ttl).UnixMilli()
}

// Name implements cache.Tier.
func (c *Cache) Name() string { return "sqlite" }

// Get implements cache.Tier.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT CAST(value AS BLOB) FROM cache_entries WHERE key = ? AND `+liveClause,
		key, c.now(),
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	return value, nil
}

// Set implements cache.Tier.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)`,
		key, value, c.expiry(ttl),
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Delete implements cache.Tier.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	q := `DELETE FROM cache_entries WHERE key IN (?` + strings.Repeat(",?", len(keys)-1) + `)`
	if _, err := c.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// Incr implements cache.Tier with a single UPSERT ... RETURNING statement.
func (c *Cache) Incr(ctx context.Context, key string, delta float64, ttl time.Duration) (float64, error) {
	now := c.now()
	var v float64
	err := c.db.QueryRowContext(ctx, upsertCounter, key, delta, c.expiry(ttl), now, now).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("cache incr: %w", err)
	}
	return v, nil
}

// ConsumeAll implements cache.Tier inside one BEGIN IMMEDIATE transaction,
// which also serializes other processes sharing the file.
func (c *Cache) ConsumeAll(ctx context.Context, delta float64, bounds []cache.Bound) ([]float64, bool, error) {
	conn, err := c.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("cache consume: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return nil, false, fmt.Errorf("cache consume: begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	now := c.now()
	stored := make([]float64, len(bounds))
	for i, b := range bounds {
		err := conn.QueryRowContext(ctx,
			`SELECT CAST(value AS REAL) FROM cache_entries WHERE key = ? AND `+liveClause,
			b.Key, now,
		).Scan(&stored[i])
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, false, fmt.Errorf("cache consume: read %s: %w", b.Key, err)
		}
	}

	vals, ok := cache.Admit(stored, delta, bounds)
	if !ok {
		return vals, false, nil
	}
	for i, b := range bounds {
		// An expired row reads as 0, so the same delta also resets it.
		diff := vals[i] + delta - stored[i]
		if err := conn.QueryRowContext(ctx, upsertCounter, b.Key, diff, c.expiry(b.TTL), now, now).Scan(&vals[i]); err != nil {
			return nil, false, fmt.Errorf("cache consume: write %s: %w", b.Key, err)
		}
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return nil, false, fmt.Errorf("cache consume: commit: %w", err)
	}
	committed = true
	return vals, true, nil
}

// Counter implements cache.Tier.
func (c *Cache) Counter(ctx context.Context, key string) (float64, error) {
	var v float64
	err := c.db.QueryRowContext(ctx,
		`SELECT CAST(value AS REAL) FROM cache_entries WHERE key = ? AND `+liveClause,
		key, c.now(),
	).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("cache counter: %w", err)
	}
	return v, nil
}

// Keys implements cache.Scanner using SQLite GLOB.
func (c *Cache) Keys(ctx context.Context, pattern string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT key FROM cache_entries WHERE key GLOB ? AND `+liveClause+` ORDER BY key`,
		pattern, c.now(),
	)
	if err != nil {
		return nil, fmt.Errorf("cache keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan cache key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Count returns the number of live entries.
func (c *Cache) Count(ctx context.Context) (int64, error) {
	var n int64
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cache_entries WHERE `+liveClause, c.now(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("cache count: %w", err)
	}
	return n, nil
}

// Purge removes expired entries and returns how many were deleted.
func (c *Cache) Purge(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_at != 0 AND expires_at <= ?`, c.now())
	if err != nil {
		return 0, fmt.Errorf("cache purge: %w", err)
	}
	return res.RowsAffected()
}

// Close releases the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}
