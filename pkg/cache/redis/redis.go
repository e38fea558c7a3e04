// Package redis is a cache tier backed by Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ilearnhow/lessongen/pkg/cache"
)

// incrScript adds to a float counter and sets its expiry only once.
var incrScript = goredis.NewScript(`
local v = redis.call('INCRBYFLOAT', KEYS[1], ARGV[1])
local ttl = tonumber(ARGV[2])
if ttl > 0 and redis.call('PTTL', KEYS[1]) == -1 then
	redis.call('PEXPIRE', KEYS[1], ttl)
end
return v
`)

// consumeScript checks every key against its limit and floor, then
// increments all of them or none. ARGV is delta followed by a
// limit, floor and ttl triple per key. It returns the admit flag followed
// by each counter value.
var consumeScript = goredis.NewScript(`
local delta = tonumber(ARGV[1])
local stored, vals = {}, {}
local ok = 1
for i = 1, #KEYS do
	stored[i] = tonumber(redis.call('GET', KEYS[i]) or '0')
	vals[i] = math.max(stored[i], tonumber(ARGV[3*i]))
	if vals[i] + delta > tonumber(ARGV[3*i-1]) then
		ok = 0
	end
end
local out = {ok}
for i = 1, #KEYS do
	if ok == 1 then
		vals[i] = vals[i] + delta
		redis.call('INCRBYFLOAT', KEYS[i], tostring(vals[i] - stored[i]))
		local ttl = tonumber(ARGV[3*i+1])
		if ttl > 0 and redis.call('PTTL', KEYS[i]) == -1 then
			redis.call('PEXPIRE', KEYS[i], ttl)
		end
	end
	out[i+1] = tostring(vals[i])
end
return out
`)

const scanCount = 200

// Tier wraps a go-redis client.
type Tier struct {
	rdb goredis.UniversalClient
}

// Options configures a Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, opts Options) (*Tier, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
	}
	return &Tier{rdb: rdb}, nil
}

// NewFromClient wraps an existing client.
func NewFromClient(rdb goredis.UniversalClient) *Tier {
	return &Tier{rdb: rdb}
}

// Name implements cache.Tier.
func (t *Tier) Name() string { return "redis" }

// Get implements cache.Tier.
func (t *Tier) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := t.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return b, nil
}

// Set implements cache.Tier.
func (t *Tier) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := t.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete implements cache.Tier.
func (t *Tier) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := t.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Incr implements cache.Tier.
func (t *Tier) Incr(ctx context.Context, key string, delta float64, ttl time.Duration) (float64, error) {
	res, err := incrScript.Run(ctx, t.rdb, []string{key},
		strconv.FormatFloat(delta, 'f', -1, 64), ttl.Milliseconds()).Text()
	if err != nil {
		return 0, fmt.Errorf("redis incr: %w", err)
	}
	v, err := strconv.ParseFloat(res, 64)
	if err != nil {
		return 0, fmt.Errorf("redis incr: parse %q: %w", res, err)
	}
	return v, nil
}

// ConsumeAll implements cache.Tier with one script call.
func (t *Tier) ConsumeAll(ctx context.Context, delta float64, bounds []cache.Bound) ([]float64, bool, error) {
	keys := make([]string, len(bounds))
	args := make([]any, 0, 1+3*len(bounds))
	args = append(args, strconv.FormatFloat(delta, 'f', -1, 64))
	for i, b := range bounds {
		keys[i] = b.Key
		args = append(args,
			strconv.FormatFloat(b.Limit, 'f', -1, 64),
			strconv.FormatFloat(b.Floor, 'f', -1, 64),
			b.TTL.Milliseconds())
	}
	res, err := consumeScript.Run(ctx, t.rdb, keys, args...).Slice()
	if err != nil {
		return nil, false, fmt.Errorf("redis consume: %w", err)
	}
	if len(res) != len(bounds)+1 {
		return nil, false, fmt.Errorf("redis consume: unexpected reply length %d", len(res))
	}
	ok, _ := res[0].(int64)
	vals := make([]float64, len(bounds))
	for i := range bounds {
		s, _ := res[i+1].(string)
		if vals[i], err = strconv.ParseFloat(s, 64); err != nil {
			return nil, false, fmt.Errorf("redis consume: parse %q: %w", s, err)
		}
	}
	return vals, ok == 1, nil
}

// Counter implements cache.Tier.
func (t *Tier) Counter(ctx context.Context, key string) (float64, error) {
	v, err := t.rdb.Get(ctx, key).Float64()
	if errors.Is(err, goredis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis counter: %w", err)
	}
	return v, nil
}

// Keys implements cache.Scanner with SCAN MATCH.
func (t *Tier) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := t.rdb.Scan(ctx, 0, pattern, scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return keys, nil
}

// Close implements cache.Tier.
func (t *Tier) Close() error {
	return t.rdb.Close()
}
