package waitlist

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Rate limit policy: at most 5 submissions per hashed IP in a trailing
// 10-minute window. The 6th is persisted as blocked and answered 429.
const (
	RateLimitWindow = 10 * time.Minute
	RateLimitMax    = 5
)

// RateLimiter decides whether a submission from the given hashed IP is
// within the abuse window. An empty ipHash bypasses limiting entirely:
// a submitter that cannot be identified cannot be penalized. This is a
// deliberate, documented leniency.
type RateLimiter interface {
	Allow(ctx context.Context, ipHash string) (bool, error)
}

// StoreRateLimiter counts prior submissions in the signup table. The count
// and the later insert are not one transaction, so concurrent bursts from
// one IP can slip a few extras past the window. Acceptable for abuse
// mitigation, not a strict quota.
type StoreRateLimiter struct {
	store *Store
}

// NewStoreRateLimiter creates the default, table-backed limiter.
func NewStoreRateLimiter(store *Store) *StoreRateLimiter {
	return &StoreRateLimiter{store: store}
}

// Allow reports whether the hashed IP is under the window budget.
func (l *StoreRateLimiter) Allow(ctx context.Context, ipHash string) (bool, error) {
	if ipHash == "" {
		return true, nil
	}
	count, err := l.store.CountRecentByIP(ctx, ipHash, time.Now().UTC().Add(-RateLimitWindow))
	if err != nil {
		return false, err
	}
	return count < RateLimitMax, nil
}

// Lua script for an atomic sliding-window check over minute buckets.
// The submission is always recorded (blocked rows consume window budget,
// matching the persisted-for-audit behavior of the table-backed limiter);
// the decision is made on the prior count.
const slidingWindowLuaScript = `
local prefix = KEYS[1]
local nowMin = tonumber(ARGV[1])
local buckets = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local total = 0
for i = 0, buckets - 1 do
    total = total + tonumber(redis.call("GET", prefix .. ":" .. (nowMin - i)) or "0")
end

local key = prefix .. ":" .. nowMin
local v = redis.call("INCR", key)
if v == 1 then
    redis.call("EXPIRE", key, ttl)
end

if total >= limit then
    return {0, total}
end
return {1, total + 1}
`

// RedisRateLimiter is the atomic variant, used when Redis is configured.
// It removes the read-then-write race of the table-backed limiter at the
// cost of minute-granularity bucketing.
type RedisRateLimiter struct {
	redis  *redis.Client
	script *redis.Script
}

// NewRedisRateLimiter creates a limiter with a pre-compiled Lua script.
func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{
		redis:  client,
		script: redis.NewScript(slidingWindowLuaScript),
	}
}

// NewRedisRateLimiterFromURL connects to Redis and verifies the connection.
func NewRedisRateLimiterFromURL(redisURL string) (*RedisRateLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return NewRedisRateLimiter(client), nil
}

// Allow atomically records the submission and reports whether the prior
// count was under the window budget.
func (l *RedisRateLimiter) Allow(ctx context.Context, ipHash string) (bool, error) {
	if ipHash == "" {
		return true, nil
	}

	nowMin := time.Now().Unix() / 60
	buckets := int(RateLimitWindow / time.Minute)
	ttl := int((RateLimitWindow + time.Minute) / time.Second)

	result, err := l.script.Run(ctx, l.redis,
		[]string{"waitlist:ratelimit:" + ipHash},
		nowMin, buckets, RateLimitMax, ttl,
	).Slice()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}

	allowed, ok := result[0].(int64)
	if !ok {
		return false, fmt.Errorf("rate limit check: unexpected script reply %v", result)
	}
	return allowed == 1, nil
}

// Close closes the Redis connection.
func (l *RedisRateLimiter) Close() error {
	return l.redis.Close()
}
