package ratelimit

import (
	"context"
	"errors"
	"time"

	"machineid/internal/domain"

	"github.com/redis/go-redis/v9"
)

// redisLimiter shares one fixed window per node across every gateway
// replica. The decision mapping lives in windowDecision so the redis
// round trip stays a thin transport.
type redisLimiter struct {
	client *redis.Client
	now    func() time.Time
}

type RedisLimiterConfig struct {
	Addr     string
	Password string
	DB       int
	Now      func() time.Time
}

// One round trip per decision: bump the window counter, arm its expiry
// on first touch, and read back the window's remaining lifetime.
var fixedWindowScript = redis.NewScript(`
local hits = redis.call("INCR", KEYS[1])
if hits == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {hits, redis.call("PTTL", KEYS[1])}
`)

func NewRedisLimiter(cfg RedisLimiterConfig) (domain.RateLimiter, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &redisLimiter{
		client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}),
		now: cfg.Now,
	}, nil
}

func (r *redisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (domain.RateLimitDecision, error) {
	if limit <= 0 {
		return domain.RateLimitDecision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	if window <= 0 {
		window = time.Second
	}
	result, err := fixedWindowScript.Run(ctx, r.client, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return domain.RateLimitDecision{}, err
	}
	if len(result) != 2 {
		return domain.RateLimitDecision{}, errors.New("unexpected rate limit script result")
	}
	return windowDecision(result[0], result[1], limit, r.now()), nil
}

// windowDecision maps a window's hit count and remaining lifetime onto
// the gateway's decision shape.
func windowDecision(hits, ttlMillis int64, limit int, now time.Time) domain.RateLimitDecision {
	remaining := limit - int(hits)
	if remaining < 0 {
		remaining = 0
	}
	if ttlMillis < 0 {
		// PTTL goes negative when the key expired between the increment
		// and the read; the window is already over.
		ttlMillis = 0
	}
	return domain.RateLimitDecision{
		Allowed:   hits <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   now.Add(time.Duration(ttlMillis) * time.Millisecond),
	}
}
