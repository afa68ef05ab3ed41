package guard

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/redis/go-redis/v9"

	"github.com/rafflehub/platform/internal/domain"
)

// fixedWindowScript increments the window counter and returns {count, ttl_ms}.
var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

var redisLimiterErrors = metrics.GetOrCreateCounter(`rate_limiter_total{result="redis_error"}`)

// RedisRateLimiter shares a fixed-window counter across API instances.
// Redis failures degrade to the in-process fallback instead of failing open.
type RedisRateLimiter struct {
	client   redis.UniversalClient
	prefix   string
	limit    int
	window   time.Duration
	fallback Limiter
	logger   *slog.Logger
}

// NewRedisRateLimiter creates a distributed limiter. fallback may be nil.
func NewRedisRateLimiter(client redis.UniversalClient, prefix string, limit int, window time.Duration, fallback Limiter, logger *slog.Logger) *RedisRateLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "rafflehub:rate_limit"
	}
	return &RedisRateLimiter{
		client:   client,
		prefix:   prefix,
		limit:    limit,
		window:   window,
		fallback: fallback,
		logger:   logger,
	}
}

// Check consumes one slot for key.
func (r *RedisRateLimiter) Check(ctx context.Context, key string) domain.GuardResult {
	if r.limit <= 0 || strings.TrimSpace(key) == "" {
		return domain.GuardResult{Allowed: true}
	}

	count, retryAfter, err := r.consume(ctx, key)
	if err != nil {
		redisLimiterErrors.Inc()
		r.logger.Warn("redis rate limiter unavailable, using fallback", "key", key, "error", err)
		if r.fallback != nil {
			return r.fallback.Check(ctx, key)
		}
		return domain.GuardResult{Allowed: true}
	}

	if count > r.limit {
		return domain.GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("rate limit exceeded: %d/%s, retry in %ds", r.limit, r.window, retryAfter),
			Guard:   "rate_limiter",
		}
	}
	return domain.GuardResult{Allowed: true}
}

func (r *RedisRateLimiter) consume(ctx context.Context, key string) (count int, retryAfterSeconds int, err error) {
	windowMs := r.window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	redisKey := fmt.Sprintf("%s:%s", r.prefix, key)
	raw, err := fixedWindowScript.Run(ctx, r.client, []string{redisKey}, windowMs).Result()
	if err != nil {
		return 0, 0, err
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected redis limiter response shape: %T", raw)
	}
	current, ok := values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected redis limiter count type: %T", values[0])
	}
	ttlMs, ok := values[1].(int64)
	if !ok || ttlMs < 0 {
		ttlMs = windowMs
	}

	retryAfter := int(math.Ceil(float64(ttlMs) / 1000.0))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return int(current), retryAfter, nil
}
