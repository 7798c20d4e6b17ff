package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
	"github.com/custodia-labs/ingest-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.RateLimiter = (*RateLimiter)(nil)

const rateLimitPrefix = "ingest:ratelimit:"

// RateLimiter implements the per-tenant two-window sliding counter on a
// Redis sorted set. The whole check-then-record sequence runs inside one
// Lua script, so admission is linearizable per tenant across every serving
// instance sharing the Redis.
type RateLimiter struct {
	client *redis.Client
}

// NewRateLimiter creates a Redis-backed rate limiter.
func NewRateLimiter(client *redis.Client) *RateLimiter {
	return &RateLimiter{client: client}
}

// allowScript prunes the hour window, checks the hourly then the minute
// bound, and appends the request timestamp only when both admit.
// KEYS[1] = tenant window key
// ARGV[1] = now (unix seconds), ARGV[2] = minute limit, ARGV[3] = hour limit,
// ARGV[4] = unique member for this request
// Returns {allowed, retry_after, limit, window}.
var allowScript = redis.NewScript(`
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local minute_limit = tonumber(ARGV[2])
	local hour_limit = tonumber(ARGV[3])

	redis.call("ZREMRANGEBYSCORE", key, 0, now - 3600)

	local hour_count = redis.call("ZCARD", key)
	if hour_count >= hour_limit then
		return {0, 3600 - (now % 3600), hour_limit, "hour"}
	end

	local minute_count = redis.call("ZCOUNT", key, "(" .. (now - 60), "+inf")
	if minute_count >= minute_limit then
		return {0, 60, minute_limit, "minute"}
	end

	redis.call("ZADD", key, now, ARGV[4])
	redis.call("EXPIRE", key, 3600)
	return {1, 0, 0, ""}
`)

// Allow checks and records one request for the tenant.
func (l *RateLimiter) Allow(ctx context.Context, tenantID string, limits domain.PlanLimits) (driven.AdmissionDecision, error) {
	key := rateLimitPrefix + tenantID
	now := nowFunc().Unix()
	member := fmt.Sprintf("%d:%s", now, domain.GenerateID())

	result, err := allowScript.Run(ctx, l.client, []string{key},
		now, limits.RequestsPerMinute, limits.RequestsPerHour, member).Result()
	if err != nil {
		return driven.AdmissionDecision{}, fmt.Errorf("rate limit check for %s: %w", tenantID, err)
	}

	values, ok := result.([]interface{})
	if !ok || len(values) < 4 {
		return driven.AdmissionDecision{}, fmt.Errorf("rate limit check for %s: unexpected script reply", tenantID)
	}

	if toInt(values[0]) == 1 {
		return driven.AdmissionDecision{Allowed: true}, nil
	}

	window, _ := values[3].(string)
	return driven.AdmissionDecision{
		Allowed:    false,
		RetryAfter: toInt(values[1]),
		Limit:      toInt(values[2]),
		Window:     window,
	}, nil
}

// Ping checks the Redis backend is healthy.
func (l *RateLimiter) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
