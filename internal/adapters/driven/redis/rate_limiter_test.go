package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/ingest-core/internal/core/domain"
)

func newTestClient(t *testing.T) *goredis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRateLimiter_MinuteWindow(t *testing.T) {
	limiter := NewRateLimiter(newTestClient(t))
	ctx := context.Background()
	limits := domain.DefaultQuotaTable().Limits(domain.PlanFree)

	for i := 0; i < limits.RequestsPerMinute; i++ {
		decision, err := limiter.Allow(ctx, "tenant-1", limits)
		require.NoError(t, err)
		require.True(t, decision.Allowed, "request %d should be admitted", i+1)
	}

	decision, err := limiter.Allow(ctx, "tenant-1", limits)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 10, decision.Limit)
	assert.Equal(t, "minute", decision.Window)
	assert.Equal(t, 60, decision.RetryAfter)
}

func TestRateLimiter_MinuteWindowSlides(t *testing.T) {
	limiter := NewRateLimiter(newTestClient(t))
	ctx := context.Background()
	limits := domain.DefaultQuotaTable().Limits(domain.PlanFree)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	restore := nowFunc
	nowFunc = func() time.Time { return now }
	defer func() { nowFunc = restore }()

	for i := 0; i < limits.RequestsPerMinute; i++ {
		decision, err := limiter.Allow(ctx, "tenant-1", limits)
		require.NoError(t, err)
		require.True(t, decision.Allowed)
	}

	decision, err := limiter.Allow(ctx, "tenant-1", limits)
	require.NoError(t, err)
	require.False(t, decision.Allowed)

	now = now.Add(61 * time.Second)
	decision, err = limiter.Allow(ctx, "tenant-1", limits)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}

func TestRateLimiter_HourWindow(t *testing.T) {
	limiter := NewRateLimiter(newTestClient(t))
	ctx := context.Background()

	limits := domain.PlanLimits{
		RequestsPerMinute: 1000,
		RequestsPerHour:   5,
		MaxUploadBytes:    1,
		MaxBatchItems:     1,
	}

	now := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	restore := nowFunc
	nowFunc = func() time.Time { return now }
	defer func() { nowFunc = restore }()

	for i := 0; i < 5; i++ {
		decision, err := limiter.Allow(ctx, "tenant-1", limits)
		require.NoError(t, err)
		require.True(t, decision.Allowed)
		now = now.Add(2 * time.Minute)
	}

	decision, err := limiter.Allow(ctx, "tenant-1", limits)
	require.NoError(t, err)
	assert.False(t, decision.Allowed)
	assert.Equal(t, 5, decision.Limit)
	assert.Equal(t, "hour", decision.Window)
	assert.Equal(t, 3600-int(now.Unix()%3600), decision.RetryAfter)
}

func TestRateLimiter_TenantsIsolated(t *testing.T) {
	limiter := NewRateLimiter(newTestClient(t))
	ctx := context.Background()
	limits := domain.DefaultQuotaTable().Limits(domain.PlanFree)

	for i := 0; i < limits.RequestsPerMinute; i++ {
		decision, err := limiter.Allow(ctx, "tenant-a", limits)
		require.NoError(t, err)
		require.True(t, decision.Allowed)
	}

	rejected, err := limiter.Allow(ctx, "tenant-a", limits)
	require.NoError(t, err)
	require.False(t, rejected.Allowed)

	decision, err := limiter.Allow(ctx, "tenant-b", limits)
	require.NoError(t, err)
	assert.True(t, decision.Allowed)
}
