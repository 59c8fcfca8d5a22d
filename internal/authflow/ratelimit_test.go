package authflow

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, window time.Duration, maxPolls int) (*RedisPollLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisPollLimiter(client, window, maxPolls, nil), mr
}

func TestRedisPollLimiterAllowsWithinBudget(t *testing.T) {
	limiter, _ := newTestLimiter(t, time.Minute, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		assert.True(t, limiter.Allow(ctx, "s1"), "poll %d should be allowed", i+1)
	}
	assert.False(t, limiter.Allow(ctx, "s1"), "poll over budget should be denied")
}

func TestRedisPollLimiterIsPerSession(t *testing.T) {
	limiter, _ := newTestLimiter(t, time.Minute, 1)
	ctx := context.Background()

	require.True(t, limiter.Allow(ctx, "s1"))
	assert.False(t, limiter.Allow(ctx, "s1"))
	assert.True(t, limiter.Allow(ctx, "s2"), "other sessions have their own budget")
}

func TestRedisPollLimiterWindowSlides(t *testing.T) {
	limiter, mr := newTestLimiter(t, time.Minute, 1)
	ctx := context.Background()

	require.True(t, limiter.Allow(ctx, "s1"))
	require.False(t, limiter.Allow(ctx, "s1"))

	// Old entries fall out once the window passes
	mr.FastForward(2 * time.Minute)
	assert.True(t, limiter.Allow(ctx, "s1"))
}

func TestRedisPollLimiterDegradesOpen(t *testing.T) {
	limiter, mr := newTestLimiter(t, time.Minute, 1)
	ctx := context.Background()

	mr.Close()
	assert.True(t, limiter.Allow(ctx, "s1"), "backend failure must not block polls")
}

func TestRedisPollLimiterCheckHealth(t *testing.T) {
	limiter, mr := newTestLimiter(t, time.Minute, 1)
	ctx := context.Background()

	require.NoError(t, limiter.CheckHealth(ctx))

	mr.Close()
	assert.Error(t, limiter.CheckHealth(ctx))
}
