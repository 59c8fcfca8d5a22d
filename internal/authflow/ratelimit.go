package authflow

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const pollKeyPrefix = "authflow:poll:"

// RedisPollLimiter enforces a sliding-window poll rate per session using a
// Redis sorted set of poll timestamps. A Redis failure degrades open: the
// poll is allowed and the failure logged.
type RedisPollLimiter struct {
	client   *redis.Client
	window   time.Duration
	maxPolls int
	logger   *slog.Logger
}

// NewRedisPollLimiter creates a limiter allowing maxPolls polls per window
// per session.
func NewRedisPollLimiter(client *redis.Client, window time.Duration, maxPolls int, logger *slog.Logger) *RedisPollLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPollLimiter{
		client:   client,
		window:   window,
		maxPolls: maxPolls,
		logger:   logger,
	}
}

// Allow records a poll for the session and reports whether it is within the
// window budget.
func (l *RedisPollLimiter) Allow(ctx context.Context, sessionID string) bool {
	key := pollKeyPrefix + sessionID
	now := time.Now()
	windowStart := now.Add(-l.window).UnixNano()

	pipe := l.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	count := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, l.window)

	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn("poll limiter unavailable, allowing poll",
			slog.String("session_id", sessionID),
			slog.Any("error", err))
		return true
	}

	return count.Val() <= int64(l.maxPolls)
}

// CheckHealth verifies the limiter's Redis backend is reachable.
func (l *RedisPollLimiter) CheckHealth(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}
