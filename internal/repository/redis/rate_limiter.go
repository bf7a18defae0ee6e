package redis

import (
	"context"
	"time"

	"go.uber.org/zap"

	"course-admin-service/internal/client"
	"course-admin-service/internal/util"
)

// RateLimiter is a fixed-window counter on Redis. Each Allow call counts
// one request; the key expires with the window so idle users cost nothing.
type RateLimiter struct {
	redis  *client.RedisClient
	limit  int64
	window time.Duration
	prefix string
}

func NewRateLimiter(redisClient *client.RedisClient, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		redis:  redisClient,
		limit:  int64(limit),
		window: window,
		prefix: "ratelimit:chat:",
	}
}

// Allow reports whether this request fits the caller's window and, when it
// does not, how long until the window resets. Redis being down fails open:
// rate limiting is protection, not correctness.
func (l *RateLimiter) Allow(ctx context.Context, userID string) (bool, time.Duration) {
	if l == nil || l.redis == nil {
		return true, 0
	}

	key := l.prefix + userID
	count, err := l.redis.IncrWithExpire(ctx, key, l.window)
	if err != nil {
		util.Warn("Rate limiter unavailable, allowing request",
			zap.String("user_id", userID), zap.Error(err))
		return true, 0
	}

	if count <= l.limit {
		return true, 0
	}

	retryAfter, err := l.redis.TTL(ctx, key)
	if err != nil || retryAfter < 0 {
		retryAfter = l.window
	}
	return false, retryAfter
}
