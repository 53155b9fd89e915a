package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter keeps fixed-window counters in Redis so multiple instances
// share one quota. Each window is an atomic INCR with a TTL set on first hit.
//
// FailOpen controls backend-failure policy. It defaults to false: rate
// limiting is an abuse control where a false-positive denial is cheap, so an
// unreachable backend denies rather than waving through unlimited traffic.
// This is deliberately the opposite of the velocity family's fail-open.
type RedisLimiter struct {
	client   *redis.Client
	FailOpen bool
	now      func() time.Time
}

// NewRedisLimiter creates a Redis-backed limiter.
func NewRedisLimiter(client *redis.Client) *RedisLimiter {
	return &RedisLimiter{client: client, now: time.Now}
}

func (l *RedisLimiter) Check(ctx context.Context, key string, class Class) Decision {
	now := l.now()
	windowStart := now.Truncate(class.Window)
	resetAt := windowStart.Add(class.Window)
	redisKey := fmt.Sprintf("ratelimit:%s:%s:%d", class.Name, key, windowStart.Unix())

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, class.Window+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return l.failDecision(class, resetAt, now)
	}

	count := int(incr.Val())
	if count > class.Limit {
		retryAfter := int(resetAt.Sub(now).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		return Decision{
			Allowed:    false,
			Limit:      class.Limit,
			Remaining:  0,
			ResetAt:    resetAt.Unix(),
			RetryAfter: retryAfter,
		}
	}

	return Decision{
		Allowed:   true,
		Limit:     class.Limit,
		Remaining: class.Limit - count,
		ResetAt:   resetAt.Unix(),
	}
}

func (l *RedisLimiter) failDecision(class Class, resetAt, now time.Time) Decision {
	if l.FailOpen {
		return Decision{
			Allowed:   true,
			Limit:     class.Limit,
			Remaining: 0,
			ResetAt:   resetAt.Unix(),
		}
	}
	retryAfter := int(resetAt.Sub(now).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}
	return Decision{
		Allowed:    false,
		Limit:      class.Limit,
		Remaining:  0,
		ResetAt:    resetAt.Unix(),
		RetryAfter: retryAfter,
	}
}
