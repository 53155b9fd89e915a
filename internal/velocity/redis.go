package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCounter is a Counter backed by per-hour Redis buckets. Each Record is
// an atomic INCR with a TTL, so concurrent writers never lose updates and the
// backend expires history on its own.
type RedisCounter struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisCounter creates a Redis-backed velocity counter.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{
		client: client,
		prefix: "velocity",
		now:    time.Now,
	}
}

// WithClock overrides the clock (for tests).
func (c *RedisCounter) WithClock(now func() time.Time) *RedisCounter {
	c.now = now
	return c
}

func (c *RedisCounter) bucketKey(key string, t time.Time) string {
	return fmt.Sprintf("%s:%s:%d", c.prefix, key, t.Truncate(time.Hour).Unix())
}

func (c *RedisCounter) Record(ctx context.Context, key string) error {
	now := c.now()
	bucket := c.bucketKey(key, now)

	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, bucket)
	// Keep each hourly bucket one hour past the widest window.
	pipe.Expire(ctx, bucket, WindowDay+time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("velocity record for %s: %w", key, err)
	}
	return nil
}

func (c *RedisCounter) CountSince(ctx context.Context, key string, window time.Duration) (int, error) {
	now := c.now()
	hours := int(window / time.Hour)
	if hours < 1 {
		hours = 1
	}

	keys := make([]string, 0, hours+1)
	for i := 0; i <= hours; i++ {
		keys = append(keys, c.bucketKey(key, now.Add(-time.Duration(i)*time.Hour)))
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("velocity count for %s: %w", key, err)
	}

	total := 0
	for _, v := range values {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			var n int
			if _, err := fmt.Sscanf(s, "%d", &n); err == nil {
				total += n
			}
		}
	}
	return total, nil
}
