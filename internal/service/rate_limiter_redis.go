package service

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisIncrWithExpireScript = `
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return current
`

type redisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

type redisRateLimiter struct {
	client redisEvaler
	window time.Duration
	max    int
	prefix string
}

func NewRedisRateLimiter(client *redis.Client, window time.Duration, max int) RateLimiter {
	if client == nil {
		return nil
	}
	if window <= 0 {
		window = time.Minute
	}
	if max <= 0 {
		max = 1
	}
	return &redisRateLimiter{
		client: client,
		window: window,
		max:    max,
		prefix: "auth:mail:rl:",
	}
}

// Allow falla abierto si redis no responde.
func (l *redisRateLimiter) Allow(key string) bool {
	if l == nil || l.client == nil {
		return true
	}
	normalizedKey := strings.ToLower(strings.TrimSpace(key))
	if normalizedKey == "" {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	count, err := l.client.Eval(ctx, redisIncrWithExpireScript, []string{l.prefix + normalizedKey}, windowSeconds(l.window)).Int()
	if err != nil {
		return true
	}
	return count <= l.max
}

type redisCounterClient interface {
	redisEvaler
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type redisAttemptCounter struct {
	client redisCounterClient
	prefix string
}

func NewRedisAttemptCounter(client *redis.Client) AttemptCounter {
	if client == nil {
		return nil
	}
	return &redisAttemptCounter{client: client, prefix: "auth:2fa:attempts:"}
}

func (c *redisAttemptCounter) Increment(ctx context.Context, key string, window time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return c.client.Eval(ctx, redisIncrWithExpireScript, []string{c.prefix + key}, windowSeconds(window)).Int()
}

func (c *redisAttemptCounter) Reset(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()
	return c.client.Del(ctx, c.prefix+key).Err()
}

func windowSeconds(window time.Duration) int {
	seconds := int(window.Seconds())
	if seconds <= 0 {
		seconds = 60
	}
	return seconds
}
