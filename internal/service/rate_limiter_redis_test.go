package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type mockRedisEvaler struct {
	lastScript string
	lastKeys   []string
	lastArgs   []interface{}
	result     int64
	err        error
}

func (m *mockRedisEvaler) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	m.lastScript = script
	m.lastKeys = keys
	m.lastArgs = args
	cmd := redis.NewCmd(ctx)
	if m.err != nil {
		cmd.SetErr(m.err)
		return cmd
	}
	cmd.SetVal(m.result)
	return cmd
}

func TestRedisRateLimiterAllow(t *testing.T) {
	t.Run("nil receiver fail-open", func(t *testing.T) {
		var l *redisRateLimiter
		if !l.Allow("user@example.com") {
			t.Fatalf("expected fail-open for nil limiter")
		}
	})

	t.Run("empty key rejected", func(t *testing.T) {
		l := &redisRateLimiter{client: &mockRedisEvaler{result: 1}, window: time.Minute, max: 3, prefix: "auth:mail:rl:"}
		if l.Allow("   ") {
			t.Fatalf("expected empty key to be rejected")
		}
	})

	t.Run("allow when count within max", func(t *testing.T) {
		mock := &mockRedisEvaler{result: 2}
		l := &redisRateLimiter{client: mock, window: 2 * time.Minute, max: 3, prefix: "auth:mail:rl:"}
		if !l.Allow(" User@Example.com ") {
			t.Fatalf("expected allow when count <= max")
		}
		if len(mock.lastKeys) != 1 || mock.lastKeys[0] != "auth:mail:rl:user@example.com" {
			t.Fatalf("unexpected key normalization, got %+v", mock.lastKeys)
		}
		if len(mock.lastArgs) != 1 || mock.lastArgs[0] != 120 {
			t.Fatalf("expected TTL seconds=120, got %+v", mock.lastArgs)
		}
		if mock.lastScript != redisIncrWithExpireScript {
			t.Fatalf("expected script to match")
		}
	})

	t.Run("deny when count exceeds max", func(t *testing.T) {
		l := &redisRateLimiter{client: &mockRedisEvaler{result: 4}, window: time.Minute, max: 3, prefix: "auth:mail:rl:"}
		if l.Allow("user@example.com") {
			t.Fatalf("expected deny when count > max")
		}
	})

	t.Run("redis error fail-open", func(t *testing.T) {
		l := &redisRateLimiter{client: &mockRedisEvaler{err: errors.New("redis down")}, window: time.Minute, max: 3, prefix: "auth:mail:rl:"}
		if !l.Allow("user@example.com") {
			t.Fatalf("expected fail-open on redis errors")
		}
	})
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func TestRedisRateLimiterWithMiniredis(t *testing.T) {
	mr, rdb := newTestRedis(t)
	l := NewRedisRateLimiter(rdb, time.Minute, 2)

	require.True(t, l.Allow("ana@example.com"))
	require.True(t, l.Allow("ana@example.com"))
	require.False(t, l.Allow("ana@example.com"))
	require.True(t, l.Allow("bob@example.com"))

	mr.FastForward(61 * time.Second)
	require.True(t, l.Allow("ana@example.com"))
}

func TestRedisAttemptCounter(t *testing.T) {
	mr, rdb := newTestRedis(t)
	c := NewRedisAttemptCounter(rdb)
	ctx := context.Background()

	n, err := c.Increment(ctx, "acc-1", 10*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	n, err = c.Increment(ctx, "acc-1", 10*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.True(t, mr.Exists("auth:2fa:attempts:acc-1"))

	require.NoError(t, c.Reset(ctx, "acc-1"))
	n, err = c.Increment(ctx, "acc-1", 10*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestMemoryRateLimiterWindow(t *testing.T) {
	now := time.Now()
	l := NewMemoryRateLimiter(time.Minute, 2).(*memoryRateLimiter)
	l.now = func() time.Time { return now }

	require.True(t, l.Allow("Ana@Example.com"))
	require.True(t, l.Allow("ana@example.com"))
	require.False(t, l.Allow("ana@example.com"))
	require.False(t, l.Allow(""))

	now = now.Add(2 * time.Minute)
	require.True(t, l.Allow("ana@example.com"))
}

func TestMemoryAttemptCounterExpires(t *testing.T) {
	now := time.Now()
	c := NewMemoryAttemptCounter().(*memoryAttemptCounter)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	n, _ := c.Increment(ctx, "k", time.Minute)
	require.Equal(t, 1, n)
	n, _ = c.Increment(ctx, "k", time.Minute)
	require.Equal(t, 2, n)

	now = now.Add(time.Minute)
	n, _ = c.Increment(ctx, "k", time.Minute)
	require.Equal(t, 1, n)
}
