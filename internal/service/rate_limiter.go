package service

import (
	"context"
	"strings"
	"sync"
	"time"
)

// RateLimiter limita la frecuencia de solicitudes por clave.
type RateLimiter interface {
	Allow(key string) bool
}

type memoryRateLimiter struct {
	mu     sync.Mutex
	window time.Duration
	max    int
	hits   map[string][]time.Time
	now    func() time.Time
}

// NewMemoryRateLimiter crea un rate limiter de ventana deslizante en memoria.
func NewMemoryRateLimiter(window time.Duration, max int) RateLimiter {
	if max <= 0 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &memoryRateLimiter{
		window: window,
		max:    max,
		hits:   make(map[string][]time.Time),
		now:    time.Now,
	}
}

func (l *memoryRateLimiter) Allow(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now().UTC()
	cutoff := now.Add(-l.window)
	entries := l.hits[key]
	kept := entries[:0]
	for _, ts := range entries {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.hits[key] = kept
		return false
	}
	l.hits[key] = append(kept, now)
	return true
}

// AttemptCounter cuenta intentos fallidos por clave dentro de una ventana.
type AttemptCounter interface {
	Increment(ctx context.Context, key string, window time.Duration) (int, error)
	Reset(ctx context.Context, key string) error
}

type counterEntry struct {
	count     int
	expiresAt time.Time
}

type memoryAttemptCounter struct {
	mu      sync.Mutex
	entries map[string]counterEntry
	now     func() time.Time
}

func NewMemoryAttemptCounter() AttemptCounter {
	return &memoryAttemptCounter{entries: make(map[string]counterEntry), now: time.Now}
}

func (c *memoryAttemptCounter) Increment(_ context.Context, key string, window time.Duration) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	entry, ok := c.entries[key]
	if !ok || !now.Before(entry.expiresAt) {
		entry = counterEntry{expiresAt: now.Add(window)}
	}
	entry.count++
	c.entries[key] = entry
	return entry.count, nil
}

func (c *memoryAttemptCounter) Reset(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}
