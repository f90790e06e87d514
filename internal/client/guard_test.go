package client

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type stubRefresher struct {
	mu     sync.Mutex
	calls  int
	tokens Tokens
	err    error
	wait   chan struct{}
}

func (r *stubRefresher) Refresh(_ context.Context, _ string) (Tokens, error) {
	if r.wait != nil {
		<-r.wait
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.tokens, r.err
}

func (r *stubRefresher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestGuardStartAndExplicitLogout(t *testing.T) {
	clk := newClock()
	store := NewMemorySessionStore()
	var reasons []LogoutReason
	g, err := NewGuard(store, nil, WithClock(clk.Now), WithLogoutHook(func(r LogoutReason) { reasons = append(reasons, r) }))
	require.NoError(t, err)
	require.Equal(t, StateAnonymous, g.State())

	require.NoError(t, g.Start(Tokens{AccessToken: "a1", RefreshToken: "r1"}))
	require.Equal(t, StateAuthenticated, g.State())
	saved, ok, _ := store.Load()
	require.True(t, ok)
	require.Equal(t, Session{AccessToken: "a1", RefreshToken: "r1", LastActivityAt: clk.Now()}, saved)

	g.Logout()
	require.Equal(t, StateAnonymous, g.State())
	_, ok, _ = store.Load()
	require.False(t, ok)
	require.Equal(t, []LogoutReason{ReasonExplicit}, reasons)

	_, ok = g.AccessToken()
	require.False(t, ok)
}

func TestGuardInactivityLogout(t *testing.T) {
	clk := newClock()
	store := NewMemorySessionStore()
	var reason LogoutReason
	g, err := NewGuard(store, nil,
		WithClock(clk.Now),
		WithInactivityTimeout(30*time.Minute),
		WithLogoutHook(func(r LogoutReason) { reason = r }),
	)
	require.NoError(t, err)
	require.NoError(t, g.Start(Tokens{AccessToken: "a1", RefreshToken: "r1"}))

	clk.Advance(29 * time.Minute)
	require.False(t, g.Check())
	require.Equal(t, StateAuthenticated, g.State())

	clk.Advance(2 * time.Minute)
	require.True(t, g.Check())
	require.Equal(t, StateAnonymous, g.State())
	require.Equal(t, ReasonInactivity, reason)
	_, ok, _ := store.Load()
	require.False(t, ok, "persisted tokens must be cleared")
}

func TestGuardTouchIsCoalesced(t *testing.T) {
	clk := newClock()
	g, err := NewGuard(nil, nil, WithClock(clk.Now), WithActivitySample(time.Minute), WithInactivityTimeout(30*time.Minute))
	require.NoError(t, err)
	require.NoError(t, g.Start(Tokens{AccessToken: "a1"}))
	start := g.LastActivity()

	clk.Advance(20 * time.Second)
	g.Touch()
	require.Equal(t, start, g.LastActivity(), "touch inside the sample window is dropped")

	clk.Advance(50 * time.Second)
	g.Touch()
	require.Equal(t, clk.Now(), g.LastActivity())

	clk.Advance(29 * time.Minute)
	require.False(t, g.Check(), "recent activity keeps the session alive")
}

func TestNewGuardRestoresOrExpiresPersistedSession(t *testing.T) {
	clk := newClock()
	store := NewMemorySessionStore()
	require.NoError(t, store.Save(Session{AccessToken: "a1", RefreshToken: "r1", LastActivityAt: clk.Now().Add(-5 * time.Minute)}))

	g, err := NewGuard(store, nil, WithClock(clk.Now))
	require.NoError(t, err)
	require.Equal(t, StateAuthenticated, g.State())

	require.NoError(t, store.Save(Session{AccessToken: "a1", RefreshToken: "r1", LastActivityAt: clk.Now().Add(-2 * time.Hour)}))
	g, err = NewGuard(store, nil, WithClock(clk.Now))
	require.NoError(t, err)
	require.Equal(t, StateAnonymous, g.State())
}

func TestGuardRunChecksOnInterval(t *testing.T) {
	clk := newClock()
	done := make(chan LogoutReason, 1)
	g, err := NewGuard(nil, nil,
		WithClock(clk.Now),
		WithCheckInterval(5*time.Millisecond),
		WithInactivityTimeout(time.Minute),
		WithLogoutHook(func(r LogoutReason) { done <- r }),
	)
	require.NoError(t, err)
	require.NoError(t, g.Start(Tokens{AccessToken: "a1"}))
	clk.Advance(2 * time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.Run(ctx)

	select {
	case r := <-done:
		require.Equal(t, ReasonInactivity, r)
	case <-time.After(2 * time.Second):
		t.Fatal("background check did not log out")
	}
}

func TestGuardRenewCoalescesConcurrentFailures(t *testing.T) {
	refresher := &stubRefresher{tokens: Tokens{AccessToken: "a2", RefreshToken: "r2"}, wait: make(chan struct{})}
	g, err := NewGuard(nil, refresher)
	require.NoError(t, err)
	require.NoError(t, g.Start(Tokens{AccessToken: "a1", RefreshToken: "r1"}))

	const n = 8
	var wg sync.WaitGroup
	results := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tok, err := g.renew(context.Background(), "a1")
			if err == nil {
				results <- tok
			}
		}()
	}
	require.Eventually(t, func() bool { return g.State() == StateExpiring }, time.Second, time.Millisecond)
	close(refresher.wait)
	wg.Wait()
	close(results)

	for tok := range results {
		require.Equal(t, "a2", tok)
	}
	require.Equal(t, 1, refresher.count())
	require.Equal(t, StateAuthenticated, g.State())
}

func TestGuardRenewFailureLogsOut(t *testing.T) {
	refresher := &stubRefresher{err: errors.New("expired")}
	var reason LogoutReason
	g, err := NewGuard(nil, refresher, WithLogoutHook(func(r LogoutReason) { reason = r }))
	require.NoError(t, err)
	require.NoError(t, g.Start(Tokens{AccessToken: "a1", RefreshToken: "r1"}))

	_, err = g.renew(context.Background(), "a1")
	require.ErrorIs(t, err, ErrSessionExpired)
	require.Equal(t, StateAnonymous, g.State())
	require.Equal(t, ReasonRefreshFailed, reason)
}

func TestGuardRenewAfterLogoutFiresHookOnce(t *testing.T) {
	refresher := &stubRefresher{err: errors.New("expired"), wait: make(chan struct{})}
	var mu sync.Mutex
	var reasons []LogoutReason
	g, err := NewGuard(nil, refresher, WithLogoutHook(func(r LogoutReason) {
		mu.Lock()
		defer mu.Unlock()
		reasons = append(reasons, r)
	}))
	require.NoError(t, err)
	require.NoError(t, g.Start(Tokens{AccessToken: "a1", RefreshToken: "r1"}))

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.renew(context.Background(), "a1")
			assert.ErrorIs(t, err, ErrSessionExpired)
		}()
	}
	require.Eventually(t, func() bool { return g.State() == StateExpiring }, time.Second, time.Millisecond)
	close(refresher.wait)
	wg.Wait()

	_, err = g.renew(context.Background(), "a1")
	require.ErrorIs(t, err, ErrSessionExpired)
	require.Equal(t, StateAnonymous, g.State())
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []LogoutReason{ReasonRefreshFailed}, reasons)
}

func TestGuardRenewAfterExplicitLogout(t *testing.T) {
	refresher := &stubRefresher{tokens: Tokens{AccessToken: "a2", RefreshToken: "r2"}}
	var reasons []LogoutReason
	g, err := NewGuard(nil, refresher, WithLogoutHook(func(r LogoutReason) { reasons = append(reasons, r) }))
	require.NoError(t, err)
	require.NoError(t, g.Start(Tokens{AccessToken: "a1", RefreshToken: "r1"}))

	g.Logout()
	_, err = g.renew(context.Background(), "a1")
	require.ErrorIs(t, err, ErrSessionExpired)
	require.Equal(t, StateAnonymous, g.State())
	require.Zero(t, refresher.count())
	require.Equal(t, []LogoutReason{ReasonExplicit}, reasons)
}

func TestFileSessionStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := NewFileSessionStore(path)

	_, ok, err := store.Load()
	require.NoError(t, err)
	require.False(t, ok)

	want := Session{AccessToken: "a", RefreshToken: "r", LastActivityAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	require.NoError(t, store.Save(want))
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, ok, err := NewFileSessionStore(path).Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, want, got)

	require.NoError(t, store.Clear())
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
	require.NoError(t, store.Clear())
}
