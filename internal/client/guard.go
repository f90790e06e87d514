// Package client contiene el cliente HTTP de identidad y el guardian de sesion.
package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

type State string

const (
	StateAnonymous     State = "anonymous"
	StateAuthenticated State = "authenticated"
	StateExpiring      State = "expiring"
)

// LogoutReason indica por que se cerro la sesion.
type LogoutReason string

const (
	ReasonExplicit      LogoutReason = "explicit"
	ReasonInactivity    LogoutReason = "inactivity"
	ReasonRefreshFailed LogoutReason = "refresh_failed"
)

const (
	defaultInactivityTimeout = 30 * time.Minute
	defaultCheckInterval     = 60 * time.Second
	defaultActivitySample    = time.Minute
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrSessionExpired   = errors.New("session expired")
)

// Tokens es un par de tokens emitido por el servidor.
type Tokens struct {
	AccessToken  string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn,omitempty"`
}

// Refresher canjea un refresh token por un par nuevo.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
}

// Guard es la maquina de estados de la sesion del cliente.
// Es el unico dueño de los tokens y del instante de ultima actividad.
type Guard struct {
	mu        sync.Mutex
	state     State
	session   Session
	store     SessionStore
	refresher Refresher
	logger    *zap.Logger
	now       func() time.Time
	onLogout  func(LogoutReason)
	group     singleflight.Group

	inactivity time.Duration
	interval   time.Duration
	sample     time.Duration
}

type GuardOption func(*Guard)

func WithClock(now func() time.Time) GuardOption {
	return func(g *Guard) {
		if now != nil {
			g.now = now
		}
	}
}

func WithInactivityTimeout(d time.Duration) GuardOption {
	return func(g *Guard) {
		if d > 0 {
			g.inactivity = d
		}
	}
}

func WithCheckInterval(d time.Duration) GuardOption {
	return func(g *Guard) {
		if d > 0 {
			g.interval = d
		}
	}
}

// WithActivitySample define cada cuanto se registra actividad como maximo.
func WithActivitySample(d time.Duration) GuardOption {
	return func(g *Guard) {
		if d >= 0 {
			g.sample = d
		}
	}
}

// WithLogoutHook recibe el motivo de cada cierre de sesion.
func WithLogoutHook(fn func(LogoutReason)) GuardOption {
	return func(g *Guard) {
		g.onLogout = fn
	}
}

func WithGuardLogger(logger *zap.Logger) GuardOption {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// NewGuard restaura la sesion persistida si existe y sigue activa.
func NewGuard(store SessionStore, refresher Refresher, opts ...GuardOption) (*Guard, error) {
	if store == nil {
		store = NewMemorySessionStore()
	}
	g := &Guard{
		state:      StateAnonymous,
		store:      store,
		refresher:  refresher,
		logger:     zap.NewNop(),
		now:        time.Now,
		inactivity: defaultInactivityTimeout,
		interval:   defaultCheckInterval,
		sample:     defaultActivitySample,
	}
	for _, opt := range opts {
		opt(g)
	}

	session, ok, err := store.Load()
	if err != nil {
		return nil, err
	}
	if ok && !session.empty() {
		g.session = session
		g.state = StateAuthenticated
		g.Check()
	}
	return g, nil
}

func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Start pasa a authenticated con los tokens de un login o de una verificacion de email.
func (g *Guard) Start(tokens Tokens) error {
	if tokens.AccessToken == "" {
		return ErrNotAuthenticated
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.session = Session{
		AccessToken:    tokens.AccessToken,
		RefreshToken:   tokens.RefreshToken,
		LastActivityAt: g.now().UTC(),
	}
	g.state = StateAuthenticated
	return g.store.Save(g.session)
}

// AccessToken devuelve el token actual si hay sesion.
func (g *Guard) AccessToken() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateAnonymous || g.session.AccessToken == "" {
		return "", false
	}
	return g.session.AccessToken, true
}

func (g *Guard) hasRefreshToken() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state != StateAnonymous && g.session.RefreshToken != ""
}

// LastActivity devuelve el ultimo instante de actividad registrado.
func (g *Guard) LastActivity() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session.LastActivityAt
}

// Touch registra actividad del usuario. Los toques dentro del intervalo de muestreo se descartan.
func (g *Guard) Touch() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateAnonymous {
		return
	}
	now := g.now().UTC()
	if now.Sub(g.session.LastActivityAt) < g.sample {
		return
	}
	g.session.LastActivityAt = now
	if err := g.store.Save(g.session); err != nil {
		g.logger.Warn("persist activity failed", zap.Error(err))
	}
}

// Check cierra la sesion si la inactividad supera el limite. Devuelve true si la cerro.
func (g *Guard) Check() bool {
	g.mu.Lock()
	if g.state == StateAnonymous {
		g.mu.Unlock()
		return false
	}
	idle := g.now().UTC().Sub(g.session.LastActivityAt)
	g.mu.Unlock()
	if idle <= g.inactivity {
		return false
	}
	g.logout(ReasonInactivity)
	return true
}

// Run ejecuta Check cada intervalo hasta que se cancele el contexto.
func (g *Guard) Run(ctx context.Context) {
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Check()
		}
	}
}

// Logout cierra la sesion a pedido del usuario.
func (g *Guard) Logout() {
	g.logout(ReasonExplicit)
}

func (g *Guard) logout(reason LogoutReason) {
	g.mu.Lock()
	wasActive := g.state != StateAnonymous
	g.state = StateAnonymous
	g.session = Session{}
	err := g.store.Clear()
	hook := g.onLogout
	g.mu.Unlock()

	if err != nil {
		g.logger.Warn("clear session failed", zap.Error(err))
	}
	if wasActive {
		g.logger.Info("session closed", zap.String("reason", string(reason)))
		if hook != nil {
			hook(reason)
		}
	}
}

// renew refresca los tokens una sola vez aunque varias peticiones fallen a la vez.
// failed es el access token que recibio el 401; si ya fue reemplazado se devuelve el nuevo.
func (g *Guard) renew(ctx context.Context, failed string) (string, error) {
	g.mu.Lock()
	if g.state == StateAnonymous {
		g.mu.Unlock()
		return "", ErrSessionExpired
	}
	if g.session.AccessToken != failed && g.state == StateAuthenticated {
		current := g.session.AccessToken
		g.mu.Unlock()
		return current, nil
	}
	g.mu.Unlock()

	v, err, _ := g.group.Do("refresh", func() (any, error) {
		g.mu.Lock()
		if g.state == StateAnonymous {
			g.mu.Unlock()
			return "", ErrSessionExpired
		}
		refreshToken := g.session.RefreshToken
		if g.state == StateAuthenticated && g.session.AccessToken != failed {
			current := g.session.AccessToken
			g.mu.Unlock()
			return current, nil
		}
		g.state = StateExpiring
		g.mu.Unlock()

		if g.refresher == nil || refreshToken == "" {
			g.logout(ReasonRefreshFailed)
			return "", ErrSessionExpired
		}
		tokens, err := g.refresher.Refresh(ctx, refreshToken)
		if err != nil || tokens.AccessToken == "" {
			g.logger.Warn("session refresh failed", zap.Error(err))
			g.logout(ReasonRefreshFailed)
			return "", ErrSessionExpired
		}

		g.mu.Lock()
		defer g.mu.Unlock()
		if g.state != StateExpiring {
			return "", ErrSessionExpired
		}
		g.session.AccessToken = tokens.AccessToken
		if tokens.RefreshToken != "" {
			g.session.RefreshToken = tokens.RefreshToken
		}
		g.state = StateAuthenticated
		if err := g.store.Save(g.session); err != nil {
			g.logger.Warn("persist refreshed session failed", zap.Error(err))
		}
		return g.session.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}
