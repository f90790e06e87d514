// Package maintenance agenda tareas de limpieza de tokens vencidos.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"lifesuite/internal/metrics"
)

const (
	defaultSchedule = "@daily"
	defaultGrace    = 7 * 24 * time.Hour
)

// TokenSweeper limpia tokens de un solo uso vencidos antes de un instante.
type TokenSweeper interface {
	ClearExpiredTokens(ctx context.Context, before time.Time) (int64, error)
}

// Cleaner corre la limpieza de tokens segun un schedule cron.
type Cleaner struct {
	sweeper  TokenSweeper
	cron     *cron.Cron
	now      func() time.Time
	log      *zap.Logger
	schedule string
	grace    time.Duration
}

type Option func(*Cleaner)

// WithCron inyecta un cron ya configurado, util en tests.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

func WithSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.schedule = spec
		}
	}
}

// WithGrace define cuanto tiempo despues de vencer se conserva un token.
func WithGrace(d time.Duration) Option {
	return func(cleaner *Cleaner) {
		if d >= 0 {
			cleaner.grace = d
		}
	}
}

func NewCleaner(sweeper TokenSweeper, logger *zap.Logger, opts ...Option) *Cleaner {
	if logger == nil {
		logger = zap.NewNop()
	}
	cleaner := &Cleaner{
		sweeper:  sweeper,
		now:      time.Now,
		log:      logger.With(zap.String("module", "maintenance")),
		schedule: defaultSchedule,
		grace:    defaultGrace,
	}
	for _, opt := range opts {
		opt(cleaner)
	}
	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

// Start registra el job y arranca el scheduler. Sin sweeper no hace nada.
func (c *Cleaner) Start() error {
	if c.sweeper == nil {
		return nil
	}
	if _, err := c.cron.AddFunc(c.schedule, func() {
		if _, err := c.RunOnce(context.Background()); err != nil {
			c.log.Warn("token cleanup failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule token cleanup %q: %w", c.schedule, err)
	}
	c.cron.Start()
	return nil
}

// Stop detiene el scheduler; el contexto devuelto se cierra cuando terminan los jobs en curso.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce limpia los tokens vencidos hace mas de grace.
func (c *Cleaner) RunOnce(ctx context.Context) (int64, error) {
	if c.sweeper == nil {
		return 0, errors.New("token cleanup: sweeper is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	before := c.now().UTC().Add(-c.grace)
	n, err := c.sweeper.ClearExpiredTokens(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("token cleanup: %w", err)
	}
	if n > 0 {
		metrics.TokensSwept.Add(float64(n))
		c.log.Info("expired tokens cleared", zap.Int64("accounts", n), zap.Time("before", before))
	}
	return n, nil
}
