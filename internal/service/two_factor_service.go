package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"lifesuite/internal/apperr"
	"lifesuite/internal/email"
)

const (
	defaultTwoFactorTTL         = 10 * time.Minute
	defaultTwoFactorMaxAttempts = 5
)

// TwoFactorService emite codigos numericos por email y los valida una sola vez.
type TwoFactorService struct {
	logger      *zap.Logger
	store       *CredentialStore
	dispatcher  *email.Dispatcher
	templates   email.Templates
	limiter     RateLimiter
	attempts    AttemptCounter
	maxAttempts int
	ttl         time.Duration
	now         func() time.Time
}

type TwoFactorOption func(*TwoFactorService)

func WithTwoFactorTTL(d time.Duration) TwoFactorOption {
	return func(s *TwoFactorService) {
		if d > 0 {
			s.ttl = d
		}
	}
}

// WithTwoFactorAttempts fuerza un nuevo enrolamiento despues de max intentos fallidos.
func WithTwoFactorAttempts(counter AttemptCounter, max int) TwoFactorOption {
	return func(s *TwoFactorService) {
		if counter != nil {
			s.attempts = counter
		}
		if max > 0 {
			s.maxAttempts = max
		}
	}
}

func WithTwoFactorLimiter(l RateLimiter) TwoFactorOption {
	return func(s *TwoFactorService) {
		if l != nil {
			s.limiter = l
		}
	}
}

func WithTwoFactorClock(now func() time.Time) TwoFactorOption {
	return func(s *TwoFactorService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewTwoFactorService(logger *zap.Logger, store *CredentialStore, dispatcher *email.Dispatcher, templates email.Templates, opts ...TwoFactorOption) *TwoFactorService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &TwoFactorService{
		logger:      logger.With(zap.String("module", "two_factor")),
		store:       store,
		dispatcher:  dispatcher,
		templates:   templates,
		attempts:    NewMemoryAttemptCounter(),
		maxAttempts: defaultTwoFactorMaxAttempts,
		ttl:         defaultTwoFactorTTL,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enroll genera un codigo nuevo, lo guarda hasheado y lo envia al email verificado.
// El codigo nunca se devuelve al llamador.
func (s *TwoFactorService) Enroll(ctx context.Context, accountID string) error {
	account, ok, err := s.store.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.ErrAccountNotFound
	}
	if !account.IsEmailVerified {
		return apperr.ErrEmailNotVerified
	}
	if s.limiter != nil && !s.limiter.Allow("2fa:"+account.ID) {
		return apperr.ErrRateLimited
	}

	code, err := generateTwoFactorCode()
	if err != nil {
		return fmt.Errorf("generate 2fa code: %w", err)
	}
	expiresAt := s.now().UTC().Add(s.ttl)
	if err := s.store.SetTwoFactorCode(ctx, account.ID, hashTwoFactorCode(account.ID, code), expiresAt); err != nil {
		return err
	}
	if err := s.attempts.Reset(ctx, account.ID); err != nil {
		s.logger.Warn("reset 2fa attempts failed", zap.Error(err), zap.String("account_id", account.ID))
	}
	s.dispatcher.Dispatch(s.templates.TwoFactorCode(account.Email, code, expiresAt))
	return nil
}

// Verify consume el codigo con una escritura condicional y activa 2FA.
func (s *TwoFactorService) Verify(ctx context.Context, accountID, code string) error {
	code = strings.TrimSpace(code)
	if !isValidTwoFactorCode(code) {
		return apperr.ErrInvalidTwoFactorCode
	}
	_, ok, err := s.store.ConsumeTwoFactorCode(ctx, accountID, hashTwoFactorCode(accountID, code))
	if err != nil {
		return err
	}
	if ok {
		if err := s.attempts.Reset(ctx, accountID); err != nil {
			s.logger.Warn("reset 2fa attempts failed", zap.Error(err), zap.String("account_id", accountID))
		}
		return nil
	}

	account, found, err := s.store.FindByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !found {
		return apperr.ErrAccountNotFound
	}
	if account.TwoFactorCode == "" {
		return apperr.ErrInvalidTwoFactorCode
	}
	if expired(account.TwoFactorCodeExpiresAt, s.now().UTC()) {
		return apperr.ErrExpiredTwoFactorCode
	}
	s.recordFailure(ctx, accountID)
	return apperr.ErrInvalidTwoFactorCode
}

func (s *TwoFactorService) recordFailure(ctx context.Context, accountID string) {
	n, err := s.attempts.Increment(ctx, accountID, s.ttl)
	if err != nil {
		s.logger.Warn("count 2fa attempt failed", zap.Error(err), zap.String("account_id", accountID))
		return
	}
	if n < s.maxAttempts {
		return
	}
	if err := s.store.ClearTwoFactorCode(ctx, accountID); err != nil {
		s.logger.Error("clear 2fa code failed", zap.Error(err), zap.String("account_id", accountID))
		return
	}
	if err := s.attempts.Reset(ctx, accountID); err != nil {
		s.logger.Warn("reset 2fa attempts failed", zap.Error(err), zap.String("account_id", accountID))
	}
	s.logger.Info("2fa code cleared after repeated failures", zap.String("account_id", accountID))
}
