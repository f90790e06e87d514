package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"lifesuite/internal/apperr"
	"lifesuite/internal/domain"
	"lifesuite/internal/email"
)

const (
	defaultVerificationTTL  = 24 * time.Hour
	defaultPasswordResetTTL = time.Hour
)

// IssuedToken es un token de un solo uso recien emitido junto con su envio.
type IssuedToken struct {
	Token     string
	ExpiresAt time.Time
	Delivery  <-chan error
}

// RecoveryService maneja los tokens de verificacion de email y de reseteo de contraseña.
// Ambos siguen el mismo patron y solo cambian el TTL y el campo que tocan.
type RecoveryService struct {
	logger     *zap.Logger
	store      *CredentialStore
	dispatcher *email.Dispatcher
	templates  email.Templates
	limiter    RateLimiter
	ttl        map[domain.OneShotKind]time.Duration
	now        func() time.Time
}

type RecoveryOption func(*RecoveryService)

func WithVerificationTTL(d time.Duration) RecoveryOption {
	return func(s *RecoveryService) {
		if d > 0 {
			s.ttl[domain.OneShotEmailVerification] = d
		}
	}
}

func WithPasswordResetTTL(d time.Duration) RecoveryOption {
	return func(s *RecoveryService) {
		if d > 0 {
			s.ttl[domain.OneShotPasswordReset] = d
		}
	}
}

func WithRecoveryLimiter(l RateLimiter) RecoveryOption {
	return func(s *RecoveryService) {
		if l != nil {
			s.limiter = l
		}
	}
}

func WithRecoveryClock(now func() time.Time) RecoveryOption {
	return func(s *RecoveryService) {
		if now != nil {
			s.now = now
		}
	}
}

func NewRecoveryService(logger *zap.Logger, store *CredentialStore, dispatcher *email.Dispatcher, templates email.Templates, opts ...RecoveryOption) *RecoveryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &RecoveryService{
		logger:     logger.With(zap.String("module", "recovery")),
		store:      store,
		dispatcher: dispatcher,
		templates:  templates,
		ttl: map[domain.OneShotKind]time.Duration{
			domain.OneShotEmailVerification: defaultVerificationTTL,
			domain.OneShotPasswordReset:     defaultPasswordResetTTL,
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// issue genera un token nuevo que reemplaza al anterior del mismo tipo.
func (s *RecoveryService) issue(ctx context.Context, kind domain.OneShotKind, account domain.Account) (IssuedToken, error) {
	token, err := generateOneShotToken()
	if err != nil {
		return IssuedToken{}, fmt.Errorf("generate %s token: %w", kind, err)
	}
	expiresAt := s.now().UTC().Add(s.ttl[kind])
	if err := s.store.SetOneShotToken(ctx, kind, account.ID, hashOneShotToken(token), expiresAt); err != nil {
		return IssuedToken{}, err
	}

	var msg email.Message
	switch kind {
	case domain.OneShotEmailVerification:
		msg = s.templates.Verification(account.Email, token, expiresAt)
	default:
		msg = s.templates.PasswordReset(account.Email, token, expiresAt)
	}
	return IssuedToken{Token: token, ExpiresAt: expiresAt, Delivery: s.dispatcher.Dispatch(msg)}, nil
}

// classify distingue un token vencido de uno desconocido despues de que fallo el consumo.
func (s *RecoveryService) classify(ctx context.Context, kind domain.OneShotKind, tokenHash string) error {
	account, ok, err := s.store.FindByOneShotToken(ctx, kind, tokenHash)
	if err != nil {
		return err
	}
	if !ok {
		return apperr.ErrInvalidToken
	}
	var expiresAt *time.Time
	if kind == domain.OneShotEmailVerification {
		expiresAt = account.EmailVerificationExpiresAt
	} else {
		expiresAt = account.PasswordResetExpiresAt
	}
	if expired(expiresAt, s.now().UTC()) {
		return apperr.ErrExpiredToken
	}
	return apperr.ErrInvalidToken
}

// RequestVerification emite un token de verificacion y despacha el email con el link.
func (s *RecoveryService) RequestVerification(ctx context.Context, account domain.Account) (IssuedToken, error) {
	return s.issue(ctx, domain.OneShotEmailVerification, account)
}

// ResendVerification responde lo mismo exista o no la cuenta.
func (s *RecoveryService) ResendVerification(ctx context.Context, emailAddr string) error {
	if err := validateEmail("email", emailAddr); err != nil {
		return err
	}
	emailAddr = normalizeEmail(emailAddr)
	if s.limiter != nil && !s.limiter.Allow("verify:"+emailAddr) {
		s.logger.Info("verification resend rate limited")
		return nil
	}
	account, ok, err := s.store.FindByEmail(ctx, emailAddr)
	if err != nil {
		s.logger.Error("resend verification lookup failed", zap.Error(err))
		return nil
	}
	if !ok || account.IsEmailVerified {
		return nil
	}
	if _, err := s.RequestVerification(ctx, account); err != nil {
		s.logger.Error("resend verification failed", zap.Error(err), zap.String("account_id", account.ID))
	}
	return nil
}

// ConsumeVerification verifica el email y limpia el token en una sola escritura condicional.
func (s *RecoveryService) ConsumeVerification(ctx context.Context, token string) (domain.Account, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Account{}, apperr.ErrInvalidToken
	}
	hash := hashOneShotToken(token)
	account, ok, err := s.store.ConsumeEmailVerification(ctx, hash)
	if err != nil {
		return domain.Account{}, err
	}
	if ok {
		return account, nil
	}
	return domain.Account{}, s.classify(ctx, domain.OneShotEmailVerification, hash)
}

// RequestPasswordReset nunca revela si el email existe; solo envia si hay cuenta.
func (s *RecoveryService) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	if err := validateEmail("email", emailAddr); err != nil {
		return err
	}
	emailAddr = normalizeEmail(emailAddr)
	if s.limiter != nil && !s.limiter.Allow("reset:"+emailAddr) {
		s.logger.Info("password reset rate limited")
		return nil
	}
	account, ok, err := s.store.FindByEmail(ctx, emailAddr)
	if err != nil {
		s.logger.Error("password reset lookup failed", zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	if _, err := s.issue(ctx, domain.OneShotPasswordReset, account); err != nil {
		s.logger.Error("password reset issue failed", zap.Error(err), zap.String("account_id", account.ID))
	}
	return nil
}

func (s *RecoveryService) ConsumePasswordReset(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apperr.ErrInvalidToken
	}
	if err := validatePassword("newPassword", newPassword); err != nil {
		return err
	}
	hash := hashOneShotToken(token)
	_, ok, err := s.store.ConsumePasswordReset(ctx, hash, newPassword)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	err = s.classify(ctx, domain.OneShotPasswordReset, hash)
	if errors.Is(err, apperr.ErrExpiredToken) || errors.Is(err, apperr.ErrInvalidToken) {
		return err
	}
	return fmt.Errorf("consume password reset: %w", err)
}
