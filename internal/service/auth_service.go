package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"lifesuite/internal/apperr"
	"lifesuite/internal/domain"
	"lifesuite/internal/email"
	"lifesuite/internal/metrics"
)

const defaultMailWait = 2 * time.Second

// AuthService orquesta registro, login, verificacion, reseteo y 2FA.
// Es el unico punto de entrada que usan las demas capas.
type AuthService struct {
	logger     *zap.Logger
	store      *CredentialStore
	issuer     *TokenIssuer
	recovery   *RecoveryService
	twoFactor  *TwoFactorService
	dispatcher *email.Dispatcher
	templates  email.Templates
	mailWait   time.Duration
}

func NewAuthService(
	logger *zap.Logger,
	store *CredentialStore,
	issuer *TokenIssuer,
	recovery *RecoveryService,
	twoFactor *TwoFactorService,
	dispatcher *email.Dispatcher,
	templates email.Templates,
	mailWait time.Duration,
) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if mailWait <= 0 {
		mailWait = defaultMailWait
	}
	return &AuthService{
		logger:     logger.With(zap.String("module", "auth")),
		store:      store,
		issuer:     issuer,
		recovery:   recovery,
		twoFactor:  twoFactor,
		dispatcher: dispatcher,
		templates:  templates,
		mailWait:   mailWait,
	}
}

type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Phone    string
}

type RegisterResult struct {
	Account  domain.Profile
	Warnings []string
}

// AuthResult es la respuesta de las operaciones que inician sesion.
type AuthResult struct {
	User   domain.Profile
	Tokens TokenPair
}

// Register crea la cuenta sin verificar y dispara el email de bienvenida y el de verificacion.
// Un fallo de envio no deshace el alta; se devuelve como advertencia.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (result RegisterResult, err error) {
	defer func() { metrics.ObserveAuth("register", err) }()

	if err := validateEmail("email", input.Email); err != nil {
		return RegisterResult{}, err
	}
	if err := validatePassword("password", input.Password); err != nil {
		return RegisterResult{}, err
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return RegisterResult{}, apperr.ErrValidation.WithField("name", "name is required")
	}
	if len(name) > 100 {
		return RegisterResult{}, apperr.ErrValidation.WithField("name", "name is too long")
	}

	account, err := s.store.Create(ctx, NewAccount{
		Email:    input.Email,
		Password: input.Password,
		Name:     name,
		Phone:    input.Phone,
	})
	if err != nil {
		return RegisterResult{}, s.fail("register", err)
	}

	welcome := s.dispatcher.Dispatch(s.templates.Welcome(account.Email, account.Name))
	var verification <-chan error
	issued, issueErr := s.recovery.RequestVerification(ctx, account)
	if issueErr == nil {
		verification = issued.Delivery
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.mailWait)
	defer cancel()
	mailErr := multierr.Combine(
		tagged("welcome email", await(waitCtx, welcome)),
		tagged("verification email", issueErr),
		tagged("verification email", await(waitCtx, verification)),
	)
	result = RegisterResult{Account: account.Profile()}
	for _, e := range multierr.Errors(mailErr) {
		result.Warnings = append(result.Warnings, e.Error())
	}
	if mailErr != nil {
		s.logger.Warn("register completed with mail warnings", zap.String("account_id", account.ID), zap.Error(mailErr))
	}
	return result, nil
}

// Login usa un unico error para email inexistente y contraseña incorrecta.
func (s *AuthService) Login(ctx context.Context, emailAddr, password string) (result AuthResult, err error) {
	defer func() { metrics.ObserveAuth("login", err) }()

	if strings.TrimSpace(emailAddr) == "" || password == "" {
		return AuthResult{}, apperr.ErrInvalidCredentials
	}
	account, err := s.store.Authenticate(ctx, emailAddr, password)
	if err != nil {
		return AuthResult{}, s.fail("login", err)
	}
	if !account.IsEmailVerified {
		return AuthResult{}, apperr.ErrEmailNotVerified
	}
	return s.startSession(account)
}

// Refresh confia solo en la firma del refresh token; no consulta el store.
// Una cuenta borrada puede refrescar hasta que el token expire.
func (s *AuthService) Refresh(_ context.Context, claims RefreshClaims) (tokens TokenPair, err error) {
	defer func() { metrics.ObserveAuth("refresh", err) }()

	tokens, err = s.issuer.IssuePair(claims.Subject())
	if err != nil {
		return TokenPair{}, s.fail("refresh", err)
	}
	return tokens, nil
}

// VerifyRefreshToken valida un refresh token presentado por el cliente.
func (s *AuthService) VerifyRefreshToken(token RefreshToken) (RefreshClaims, error) {
	claims, err := s.issuer.VerifyRefresh(token)
	if err != nil {
		return RefreshClaims{}, apperr.ErrUnauthorized.WithErr(err)
	}
	return claims, nil
}

// VerifyAccessToken valida el bearer token de una peticion.
func (s *AuthService) VerifyAccessToken(token AccessToken) (AccessClaims, error) {
	claims, err := s.issuer.VerifyAccess(token)
	if err != nil {
		return AccessClaims{}, apperr.ErrUnauthorized.WithErr(err)
	}
	return claims, nil
}

func (s *AuthService) GetProfile(ctx context.Context, claims AccessClaims) (domain.Profile, error) {
	account, ok, err := s.store.FindByID(ctx, claims.AccountID)
	if err != nil {
		return domain.Profile{}, s.fail("profile", err)
	}
	if !ok {
		return domain.Profile{}, apperr.ErrAccountNotFound
	}
	return account.Profile(), nil
}

// VerifyEmail consume el token de verificacion e inicia sesion automaticamente.
func (s *AuthService) VerifyEmail(ctx context.Context, token string) (result AuthResult, err error) {
	defer func() { metrics.ObserveAuth("verify_email", err) }()

	account, err := s.recovery.ConsumeVerification(ctx, token)
	if err != nil {
		return AuthResult{}, s.fail("verify email", err)
	}
	return s.startSession(account)
}

func (s *AuthService) ResendVerification(ctx context.Context, emailAddr string) (err error) {
	defer func() { metrics.ObserveAuth("resend_verification", err) }()
	return s.recovery.ResendVerification(ctx, emailAddr)
}

func (s *AuthService) RequestPasswordReset(ctx context.Context, emailAddr string) (err error) {
	defer func() { metrics.ObserveAuth("reset_password", err) }()
	return s.recovery.RequestPasswordReset(ctx, emailAddr)
}

func (s *AuthService) ConfirmPasswordReset(ctx context.Context, token, newPassword string) (err error) {
	defer func() { metrics.ObserveAuth("confirm_password_reset", err) }()
	if err := s.recovery.ConsumePasswordReset(ctx, token, newPassword); err != nil {
		return s.fail("confirm password reset", err)
	}
	return nil
}

func (s *AuthService) EnableTwoFactor(ctx context.Context, claims AccessClaims) (err error) {
	defer func() { metrics.ObserveAuth("enable_2fa", err) }()
	if err := s.twoFactor.Enroll(ctx, claims.AccountID); err != nil {
		return s.fail("enable 2fa", err)
	}
	return nil
}

func (s *AuthService) VerifyTwoFactor(ctx context.Context, claims AccessClaims, code string) (err error) {
	defer func() { metrics.ObserveAuth("verify_2fa", err) }()
	if err := s.twoFactor.Verify(ctx, claims.AccountID, code); err != nil {
		return s.fail("verify 2fa", err)
	}
	return nil
}

func (s *AuthService) startSession(account domain.Account) (AuthResult, error) {
	tokens, err := s.issuer.IssuePair(Subject{
		AccountID: account.ID,
		Email:     account.Email,
		Plan:      account.Plan,
		Role:      account.Role,
	})
	if err != nil {
		return AuthResult{}, s.fail("issue tokens", err)
	}
	return AuthResult{User: account.Profile(), Tokens: tokens}, nil
}

// fail deja pasar los errores de la taxonomia y envuelve el resto como internos.
func (s *AuthService) fail(op string, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	s.logger.Error(op+" failed", zap.Error(err))
	return apperr.ErrInternal.WithErr(err)
}

// await espera el resultado de un envio hasta que ctx termine.
// Todos los envios de una misma operacion comparten el mismo plazo.
func await(ctx context.Context, delivery <-chan error) error {
	if delivery == nil {
		return nil
	}
	select {
	case err := <-delivery:
		return err
	case <-ctx.Done():
		return nil
	}
}

func tagged(label string, err error) error {
	if err == nil {
		return nil
	}
	return &mailWarning{label: label, err: err}
}

type mailWarning struct {
	label string
	err   error
}

func (w *mailWarning) Error() string { return w.label + " could not be sent" }
func (w *mailWarning) Unwrap() error { return w.err }
