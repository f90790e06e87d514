package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"lifesuite/internal/apperr"
	"lifesuite/internal/domain"
	"lifesuite/internal/repository"
)

// CredentialStore es el unico componente que toca el hash de la contraseña.
// Las cuentas que devuelve nunca lo incluyen.
type CredentialStore struct {
	repo   repository.AccountRepository
	hasher PasswordHasher
	now    func() time.Time
	// dummyHash iguala el costo de Authenticate cuando el email no existe.
	dummyHash string
}

func NewCredentialStore(repo repository.AccountRepository, hasher PasswordHasher, now func() time.Time) (*CredentialStore, error) {
	if repo == nil {
		return nil, errors.New("credential store: repository is required")
	}
	if hasher == nil {
		hasher = NewBcryptHasher(0)
	}
	if now == nil {
		now = time.Now
	}
	dummy, err := hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("credential store: dummy hash: %w", err)
	}
	return &CredentialStore{repo: repo, hasher: hasher, now: now, dummyHash: dummy}, nil
}

type NewAccount struct {
	Email    string
	Password string
	Name     string
	Phone    string
}

func (s *CredentialStore) Create(ctx context.Context, input NewAccount) (domain.Account, error) {
	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return domain.Account{}, fmt.Errorf("credential store: hash password: %w", err)
	}
	now := s.now().UTC()
	account := domain.Account{
		ID:           uuid.NewString(),
		Email:        normalizeEmail(input.Email),
		Name:         strings.TrimSpace(input.Name),
		PasswordHash: hash,
		Plan:         domain.DefaultPlan,
		Role:         domain.DefaultRole,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if phone := strings.TrimSpace(input.Phone); phone != "" {
		account.Phone = &phone
	}
	if err := s.repo.Create(ctx, account); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return domain.Account{}, apperr.ErrDuplicateAccount
		}
		return domain.Account{}, fmt.Errorf("credential store: create: %w", err)
	}
	return sanitize(account), nil
}

// FindByEmail devuelve ok=false si la cuenta no existe.
func (s *CredentialStore) FindByEmail(ctx context.Context, email string) (domain.Account, bool, error) {
	account, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	return s.found(account, err, "find by email")
}

func (s *CredentialStore) FindByID(ctx context.Context, id string) (domain.Account, bool, error) {
	account, err := s.repo.GetByID(ctx, id)
	return s.found(account, err, "find by id")
}

func (s *CredentialStore) FindByOneShotToken(ctx context.Context, kind domain.OneShotKind, tokenHash string) (domain.Account, bool, error) {
	account, err := s.repo.FindByOneShotToken(ctx, kind, tokenHash)
	return s.found(account, err, "find by token")
}

// Authenticate no distingue entre email inexistente y contraseña incorrecta.
func (s *CredentialStore) Authenticate(ctx context.Context, email, password string) (domain.Account, error) {
	account, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.hasher.Compare(s.dummyHash, password)
			return domain.Account{}, apperr.ErrInvalidCredentials
		}
		return domain.Account{}, fmt.Errorf("credential store: authenticate: %w", err)
	}
	if account.PasswordHash == "" || !s.hasher.Compare(account.PasswordHash, password) {
		return domain.Account{}, apperr.ErrInvalidCredentials
	}
	return sanitize(account), nil
}

func (s *CredentialStore) SetOneShotToken(ctx context.Context, kind domain.OneShotKind, id, tokenHash string, expiresAt time.Time) error {
	var err error
	switch kind {
	case domain.OneShotEmailVerification:
		err = s.repo.SetEmailVerificationToken(ctx, id, tokenHash, expiresAt)
	case domain.OneShotPasswordReset:
		err = s.repo.SetPasswordResetToken(ctx, id, tokenHash, expiresAt)
	default:
		return fmt.Errorf("credential store: unknown token kind %q", kind)
	}
	if err != nil {
		return fmt.Errorf("credential store: set %s token: %w", kind, err)
	}
	return nil
}

// ConsumeEmailVerification marca el email como verificado y limpia el token en la misma escritura.
func (s *CredentialStore) ConsumeEmailVerification(ctx context.Context, tokenHash string) (domain.Account, bool, error) {
	account, err := s.repo.ConsumeEmailVerification(ctx, tokenHash, s.now().UTC())
	return s.found(account, err, "consume verification")
}

// ConsumePasswordReset reemplaza el hash y limpia el token en la misma escritura.
func (s *CredentialStore) ConsumePasswordReset(ctx context.Context, tokenHash, newPassword string) (domain.Account, bool, error) {
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return domain.Account{}, false, fmt.Errorf("credential store: hash password: %w", err)
	}
	account, err := s.repo.ConsumePasswordReset(ctx, tokenHash, hash, s.now().UTC())
	return s.found(account, err, "consume password reset")
}

func (s *CredentialStore) SetTwoFactorCode(ctx context.Context, id, codeHash string, expiresAt time.Time) error {
	if err := s.repo.SetTwoFactorCode(ctx, id, codeHash, expiresAt); err != nil {
		return fmt.Errorf("credential store: set 2fa code: %w", err)
	}
	return nil
}

func (s *CredentialStore) ConsumeTwoFactorCode(ctx context.Context, id, codeHash string) (domain.Account, bool, error) {
	account, err := s.repo.ConsumeTwoFactorCode(ctx, id, codeHash, s.now().UTC())
	return s.found(account, err, "consume 2fa code")
}

func (s *CredentialStore) ClearTwoFactorCode(ctx context.Context, id string) error {
	if err := s.repo.ClearTwoFactorCode(ctx, id); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("credential store: clear 2fa code: %w", err)
	}
	return nil
}

func (s *CredentialStore) ClearExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	return s.repo.ClearExpiredTokens(ctx, before)
}

func (s *CredentialStore) found(account domain.Account, err error, op string) (domain.Account, bool, error) {
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Account{}, false, nil
		}
		return domain.Account{}, false, fmt.Errorf("credential store: %s: %w", op, err)
	}
	return sanitize(account), true, nil
}

func sanitize(account domain.Account) domain.Account {
	account.PasswordHash = ""
	return account
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(field, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return apperr.ErrValidation.WithField(field, "email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return apperr.ErrValidation.WithField(field, "email is invalid")
	}
	return nil
}
