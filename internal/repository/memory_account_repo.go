package repository

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"lifesuite/internal/domain"
)

// MemoryAccountRepository guarda cuentas en memoria. Un unico mutex hace atomicas
// las operaciones de validar y limpiar.
type MemoryAccountRepository struct {
	mu      sync.Mutex
	byID    map[string]domain.Account
	byEmail map[string]string
}

func NewMemoryAccountRepository() *MemoryAccountRepository {
	return &MemoryAccountRepository{
		byID:    make(map[string]domain.Account),
		byEmail: make(map[string]string),
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (r *MemoryAccountRepository) Create(_ context.Context, account domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := emailKey(account.Email)
	if _, exists := r.byEmail[key]; exists {
		return ErrDuplicateEmail
	}
	r.byID[account.ID] = account
	r.byEmail[key] = account.ID
	return nil
}

func (r *MemoryAccountRepository) GetByID(_ context.Context, id string) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return domain.Account{}, ErrNotFound
	}
	return a, nil
}

func (r *MemoryAccountRepository) GetByEmail(_ context.Context, email string) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byEmail[emailKey(email)]
	if !ok {
		return domain.Account{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *MemoryAccountRepository) FindByOneShotToken(_ context.Context, kind domain.OneShotKind, tokenHash string) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if tokenHash == "" {
		return domain.Account{}, ErrNotFound
	}
	for _, a := range r.byID {
		switch kind {
		case domain.OneShotEmailVerification:
			if a.EmailVerificationToken == tokenHash {
				return a, nil
			}
		case domain.OneShotPasswordReset:
			if a.PasswordResetToken == tokenHash {
				return a, nil
			}
		default:
			return domain.Account{}, fmt.Errorf("unknown one-shot kind %q", kind)
		}
	}
	return domain.Account{}, ErrNotFound
}

func (r *MemoryAccountRepository) SetEmailVerificationToken(_ context.Context, id, tokenHash string, expiresAt time.Time) error {
	return r.update(id, func(a *domain.Account) {
		a.EmailVerificationToken = tokenHash
		a.EmailVerificationExpiresAt = &expiresAt
	})
}

func (r *MemoryAccountRepository) ConsumeEmailVerification(_ context.Context, tokenHash string, now time.Time) (domain.Account, error) {
	return r.consume(func(a domain.Account) bool {
		return tokenHash != "" && a.EmailVerificationToken == tokenHash && live(a.EmailVerificationExpiresAt, now)
	}, func(a *domain.Account) {
		a.IsEmailVerified = true
		a.EmailVerificationToken = ""
		a.EmailVerificationExpiresAt = nil
		a.UpdatedAt = now
	})
}

func (r *MemoryAccountRepository) SetPasswordResetToken(_ context.Context, id, tokenHash string, expiresAt time.Time) error {
	return r.update(id, func(a *domain.Account) {
		a.PasswordResetToken = tokenHash
		a.PasswordResetExpiresAt = &expiresAt
	})
}

func (r *MemoryAccountRepository) ConsumePasswordReset(_ context.Context, tokenHash, passwordHash string, now time.Time) (domain.Account, error) {
	return r.consume(func(a domain.Account) bool {
		return tokenHash != "" && a.PasswordResetToken == tokenHash && live(a.PasswordResetExpiresAt, now)
	}, func(a *domain.Account) {
		a.PasswordHash = passwordHash
		a.PasswordResetToken = ""
		a.PasswordResetExpiresAt = nil
		a.UpdatedAt = now
	})
}

func (r *MemoryAccountRepository) SetTwoFactorCode(_ context.Context, id, codeHash string, expiresAt time.Time) error {
	return r.update(id, func(a *domain.Account) {
		a.TwoFactorCode = codeHash
		a.TwoFactorCodeExpiresAt = &expiresAt
	})
}

func (r *MemoryAccountRepository) ConsumeTwoFactorCode(_ context.Context, id, codeHash string, now time.Time) (domain.Account, error) {
	return r.consume(func(a domain.Account) bool {
		return a.ID == id && codeHash != "" && a.TwoFactorCode == codeHash && live(a.TwoFactorCodeExpiresAt, now)
	}, func(a *domain.Account) {
		a.TwoFactorEnabled = true
		a.TwoFactorCode = ""
		a.TwoFactorCodeExpiresAt = nil
		a.UpdatedAt = now
	})
}

func (r *MemoryAccountRepository) ClearTwoFactorCode(_ context.Context, id string) error {
	return r.update(id, func(a *domain.Account) {
		a.TwoFactorCode = ""
		a.TwoFactorCodeExpiresAt = nil
	})
}

func (r *MemoryAccountRepository) ClearExpiredTokens(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, a := range r.byID {
		changed := false
		if a.EmailVerificationExpiresAt != nil && a.EmailVerificationExpiresAt.Before(before) {
			a.EmailVerificationToken, a.EmailVerificationExpiresAt = "", nil
			changed = true
		}
		if a.PasswordResetExpiresAt != nil && a.PasswordResetExpiresAt.Before(before) {
			a.PasswordResetToken, a.PasswordResetExpiresAt = "", nil
			changed = true
		}
		if a.TwoFactorCodeExpiresAt != nil && a.TwoFactorCodeExpiresAt.Before(before) {
			a.TwoFactorCode, a.TwoFactorCodeExpiresAt = "", nil
			changed = true
		}
		if changed {
			r.byID[id] = a
			n++
		}
	}
	return n, nil
}

func (r *MemoryAccountRepository) update(id string, fn func(a *domain.Account)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	fn(&a)
	a.UpdatedAt = time.Now().UTC()
	r.byID[id] = a
	return nil
}

func (r *MemoryAccountRepository) consume(match func(domain.Account) bool, apply func(a *domain.Account)) (domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, a := range r.byID {
		if !match(a) {
			continue
		}
		apply(&a)
		r.byID[id] = a
		return a, nil
	}
	return domain.Account{}, ErrNotFound
}

func live(expiresAt *time.Time, now time.Time) bool {
	return expiresAt != nil && now.Before(*expiresAt)
}
