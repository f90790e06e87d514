package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"lifesuite/internal/domain"
)

var (
	ErrNotFound       = errors.New("account not found")
	ErrDuplicateEmail = errors.New("account email already exists")
)

// AccountRepository define el contrato de persistencia para cuentas.
// Cada operacion toca un unico documento; los Consume* validan y limpian en una sola escritura.
type AccountRepository interface {
	Create(ctx context.Context, account domain.Account) error
	GetByID(ctx context.Context, id string) (domain.Account, error)
	GetByEmail(ctx context.Context, email string) (domain.Account, error)
	FindByOneShotToken(ctx context.Context, kind domain.OneShotKind, tokenHash string) (domain.Account, error)

	SetEmailVerificationToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	ConsumeEmailVerification(ctx context.Context, tokenHash string, now time.Time) (domain.Account, error)

	SetPasswordResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error
	ConsumePasswordReset(ctx context.Context, tokenHash, passwordHash string, now time.Time) (domain.Account, error)

	SetTwoFactorCode(ctx context.Context, id, codeHash string, expiresAt time.Time) error
	ConsumeTwoFactorCode(ctx context.Context, id, codeHash string, now time.Time) (domain.Account, error)
	ClearTwoFactorCode(ctx context.Context, id string) error

	ClearExpiredTokens(ctx context.Context, before time.Time) (int64, error)
}

// PgAccountRepository implementa AccountRepository usando pgxpool.
type PgAccountRepository struct {
	pool *pgxpool.Pool
}

func NewPgAccountRepository(pool *pgxpool.Pool) *PgAccountRepository {
	return &PgAccountRepository{pool: pool}
}

const accountColumns = `
	id, email, name, phone, password_hash,
	is_email_verified, email_verification_token, email_verification_expires_at,
	password_reset_token, password_reset_expires_at,
	two_factor_enabled, two_factor_code, two_factor_code_expires_at,
	plan, role, created_at, updated_at
`

func scanAccount(row pgx.Row) (domain.Account, error) {
	var (
		a                                 domain.Account
		verifyToken, resetToken, tfaCode *string
	)
	err := row.Scan(
		&a.ID,
		&a.Email,
		&a.Name,
		&a.Phone,
		&a.PasswordHash,
		&a.IsEmailVerified,
		&verifyToken,
		&a.EmailVerificationExpiresAt,
		&resetToken,
		&a.PasswordResetExpiresAt,
		&a.TwoFactorEnabled,
		&tfaCode,
		&a.TwoFactorCodeExpiresAt,
		&a.Plan,
		&a.Role,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, ErrNotFound
	}
	if err != nil {
		return domain.Account{}, err
	}
	a.EmailVerificationToken = deref(verifyToken)
	a.PasswordResetToken = deref(resetToken)
	a.TwoFactorCode = deref(tfaCode)
	return a, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (r *PgAccountRepository) Create(ctx context.Context, account domain.Account) error {
	const query = `
		INSERT INTO accounts (
			id, email, name, phone, password_hash,
			is_email_verified, two_factor_enabled, plan, role, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.pool.Exec(ctx, query,
		account.ID,
		account.Email,
		account.Name,
		account.Phone,
		account.PasswordHash,
		account.IsEmailVerified,
		account.TwoFactorEnabled,
		account.Plan,
		account.Role,
		account.CreatedAt,
		account.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateEmail
	}
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (r *PgAccountRepository) GetByID(ctx context.Context, id string) (domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, id))
}

func (r *PgAccountRepository) GetByEmail(ctx context.Context, email string) (domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE lower(email) = lower($1)`
	return scanAccount(r.pool.QueryRow(ctx, query, email))
}

func (r *PgAccountRepository) FindByOneShotToken(ctx context.Context, kind domain.OneShotKind, tokenHash string) (domain.Account, error) {
	var column string
	switch kind {
	case domain.OneShotEmailVerification:
		column = "email_verification_token"
	case domain.OneShotPasswordReset:
		column = "password_reset_token"
	default:
		return domain.Account{}, fmt.Errorf("unknown one-shot kind %q", kind)
	}
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + column + ` = $1`
	return scanAccount(r.pool.QueryRow(ctx, query, tokenHash))
}

func (r *PgAccountRepository) SetEmailVerificationToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	const query = `
		UPDATE accounts
		SET email_verification_token = $2, email_verification_expires_at = $3, updated_at = now()
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, tokenHash, expiresAt)
}

func (r *PgAccountRepository) ConsumeEmailVerification(ctx context.Context, tokenHash string, now time.Time) (domain.Account, error) {
	query := `
		UPDATE accounts
		SET is_email_verified = TRUE,
			email_verification_token = NULL,
			email_verification_expires_at = NULL,
			updated_at = $2
		WHERE email_verification_token = $1 AND email_verification_expires_at > $2
		RETURNING ` + accountColumns
	return scanAccount(r.pool.QueryRow(ctx, query, tokenHash, now))
}

func (r *PgAccountRepository) SetPasswordResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	const query = `
		UPDATE accounts
		SET password_reset_token = $2, password_reset_expires_at = $3, updated_at = now()
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, tokenHash, expiresAt)
}

func (r *PgAccountRepository) ConsumePasswordReset(ctx context.Context, tokenHash, passwordHash string, now time.Time) (domain.Account, error) {
	query := `
		UPDATE accounts
		SET password_hash = $2,
			password_reset_token = NULL,
			password_reset_expires_at = NULL,
			updated_at = $3
		WHERE password_reset_token = $1 AND password_reset_expires_at > $3
		RETURNING ` + accountColumns
	return scanAccount(r.pool.QueryRow(ctx, query, tokenHash, passwordHash, now))
}

func (r *PgAccountRepository) SetTwoFactorCode(ctx context.Context, id, codeHash string, expiresAt time.Time) error {
	const query = `
		UPDATE accounts
		SET two_factor_code = $2, two_factor_code_expires_at = $3, updated_at = now()
		WHERE id = $1
	`
	return r.execOne(ctx, query, id, codeHash, expiresAt)
}

func (r *PgAccountRepository) ConsumeTwoFactorCode(ctx context.Context, id, codeHash string, now time.Time) (domain.Account, error) {
	query := `
		UPDATE accounts
		SET two_factor_enabled = TRUE,
			two_factor_code = NULL,
			two_factor_code_expires_at = NULL,
			updated_at = $3
		WHERE id = $1 AND two_factor_code = $2 AND two_factor_code_expires_at > $3
		RETURNING ` + accountColumns
	return scanAccount(r.pool.QueryRow(ctx, query, id, codeHash, now))
}

func (r *PgAccountRepository) ClearTwoFactorCode(ctx context.Context, id string) error {
	const query = `
		UPDATE accounts
		SET two_factor_code = NULL, two_factor_code_expires_at = NULL, updated_at = now()
		WHERE id = $1
	`
	return r.execOne(ctx, query, id)
}

func (r *PgAccountRepository) ClearExpiredTokens(ctx context.Context, before time.Time) (int64, error) {
	const query = `
		UPDATE accounts
		SET email_verification_token = CASE WHEN email_verification_expires_at < $1 THEN NULL ELSE email_verification_token END,
			email_verification_expires_at = CASE WHEN email_verification_expires_at < $1 THEN NULL ELSE email_verification_expires_at END,
			password_reset_token = CASE WHEN password_reset_expires_at < $1 THEN NULL ELSE password_reset_token END,
			password_reset_expires_at = CASE WHEN password_reset_expires_at < $1 THEN NULL ELSE password_reset_expires_at END,
			two_factor_code = CASE WHEN two_factor_code_expires_at < $1 THEN NULL ELSE two_factor_code END,
			two_factor_code_expires_at = CASE WHEN two_factor_code_expires_at < $1 THEN NULL ELSE two_factor_code_expires_at END
		WHERE email_verification_expires_at < $1
			OR password_reset_expires_at < $1
			OR two_factor_code_expires_at < $1
	`
	tag, err := r.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("clear expired tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgAccountRepository) execOne(ctx context.Context, query string, args ...any) error {
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}
