package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// accountsSchema crea la tabla de cuentas. El email se guarda normalizado en minusculas.
const accountsSchema = `
CREATE TABLE IF NOT EXISTS accounts (
	id                            TEXT PRIMARY KEY,
	email                         TEXT NOT NULL,
	name                          TEXT NOT NULL DEFAULT '',
	phone                         TEXT,
	password_hash                 TEXT NOT NULL,
	is_email_verified             BOOLEAN NOT NULL DEFAULT FALSE,
	email_verification_token      TEXT,
	email_verification_expires_at TIMESTAMPTZ,
	password_reset_token          TEXT,
	password_reset_expires_at     TIMESTAMPTZ,
	two_factor_enabled            BOOLEAN NOT NULL DEFAULT FALSE,
	two_factor_code               TEXT,
	two_factor_code_expires_at    TIMESTAMPTZ,
	plan                          TEXT NOT NULL DEFAULT 'free',
	role                          TEXT NOT NULL DEFAULT 'user',
	created_at                    TIMESTAMPTZ NOT NULL,
	updated_at                    TIMESTAMPTZ NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS accounts_email_key ON accounts (lower(email));
CREATE UNIQUE INDEX IF NOT EXISTS accounts_verification_token_key
	ON accounts (email_verification_token) WHERE email_verification_token IS NOT NULL;
CREATE UNIQUE INDEX IF NOT EXISTS accounts_reset_token_key
	ON accounts (password_reset_token) WHERE password_reset_token IS NOT NULL;
`

// EnsureSchema aplica el esquema minimo requerido por el servicio.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, accountsSchema)
	return err
}
