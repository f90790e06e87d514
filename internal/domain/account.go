package domain

import "time"

// Account es el registro de credenciales de un usuario.
type Account struct {
	ID           string  `json:"id"`
	Email        string  `json:"email"`
	Name         string  `json:"name"`
	Phone        *string `json:"phone,omitempty"`
	PasswordHash string  `json:"-"`

	IsEmailVerified            bool       `json:"isEmailVerified"`
	EmailVerificationToken     string     `json:"-"`
	EmailVerificationExpiresAt *time.Time `json:"-"`

	PasswordResetToken     string     `json:"-"`
	PasswordResetExpiresAt *time.Time `json:"-"`

	TwoFactorEnabled       bool       `json:"twoFactorEnabled"`
	TwoFactorCode          string     `json:"-"`
	TwoFactorCodeExpiresAt *time.Time `json:"-"`

	Plan      string    `json:"plan,omitempty"`
	Role      string    `json:"role,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Profile es la vista publica de una cuenta.
type Profile struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	Phone            *string   `json:"phone,omitempty"`
	IsEmailVerified  bool      `json:"isEmailVerified"`
	TwoFactorEnabled bool      `json:"twoFactorEnabled"`
	Plan             string    `json:"plan,omitempty"`
	Role             string    `json:"role,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

func (a Account) Profile() Profile {
	return Profile{
		ID:               a.ID,
		Email:            a.Email,
		Name:             a.Name,
		Phone:            a.Phone,
		IsEmailVerified:  a.IsEmailVerified,
		TwoFactorEnabled: a.TwoFactorEnabled,
		Plan:             a.Plan,
		Role:             a.Role,
		CreatedAt:        a.CreatedAt,
	}
}

// OneShotKind identifica el campo de token de un solo uso.
type OneShotKind string

const (
	OneShotEmailVerification OneShotKind = "email_verification"
	OneShotPasswordReset     OneShotKind = "password_reset"
)

const (
	DefaultPlan = "free"
	DefaultRole = "user"
)
