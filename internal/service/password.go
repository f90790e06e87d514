package service

import (
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	"lifesuite/internal/apperr"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 72
)

// PasswordHasher abstrae el algoritmo de hash de contraseñas.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) bool
}

// BcryptHasher implementa PasswordHasher con bcrypt.
type BcryptHasher struct {
	Cost int
}

func NewBcryptHasher(cost int) BcryptHasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return BcryptHasher{Cost: cost}
}

func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	hashBytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hashBytes), nil
}

func (h BcryptHasher) Compare(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// validatePassword exige longitud minima, al menos una letra y un digito.
func validatePassword(field, password string) error {
	if len(password) < minPasswordLength {
		return apperr.ErrValidation.WithField(field, "password must be at least 8 characters")
	}
	if len(password) > maxPasswordLength {
		return apperr.ErrValidation.WithField(field, "password must be at most 72 bytes")
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return apperr.ErrValidation.WithField(field, "password must contain letters and digits")
	}
	if strings.TrimSpace(password) != password {
		return apperr.ErrValidation.WithField(field, "password must not start or end with spaces")
	}
	return nil
}
