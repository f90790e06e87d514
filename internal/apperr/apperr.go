// Package apperr define los errores de identidad que se exponen a los clientes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error es un error estructurado y seguro para mostrar al cliente.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is compara por codigo para que las copias con causa sigan coincidiendo con su sentinel.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// WithErr devuelve una copia con la causa interna adjunta.
func (e *Error) WithErr(err error) *Error {
	cpy := *e
	cpy.Err = err
	return &cpy
}

// WithField devuelve una copia que apunta al campo invalido.
func (e *Error) WithField(field, message string) *Error {
	cpy := *e
	cpy.Field = field
	if message != "" {
		cpy.Message = message
	}
	return &cpy
}

var (
	ErrValidation = &Error{
		Code:    "validation_error",
		Message: "invalid request",
		Status:  http.StatusBadRequest,
	}
	ErrDuplicateAccount = &Error{
		Code:    "duplicate_account",
		Message: "an account with this email already exists",
		Status:  http.StatusConflict,
	}
	ErrInvalidCredentials = &Error{
		Code:    "invalid_credentials",
		Message: "invalid email or password",
		Status:  http.StatusUnauthorized,
	}
	ErrEmailNotVerified = &Error{
		Code:    "email_not_verified",
		Message: "please verify your email before logging in",
		Status:  http.StatusForbidden,
	}
	ErrInvalidToken = &Error{
		Code:    "invalid_token",
		Message: "this link is invalid",
		Status:  http.StatusBadRequest,
	}
	ErrExpiredToken = &Error{
		Code:    "expired_token",
		Message: "this link has expired, please request a new one",
		Status:  http.StatusGone,
	}
	ErrInvalidTwoFactorCode = &Error{
		Code:    "invalid_2fa_code",
		Message: "invalid verification code",
		Status:  http.StatusBadRequest,
	}
	ErrExpiredTwoFactorCode = &Error{
		Code:    "expired_2fa_code",
		Message: "verification code expired, please request a new one",
		Status:  http.StatusGone,
	}
	ErrUnauthorized = &Error{
		Code:    "unauthorized",
		Message: "authentication required",
		Status:  http.StatusUnauthorized,
	}
	ErrAccountNotFound = &Error{
		Code:    "account_not_found",
		Message: "account not found",
		Status:  http.StatusNotFound,
	}
	ErrRateLimited = &Error{
		Code:    "rate_limited",
		Message: "too many requests",
		Status:  http.StatusTooManyRequests,
	}
	ErrInternal = &Error{
		Code:    "internal_error",
		Message: "something went wrong",
		Status:  http.StatusInternalServerError,
	}
)

// From convierte cualquier error en un *Error; lo desconocido pasa a ErrInternal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return ErrInternal.WithErr(err)
}
