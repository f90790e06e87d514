package email

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	TemplateWelcome       = "welcome"
	TemplateVerification  = "verify_email"
	TemplatePasswordReset = "password_reset"
	TemplateTwoFactorCode = "two_factor_code"
)

// Templates arma los mensajes transaccionales de identidad.
type Templates struct {
	BaseURL string
}

func (t Templates) link(path, token string) string {
	base := strings.TrimRight(t.BaseURL, "/")
	return fmt.Sprintf("%s%s?token=%s", base, path, url.QueryEscape(token))
}

func (t Templates) Welcome(to, name string) Message {
	greeting := "Hi"
	if strings.TrimSpace(name) != "" {
		greeting = "Hi " + name
	}
	return Message{
		To:       to,
		Subject:  "Welcome to LifeSuite",
		Template: TemplateWelcome,
		Body: fmt.Sprintf(
			"%s,\n\nYour LifeSuite account is ready. Track meals, habits and invoices in one place.\n",
			greeting,
		),
	}
}

func (t Templates) Verification(to, token string, expiresAt time.Time) Message {
	return Message{
		To:       to,
		Subject:  "Confirm your email address",
		Template: TemplateVerification,
		Body: fmt.Sprintf(
			"Please confirm your email address by visiting:\n%s\n\nThis link expires at %s UTC.\nIf you did not create an account, you can ignore this message.\n",
			t.link("/verify-email", token),
			expiresAt.UTC().Format(time.RFC3339),
		),
	}
}

func (t Templates) PasswordReset(to, token string, expiresAt time.Time) Message {
	return Message{
		To:       to,
		Subject:  "Reset your password",
		Template: TemplatePasswordReset,
		Body: fmt.Sprintf(
			"Someone asked to reset your password. Choose a new one here:\n%s\n\nThis link expires at %s UTC.\nIf this was not you, ignore this message.\n",
			t.link("/reset-password", token),
			expiresAt.UTC().Format(time.RFC3339),
		),
	}
}

func (t Templates) TwoFactorCode(to, code string, expiresAt time.Time) Message {
	return Message{
		To:       to,
		Subject:  "Your verification code",
		Template: TemplateTwoFactorCode,
		Body: fmt.Sprintf(
			"Your verification code is %s.\nIt expires at %s UTC.\n",
			code,
			expiresAt.UTC().Format(time.RFC3339),
		),
	}
}
