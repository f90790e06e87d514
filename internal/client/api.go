package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultRequestTimeout = 15 * time.Second

// APIError es la forma {"error": {...}} que devuelve el servidor.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (e *APIError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s (%s): %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type User struct {
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

type Registration struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Warnings []string `json:"warnings,omitempty"`
}

// AuthResponse es la respuesta de login y verify-email.
type AuthResponse struct {
	User User `json:"user"`
	Tokens
}

type messageBody struct {
	Message string `json:"message"`
}

// APIClient habla con los endpoints /auth. Las rutas protegidas pasan por el Guard.
type APIClient struct {
	baseURL string
	public  *http.Client
	authed  *http.Client
}

type APIOption func(*APIClient)

func WithHTTPClient(c *http.Client) APIOption {
	return func(a *APIClient) {
		if c != nil {
			a.public = c
		}
	}
}

func WithRequestTimeout(d time.Duration) APIOption {
	return func(a *APIClient) {
		if d > 0 {
			a.public.Timeout = d
		}
	}
}

func NewAPIClient(baseURL string, opts ...APIOption) *APIClient {
	c := &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		public:  &http.Client{Timeout: defaultRequestTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UseGuard habilita las rutas protegidas con la sesion del guardian.
func (c *APIClient) UseGuard(g *Guard) {
	c.authed = &http.Client{
		Timeout:   c.public.Timeout,
		Transport: &Transport{Base: c.public.Transport, Guard: g},
	}
}

func (c *APIClient) Register(ctx context.Context, email, password, name, phone string) (Registration, error) {
	var out Registration
	err := c.do(ctx, c.public, http.MethodPost, "/auth/register", map[string]string{
		"email": email, "password": password, "name": name, "phone": phone,
	}, &out)
	return out, err
}

func (c *APIClient) Login(ctx context.Context, email, password string) (AuthResponse, error) {
	var out AuthResponse
	err := c.do(ctx, c.public, http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password}, &out)
	return out, err
}

// Refresh implementa Refresher; nunca pasa por el Transport para no entrar en bucle.
func (c *APIClient) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	var out Tokens
	err := c.do(ctx, c.public, http.MethodPost, "/auth/refresh", map[string]string{"refreshToken": refreshToken}, &out)
	return out, err
}

func (c *APIClient) VerifyEmail(ctx context.Context, token string) (AuthResponse, error) {
	var out AuthResponse
	err := c.do(ctx, c.public, http.MethodPost, "/auth/verify-email", map[string]string{"token": token}, &out)
	return out, err
}

func (c *APIClient) ResendVerification(ctx context.Context, email string) (string, error) {
	var out messageBody
	err := c.do(ctx, c.public, http.MethodPost, "/auth/resend-verification", map[string]string{"email": email}, &out)
	return out.Message, err
}

func (c *APIClient) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	var out messageBody
	err := c.do(ctx, c.public, http.MethodPost, "/auth/reset-password", map[string]string{"email": email}, &out)
	return out.Message, err
}

func (c *APIClient) ConfirmPasswordReset(ctx context.Context, token, newPassword string) (string, error) {
	var out messageBody
	err := c.do(ctx, c.public, http.MethodPost, "/auth/confirm-password-reset", map[string]string{"token": token, "newPassword": newPassword}, &out)
	return out.Message, err
}

func (c *APIClient) Profile(ctx context.Context) (User, error) {
	var out User
	err := c.protected(ctx, http.MethodGet, "/auth/profile", nil, &out)
	return out, err
}

func (c *APIClient) EnableTwoFactor(ctx context.Context) (string, error) {
	var out messageBody
	err := c.protected(ctx, http.MethodPost, "/auth/enable-2fa", nil, &out)
	return out.Message, err
}

func (c *APIClient) VerifyTwoFactor(ctx context.Context, code string) (string, error) {
	var out messageBody
	err := c.protected(ctx, http.MethodPost, "/auth/verify-2fa", map[string]string{"code": code}, &out)
	return out.Message, err
}

func (c *APIClient) protected(ctx context.Context, method, path string, body, out any) error {
	if c.authed == nil {
		return ErrNotAuthenticated
	}
	return c.do(ctx, c.authed, method, path, body, out)
}

func (c *APIClient) do(ctx context.Context, hc *http.Client, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var envelope struct {
			Error APIError `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil || envelope.Error.Code == "" {
			return &APIError{Status: resp.StatusCode, Code: "http_error", Message: resp.Status}
		}
		envelope.Error.Status = resp.StatusCode
		return &envelope.Error
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}
