package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"lifesuite/internal/email"
	"lifesuite/internal/repository"
	"lifesuite/internal/service"
)

type mailbox struct {
	mu   sync.Mutex
	sent []email.Message
}

func (m *mailbox) Send(_ context.Context, msg email.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mailbox) last(template string) (email.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].Template == template {
			return m.sent[i], true
		}
	}
	return email.Message{}, false
}

var mailToken = regexp.MustCompile(`token=([A-Za-z0-9_-]+)`)

type testServer struct {
	router     *gin.Engine
	mail       *mailbox
	dispatcher *email.Dispatcher
	issuer     *service.TokenIssuer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()
	store, err := service.NewCredentialStore(repository.NewMemoryAccountRepository(), service.NewBcryptHasher(bcrypt.MinCost), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	mail := &mailbox{}
	dispatcher := email.NewDispatcher(mail, time.Second, logger)
	templates := email.Templates{BaseURL: "https://app.example.com"}
	issuer := service.NewTokenIssuer("http-secret", 15*time.Minute, time.Hour)
	recovery := service.NewRecoveryService(logger, store, dispatcher, templates)
	twoFactor := service.NewTwoFactorService(logger, store, dispatcher, templates)
	auth := service.NewAuthService(logger, store, issuer, recovery, twoFactor, dispatcher, templates, time.Second)
	return &testServer{
		router:     NewRouter(logger, NewAuthHandler(logger, auth)),
		mail:       mail,
		dispatcher: dispatcher,
		issuer:     issuer,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any, bearer string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) mailedToken(t *testing.T, template string) string {
	t.Helper()
	s.dispatcher.Wait()
	msg, ok := s.mail.last(template)
	if !ok {
		t.Fatalf("no %s mail", template)
	}
	match := mailToken.FindStringSubmatch(msg.Body)
	if match == nil {
		t.Fatalf("no token in %q", msg.Body)
	}
	return match[1]
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Field   string `json:"field"`
	} `json:"error"`
}

type sessionBody struct {
	User struct {
		ID              string `json:"id"`
		Email           string `json:"email"`
		IsEmailVerified bool   `json:"isEmailVerified"`
	} `json:"user"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

func TestAuthFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/auth/register", map[string]string{
		"email": "a@x.com", "password": "Secret123", "name": "Ana",
	}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	reg := decode[struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}](t, rec)
	if reg.ID == "" || reg.Email != "a@x.com" || reg.Name != "Ana" {
		t.Fatalf("unexpected register body %+v", reg)
	}
	if strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("register response leaked password data: %s", rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "a@x.com", "password": "Secret123"}, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unverified login: expected 403, got %d", rec.Code)
	}
	if decode[errorBody](t, rec).Error.Code != "email_not_verified" {
		t.Fatalf("unexpected error %s", rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/auth/verify-email", map[string]string{"token": s.mailedToken(t, email.TemplateVerification)}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("verify email: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	verified := decode[sessionBody](t, rec)
	if !verified.User.IsEmailVerified || verified.Token == "" || verified.RefreshToken == "" {
		t.Fatalf("verify email must return a session: %+v", verified)
	}

	rec = s.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "a@x.com", "password": "Secret123"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	login := decode[sessionBody](t, rec)
	claims, err := s.issuer.VerifyAccess(service.AccessToken(login.Token))
	if err != nil {
		t.Fatalf("login token invalid: %v", err)
	}
	if claims.AccountID != reg.ID {
		t.Fatalf("claims account %s, want %s", claims.AccountID, reg.ID)
	}

	rec = s.do(t, http.MethodGet, "/auth/profile", nil, login.Token)
	if rec.Code != http.StatusOK {
		t.Fatalf("profile: expected 200, got %d", rec.Code)
	}
	if decode[struct {
		Email string `json:"email"`
	}](t, rec).Email != "a@x.com" {
		t.Fatalf("unexpected profile %s", rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refreshToken": login.RefreshToken}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	refreshed := decode[sessionBody](t, rec)
	if refreshed.Token == "" || refreshed.RefreshToken == "" {
		t.Fatalf("refresh must return a pair: %s", rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/auth/refresh", map[string]string{"refreshToken": login.Token}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("access token used as refresh: expected 401, got %d", rec.Code)
	}
}

func TestRegisterValidationErrorShape(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/auth/register", map[string]string{"email": "not-an-email", "password": "Secret123", "name": "Ana"}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decode[errorBody](t, rec)
	if body.Error.Code != "validation_error" || body.Error.Field != "email" {
		t.Fatalf("unexpected error body %s", rec.Body.String())
	}

	rec = s.do(t, http.MethodPost, "/auth/register", map[string]string{"email": "v@x.com", "password": "short", "name": "Ana"}, "")
	if rec.Code != http.StatusBadRequest || decode[errorBody](t, rec).Error.Field != "password" {
		t.Fatalf("weak password: unexpected %d %s", rec.Code, rec.Body.String())
	}

	s.do(t, http.MethodPost, "/auth/register", map[string]string{"email": "v@x.com", "password": "Secret123", "name": "Ana"}, "")
	rec = s.do(t, http.MethodPost, "/auth/register", map[string]string{"email": "v@x.com", "password": "Secret123", "name": "Ana"}, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate: expected 409, got %d", rec.Code)
	}
	s.dispatcher.Wait()
}

func TestResetPasswordResponseIndependentOfAccount(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/auth/register", map[string]string{"email": "known@x.com", "password": "Secret123", "name": "Ana"}, "")
	s.dispatcher.Wait()

	known := s.do(t, http.MethodPost, "/auth/reset-password", map[string]string{"email": "known@x.com"}, "")
	unknown := s.do(t, http.MethodPost, "/auth/reset-password", map[string]string{"email": "unknown@x.com"}, "")
	if known.Code != http.StatusOK || unknown.Code != http.StatusOK {
		t.Fatalf("expected 200 for both, got %d / %d", known.Code, unknown.Code)
	}
	if !bytes.Equal(known.Body.Bytes(), unknown.Body.Bytes()) {
		t.Fatalf("responses differ: %s vs %s", known.Body.String(), unknown.Body.String())
	}

	token := s.mailedToken(t, email.TemplatePasswordReset)
	rec := s.do(t, http.MethodPost, "/auth/confirm-password-reset", map[string]string{"token": token, "newPassword": "Changed456"}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm reset: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = s.do(t, http.MethodPost, "/auth/confirm-password-reset", map[string]string{"token": token, "newPassword": "Changed789"}, "")
	if rec.Code != http.StatusBadRequest || decode[errorBody](t, rec).Error.Code != "invalid_token" {
		t.Fatalf("reused token: unexpected %d %s", rec.Code, rec.Body.String())
	}
}

func TestTwoFactorOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.do(t, http.MethodPost, "/auth/register", map[string]string{"email": "tf@x.com", "password": "Secret123", "name": "Ana"}, "")
	rec := s.do(t, http.MethodPost, "/auth/verify-email", map[string]string{"token": s.mailedToken(t, email.TemplateVerification)}, "")
	session := decode[sessionBody](t, rec)

	if rec := s.do(t, http.MethodPost, "/auth/enable-2fa", nil, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("enable-2fa without bearer: expected 401, got %d", rec.Code)
	}
	rec = s.do(t, http.MethodPost, "/auth/enable-2fa", nil, session.Token)
	if rec.Code != http.StatusOK {
		t.Fatalf("enable-2fa: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "code\":") {
		t.Fatalf("enable-2fa must not return the code: %s", rec.Body.String())
	}
	s.dispatcher.Wait()
	msg, ok := s.mail.last(email.TemplateTwoFactorCode)
	if !ok {
		t.Fatalf("no code mail")
	}
	code := regexp.MustCompile(`\d{6}`).FindString(msg.Body)

	rec = s.do(t, http.MethodPost, "/auth/verify-2fa", map[string]string{"code": code}, session.Token)
	if rec.Code != http.StatusOK {
		t.Fatalf("verify-2fa: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = s.do(t, http.MethodPost, "/auth/verify-2fa", map[string]string{"code": code}, session.Token)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("reused code: expected 400, got %d", rec.Code)
	}

	rec = s.do(t, http.MethodGet, "/auth/profile", nil, session.Token)
	if !decode[struct {
		TwoFactorEnabled bool `json:"twoFactorEnabled"`
	}](t, rec).TwoFactorEnabled {
		t.Fatalf("profile must report 2fa enabled: %s", rec.Body.String())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)
	if rec := s.do(t, http.MethodGet, "/healthz", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rec.Code)
	}
	s.do(t, http.MethodPost, "/auth/login", map[string]string{"email": "ghost@x.com", "password": "Secret123"}, "")
	rec := s.do(t, http.MethodGet, "/metrics", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "lifesuite_auth_events_total") {
		t.Fatalf("metrics must expose auth events: %d", rec.Code)
	}
}
