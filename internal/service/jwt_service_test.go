package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func testSubject() Subject {
	return Subject{AccountID: "u1", Email: "user@example.com", Plan: "free", Role: "user"}
}

func TestTokenIssuer_IssueVerifyAccess(t *testing.T) {
	svc := NewTokenIssuer("secret", 15*time.Minute, 30*time.Minute)

	pair, err := svc.IssuePair(testSubject())
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected tokens")
	}
	if pair.ExpiresIn != int64((15 * time.Minute).Seconds()) {
		t.Fatalf("unexpected expires_in %d", pair.ExpiresIn)
	}

	claims, err := svc.VerifyAccess(pair.AccessToken)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if claims.AccountID != "u1" || claims.Email != "user@example.com" || claims.Role != "user" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestTokenIssuer_RejectsWrongKind(t *testing.T) {
	svc := NewTokenIssuer("secret", 15*time.Minute, 30*time.Minute)
	pair, err := svc.IssuePair(testSubject())
	if err != nil {
		t.Fatalf("issue pair: %v", err)
	}

	if _, err := svc.VerifyRefresh(RefreshToken(pair.AccessToken)); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected access token to be rejected as refresh, got %v", err)
	}
	if _, err := svc.VerifyAccess(AccessToken(pair.RefreshToken)); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected refresh token to be rejected as access, got %v", err)
	}
}

func TestTokenIssuer_Expired(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	svc := NewTokenIssuer("secret", time.Minute, time.Hour, WithIssuerClock(clock))

	token, err := svc.IssueAccess(testSubject())
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := svc.VerifyAccess(token); !errors.Is(err, ErrJWTExpired) {
		t.Fatalf("expected ErrJWTExpired, got %v", err)
	}
}

func TestTokenIssuer_RejectsForeignSignature(t *testing.T) {
	issuer := NewTokenIssuer("secret-a", time.Minute, time.Hour)
	other := NewTokenIssuer("secret-b", time.Minute, time.Hour)

	token, err := issuer.IssueRefresh(testSubject())
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	if _, err := other.VerifyRefresh(token); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid after key rotation, got %v", err)
	}
}

func TestTokenIssuer_RejectsForeignIssuer(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Minute, time.Hour, WithIssuerName("other"))
	svc := NewTokenIssuer("secret", time.Minute, time.Hour)

	token, err := issuer.IssueAccess(testSubject())
	if err != nil {
		t.Fatalf("issue access: %v", err)
	}
	if _, err := svc.VerifyAccess(token); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid, got %v", err)
	}
}

func TestTokenIssuer_RejectsEmptySecret(t *testing.T) {
	svc := NewTokenIssuer("", 15*time.Minute, 30*time.Minute)
	if _, err := svc.IssuePair(testSubject()); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid on empty secret, got %v", err)
	}
}

func TestTokenIssuer_RejectsGarbage(t *testing.T) {
	svc := NewTokenIssuer("secret", 15*time.Minute, 30*time.Minute)
	for _, raw := range []string{"", "   ", "not.a.jwt"} {
		if _, err := svc.VerifyAccess(AccessToken(raw)); !errors.Is(err, ErrJWTInvalid) {
			t.Fatalf("expected ErrJWTInvalid for %q, got %v", raw, err)
		}
	}
}

func TestTokenIssuer_RejectsSubjectMismatch(t *testing.T) {
	svc := NewTokenIssuer("secret", 15*time.Minute, 30*time.Minute)
	now := time.Now().UTC()
	claims := Claims{
		AccountID: "u1",
		Email:     "user@example.com",
		TokenType: KindAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "lifesuite",
			Subject:   "u2",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := svc.VerifyAccess(AccessToken(signed)); !errors.Is(err, ErrJWTInvalid) {
		t.Fatalf("expected ErrJWTInvalid for mismatched subject, got %v", err)
	}
}

func TestTokenIssuer_RefreshClaimsCarrySubject(t *testing.T) {
	svc := NewTokenIssuer("secret", 15*time.Minute, 30*time.Minute)
	token, err := svc.IssueRefresh(testSubject())
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	claims, err := svc.VerifyRefresh(token)
	if err != nil {
		t.Fatalf("verify refresh: %v", err)
	}
	if claims.RegisteredClaims.Subject != "u1" {
		t.Fatalf("unexpected sub %q", claims.RegisteredClaims.Subject)
	}
	if got := claims.Subject(); got != testSubject() {
		t.Fatalf("unexpected subject %+v", got)
	}
}
