package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenKind distingue los tokens de acceso de los de refresco.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// AccessToken y RefreshToken son tipos distintos para que una operacion de refresco
// no pueda recibir un token de acceso por accidente.
type (
	AccessToken  string
	RefreshToken string
)

// Subject son los datos de la cuenta que viajan dentro de los claims.
type Subject struct {
	AccountID string
	Email     string
	Plan      string
	Role      string
}

type Claims struct {
	AccountID string    `json:"uid"`
	Email     string    `json:"email"`
	Plan      string    `json:"plan,omitempty"`
	Role      string    `json:"role,omitempty"`
	TokenType TokenKind `json:"typ"`
	jwt.RegisteredClaims
}

func (c Claims) Subject() Subject {
	return Subject{AccountID: c.AccountID, Email: c.Email, Plan: c.Plan, Role: c.Role}
}

// AccessClaims solo se obtienen de VerifyAccess.
type AccessClaims struct{ Claims }

// RefreshClaims solo se obtienen de VerifyRefresh.
type RefreshClaims struct{ Claims }

type TokenPair struct {
	AccessToken  AccessToken  `json:"token"`
	RefreshToken RefreshToken `json:"refreshToken"`
	ExpiresIn    int64        `json:"expiresIn"`
}

var (
	ErrJWTInvalid = errors.New("jwt invalid")
	ErrJWTExpired = errors.New("jwt expired")
)

// TokenIssuer emite y valida tokens JWT firmados con HS256. No guarda estado:
// rotar el secreto invalida todos los tokens emitidos.
type TokenIssuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	issuer     string
	now        func() time.Time
}

type TokenIssuerOption func(*TokenIssuer)

func WithIssuerName(name string) TokenIssuerOption {
	return func(s *TokenIssuer) {
		if strings.TrimSpace(name) != "" {
			s.issuer = name
		}
	}
}

func WithIssuerClock(now func() time.Time) TokenIssuerOption {
	return func(s *TokenIssuer) {
		if now != nil {
			s.now = now
		}
	}
}

func NewTokenIssuer(secret string, accessTTL, refreshTTL time.Duration, opts ...TokenIssuerOption) *TokenIssuer {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	s := &TokenIssuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		issuer:     "lifesuite",
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TokenIssuer) AccessTTL() time.Duration { return s.accessTTL }

func (s *TokenIssuer) IssueAccess(sub Subject) (AccessToken, error) {
	signed, err := s.sign(sub, KindAccess, s.accessTTL)
	return AccessToken(signed), err
}

func (s *TokenIssuer) IssueRefresh(sub Subject) (RefreshToken, error) {
	signed, err := s.sign(sub, KindRefresh, s.refreshTTL)
	return RefreshToken(signed), err
}

func (s *TokenIssuer) IssuePair(sub Subject) (TokenPair, error) {
	access, err := s.IssueAccess(sub)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.IssueRefresh(sub)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

func (s *TokenIssuer) VerifyAccess(token AccessToken) (AccessClaims, error) {
	claims, err := s.verify(string(token), KindAccess)
	if err != nil {
		return AccessClaims{}, err
	}
	return AccessClaims{claims}, nil
}

func (s *TokenIssuer) VerifyRefresh(token RefreshToken) (RefreshClaims, error) {
	claims, err := s.verify(string(token), KindRefresh)
	if err != nil {
		return RefreshClaims{}, err
	}
	return RefreshClaims{claims}, nil
}

func (s *TokenIssuer) sign(sub Subject, kind TokenKind, ttl time.Duration) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrJWTInvalid
	}
	if strings.TrimSpace(sub.AccountID) == "" {
		return "", fmt.Errorf("%w: subject id is required", ErrJWTInvalid)
	}
	now := s.now().UTC()
	claims := Claims{
		AccountID: sub.AccountID,
		Email:     sub.Email,
		Plan:      sub.Plan,
		Role:      sub.Role,
		TokenType: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   sub.AccountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *TokenIssuer) verify(tokenString string, kind TokenKind) (Claims, error) {
	if len(s.secret) == 0 || strings.TrimSpace(tokenString) == "" {
		return Claims{}, ErrJWTInvalid
	}
	var claims Claims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrJWTExpired
		}
		return Claims{}, ErrJWTInvalid
	}
	if claims.TokenType != kind {
		return Claims{}, ErrJWTInvalid
	}
	if strings.TrimSpace(claims.AccountID) == "" || claims.RegisteredClaims.Subject != claims.AccountID {
		return Claims{}, ErrJWTInvalid
	}
	return claims, nil
}
