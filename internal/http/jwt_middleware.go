package http

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lifesuite/internal/apperr"
	"lifesuite/internal/service"
)

const authClaimsKey = "auth_claims"

// AccessVerifier valida bearer tokens de acceso.
type AccessVerifier interface {
	VerifyAccessToken(token service.AccessToken) (service.AccessClaims, error)
}

// JWTAuthMiddleware valida el access token y guarda los claims en el contexto.
func JWTAuthMiddleware(logger *zap.Logger, verifier AccessVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		if verifier == nil {
			renderError(c, logger, apperr.ErrInternal)
			return
		}

		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if len(header) < len("bearer ") || !strings.EqualFold(header[:len("bearer ")], "bearer ") {
			renderError(c, logger, apperr.ErrUnauthorized)
			return
		}

		token := strings.TrimSpace(header[len("bearer "):])
		claims, err := verifier.VerifyAccessToken(service.AccessToken(token))
		if err != nil {
			renderError(c, logger, apperr.ErrUnauthorized)
			return
		}

		c.Set(authClaimsKey, claims)
		c.Next()
	}
}

// GetAuthClaims obtiene los claims de acceso desde el contexto.
func GetAuthClaims(c *gin.Context) (service.AccessClaims, bool) {
	val, ok := c.Get(authClaimsKey)
	if !ok {
		return service.AccessClaims{}, false
	}
	claims, ok := val.(service.AccessClaims)
	return claims, ok
}
