package http

import (
	"errors"
	"net/http"
	"strings"
	"unicode"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"lifesuite/internal/apperr"
)

// renderError escribe {"error": {...}} con el status del error de identidad.
// Los errores internos se loguean y nunca exponen su causa.
func renderError(c *gin.Context, logger *zap.Logger, err error) {
	appErr := apperr.From(err)
	if appErr.Status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	}
	status := appErr.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	c.AbortWithStatusJSON(status, gin.H{"error": appErr})
}

// bindError traduce un fallo de binding a un error de validacion con el primer campo invalido.
func bindError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := lowerFirst(fe.Field())
		switch fe.Tag() {
		case "required":
			return apperr.ErrValidation.WithField(field, field+" is required")
		case "email":
			return apperr.ErrValidation.WithField(field, "invalid email address")
		default:
			return apperr.ErrValidation.WithField(field, field+" is invalid")
		}
	}
	return apperr.ErrValidation.WithField("", "invalid request body")
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return strings.TrimSpace(string(r))
}
