package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"lifesuite/internal/apperr"
	"lifesuite/internal/domain"
	"lifesuite/internal/service"
)

const (
	msgVerificationSent = "if the account exists and is not verified, a verification email has been sent"
	msgResetSent        = "if the account exists, a password reset email has been sent"
	msgPasswordUpdated  = "password updated"
	msgTwoFactorSent    = "verification code sent"
	msgTwoFactorEnabled = "two-factor authentication enabled"
)

// AuthHandler expone las operaciones de identidad sobre HTTP.
type AuthHandler struct {
	logger *zap.Logger
	auth   *service.AuthService
}

func NewAuthHandler(logger *zap.Logger, auth *service.AuthService) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{logger: logger, auth: auth}
}

type registerResponse struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Warnings []string `json:"warnings,omitempty"`
}

type sessionResponse struct {
	User domain.Profile `json:"user"`
	service.TokenPair
}

type messageResponse struct {
	Message string `json:"message"`
}

// Register maneja POST /auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
		Name     string `json:"name" binding:"required"`
		Phone    string `json:"phone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid register request", zap.Error(err))
		renderError(c, h.logger, bindError(err))
		return
	}

	res, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Phone:    req.Phone,
	})
	if err != nil {
		renderError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, registerResponse{
		ID:       res.Account.ID,
		Email:    res.Account.Email,
		Name:     res.Account.Name,
		Warnings: res.Warnings,
	})
}

// Login maneja POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid login request", zap.Error(err))
		renderError(c, h.logger, bindError(err))
		return
	}

	res, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		renderError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{User: res.User, TokenPair: res.Tokens})
}

// Refresh maneja POST /auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid refresh request", zap.Error(err))
		renderError(c, h.logger, bindError(err))
		return
	}

	claims, err := h.auth.VerifyRefreshToken(service.RefreshToken(req.RefreshToken))
	if err != nil {
		renderError(c, h.logger, err)
		return
	}
	tokens, err := h.auth.Refresh(c.Request.Context(), claims)
	if err != nil {
		renderError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, tokens)
}

// Profile maneja GET /auth/profile.
func (h *AuthHandler) Profile(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		renderError(c, h.logger, apperr.ErrUnauthorized)
		return
	}
	profile, err := h.auth.GetProfile(c.Request.Context(), claims)
	if err != nil {
		renderError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// VerifyEmail maneja POST /auth/verify-email e inicia sesion si el token es valido.
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, h.logger, bindError(err))
		return
	}

	res, err := h.auth.VerifyEmail(c.Request.Context(), req.Token)
	if err != nil {
		renderError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse{User: res.User, TokenPair: res.Tokens})
}

// ResendVerification maneja POST /auth/resend-verification.
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, h.logger, bindError(err))
		return
	}
	if err := h.auth.ResendVerification(c.Request.Context(), req.Email); err != nil {
		renderError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: msgVerificationSent})
}

// RequestPasswordReset maneja POST /auth/reset-password. La respuesta no depende de si la cuenta existe.
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, h.logger, bindError(err))
		return
	}
	if err := h.auth.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		renderError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: msgResetSent})
}

// ConfirmPasswordReset maneja POST /auth/confirm-password-reset.
func (h *AuthHandler) ConfirmPasswordReset(c *gin.Context) {
	var req struct {
		Token       string `json:"token" binding:"required"`
		NewPassword string `json:"newPassword" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, h.logger, bindError(err))
		return
	}
	if err := h.auth.ConfirmPasswordReset(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		renderError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: msgPasswordUpdated})
}

// EnableTwoFactor maneja POST /auth/enable-2fa. El codigo viaja solo por email.
func (h *AuthHandler) EnableTwoFactor(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		renderError(c, h.logger, apperr.ErrUnauthorized)
		return
	}
	if err := h.auth.EnableTwoFactor(c.Request.Context(), claims); err != nil {
		renderError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: msgTwoFactorSent})
}

// VerifyTwoFactor maneja POST /auth/verify-2fa.
func (h *AuthHandler) VerifyTwoFactor(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		renderError(c, h.logger, apperr.ErrUnauthorized)
		return
	}
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		renderError(c, h.logger, bindError(err))
		return
	}
	if err := h.auth.VerifyTwoFactor(c.Request.Context(), claims, req.Code); err != nil {
		renderError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: msgTwoFactorEnabled})
}
