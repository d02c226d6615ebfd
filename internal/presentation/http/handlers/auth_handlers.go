package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dnastack/ddap-admin/internal/application/services"
	"github.com/dnastack/ddap-admin/internal/infrastructure/observability/logging"
	"github.com/dnastack/ddap-admin/internal/presentation/http/middleware"
)

// AuthHandlers contains the console login endpoints
type AuthHandlers struct {
	authService *services.AuthService
	logger      *logging.ChanneledLogger
}

// NewAuthHandlers creates auth handlers with injected dependencies
func NewAuthHandlers(authService *services.AuthService, logger *logging.ChanneledLogger) *AuthHandlers {
	return &AuthHandlers{
		authService: authService,
		logger:      logger,
	}
}

// GetStatus handles GET /api/v1/auth/status
func (h *AuthHandlers) GetStatus(c *gin.Context) {
	response := gin.H{
		"loginRequired": h.authService.Enabled(),
		"authenticated": false,
	}
	if h.authService.Enabled() {
		if token := middleware.RequestToken(c); token != "" {
			if _, err := h.authService.ValidateToken(token); err == nil {
				response["authenticated"] = true
			}
		}
	} else {
		response["message"] = "Console is not protected. Set ADMIN_PASSWORD_HASH and JWT_SECRET to require login."
	}
	c.JSON(http.StatusOK, response)
}

// PostLogin handles POST /api/v1/auth/login
func (h *AuthHandlers) PostLogin(c *gin.Context) {
	start := time.Now()
	h.logger.Auth().Debug("Received login request", "method", c.Request.Method, "path", c.Request.URL.Path)

	var loginReq struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&loginReq); err != nil {
		h.logger.Auth().Error("Login request JSON binding failed", "error", err.Error())
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format"})
		return
	}

	result, err := h.authService.AuthenticateAdmin(loginReq.Password)
	switch {
	case errors.Is(err, services.ErrAuthNotConfigured):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, services.ErrInvalidCredentials):
		h.logger.Auth().Warn("Login attempt failed", "duration", time.Since(start))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid password"})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to issue token"})
		return
	}

	maxAge := int(time.Until(result.ExpiresAt).Seconds())
	c.SetCookie(middleware.AuthCookie, result.Token, maxAge, "/", "", false, true)

	h.logger.Auth().Info("Login successful", "role", result.Role, "duration", time.Since(start))
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"token":     result.Token,
		"role":      result.Role,
		"expiresAt": result.ExpiresAt,
	})
}

// PostLogout handles POST /api/v1/auth/logout - clears the session cookie
func (h *AuthHandlers) PostLogout(c *gin.Context) {
	h.authService.Logout(middleware.RequestToken(c))
	c.SetCookie(middleware.AuthCookie, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"success": true})
}
