package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dnastack/ddap-admin/internal/infrastructure/security"
)

const (
	// AuthCookie holds the session token set at login.
	AuthCookie = "admin_auth"
	claimsKey  = "claims"
)

// TokenValidator checks console bearer tokens.
type TokenValidator interface {
	Enabled() bool
	ValidateToken(token string) (*security.AdminClaims, error)
}

// AuthMiddleware rejects requests without a valid session token. When login
// is not configured every request passes.
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !validator.Enabled() {
			c.Next()
			return
		}

		token := RequestToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		claims, err := validator.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// GetClaims returns the token claims of an authenticated request.
func GetClaims(c *gin.Context) (*security.AdminClaims, bool) {
	v, exists := c.Get(claimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := v.(*security.AdminClaims)
	return claims, ok
}

// RequestToken finds the session token of a request: the bearer header,
// then the login cookie, then a token query parameter. Browsers cannot set
// headers on EventSource or WebSocket requests.
func RequestToken(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); len(header) > 7 && strings.HasPrefix(header, "Bearer ") {
		return header[7:]
	}
	if cookie, err := c.Cookie(AuthCookie); err == nil && cookie != "" {
		return cookie
	}
	return c.Query("token")
}
