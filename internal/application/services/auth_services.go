// Package services provides application-level orchestration services
package services

import (
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dnastack/ddap-admin/internal/infrastructure/observability/logging"
	"github.com/dnastack/ddap-admin/internal/infrastructure/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAuthNotConfigured  = errors.New("admin login is not configured")
)

const adminRole = "admin"

// AuthResult holds authentication result data
type AuthResult struct {
	Token     string    `json:"token"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AuthService checks the operator password and issues console tokens.
type AuthService struct {
	passwordHash string
	jwtSecret    string
	ttl          time.Duration
	logger       *logging.ChanneledLogger
}

// NewAuthService creates an authentication service. passwordHash is a bcrypt
// hash; an empty hash or secret disables login.
func NewAuthService(passwordHash, jwtSecret string, ttl time.Duration, logger *logging.ChanneledLogger) *AuthService {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &AuthService{
		passwordHash: passwordHash,
		jwtSecret:    jwtSecret,
		ttl:          ttl,
		logger:       logger,
	}
}

// Enabled reports whether login is configured.
func (a *AuthService) Enabled() bool {
	return a.passwordHash != "" && a.jwtSecret != ""
}

// AuthenticateAdmin validates the admin password and generates a JWT.
func (a *AuthService) AuthenticateAdmin(password string) (*AuthResult, error) {
	if !a.Enabled() {
		return nil, ErrAuthNotConfigured
	}
	if err := bcrypt.CompareHashAndPassword([]byte(a.passwordHash), []byte(password)); err != nil {
		a.logger.LogAuthOperation("login", adminRole, false)
		return nil, ErrInvalidCredentials
	}

	token, expires, err := security.GenerateAdminToken(adminRole, adminRole, a.jwtSecret, a.ttl)
	if err != nil {
		a.logger.LogError(logging.ChannelAuth, "login", err, "", nil)
		return nil, err
	}

	a.logger.LogAuthOperation("login", adminRole, true)
	return &AuthResult{Token: token, Role: adminRole, ExpiresAt: expires}, nil
}

// ValidateToken checks a bearer token issued by AuthenticateAdmin.
func (a *AuthService) ValidateToken(token string) (*security.AdminClaims, error) {
	if !a.Enabled() {
		return nil, ErrAuthNotConfigured
	}
	return security.ValidateAdminToken(token, a.jwtSecret)
}

// Logout records the end of a console session. token may be empty or
// expired; it only names the subject in the audit log.
func (a *AuthService) Logout(token string) {
	subject := "anonymous"
	success := false
	if token != "" && a.Enabled() {
		if claims, err := security.ValidateAdminToken(token, a.jwtSecret); err == nil {
			subject = claims.Subject
			success = true
		}
	}
	a.logger.LogAuthOperation("logout", subject, success)
}

// HashPassword returns the bcrypt hash to configure as ADMIN_PASSWORD_HASH.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
