// Package security provides operator token and secret utilities
package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

const adminTokenType = "admin_auth"

var ErrInvalidToken = errors.New("invalid token")

// AdminClaims are the claims of a console operator token.
type AdminClaims struct {
	Role string `json:"role"`
	Type string `json:"type"`
	jwt.RegisteredClaims
}

// GenerateAdminToken signs an HS256 operator token for subject valid for ttl.
func GenerateAdminToken(subject, role, jwtSecret string, ttl time.Duration) (string, time.Time, error) {
	if jwtSecret == "" {
		return "", time.Time{}, errors.New("empty JWT secret")
	}
	now := time.Now().UTC()
	expires := now.Add(ttl)
	claims := AdminClaims{
		Role: role,
		Type: adminTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        NewID(),
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(jwtSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign JWT token: %w", err)
	}
	return signed, expires, nil
}

// ValidateAdminToken verifies signature, algorithm, expiry and token type.
func ValidateAdminToken(tokenString, jwtSecret string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Type != adminTokenType {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
