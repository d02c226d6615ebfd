// Package security provides the console's token and secret helpers
package security

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/oklog/ulid/v2"
)

// MinSecretLength is the shortest JWT secret GenerateSecret will produce.
const MinSecretLength = 32

// NewID returns a unique identifier that sorts by creation time.
func NewID() string {
	return ulid.Make().String()
}

// GenerateSecret returns length hex characters of randomness, suitable for
// JWT_SECRET.
func GenerateSecret(length int) (string, error) {
	if length < MinSecretLength {
		return "", fmt.Errorf("secret length must be at least %d", MinSecretLength)
	}
	buf := make([]byte, (length+1)/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(buf)[:length], nil
}
