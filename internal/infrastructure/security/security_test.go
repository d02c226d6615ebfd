package security

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminToken_RoundTrip(t *testing.T) {
	token, expires, err := GenerateAdminToken("admin", "admin", "secret", time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := ValidateAdminToken(token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestAdminToken_Rejects(t *testing.T) {
	token, _, err := GenerateAdminToken("admin", "admin", "secret", time.Hour)
	require.NoError(t, err)

	_, err = ValidateAdminToken(token, "other")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, _, err := GenerateAdminToken("admin", "admin", "secret", -time.Minute)
	require.NoError(t, err)
	_, err = ValidateAdminToken(expired, "secret")
	assert.ErrorIs(t, err, ErrInvalidToken)

	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"type": "profile",
		"exp":  time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = ValidateAdminToken(foreign, "secret")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ValidateAdminToken("not.a.token", "secret")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, _, err = GenerateAdminToken("admin", "admin", "", time.Hour)
	assert.Error(t, err)
}

func TestGenerateSecret(t *testing.T) {
	a, err := GenerateSecret(64)
	require.NoError(t, err)
	b, err := GenerateSecret(64)
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
	assert.Equal(t, strings.ToLower(a), a)

	odd, err := GenerateSecret(33)
	require.NoError(t, err)
	assert.Len(t, odd, 33)

	_, err = GenerateSecret(8)
	assert.Error(t, err)
}

func TestNewID_Sorts(t *testing.T) {
	first := NewID()
	time.Sleep(2 * time.Millisecond)
	assert.Len(t, first, 26)
	assert.Less(t, first, NewID())
}
