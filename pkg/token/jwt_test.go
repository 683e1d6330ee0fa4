package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndVerifyToken(t *testing.T) {
	m := NewJWTManager("test-secret", 24, 7)

	tokenString, err := m.GenerateToken(42, "tea@example.com", "premium")
	require.NoError(t, err)

	claims, err := m.VerifyToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "tea@example.com", claims.Email)
	assert.Equal(t, "premium", claims.Role)
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	m := NewJWTManager("test-secret", 24, 7)
	other := NewJWTManager("another-secret", 24, 7)

	tokenString, err := m.GenerateToken(1, "a@example.com", "normal")
	require.NoError(t, err)

	_, err = other.VerifyToken(tokenString)
	require.Error(t, err)
}

func TestVerifyToken_Garbage(t *testing.T) {
	m := NewJWTManager("test-secret", 24, 7)
	_, err := m.VerifyToken("not.a.jwt")
	require.Error(t, err)
}

func TestRefreshTokenVerifiable(t *testing.T) {
	m := NewJWTManager("test-secret", 24, 7)

	refresh, err := m.GenerateRefreshToken(7, "b@example.com", "normal")
	require.NoError(t, err)

	claims, err := m.VerifyToken(refresh)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
}
