package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5, 10)
	tok, exp, err := tm.GenerateToken("user-1", "sess-1", TokenUseAccess)
	require.NoError(t, err)
	assert.False(t, exp.IsZero())

	claims, err := tm.ParseToken(tok, TokenUseAccess)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "sess-1", claims.SessionID)
}

func TestRefreshTokenIsNotAnAccessToken(t *testing.T) {
	tm := NewTokenManager("secret", 5, 10)
	tok, _, err := tm.GenerateToken("user-1", "sess-1", TokenUseRefresh)
	require.NoError(t, err)

	_, err = tm.ParseToken(tok, TokenUseAccess)
	assert.Error(t, err)
}

func TestTokenSignedWithOtherSecretFails(t *testing.T) {
	tok, _, err := NewTokenManager("a", 5, 10).GenerateToken("u", "s", TokenUseAccess)
	require.NoError(t, err)

	_, err = NewTokenManager("b", 5, 10).ParseToken(tok, TokenUseAccess)
	assert.Error(t, err)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("hunter2", 4)
	require.NoError(t, err)
	assert.NoError(t, ComparePassword(hash, "hunter2"))
	assert.Error(t, ComparePassword(hash, "hunter3"))
}
