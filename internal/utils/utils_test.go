package utils

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func TestAccessTokenRoundTrip(t *testing.T) {
	tok, err := NewAccessToken(secret, 42, "ADMIN", 15)
	require.NoError(t, err)

	claims, err := ParseAccessToken(secret, tok.Token)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, uint64(42), id)
	assert.Equal(t, "ADMIN", claims.Role)
}

func TestAccessTokenRejectsWrongSecretAndExpiry(t *testing.T) {
	tok, err := NewAccessToken(secret, 1, "TOURIST", 15)
	require.NoError(t, err)
	_, err = ParseAccessToken("other", tok.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := NewAccessToken(secret, 1, "TOURIST", -5)
	require.NoError(t, err)
	_, err = ParseAccessToken(secret, expired.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResetTokenIsNotAnAccessToken(t *testing.T) {
	raw, err := NewResetToken(secret, 7, "$2a$hash", time.Hour)
	require.NoError(t, err)

	_, err = ParseAccessToken(secret, raw)
	assert.ErrorIs(t, err, ErrInvalidToken)

	id, fp, err := ParseResetToken(secret, raw)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), id)
	assert.Equal(t, PasswordFingerprint("$2a$hash"), fp)
	assert.NotEqual(t, PasswordFingerprint("$2a$other"), fp)
}

func TestAccessTokenIsNotAResetToken(t *testing.T) {
	tok, err := NewAccessToken(secret, 7, "TOURIST", 15)
	require.NoError(t, err)
	_, _, err = ParseResetToken(secret, tok.Token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRefreshTokenHash(t *testing.T) {
	rt, err := NewRefreshToken(30)
	require.NoError(t, err)
	assert.Len(t, rt.Raw, 96)
	assert.Len(t, HashRefreshRaw(rt.Raw), 64)
	assert.Equal(t, HashRefreshRaw(rt.Raw), HashRefreshRaw(rt.Raw))
	assert.True(t, rt.Exp.After(time.Now().Add(29*24*time.Hour)))
}

func TestPasswordHashing(t *testing.T) {
	h, err := HashPassword("correct horse", 4)
	require.NoError(t, err)
	assert.True(t, VerifyPassword(h, "correct horse"))
	assert.False(t, VerifyPassword(h, "wrong"))
}

func TestLongPasswordsHash(t *testing.T) {
	long := strings.Repeat("a", 200)
	h, err := HashPassword(long, 1)
	require.NoError(t, err)
	assert.True(t, VerifyPassword(h, long))
	assert.False(t, VerifyPassword(h, long[:199]+"b"))
}
