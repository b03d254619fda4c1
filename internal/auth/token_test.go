package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	v := NewVerifier("test-secret")

	token, err := v.Issue("user-1", "u1@example.com", time.Hour)
	require.NoError(t, err)

	claims, err := v.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "u1@example.com", claims.Email)
}

func TestParseExpired(t *testing.T) {
	v := NewVerifier("test-secret")

	token, err := v.Issue("user-1", "", -time.Minute)
	require.NoError(t, err)

	_, err = v.Parse(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestParseWrongSecret(t *testing.T) {
	v := NewVerifier("test-secret")
	other := NewVerifier("other-secret")

	token, err := other.Issue("user-1", "", time.Hour)
	require.NoError(t, err)

	_, err = v.Parse(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseGarbage(t *testing.T) {
	v := NewVerifier("test-secret")

	_, err := v.Parse("")
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Parse("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
