package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	service := NewService("unit-secret")
	service.RegisterTrader("key", "secret", "alice")

	token, err := service.GenerateToken(Credentials{APIKey: "key", APISecret: "secret"})
	require.NoError(t, err)
	require.NotEmpty(t, token.Token)

	claims, err := service.ValidateToken(token.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.TraderCode)
	assert.Contains(t, claims.Permissions, "trade")
}

func TestGenerateTokenRejectsBadCredentials(t *testing.T) {
	service := NewService("unit-secret")
	service.RegisterTrader("key", "secret", "alice")

	_, err := service.GenerateToken(Credentials{APIKey: "key", APISecret: "wrong"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = service.GenerateToken(Credentials{APIKey: "unknown", APISecret: "secret"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestValidateTokenRejectsOtherSecret(t *testing.T) {
	issuer := NewService("secret-one")
	issuer.RegisterTrader("key", "secret", "alice")
	token, err := issuer.GenerateToken(Credentials{APIKey: "key", APISecret: "secret"})
	require.NoError(t, err)

	verifier := NewService("secret-two")
	_, err = verifier.ValidateToken(token.Token)
	require.Error(t, err)
}

func TestGetTraderCode(t *testing.T) {
	claims := jwt.MapClaims{"trader_code": "bob"}
	assert.Equal(t, "bob", GetTraderCode(claims))
	assert.Equal(t, "", GetTraderCode(jwt.MapClaims{}))
	assert.Equal(t, "", GetTraderCode("not-claims"))
}
