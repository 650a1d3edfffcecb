package service

import (
	"testing"
	"time"

	"escrow-ledger/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-jwt-secret-key-for-unit-tests"

func TestJWTTokenService_GenerateAndValidate(t *testing.T) {
	svc := NewJWTTokenService(testJWTSecret, 24*time.Hour, "escrow-ledger")

	tokenStr, expiresAt, err := svc.Generate("ops-alice", domain.RoleAdmin)
	require.NoError(t, err)
	assert.NotEmpty(t, tokenStr)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := svc.Validate(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, "ops-alice", claims.ActorID)
	assert.Equal(t, domain.RoleAdmin, claims.Role)
}

func TestJWTTokenService_Generate_Rejects(t *testing.T) {
	svc := NewJWTTokenService(testJWTSecret, time.Hour, "escrow-ledger")

	_, _, err := svc.Generate("", domain.RoleViewer)
	assert.Error(t, err)

	_, _, err = svc.Generate("ops", domain.Role("root"))
	assert.Error(t, err)
}

func TestJWTTokenService_ExpiredToken(t *testing.T) {
	svc := NewJWTTokenService(testJWTSecret, -1*time.Hour, "escrow-ledger")

	tokenStr, _, err := svc.Generate("ops", domain.RoleViewer)
	require.NoError(t, err)

	_, err = svc.Validate(tokenStr)
	assert.Error(t, err, "expired token should fail validation")
}

func TestJWTTokenService_InvalidSignature(t *testing.T) {
	svc1 := NewJWTTokenService("secret-1", 24*time.Hour, "escrow-ledger")
	svc2 := NewJWTTokenService("secret-2", 24*time.Hour, "escrow-ledger")

	tokenStr, _, err := svc1.Generate("ops", domain.RoleAdmin)
	require.NoError(t, err)

	_, err = svc2.Validate(tokenStr)
	assert.Error(t, err, "token signed with different secret should fail")
}

func TestJWTTokenService_WrongIssuer(t *testing.T) {
	svc1 := NewJWTTokenService(testJWTSecret, time.Hour, "someone-else")
	svc2 := NewJWTTokenService(testJWTSecret, time.Hour, "escrow-ledger")

	tokenStr, _, err := svc1.Generate("ops", domain.RoleAdmin)
	require.NoError(t, err)

	_, err = svc2.Validate(tokenStr)
	assert.Error(t, err)
}

func TestJWTTokenService_UnknownRoleClaim(t *testing.T) {
	svc := NewJWTTokenService(testJWTSecret, time.Hour, "escrow-ledger")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "ops",
		"role": "superuser",
		"iss":  "escrow-ledger",
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	tokenStr, err := token.SignedString([]byte(testJWTSecret))
	require.NoError(t, err)

	_, err = svc.Validate(tokenStr)
	assert.Error(t, err)
}

func TestJWTTokenService_InvalidTokenString(t *testing.T) {
	svc := NewJWTTokenService(testJWTSecret, 24*time.Hour, "escrow-ledger")

	_, err := svc.Validate("not.a.valid.jwt")
	assert.Error(t, err)

	_, err = svc.Validate("")
	assert.Error(t, err)
}
