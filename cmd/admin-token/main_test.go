package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"escrow-ledger/config"
	"escrow-ledger/internal/core/domain"
	"escrow-ledger/internal/core/ports"
	"escrow-ledger/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDeps(out *bytes.Buffer) tokenDeps {
	deps := defaultTokenDeps()
	deps.loadCfg = func(string) (*config.Config, error) {
		return &config.Config{JWT: config.JWTConfig{Secret: "test-secret", Expiry: time.Hour, Issuer: "escrow-ledger"}}, nil
	}
	deps.out = out
	return deps
}

func TestRun_MintsValidToken(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run([]string{"-actor", "ops-1", "-role", "viewer"}, testDeps(&out)))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	token := lines[len(lines)-1]

	claims, err := service.NewJWTTokenService("test-secret", time.Hour, "escrow-ledger").Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "ops-1", claims.ActorID)
	assert.Equal(t, domain.RoleViewer, claims.Role)
}

func TestRun_ExpiryOverride(t *testing.T) {
	var out bytes.Buffer
	deps := testDeps(&out)
	var gotTTL time.Duration
	deps.newToken = func(cfg *config.Config, expiry time.Duration) ports.TokenService {
		gotTTL = expiry
		return service.NewJWTTokenService(cfg.JWT.Secret, expiry, cfg.JWT.Issuer)
	}

	require.NoError(t, run([]string{"-actor", "ops-1", "-expiry", "15m"}, deps))
	assert.Equal(t, 15*time.Minute, gotTTL)
}

func TestRun_Rejects(t *testing.T) {
	var out bytes.Buffer

	assert.Error(t, run(nil, testDeps(&out)))
	assert.Error(t, run([]string{"-actor", "ops-1", "-role", "root"}, testDeps(&out)))

	deps := testDeps(&out)
	deps.loadCfg = func(string) (*config.Config, error) { return &config.Config{}, nil }
	assert.Error(t, run([]string{"-actor", "ops-1"}, deps))

	deps.loadCfg = func(string) (*config.Config, error) { return nil, errors.New("boom") }
	assert.Error(t, run([]string{"-actor", "ops-1"}, deps))
}
