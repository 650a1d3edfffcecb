// Command admin-token mints an operator JWT for the wallet admin API.
//
//	admin-token -actor ops@example.com -role admin
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"escrow-ledger/config"
	"escrow-ledger/internal/core/domain"
	"escrow-ledger/internal/core/ports"
	"escrow-ledger/internal/service"
)

type tokenDeps struct {
	loadCfg  func(path string) (*config.Config, error)
	newToken func(cfg *config.Config, expiry time.Duration) ports.TokenService
	out      io.Writer
}

func defaultTokenDeps() tokenDeps {
	return tokenDeps{
		loadCfg: config.Load,
		newToken: func(cfg *config.Config, expiry time.Duration) ports.TokenService {
			return service.NewJWTTokenService(cfg.JWT.Secret, expiry, cfg.JWT.Issuer)
		},
		out: os.Stdout,
	}
}

func main() {
	if err := run(os.Args[1:], defaultTokenDeps()); err != nil {
		fmt.Fprintf(os.Stderr, "admin-token: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, deps tokenDeps) error {
	fs := flag.NewFlagSet("admin-token", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configPath := fs.String("config", "", "path to config file")
	actor := fs.String("actor", "", "operator id placed in the token subject")
	role := fs.String("role", string(domain.RoleAdmin), "admin or viewer")
	expiry := fs.Duration("expiry", 0, "token lifetime (default jwt.expiry)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	actorID := strings.TrimSpace(*actor)
	if actorID == "" {
		return fmt.Errorf("-actor is required")
	}
	r := domain.Role(*role)
	if !r.Valid() {
		return fmt.Errorf("unknown role %q", *role)
	}

	cfg, err := deps.loadCfg(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is not configured")
	}
	ttl := cfg.JWT.Expiry
	if *expiry > 0 {
		ttl = *expiry
	}

	token, expiresAt, err := deps.newToken(cfg, ttl).Generate(actorID, r)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}

	fmt.Fprintf(deps.out, "actor:   %s\nrole:    %s\nexpires: %s\n\n%s\n", actorID, r, expiresAt.UTC().Format(time.RFC3339), token)
	return nil
}
