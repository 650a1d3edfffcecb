package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"escrow-ledger/internal/core/ports"

	goredis "github.com/redis/go-redis/v9"
)

// BalanceCache implements ports.BalanceCache using Redis.
// Entries are JSON-encoded views under balance:<projectID>.
type BalanceCache struct {
	client goredis.UniversalClient
	prefix string
}

// NewBalanceCache creates a new Redis-backed balance cache.
func NewBalanceCache(client goredis.UniversalClient) *BalanceCache {
	return &BalanceCache{
		client: client,
		prefix: "balance:",
	}
}

// Get returns the cached view or nil on miss.
func (c *BalanceCache) Get(ctx context.Context, projectID string) (*ports.BalanceView, error) {
	raw, err := c.client.Get(ctx, c.prefix+projectID).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis balance get: %w", err)
	}

	var view ports.BalanceView
	if err := json.Unmarshal(raw, &view); err != nil {
		// Treat undecodable entries as a miss; they expire on their own.
		return nil, nil
	}
	return &view, nil
}

// Set caches a view for ttl.
func (c *BalanceCache) Set(ctx context.Context, projectID string, view *ports.BalanceView, ttl time.Duration) error {
	raw, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("encode balance view: %w", err)
	}
	if err := c.client.Set(ctx, c.prefix+projectID, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis balance set: %w", err)
	}
	return nil
}

// Invalidate drops the cached view so the next read goes to the store.
func (c *BalanceCache) Invalidate(ctx context.Context, projectID string) error {
	if err := c.client.Del(ctx, c.prefix+projectID).Err(); err != nil {
		return fmt.Errorf("redis balance invalidate: %w", err)
	}
	return nil
}
