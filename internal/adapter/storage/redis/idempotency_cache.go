package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DepositReplayTTL is how long an applied deposit result stays in the fast path.
// The ledger's unique event id remains the authority after expiry.
const DepositReplayTTL = 24 * time.Hour

// IdempotencyCache implements ports.IdempotencyCache using Redis.
type IdempotencyCache struct {
	client goredis.UniversalClient
	prefix string
}

// NewIdempotencyCache creates a Redis-backed replay cache for deposit event ids.
func NewIdempotencyCache(client goredis.UniversalClient) *IdempotencyCache {
	return &IdempotencyCache{
		client: client,
		prefix: "deposit:",
	}
}

// Get retrieves a cached result by event id.
// Returns nil, nil if the key does not exist.
func (c *IdempotencyCache) Get(ctx context.Context, eventID string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.prefix+eventID).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis deposit replay get: %w", err)
	}
	return val, nil
}

// Set stores a result for an event id. The first writer wins so a later,
// divergent replay cannot overwrite the recorded outcome.
func (c *IdempotencyCache) Set(ctx context.Context, eventID string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DepositReplayTTL
	}
	if err := c.client.SetNX(ctx, c.prefix+eventID, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis deposit replay set: %w", err)
	}
	return nil
}
