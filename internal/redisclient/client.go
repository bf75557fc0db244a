package redisclient

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

//go:embed scripts/claim_key.lua
var claimKeyScript string

//go:embed scripts/complete_key.lua
var completeKeyScript string

//go:embed scripts/release_key.lua
var releaseKeyScript string

const (
	inFlightPrefix  = "pending:"
	completedPrefix = "order:"
)

type Client struct {
	rdb            *redis.Client
	claimScript    *redis.Script
	completeScript *redis.Script
	releaseScript  *redis.Script
	ttl            time.Duration
}

// ClaimResult describes the state of an idempotency key after a claim.
type ClaimResult struct {
	// Claimed is true when this request now owns the key.
	Claimed bool
	// OrderID is set when an earlier request with the key already completed.
	OrderID string
}

// InFlight reports whether another request currently owns the key.
func (r ClaimResult) InFlight() bool {
	return !r.Claimed && r.OrderID == ""
}

// NewClient creates a new Redis client with Lua scripts loaded
func NewClient(addr, password string, db int, ttl time.Duration) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewWithRedis(rdb, ttl), nil
}

// NewWithRedis wraps an existing go-redis client.
func NewWithRedis(rdb *redis.Client, ttl time.Duration) *Client {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Client{
		rdb:            rdb,
		claimScript:    redis.NewScript(claimKeyScript),
		completeScript: redis.NewScript(completeKeyScript),
		releaseScript:  redis.NewScript(releaseKeyScript),
		ttl:            ttl,
	}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks Redis connectivity for readiness probes.
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// ClaimIdempotencyKey atomically takes ownership of key for the request
// identified by token, or reports who already holds it.
func (c *Client) ClaimIdempotencyKey(ctx context.Context, key, token string) (ClaimResult, error) {
	result, err := c.claimScript.Run(ctx, c.rdb, []string{idempotencyKey(key)},
		inFlightPrefix+token, c.ttl.Milliseconds()).Text()
	if err != nil {
		return ClaimResult{}, fmt.Errorf("claim idempotency key script failed: %w", err)
	}

	switch {
	case result == "":
		return ClaimResult{Claimed: true}, nil
	case strings.HasPrefix(result, completedPrefix):
		return ClaimResult{OrderID: strings.TrimPrefix(result, completedPrefix)}, nil
	default:
		return ClaimResult{}, nil
	}
}

// CompleteIdempotencyKey records the order created under a claimed key.
func (c *Client) CompleteIdempotencyKey(ctx context.Context, key, token, orderID string) error {
	_, err := c.completeScript.Run(ctx, c.rdb, []string{idempotencyKey(key)},
		inFlightPrefix+token, completedPrefix+orderID, c.ttl.Milliseconds()).Result()
	if err != nil {
		return fmt.Errorf("complete idempotency key script failed: %w", err)
	}
	return nil
}

// ReleaseIdempotencyKey frees a claimed key so the client may retry.
func (c *Client) ReleaseIdempotencyKey(ctx context.Context, key, token string) error {
	_, err := c.releaseScript.Run(ctx, c.rdb, []string{idempotencyKey(key)}, inFlightPrefix+token).Result()
	if err != nil {
		return fmt.Errorf("release idempotency key script failed: %w", err)
	}
	return nil
}

func idempotencyKey(key string) string {
	return fmt.Sprintf("idempotency:%s", key)
}
