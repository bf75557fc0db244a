package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewWithRedis(rdb, time.Hour), mr
}

func TestClaimIdempotencyKey_Lifecycle(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	first, err := c.ClaimIdempotencyKey(ctx, "k1", "req-a")
	require.NoError(t, err)
	assert.True(t, first.Claimed)

	second, err := c.ClaimIdempotencyKey(ctx, "k1", "req-b")
	require.NoError(t, err)
	assert.False(t, second.Claimed)
	assert.True(t, second.InFlight())

	require.NoError(t, c.CompleteIdempotencyKey(ctx, "k1", "req-a", "order-1"))

	replay, err := c.ClaimIdempotencyKey(ctx, "k1", "req-c")
	require.NoError(t, err)
	assert.False(t, replay.Claimed)
	assert.Equal(t, "order-1", replay.OrderID)

	assert.True(t, mr.TTL("idempotency:k1") > 0)
}

func TestReleaseIdempotencyKey_OnlyOwnerReleases(t *testing.T) {
	c, mr := newTestClient(t)
	ctx := context.Background()

	_, err := c.ClaimIdempotencyKey(ctx, "k2", "req-a")
	require.NoError(t, err)

	require.NoError(t, c.ReleaseIdempotencyKey(ctx, "k2", "req-other"))
	assert.True(t, mr.Exists("idempotency:k2"))

	require.NoError(t, c.ReleaseIdempotencyKey(ctx, "k2", "req-a"))
	assert.False(t, mr.Exists("idempotency:k2"))

	again, err := c.ClaimIdempotencyKey(ctx, "k2", "req-b")
	require.NoError(t, err)
	assert.True(t, again.Claimed)
}

func TestCompleteIdempotencyKey_IgnoresForeignToken(t *testing.T) {
	c, _ := newTestClient(t)
	ctx := context.Background()

	_, err := c.ClaimIdempotencyKey(ctx, "k3", "req-a")
	require.NoError(t, err)
	require.NoError(t, c.CompleteIdempotencyKey(ctx, "k3", "req-b", "order-x"))

	state, err := c.ClaimIdempotencyKey(ctx, "k3", "req-c")
	require.NoError(t, err)
	assert.True(t, state.InFlight())
}
