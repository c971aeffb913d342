package repository

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestNewRedisCounter_NilClient(t *testing.T) {
	_, err := NewRedisCounter(nil, 0)
	require.Error(t, err)
}

func TestRedisCounter_IncrementIfBelow(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	c, err := NewRedisCounter(redis.NewClient(&redis.Options{Addr: addr}), 0)
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	identity := "test-" + uuid.NewString()
	for i := 1; i <= 2; i++ {
		n, ok, err := c.IncrementIfBelow(ctx, identity, "2024-01-01", 2)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, i, n)
	}
	n, ok, err := c.IncrementIfBelow(ctx, identity, "2024-01-01", 2)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, 2, n)

	ttl, err := c.client.TTL(ctx, c.key(identity, "2024-01-01")).Result()
	require.NoError(t, err)
	require.Greater(t, ttl.Seconds(), 0.0)
}
