package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedis(client, 3, time.Minute), mr
}

func TestRedisLimiterBlocksAfterMaxFailures(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestLimiter(t)

	for i := 0; i < 2; i++ {
		blocked, _, err := l.Failure(ctx, "alice", "10.0.0.1")
		require.NoError(t, err)
		assert.False(t, blocked)
	}

	blocked, retry, err := l.Failure(ctx, "alice", "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Equal(t, time.Minute, retry)

	ok, retry, err := l.Allow(ctx, "Alice", "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, retry, time.Duration(0))

	ok, _, err = l.Allow(ctx, "alice", "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, _, err = l.Allow(ctx, "alice", "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLimiterSuccessResets(t *testing.T) {
	ctx := context.Background()
	l, _ := newTestLimiter(t)

	for i := 0; i < 2; i++ {
		_, _, err := l.Failure(ctx, "bob", "ip")
		require.NoError(t, err)
	}
	require.NoError(t, l.Success(ctx, "bob", "ip"))

	blocked, _, err := l.Failure(ctx, "bob", "ip")
	require.NoError(t, err)
	assert.False(t, blocked)
}
