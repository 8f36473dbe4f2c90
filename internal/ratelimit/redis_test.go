package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisCounter_window(t *testing.T) {
	mr, client := newRedis(t)
	ctx := context.Background()
	l := New(NewRedisCounter(client))
	rule := Rule{Window: 60 * time.Second, Max: 10}

	for i := 1; i <= 10; i++ {
		d, err := l.Check(ctx, "attendance-checkin", "u1", rule)
		require.NoError(t, err)
		assert.True(t, d.Allowed, "call %d", i)
	}

	d, err := l.Check(ctx, "attendance-checkin", "u1", rule)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, int64(11), d.Count)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, 60*time.Second)

	mr.FastForward(61 * time.Second)

	d, err = l.Check(ctx, "attendance-checkin", "u1", rule)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(1), d.Count)
}

func TestRedisCounter_setsExpiryOnce(t *testing.T) {
	mr, client := newRedis(t)
	c := NewRedisCounter(client)
	ctx := context.Background()

	_, _, err := c.Hit(ctx, "k", 10*time.Second)
	require.NoError(t, err)
	mr.FastForward(4 * time.Second)

	n, ttl, err := c.Hit(ctx, "k", 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 6*time.Second, ttl, "second hit must not extend the window")
}

func TestRedisCounter_storeDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	_, err = New(NewRedisCounter(client)).Check(context.Background(), "a", "b", PerMinute(1))
	assert.Error(t, err)
}
