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

func newTestCounter(t *testing.T) (*RedisCounter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	counter := NewRedisCounter(client, "rl:test")
	counter.Config(5, time.Minute)
	return counter, mr
}

func TestRedisCounterIncrementAndGet(t *testing.T) {
	counter, _ := newTestCounter(t)
	current := time.Now().UTC().Truncate(time.Minute)
	previous := current.Add(-time.Minute)

	require.NoError(t, counter.Increment("203.0.113.7", previous))
	require.NoError(t, counter.Increment("203.0.113.7", current))
	require.NoError(t, counter.IncrementBy("203.0.113.7", current, 2))

	cur, prev, err := counter.Get("203.0.113.7", current, previous)
	require.NoError(t, err)
	assert.Equal(t, 3, cur)
	assert.Equal(t, 1, prev)

	cur, prev, err = counter.Get("198.51.100.1", current, previous)
	require.NoError(t, err)
	assert.Zero(t, cur)
	assert.Zero(t, prev)
}

func TestRedisCounterExpiresKeys(t *testing.T) {
	counter, mr := newTestCounter(t)
	window := time.Now().UTC().Truncate(time.Minute)

	require.NoError(t, counter.Increment("k", window))
	key := counter.windowKey("k", window)
	assert.Equal(t, 3*time.Minute, mr.TTL(key))

	mr.FastForward(3*time.Minute + time.Second)
	assert.False(t, mr.Exists(key))
}

func TestConnect(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := Connect(context.Background(), "redis://"+mr.Addr()+"/0")
	require.NoError(t, err)
	client.Close()

	_, err = Connect(context.Background(), "not a url")
	assert.Error(t, err)
}
