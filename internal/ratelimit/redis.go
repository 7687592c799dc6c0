// Package ratelimit provides a Redis-backed counter for go-chi/httprate so
// request limits hold across every API instance sharing one Redis.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const opTimeout = 2 * time.Second

// Connect parses a redis:// URL and verifies the server answers PING.
func Connect(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return client, nil
}

// RedisCounter implements httprate.LimitCounter. Each limiter needs its own
// counter because httprate configures the window length per instance.
type RedisCounter struct {
	client       redis.UniversalClient
	prefix       string
	windowLength time.Duration
}

func NewRedisCounter(client redis.UniversalClient, prefix string) *RedisCounter {
	return &RedisCounter{client: client, prefix: prefix, windowLength: time.Minute}
}

func (c *RedisCounter) Config(requestLimit int, windowLength time.Duration) {
	c.windowLength = windowLength
}

func (c *RedisCounter) Increment(key string, currentWindow time.Time) error {
	return c.IncrementBy(key, currentWindow, 1)
}

func (c *RedisCounter) IncrementBy(key string, currentWindow time.Time, amount int) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	k := c.windowKey(key, currentWindow)
	pipe := c.client.TxPipeline()
	pipe.IncrBy(ctx, k, int64(amount))
	// The previous window is still read by the sliding estimate, so keep
	// counters around for two full windows past their start.
	pipe.Expire(ctx, k, 3*c.windowLength)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("incrementing rate counter: %w", err)
	}
	return nil
}

func (c *RedisCounter) Get(key string, currentWindow, previousWindow time.Time) (int, int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	values, err := c.client.MGet(ctx, c.windowKey(key, currentWindow), c.windowKey(key, previousWindow)).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("reading rate counters: %w", err)
	}

	current, err := parseCount(values[0])
	if err != nil {
		return 0, 0, err
	}
	previous, err := parseCount(values[1])
	if err != nil {
		return 0, 0, err
	}
	return current, previous, nil
}

func (c *RedisCounter) windowKey(key string, window time.Time) string {
	return fmt.Sprintf("%s:%s:%d", c.prefix, key, window.Unix())
}

func parseCount(v any) (int, error) {
	switch value := v.(type) {
	case nil:
		return 0, nil
	case string:
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("parsing rate counter %q: %w", value, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("unexpected rate counter type %T", v)
	}
}
