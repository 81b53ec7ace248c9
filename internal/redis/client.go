// Package redis wraps go-redis with the few operations the server needs.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// windowScript increments a counter and starts its expiry on the first hit.
// Returns {count, ttl_seconds}.
var windowScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
    redis.call('EXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('TTL', KEYS[1])
return {count, ttl}
`)

type Client struct {
	rdb *redis.Client
}

// NewClient connects to the Redis server at url (redis:// or rediss://) and
// pings it.
func NewClient(url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

// Hit counts one request against key in a fixed window and returns the
// count so far and the time until the window resets.
func (c *Client) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	secs := int64(window / time.Second)
	if secs < 1 {
		secs = 1
	}
	res, err := windowScript.Run(ctx, c.rdb, []string{key}, secs).Int64Slice()
	if err != nil {
		return 0, 0, fmt.Errorf("rate window %s: %w", key, err)
	}
	if len(res) != 2 {
		return 0, 0, fmt.Errorf("rate window %s: unexpected reply %v", key, res)
	}
	return res[0], time.Duration(res[1]) * time.Second, nil
}

// PushCapped prepends value to the list at key and trims it to max entries.
func (c *Client) PushCapped(ctx context.Context, key string, value []byte, max int64) error {
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LPush(ctx, key, value)
		p.LTrim(ctx, key, 0, max-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("push %s: %w", key, err)
	}
	return nil
}

// Recent returns up to n of the newest entries in the list at key.
func (c *Client) Recent(ctx context.Context, key string, n int64) ([]string, error) {
	vals, err := c.rdb.LRange(ctx, key, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("range %s: %w", key, err)
	}
	return vals, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}
