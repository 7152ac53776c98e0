package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Client wraps the go-redis client with health checking.
type Client struct {
	*redis.Client
}

// New connects to the Redis at url. Returns nil without error when url is
// empty (Redis not configured).
func New(ctx context.Context, url string) (*Client, error) {
	if url == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &Client{Client: client}, nil
}

// Health checks the Redis connection.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// Close releases the connection.
func (c *Client) Close() error {
	return c.Client.Close()
}
