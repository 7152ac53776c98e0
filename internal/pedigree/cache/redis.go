// Package cache provides a Redis-backed cache for rendered pedigree trees.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/breederhq/identity/internal/pedigree/models"
)

const defaultTTL = 5 * time.Minute

// Redis caches rendered trees as JSON. Entries are keyed per viewer, so a
// cached tree never leaks another tenant's unredacted fields.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis wraps an existing client. A non-positive ttl uses the default.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Redis{client: client, ttl: ttl}
}

// Get returns the cached tree for key, or found=false on miss.
func (c *Redis) Get(ctx context.Context, key string) (*models.PedigreeNode, bool, error) {
	payload, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read pedigree cache: %w", err)
	}

	var node models.PedigreeNode
	if err := json.Unmarshal(payload, &node); err != nil {
		return nil, false, fmt.Errorf("decode cached pedigree: %w", err)
	}
	return &node, true, nil
}

// Set stores the tree under key with the configured TTL.
func (c *Redis) Set(ctx context.Context, key string, node *models.PedigreeNode) error {
	payload, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("encode pedigree: %w", err)
	}
	if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("write pedigree cache: %w", err)
	}
	return nil
}
