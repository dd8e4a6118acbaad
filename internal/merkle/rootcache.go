package merkle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// ErrRootNotCached is returned when no root has been generated for a date.
var ErrRootNotCached = errors.New("merkle: no root cached for date")

// RootCache maps calendar dates to anchored Merkle roots. Implementations
// must be safe for concurrent use.
type RootCache interface {
	Set(ctx context.Context, date, root string) error
	Get(ctx context.Context, date string) (string, error)
}

// MemoryRootCache is an in-process RootCache for testing and
// single-instance deployments.
type MemoryRootCache struct {
	mu    sync.RWMutex
	roots map[string]string
}

// NewMemoryRootCache creates an empty MemoryRootCache.
func NewMemoryRootCache() *MemoryRootCache {
	return &MemoryRootCache{roots: make(map[string]string)}
}

// Set implements RootCache.
func (c *MemoryRootCache) Set(_ context.Context, date, root string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roots[date] = root
	return nil
}

// Get implements RootCache.
func (c *MemoryRootCache) Get(_ context.Context, date string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	root, ok := c.roots[date]
	if !ok {
		return "", ErrRootNotCached
	}
	return root, nil
}

// redisRootKeyPrefix namespaces cached roots in a shared Redis instance.
const redisRootKeyPrefix = "truststack:daily-root:"

// RedisRootCache shares anchored daily roots across auditor instances.
// Roots are immutable once generated, so entries never expire.
type RedisRootCache struct {
	client *redis.Client
}

// NewRedisRootCache creates a RedisRootCache on an existing client.
func NewRedisRootCache(client *redis.Client) *RedisRootCache {
	return &RedisRootCache{client: client}
}

// Set implements RootCache.
func (c *RedisRootCache) Set(ctx context.Context, date, root string) error {
	if err := c.client.Set(ctx, redisRootKeyPrefix+date, root, 0).Err(); err != nil {
		return fmt.Errorf("cache root for %s: %w", date, err)
	}
	return nil
}

// Get implements RootCache.
func (c *RedisRootCache) Get(ctx context.Context, date string) (string, error) {
	root, err := c.client.Get(ctx, redisRootKeyPrefix+date).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrRootNotCached
	}
	if err != nil {
		return "", fmt.Errorf("read cached root for %s: %w", date, err)
	}
	return root, nil
}
