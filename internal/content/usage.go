package content

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

const usageKeyPrefix = "pai:usage:slides:"

// UsageCounter records how many slides were genuinely created per topic.
type UsageCounter interface {
	Add(ctx context.Context, topicID string, n int) error
}

// MemoryUsageCounter is an in-memory usage counter for development and tests.
type MemoryUsageCounter struct {
	mu     sync.RWMutex
	counts map[string]int64
}

// NewMemoryUsageCounter creates a new in-memory usage counter.
func NewMemoryUsageCounter() *MemoryUsageCounter {
	return &MemoryUsageCounter{
		counts: make(map[string]int64),
	}
}

func (c *MemoryUsageCounter) Add(_ context.Context, topicID string, n int) error {
	if n < 0 {
		return fmt.Errorf("usage increment must be non-negative, got %d", n)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[topicID] += int64(n)
	return nil
}

// Count returns the recorded usage for a topic.
func (c *MemoryUsageCounter) Count(topicID string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counts[topicID]
}

// RedisUsageCounter keeps usage counters in Redis/Dragonfly so every process shares them.
type RedisUsageCounter struct {
	client *redis.Client
}

// NewRedisUsageCounter creates a Redis-backed usage counter.
func NewRedisUsageCounter(client *redis.Client) *RedisUsageCounter {
	return &RedisUsageCounter{client: client}
}

func (c *RedisUsageCounter) Add(ctx context.Context, topicID string, n int) error {
	if n < 0 {
		return fmt.Errorf("usage increment must be non-negative, got %d", n)
	}
	if n == 0 {
		return nil
	}
	if err := c.client.IncrBy(ctx, usageKeyPrefix+topicID, int64(n)).Err(); err != nil {
		return fmt.Errorf("increment usage for %s: %w", topicID, err)
	}
	return nil
}

// Count returns the recorded usage for a topic.
func (c *RedisUsageCounter) Count(ctx context.Context, topicID string) (int64, error) {
	n, err := c.client.Get(ctx, usageKeyPrefix+topicID).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}
