package cache

// Package cache provides the read-through cache used by the catalog reader.

import (
	"context"
	"fmt"
	"time"
)

// Provider defines the interface for short-lived key/value caching.
type Provider interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

type Config struct {
	Provider              string
	RedisConnectionString string
}

func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "memory", "":
		return NewMemoryProvider()
	case "redis":
		return NewRedisProvider(cfg.RedisConnectionString)
	default:
		return nil, fmt.Errorf("unsupported cache provider: %s", cfg.Provider)
	}
}

// ProductKey builds the cache key for a catalog product lookup.
func ProductKey(productID int64) string {
	return fmt.Sprintf("product:%d", productID)
}
