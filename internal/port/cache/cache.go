// Package cache defines the port interface for the installation-token cache.
// The cache is the one piece of state touched outside the runtime loop, so
// implementations must be safe for concurrent use.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for key-value caching with per-entry TTL.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}
