// Package cache defines the port interface for key-value storage backends.
package cache

import (
	"context"
	"time"
)

// Cache is the port interface for byte-valued key-value access. It is
// implemented both by the in-process L1 cache and by the remote NATS KV
// bucket that backs the registry.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Lister extends Cache with key enumeration under a prefix. The remote KV
// backend implements it; the L1 cache does not need to.
type Lister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}
