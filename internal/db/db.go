// Package db defines the key-value contract behind the embedding cache.
package db

import (
	"context"
	"time"
)

// Cache is the key-value backend held by the composition root.
type Cache interface {
	Pinger
	KVStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore stores opaque values by key.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// MGet returns one entry per key; missing keys yield nil.
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	// SetWithTTL stores value with an expiry; cached vectors age out this way.
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
