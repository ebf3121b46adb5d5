// Package storage defines the key-value store cart snapshots are persisted
// to. Backends live in the memory, redis and postgres subpackages.
package storage

import (
	"context"
)

// Storage holds one opaque snapshot per key.
type Storage interface {
	// Get returns the value stored under key. A missing key yields an error
	// wrapping errors.ErrNotFound from pkg/errors.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}
