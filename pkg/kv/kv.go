// Package kv defines the ephemeral TTL key-value store used as the token
// ledger. Entries are not durable; they vanish at TTL expiry or deletion.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a key is absent or already expired.
var ErrNotFound = errors.New("kv: key not found")

// Store is a TTL-capable key-value store. Every single-key operation must be
// atomic on its own; no cross-key transactions are assumed.
type Store interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set writes value under key, expiring after ttl. A ttl of zero means no
	// expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes key and reports whether anything was deleted. Deleting an
	// absent key is not an error.
	Delete(ctx context.Context, key string) (bool, error)

	// DeleteIfEqual removes key only while it still holds value and reports
	// whether it did. A key that was overwritten in the meantime is left alone.
	DeleteIfEqual(ctx context.Context, key, value string) (bool, error)

	// GetDel atomically reads and removes key, or returns ErrNotFound.
	GetDel(ctx context.Context, key string) (string, error)

	// TTL returns the remaining lifetime of key. Keys without expiry report
	// zero. Absent keys return ErrNotFound.
	TTL(ctx context.Context, key string) (time.Duration, error)

	Ping(ctx context.Context) error
	Close() error
}
