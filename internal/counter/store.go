// Package counter provides the atomic expiring counters behind request
// limiting.
package counter

import (
	"context"
	"time"
)

// Store is a shared key/value counter store with per-key expiry.
//
// Every method is safe for concurrent use. IncrementWithTTL is atomic: two
// concurrent increments of the same key never observe the same value.
type Store interface {
	// Get returns the current value and expiry of key. A missing or expired
	// key reads as zero with a zero expiry.
	Get(ctx context.Context, key string) (int64, time.Time, error)

	// IncrementWithTTL adds one to key. If the key is missing or expired it
	// starts at 1 and expires ttl from now; otherwise the existing expiry is
	// kept. When limit > 0 the value never grows past limit.
	IncrementWithTTL(ctx context.Context, key string, ttl time.Duration, limit int64) (int64, time.Time, error)

	// Set stores value under key, expiring ttl from now.
	Set(ctx context.Context, key string, value int64, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Key joins a scope and an identity into a store key.
func Key(scope, identity string) string {
	return "ratelimit:" + scope + ":" + identity
}
