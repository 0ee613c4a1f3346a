package cache

import (
	"context"
	"time"
)

// Store is the cache abstraction shared by rate limiting and session
// lookups. Implementations are Redis when configured and a database
// table otherwise.
type Store interface {
	// IncrementWithTTL bumps a counter, starting its expiry window on
	// first increment, and reports the new count plus remaining TTL.
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Delete(ctx context.Context, keys ...string) error
}
