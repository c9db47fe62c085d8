package cache

import (
	"context"
	"time"
)

// Store is a best-effort TTL cache. The only cross-request state in the
// application lives here: the tool-endpoint discovery result, kept under
// a well-known key with an explicit TTL so stale endpoint sets age out
// instead of surviving until process restart.
// Implemented by the memory store (dev) and the Redis store (prod).
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
