package cache

import "time"

// Cache is a TTL cache of values of one type, keyed by string.
type Cache[V any] interface {
	// Get returns (value, true) if key is present and not expired.
	Get(key string) (V, bool)

	// Set stores value under key for ttl. It may be dropped under memory pressure.
	Set(key string, value V, ttl time.Duration) bool

	// Delete removes key.
	Delete(key string)

	// Clear removes all values.
	Clear()

	// Close releases resources. The cache must not be used afterwards.
	Close()
}
