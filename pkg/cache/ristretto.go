package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
)

// RistrettoCache is a typed Cache backed by Ristretto. Every entry costs 1, so MaxCost
// is the item capacity.
type RistrettoCache[V any] struct {
	name   string
	cache  *ristretto.Cache
	logger *zap.Logger
}

// RistrettoConfig holds configuration for Ristretto cache.
type RistrettoConfig struct {
	Name        string // metrics label
	NumCounters int64  // Number of keys to track frequency (10x max items)
	MaxCost     int64  // Maximum number of items
	BufferItems int64  // Number of keys per Get buffer
	Logger      *zap.Logger
}

// NewRistrettoCache creates a new Ristretto-backed cache.
func NewRistrettoCache[V any](cfg *RistrettoConfig) (*RistrettoCache[V], error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Name == "" {
		return nil, errors.New("cache name cannot be empty")
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
		Metrics:     true,
	})
	if err != nil {
		return nil, fmt.Errorf("create ristretto cache: %w", err)
	}

	return &RistrettoCache[V]{
		name:   cfg.Name,
		cache:  cache,
		logger: cfg.Logger,
	}, nil
}

// Get retrieves a value from the cache.
func (r *RistrettoCache[V]) Get(key string) (V, bool) {
	var zero V

	raw, found := r.cache.Get(key)
	if !found {
		CacheMissesTotal.WithLabelValues(r.name).Inc()
		r.logger.Debug("cache-miss", zap.String("cache", r.name), zap.String("key", key))
		return zero, false
	}

	value, ok := raw.(V)
	if !ok {
		CacheMissesTotal.WithLabelValues(r.name).Inc()
		r.cache.Del(key)
		return zero, false
	}

	CacheHitsTotal.WithLabelValues(r.name).Inc()
	r.logger.Debug("cache-hit", zap.String("cache", r.name), zap.String("key", key))
	return value, true
}

// Set stores a value in the cache with a TTL.
func (r *RistrettoCache[V]) Set(key string, value V, ttl time.Duration) bool {
	success := r.cache.SetWithTTL(key, value, 1, ttl)
	if success {
		CacheSetsTotal.WithLabelValues(r.name).Inc()
		r.logger.Debug("cache-set",
			zap.String("cache", r.name),
			zap.String("key", key),
			zap.Duration("ttl", ttl))
	}
	return success
}

// Delete removes a value from the cache.
func (r *RistrettoCache[V]) Delete(key string) {
	r.cache.Del(key)
	CacheDeletesTotal.WithLabelValues(r.name).Inc()
}

// Clear removes all values from the cache.
func (r *RistrettoCache[V]) Clear() {
	r.cache.Clear()
	r.logger.Info("cache-cleared", zap.String("cache", r.name))
}

// Close closes the cache and releases resources.
func (r *RistrettoCache[V]) Close() {
	r.cache.Close()
}

// Wait blocks until all pending writes have been applied.
func (r *RistrettoCache[V]) Wait() {
	r.cache.Wait()
}

var _ Cache[string] = (*RistrettoCache[string])(nil)
