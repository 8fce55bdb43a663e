package cache

import (
	"context"
	"time"
)

// Cache is a bounded in-memory key/value store with a pluggable eviction
// policy. All methods are safe for concurrent use.
//
// Operations cost amortized O(1): a map lookup plus constant-time ring and
// policy adjustments under one shard lock.
type Cache[K comparable, V any] interface {
	// Get returns the value for k and whether it was present. A hit counts
	// as a use for the policy (LRU: becomes most recent; LFU: frequency+1).
	Get(k K) (V, bool)

	// Peek is Get without recording a use.
	Peek(k K) (V, bool)

	// Set inserts or updates k→v with DefaultTTL. Updating counts as a use.
	// Inserting into a full shard first evicts the policy's victim.
	Set(k K, v V)

	// SetWithTTL is Set with a per-key TTL; ttl <= 0 means no expiry.
	SetWithTTL(k K, v V, ttl time.Duration)

	// Add inserts k→v only if k is absent and reports whether it did.
	// A present key is left untouched.
	Add(k K, v V) bool

	// Remove deletes k and reports whether it was present.
	Remove(k K) bool

	// Len returns the number of resident entries.
	Len() int

	// Keys returns resident keys shard by shard, most recent first.
	Keys() []K

	// Stats returns hit/miss/eviction counters.
	Stats() Stats

	// GetOrLoad returns the cached value or loads it via Options.Loader,
	// coalescing concurrent loads of the same key. Returns ErrNoLoader when
	// no Loader is configured. Failed loads are not cached.
	GetOrLoad(ctx context.Context, k K) (V, error)

	// Close marks the cache closed; later calls are no-ops that miss.
	Close() error
}
