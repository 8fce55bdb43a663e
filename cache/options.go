package cache

import (
	"context"
	"time"

	"github.com/IvanBrykalov/evictcache/policy"
)

// EvictReason explains why an entry was removed.
type EvictReason int

const (
	// EvictPolicy: chosen by the eviction policy to make room for a new key.
	EvictPolicy EvictReason = iota
	// EvictTTL: the entry's deadline passed.
	EvictTTL
	// EvictCapacity: removed to bring total cost under MaxCost.
	EvictCapacity
)

// String returns a stable lowercase label, suitable for metrics.
func (r EvictReason) String() string {
	switch r {
	case EvictTTL:
		return "ttl"
	case EvictCapacity:
		return "capacity"
	default:
		return "policy"
	}
}

// Metrics receives cache-level observability signals. Implementations must
// be safe for concurrent use; Hit/Miss/Evict/SizeDelta are called under a
// shard lock.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason EvictReason)
	// SizeDelta reports a change in resident entries and cost. Shards
	// report independently; the sum of all deltas is the cache size.
	SizeDelta(entries int, cost int64)
	// ObserveLoad reports one Loader call made by GetOrLoad.
	ObserveLoad(d time.Duration, err error)
}

// Clock provides time in UnixNano; useful for deterministic tests.
type Clock interface{ NowUnixNano() int64 }

// Options configures a cache. The zero value of every field except
// Capacity is usable; New fills in:
//   - nil Policy  => LRU
//   - Shards <= 0 => auto (≈ 2*GOMAXPROCS, power of two, at most Capacity)
//   - nil Metrics => NoopMetrics
type Options[K comparable, V any] struct {
	// Capacity is the maximum number of resident keys. 0 disables the cache:
	// writes are dropped and reads miss. Negative values panic.
	Capacity int

	// Shards is the number of independently locked partitions. Eviction
	// order is exact within a shard only; use 1 for a globally exact
	// LRU/LFU.
	Shards int

	// Policy picks eviction victims (lru, lfu, twoq); nil => LRU.
	Policy policy.Policy[K, V]

	// DefaultTTL applies to Add/Set (0 = no expiry).
	DefaultTTL time.Duration

	// Cost-based limiting. With Cost set and MaxCost > 0, the cache evicts
	// until the summed cost fits too.
	Cost    func(v V) int
	MaxCost int64

	// Loader fetches a value on miss for GetOrLoad.
	Loader func(ctx context.Context, k K) (V, error)

	// OnEvict runs under the shard lock for every eviction (not for Remove).
	// Keep it short and do not call back into the cache.
	OnEvict func(k K, v V, reason EvictReason)
	Metrics Metrics

	// Clock overrides time.Now (tests).
	Clock Clock
}
