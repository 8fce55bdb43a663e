// Package cache provides a generic, bounded, in-memory cache with pluggable
// eviction (LRU by default, LFU and 2Q available), per-entry TTL,
// singleflight read-through loading, metrics hooks and cost-based limits.
//
// Design
//
//   - Storage: each shard keeps a map[K]*node for lookups and an intrusive
//     recency ring closed by a sentinel node (sentinel.next = most recent,
//     sentinel.prev = least recent). The map indexes nodes; the ring owns
//     their order.
//
//   - Policies: the shard asks its policy for a Victim before admitting a
//     key into a full shard, so a new key is never evicted by its own
//     insertion. LRU evicts the ring tail. LFU keeps frequency buckets, each
//     in recency order, and evicts the least recent entry of the lowest
//     frequency; every Get or overwrite moves an entry up exactly one
//     frequency.
//
//   - Concurrency: shards are independently locked. Eviction order is exact
//     per shard, so NewLRU and NewLFU build a single shard. Capacity is
//     split across shards exactly; the cache never exceeds it.
//
//   - Absence: lookups report presence as a bool rather than a sentinel
//     value, so every V (including -1 or the zero value) can be cached.
//
//   - TTL: deadlines are checked lazily on access; an expired victim is
//     accounted as EvictTTL.
//
//   - GetOrLoad coalesces concurrent loads for one key. Failed loads are
//     returned to every waiter and not cached.
//
//   - Metrics: Options.Metrics receives Hit/Miss/Evict/SizeDelta/ObserveLoad;
//     metrics/prom exports them to Prometheus.
//
// Basic usage
//
//	c := cache.NewLRU[int, int](4)
//	c.Set(2, 6)
//	if v, ok := c.Get(2); ok {
//	    _ = v
//	}
//
// LFU
//
//	c := cache.NewLFU[string, []byte](1024)
//
// Sharded, with TTL and a loader
//
//	c := cache.New[string, string](cache.Options[string, string]{
//	    Capacity:   50_000,
//	    Policy:     lfu.New[string, string](),
//	    DefaultTTL: time.Minute,
//	    Loader: func(ctx context.Context, k string) (string, error) {
//	        return fetch(ctx, k)
//	    },
//	})
//	v, err := c.GetOrLoad(ctx, "key")
package cache
