package cache

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"github.com/IvanBrykalov/evictcache/internal/singleflight"
	"github.com/IvanBrykalov/evictcache/internal/util"
	"github.com/IvanBrykalov/evictcache/policy/lfu"
	"github.com/IvanBrykalov/evictcache/policy/lru"
)

var (
	// ErrNoLoader is returned by GetOrLoad when Options.Loader is nil.
	ErrNoLoader = errors.New("cache: no Loader provided")
	// ErrClosed is returned by GetOrLoad after Close.
	ErrClosed = errors.New("cache: closed")
)

// cache is a sharded in-memory KV store with a pluggable eviction policy.
type cache[K comparable, V any] struct {
	shards []*shard[K, V]
	hash   func(K) uint64
	closed atomic.Bool

	opt Options[K, V]

	sf singleflight.Group[K, V]
}

// New constructs a cache from opt. It panics if opt.Capacity is negative.
//
// Capacity (and MaxCost) are split across shards so that the shares sum
// exactly to the configured limits; the cache as a whole never holds more
// than Capacity entries or MaxCost cost. The shard count is reduced until
// every shard gets at least one unit of each.
func New[K comparable, V any](opt Options[K, V]) Cache[K, V] {
	if opt.Capacity < 0 {
		panic("cache: Capacity must be >= 0")
	}
	if opt.Metrics == nil {
		opt.Metrics = NoopMetrics{}
	}
	if opt.Policy == nil {
		opt.Policy = lru.New[K, V]()
	}

	limit := opt.Capacity
	if opt.MaxCost > 0 && opt.MaxCost < int64(limit) {
		limit = int(opt.MaxCost)
	}
	n := util.ShardCount(opt.Shards, limit)
	opt.Shards = n

	c := &cache[K, V]{
		shards: make([]*shard[K, V], n),
		hash:   util.Fnv64a[K],
		opt:    opt,
	}

	caps := util.SplitEven(int64(opt.Capacity), n)
	costs := make([]int64, n)
	if opt.MaxCost > 0 {
		costs = util.SplitEven(opt.MaxCost, n)
	}
	for i := range c.shards {
		c.shards[i] = newShard(int(caps[i]), costs[i], &c.opt)
	}
	return c
}

// NewLRU returns a single-shard cache evicting the least recently used key.
// A capacity of 0 yields a cache that stores nothing.
func NewLRU[K comparable, V any](capacity int) Cache[K, V] {
	return New(Options[K, V]{Capacity: capacity, Shards: 1, Policy: lru.New[K, V]()})
}

// NewLFU returns a single-shard cache evicting the least frequently used
// key, the least recently used one among equals. A capacity of 0 yields a
// cache that stores nothing.
func NewLFU[K comparable, V any](capacity int) Cache[K, V] {
	return New(Options[K, V]{Capacity: capacity, Shards: 1, Policy: lfu.New[K, V]()})
}

// ---- Cache[K,V] implementation ----

func (c *cache[K, V]) Get(k K) (V, bool) {
	if c.closed.Load() {
		var zero V
		return zero, false
	}
	return c.shardFor(k).Get(k)
}

func (c *cache[K, V]) Peek(k K) (V, bool) {
	if c.closed.Load() {
		var zero V
		return zero, false
	}
	return c.shardFor(k).Peek(k)
}

func (c *cache[K, V]) Set(k K, v V) {
	if c.closed.Load() {
		return
	}
	c.shardFor(k).Set(k, v, c.deadline(c.opt.DefaultTTL), c.costOf(v))
}

func (c *cache[K, V]) SetWithTTL(k K, v V, ttl time.Duration) {
	if c.closed.Load() {
		return
	}
	c.shardFor(k).Set(k, v, c.deadline(ttl), c.costOf(v))
}

func (c *cache[K, V]) Add(k K, v V) bool {
	if c.closed.Load() {
		return false
	}
	return c.shardFor(k).Add(k, v, c.deadline(c.opt.DefaultTTL), c.costOf(v))
}

func (c *cache[K, V]) Remove(k K) bool {
	if c.closed.Load() {
		return false
	}
	return c.shardFor(k).Remove(k)
}

func (c *cache[K, V]) Len() int {
	total := 0
	for _, s := range c.shards {
		total += s.Len()
	}
	return total
}

func (c *cache[K, V]) Keys() []K {
	keys := make([]K, 0, c.Len())
	for _, s := range c.shards {
		keys = s.appendKeys(keys)
	}
	return keys
}

func (c *cache[K, V]) Stats() Stats {
	var st Stats
	for _, s := range c.shards {
		st.Hits += s.hits.Load()
		st.Misses += s.misses.Load()
		st.Evictions += s.evicts.Load()
		st.Len += s.Len()
	}
	return st
}

func (c *cache[K, V]) GetOrLoad(ctx context.Context, k K) (V, error) {
	if c.closed.Load() {
		var zero V
		return zero, ErrClosed
	}
	if v, ok := c.Get(k); ok {
		return v, nil
	}
	if c.opt.Loader == nil {
		var zero V
		return zero, ErrNoLoader
	}

	v, err, _ := c.sf.Do(ctx, k, func() (V, error) {
		// A previous flight may have filled it while we queued.
		if v, ok := c.shardFor(k).Peek(k); ok {
			return v, nil
		}
		start := time.Now()
		v, err := c.opt.Loader(ctx, k)
		c.opt.Metrics.ObserveLoad(time.Since(start), err)
		if err != nil {
			return v, err
		}
		c.Set(k, v)
		return v, nil
	})
	return v, err
}

// Close marks the cache closed. Nothing runs in the background, so this
// never fails.
func (c *cache[K, V]) Close() error {
	c.closed.Store(true)
	return nil
}

// ---- helpers ----

func (c *cache[K, V]) shardFor(k K) *shard[K, V] {
	if len(c.shards) == 1 {
		return c.shards[0]
	}
	return c.shards[util.ShardIndex(c.hash(k), len(c.shards))]
}

// deadline converts a relative TTL into an absolute UnixNano deadline
// (0 = no expiry).
func (c *cache[K, V]) deadline(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	now := time.Now().UnixNano()
	if c.opt.Clock != nil {
		now = c.opt.Clock.NowUnixNano()
	}
	return now + int64(ttl)
}

// costOf computes the entry cost clamped to [0, MaxInt32].
func (c *cache[K, V]) costOf(v V) int32 {
	if c.opt.Cost == nil {
		return 0
	}
	return int32(min(max(c.opt.Cost(v), 0), math.MaxInt32))
}
