package cache

import (
	"sync"
	"time"

	"github.com/IvanBrykalov/evictcache/internal/util"
	"github.com/IvanBrykalov/evictcache/policy"
)

// shard is an independent partition of the cache with its own lock, key
// index and recency ring. root is the ring sentinel: root.next is the MRU
// entry, root.prev the LRU entry, and an empty ring points root at itself.
type shard[K comparable, V any] struct {
	// ---- guarded by mu ----
	mu      sync.RWMutex
	m       map[K]*node[K, V]
	root    node[K, V]
	len     int
	cost    int64
	cap     int
	maxCost int64 // 0 = no cost limit

	// last values passed to Metrics.SizeDelta
	reportedLen  int
	reportedCost int64

	pol policy.ShardPolicy[K, V]
	opt *Options[K, V]

	// ---- hot counters, one cache line each ----
	_      util.CacheLinePad
	hits   util.Counter
	misses util.Counter
	evicts util.Counter
}

func newShard[K comparable, V any](capacity int, maxCost int64, opt *Options[K, V]) *shard[K, V] {
	s := &shard[K, V]{
		m:       make(map[K]*node[K, V], capacity),
		cap:     capacity,
		maxCost: maxCost,
		opt:     opt,
	}
	s.root.next = &s.root
	s.root.prev = &s.root
	s.pol = opt.Policy.New(shardHooks[K, V]{s: s})
	return s
}

// Get returns the live value for k and records a use.
func (s *shard[K, V]) Get(k K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.liveLocked(k)
	if n == nil {
		s.misses.Add(1)
		s.opt.Metrics.Miss()
		var zero V
		return zero, false
	}
	s.pol.OnGet(n)
	s.hits.Add(1)
	s.opt.Metrics.Hit()
	return n.val, true
}

// Peek returns the live value for k without informing the policy.
// Expired entries are still collected.
func (s *shard[K, V]) Peek(k K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := s.liveLocked(k); n != nil {
		return n.val, true
	}
	var zero V
	return zero, false
}

// Set upserts k. exp is an absolute UnixNano deadline (0 = none).
func (s *shard[K, V]) Set(k K, v V, exp int64, cost int32) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := s.liveLocked(k); n != nil {
		s.cost += int64(cost) - int64(n.cost)
		n.val, n.exp, n.cost = v, exp, cost
		s.pol.OnUpdate(n)
		s.trimCostLocked()
		s.reportSizeLocked()
		return
	}
	s.insertLocked(k, v, exp, cost)
}

// Add inserts k only if no live entry holds it.
func (s *shard[K, V]) Add(k K, v V, exp int64, cost int32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.liveLocked(k) != nil {
		return false
	}
	return s.insertLocked(k, v, exp, cost)
}

// Remove deletes k. An expired entry is collected as a TTL eviction and
// reported as absent.
func (s *shard[K, V]) Remove(k K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.liveLocked(k)
	if n == nil {
		return false
	}
	s.pol.OnRemove(n, false)
	s.unlink(n)
	delete(s.m, k)
	s.reportSizeLocked()
	return true
}

func (s *shard[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.len
}

// appendKeys appends live keys in MRU→LRU order.
func (s *shard[K, V]) appendKeys(dst []K) []K {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	for n := s.root.next; n != &s.root; n = n.next {
		if n.exp != 0 && now > n.exp {
			continue
		}
		dst = append(dst, n.key)
	}
	return dst
}

// -------------------- internals (mu held) --------------------

// liveLocked returns the entry for k, evicting it first if it expired.
func (s *shard[K, V]) liveLocked(k K) *node[K, V] {
	n, ok := s.m[k]
	if !ok {
		return nil
	}
	if s.expiredLocked(n) {
		s.evictNode(n, EvictTTL)
		s.reportSizeLocked()
		return nil
	}
	return n
}

// insertLocked admits a new key, making room first so the newcomer is
// never its own victim.
func (s *shard[K, V]) insertLocked(k K, v V, exp int64, cost int32) bool {
	if s.cap <= 0 {
		return false
	}
	for s.len >= s.cap {
		if !s.evictVictimLocked(EvictPolicy) {
			break
		}
	}

	n := &node[K, V]{key: k, val: v, exp: exp, cost: cost}
	s.m[k] = n
	s.pol.OnAdd(n)
	s.trimCostLocked()
	s.reportSizeLocked()
	return true
}

// trimCostLocked evicts policy victims until the cost budget fits.
func (s *shard[K, V]) trimCostLocked() {
	if s.maxCost <= 0 {
		return
	}
	for s.cost > s.maxCost {
		if !s.evictVictimLocked(EvictCapacity) {
			return
		}
	}
}

// evictVictimLocked evicts the policy's current victim. A victim that has
// already expired is accounted as a TTL eviction.
func (s *shard[K, V]) evictVictimLocked(reason EvictReason) bool {
	v := s.pol.Victim()
	if v == nil {
		return false
	}
	n := v.(*node[K, V])
	if s.expiredLocked(n) {
		reason = EvictTTL
	}
	s.evictNode(n, reason)
	return true
}

func (s *shard[K, V]) expiredLocked(n *node[K, V]) bool {
	return n.exp != 0 && s.now() > n.exp
}

func (s *shard[K, V]) now() int64 {
	if s.opt.Clock != nil {
		return s.opt.Clock.NowUnixNano()
	}
	return time.Now().UnixNano()
}

// evictNode drops n from policy, ring and index, then notifies observers.
func (s *shard[K, V]) evictNode(n *node[K, V], reason EvictReason) {
	s.pol.OnRemove(n, reason != EvictTTL)
	s.unlink(n)
	delete(s.m, n.key)
	s.evicts.Add(1)
	s.opt.Metrics.Evict(reason)
	if cb := s.opt.OnEvict; cb != nil {
		cb(n.key, n.val, reason)
	}
}

// reportSizeLocked sends the change since the last report. Deltas from
// different shards commute, so the sink's running sum is exact whatever
// order they arrive in.
func (s *shard[K, V]) reportSizeLocked() {
	dl := s.len - s.reportedLen
	dc := s.cost - s.reportedCost
	if dl == 0 && dc == 0 {
		return
	}
	s.reportedLen, s.reportedCost = s.len, s.cost
	s.opt.Metrics.SizeDelta(dl, dc)
}

// -------------------- ring --------------------

func (s *shard[K, V]) linkFront(n *node[K, V]) {
	n.prev = &s.root
	n.next = s.root.next
	s.root.next.prev = n
	s.root.next = n
}

func (s *shard[K, V]) detach(n *node[K, V]) {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev, n.next = nil, nil
}

// pushFront links a new node at MRU and accounts for it.
func (s *shard[K, V]) pushFront(n *node[K, V]) {
	s.linkFront(n)
	s.len++
	s.cost += int64(n.cost)
}

func (s *shard[K, V]) moveToFront(n *node[K, V]) {
	if s.root.next == n || !n.linked() {
		return
	}
	s.detach(n)
	s.linkFront(n)
}

// unlink removes n from the ring; calling it twice is harmless.
func (s *shard[K, V]) unlink(n *node[K, V]) {
	if !n.linked() {
		return
	}
	s.detach(n)
	s.len--
	s.cost -= int64(n.cost)
	if s.cost < 0 {
		s.cost = 0
	}
}

func (s *shard[K, V]) back() *node[K, V] {
	if s.root.prev == &s.root {
		return nil
	}
	return s.root.prev
}

// -------------------- policy hooks --------------------

// shardHooks exposes the ring to the policy.
type shardHooks[K comparable, V any] struct{ s *shard[K, V] }

func (h shardHooks[K, V]) MoveToFront(x policy.Node[K, V]) { h.s.moveToFront(x.(*node[K, V])) }
func (h shardHooks[K, V]) PushFront(x policy.Node[K, V])   { h.s.pushFront(x.(*node[K, V])) }
func (h shardHooks[K, V]) Remove(x policy.Node[K, V])      { h.s.unlink(x.(*node[K, V])) }
func (h shardHooks[K, V]) Len() int                        { return h.s.len }

// Back returns an untyped nil for an empty ring so callers can compare
// against nil.
func (h shardHooks[K, V]) Back() policy.Node[K, V] {
	if n := h.s.back(); n != nil {
		return n
	}
	return nil
}
