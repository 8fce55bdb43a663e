// Package lfu implements the Least-Frequently-Used eviction policy with
// recency as the tie-break: among entries sharing the lowest access count,
// the one used longest ago is evicted first.
//
// Non-empty frequency buckets form a list in ascending order, so the
// minimum is always the front bucket and every operation is O(1): a
// promotion moves an entry to the neighbouring bucket (creating it if
// needed) and an emptied bucket is simply unlinked.
package lfu

import (
	"container/list"

	"github.com/IvanBrykalov/evictcache/policy"
)

// bucket holds every entry with one access count, MRU at Front().
type bucket struct {
	freq  uint64
	items *list.List // element.Value is *entry
}

// entry tracks one resident key. b is its bucket's element in lfu.freqs,
// elem its position inside that bucket.
type entry[K comparable, V any] struct {
	n    policy.Node[K, V]
	b    *list.Element
	elem *list.Element
}

func (e *entry[K, V]) bucket() *bucket { return e.b.Value.(*bucket) }

// lfu is the shard-local state. freqs holds only non-empty buckets, lowest
// frequency at Front().
type lfu[K comparable, V any] struct {
	h policy.Hooks[K, V]

	entries map[K]*entry[K, V]
	freqs   *list.List // element.Value is *bucket
}

type lfuPolicy[K comparable, V any] struct{}

// New returns a Policy factory that constructs per-shard LFU instances.
func New[K comparable, V any]() policy.Policy[K, V] { return lfuPolicy[K, V]{} }

func (lfuPolicy[K, V]) New(h policy.Hooks[K, V]) policy.ShardPolicy[K, V] {
	return &lfu[K, V]{
		h:       h,
		entries: make(map[K]*entry[K, V]),
		freqs:   list.New(),
	}
}

// OnAdd admits n with frequency 1, which is always the new minimum.
func (p *lfu[K, V]) OnAdd(n policy.Node[K, V]) {
	p.h.PushFront(n)

	front := p.freqs.Front()
	if front == nil || front.Value.(*bucket).freq != 1 {
		front = p.freqs.PushFront(&bucket{freq: 1, items: list.New()})
	}
	e := &entry[K, V]{n: n, b: front}
	e.elem = e.bucket().items.PushFront(e)
	p.entries[n.Key()] = e
}

// OnGet counts a read.
func (p *lfu[K, V]) OnGet(n policy.Node[K, V]) { p.promote(n) }

// OnUpdate counts an overwrite the same way as a read.
func (p *lfu[K, V]) OnUpdate(n policy.Node[K, V]) { p.promote(n) }

// OnRemove forgets n.
func (p *lfu[K, V]) OnRemove(n policy.Node[K, V], _ bool) {
	e, ok := p.entries[n.Key()]
	if !ok {
		return
	}
	delete(p.entries, n.Key())
	p.unlink(e)
}

// Victim is the least recently used entry of the lowest-frequency bucket.
func (p *lfu[K, V]) Victim() policy.Node[K, V] {
	front := p.freqs.Front()
	if front == nil {
		return nil
	}
	return front.Value.(*bucket).items.Back().Value.(*entry[K, V]).n
}

// Frequency implements policy.FrequencyReporter.
func (p *lfu[K, V]) Frequency(k K) (uint64, bool) {
	e, ok := p.entries[k]
	if !ok {
		return 0, false
	}
	return e.bucket().freq, true
}

// minFreq is the lowest resident frequency, 0 when empty.
func (p *lfu[K, V]) minFreq() uint64 {
	if front := p.freqs.Front(); front != nil {
		return front.Value.(*bucket).freq
	}
	return 0
}

// promote moves n from bucket f to the front of bucket f+1.
func (p *lfu[K, V]) promote(n policy.Node[K, V]) {
	p.h.MoveToFront(n)

	e, ok := p.entries[n.Key()]
	if !ok {
		return
	}
	cur := e.b
	f := cur.Value.(*bucket).freq

	next := cur.Next()
	if next == nil || next.Value.(*bucket).freq != f+1 {
		next = p.freqs.InsertAfter(&bucket{freq: f + 1, items: list.New()}, cur)
	}
	p.unlink(e)
	e.b = next
	e.elem = next.Value.(*bucket).items.PushFront(e)
}

// unlink removes e from its bucket and drops the bucket once empty.
func (p *lfu[K, V]) unlink(e *entry[K, V]) {
	b := e.bucket()
	b.items.Remove(e.elem)
	e.elem = nil
	if b.items.Len() == 0 {
		p.freqs.Remove(e.b)
	}
}

var _ policy.FrequencyReporter[string] = (*lfu[string, int])(nil)
