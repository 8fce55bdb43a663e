// Package twoq implements a simplified 2Q eviction policy that resists scan
// pollution: keys seen once live in a probation FIFO (A1in) and are evicted
// from there first; keys used again are promoted to the main LRU (Am).
// Keys evicted from probation are remembered in a ghost list (A1out) and
// skip probation when they come back.
package twoq

import (
	"container/list"

	"github.com/IvanBrykalov/evictcache/policy"
)

// twoQ is the shard-local state. Am has no list of its own: it is the part
// of the shard ring not indexed by in. All methods run under the shard lock.
type twoQ[K comparable, V any] struct {
	h policy.Hooks[K, V]

	capIn    int
	capGhost int

	// A1in, newest at Front().
	in    *list.List
	inIdx map[K]*list.Element // element.Value is policy.Node[K, V]

	// A1out, keys only, newest at Front().
	ghosts   *list.List
	ghostIdx map[K]*list.Element // element.Value is K
}

type twoQPolicy[K comparable, V any] struct {
	capIn    int
	capGhost int
}

// New constructs a 2Q policy factory with per-shard sizes.
// Common choices: capIn ≈ 25% of shard capacity, capGhost ≈ 50% of it.
func New[K comparable, V any](capIn, capGhost int) policy.Policy[K, V] {
	return twoQPolicy[K, V]{capIn: max(capIn, 1), capGhost: max(capGhost, 1)}
}

func (p twoQPolicy[K, V]) New(h policy.Hooks[K, V]) policy.ShardPolicy[K, V] {
	return &twoQ[K, V]{
		h:        h,
		capIn:    p.capIn,
		capGhost: p.capGhost,
		in:       list.New(),
		inIdx:    make(map[K]*list.Element),
		ghosts:   list.New(),
		ghostIdx: make(map[K]*list.Element),
	}
}

// OnAdd admits a ghost hit straight into Am, anything else into A1in.
func (q *twoQ[K, V]) OnAdd(n policy.Node[K, V]) {
	q.h.PushFront(n)

	k := n.Key()
	if ge, ok := q.ghostIdx[k]; ok {
		q.ghosts.Remove(ge)
		delete(q.ghostIdx, k)
		return
	}
	q.inIdx[k] = q.in.PushFront(n)
}

// OnGet promotes a probation entry to Am and refreshes its recency.
func (q *twoQ[K, V]) OnGet(n policy.Node[K, V]) {
	if el, ok := q.inIdx[n.Key()]; ok {
		q.in.Remove(el)
		delete(q.inIdx, n.Key())
	}
	q.h.MoveToFront(n)
}

// OnUpdate follows OnGet.
func (q *twoQ[K, V]) OnUpdate(n policy.Node[K, V]) { q.OnGet(n) }

// OnRemove turns a probation entry evicted to make room into a ghost.
// Anything else is forgotten.
func (q *twoQ[K, V]) OnRemove(n policy.Node[K, V], evicted bool) {
	k := n.Key()
	el, ok := q.inIdx[k]
	if !ok {
		return
	}
	q.in.Remove(el)
	delete(q.inIdx, k)
	if !evicted {
		return
	}

	if old := q.ghostIdx[k]; old != nil {
		q.ghosts.Remove(old)
	}
	q.ghostIdx[k] = q.ghosts.PushFront(k)
	for q.ghosts.Len() > q.capGhost {
		tail := q.ghosts.Back()
		delete(q.ghostIdx, tail.Value.(K))
		q.ghosts.Remove(tail)
	}
}

// Victim takes the oldest probation entry once A1in is at its budget or
// Am is empty; otherwise the least recent entry of the ring.
func (q *twoQ[K, V]) Victim() policy.Node[K, V] {
	if q.in.Len() > 0 && (q.in.Len() >= q.capIn || q.h.Len() == q.in.Len()) {
		return q.in.Back().Value.(policy.Node[K, V])
	}
	return q.h.Back()
}
