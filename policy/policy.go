// Package policy defines the contract between a cache shard and its
// eviction strategy.
package policy

// Node is the minimal view of a resident entry a policy may hold on to.
// Value returns a pointer so a policy can inspect the value in place.
type Node[K comparable, V any] interface {
	Key() K
	Value() *V
}

// Hooks expose O(1) operations on the shard's recency ring
// (front = most recently used, back = least recently used).
//
// All calls happen under the shard lock. Hooks only touch the ring;
// the shard owns the key index and removes keys from it itself.
type Hooks[K comparable, V any] interface {
	// MoveToFront promotes the node to MRU.
	MoveToFront(Node[K, V])
	// PushFront links a newly admitted node at MRU.
	PushFront(Node[K, V])
	// Remove unlinks the node from the ring.
	Remove(Node[K, V])
	// Back returns the LRU node, or nil if the ring is empty.
	Back() Node[K, V]
	// Len returns the number of linked nodes.
	Len() int
}

// ShardPolicy is a shard-local eviction strategy bound to the shard hooks.
// Every method runs under the shard lock.
//
// Semantics:
//   - OnAdd admits a new node. It must link it via Hooks.PushFront.
//   - OnGet/OnUpdate record a use of a resident node (read or overwrite).
//   - OnRemove is a notification that the shard is about to unlink n;
//     drop any policy state for it. evicted is true when n leaves to make
//     room (a Victim pick or the cost limit) and false for an explicit
//     Remove or an expired TTL.
//   - Victim names the node the shard should evict next to make room,
//     or nil when nothing is resident. It must not mutate state.
type ShardPolicy[K comparable, V any] interface {
	OnAdd(Node[K, V])
	OnGet(Node[K, V])
	OnUpdate(Node[K, V])
	OnRemove(n Node[K, V], evicted bool)
	Victim() Node[K, V]
}

// Policy is a factory producing one ShardPolicy per shard.
type Policy[K comparable, V any] interface {
	New(Hooks[K, V]) ShardPolicy[K, V]
}

// FrequencyReporter is implemented by frequency-aware policies (LFU).
// Frequency reports the access count recorded for k.
type FrequencyReporter[K comparable] interface {
	Frequency(k K) (uint64, bool)
}
