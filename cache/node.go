package cache

// node is one resident entry, linked into its shard's recency ring.
// The shard owns it; policies only see it through policy.Node.
type node[K comparable, V any] struct {
	key K
	val V

	// Ring links. The shard's root sentinel closes the ring, so neither is
	// nil while the node is linked.
	prev *node[K, V]
	next *node[K, V]

	// Absolute expiry in UnixNano; 0 = never.
	exp int64

	// Weight counted against MaxCost.
	cost int32
}

func (n *node[K, V]) Key() K    { return n.key }
func (n *node[K, V]) Value() *V { return &n.val }

func (n *node[K, V]) linked() bool { return n.next != nil }
