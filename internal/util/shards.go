package util

import "runtime"

// MaxShards bounds the automatic shard count.
const MaxShards = 256

// NextPow2 returns the smallest power of two >= x (1 for x <= 1).
// Values above 1<<63 clamp to 1<<63.
func NextPow2(x uint64) uint64 {
	if x <= 1 {
		return 1
	}
	if x > 1<<63 {
		return 1 << 63
	}
	x--
	x |= x >> 1
	x |= x >> 2
	x |= x >> 4
	x |= x >> 8
	x |= x >> 16
	x |= x >> 32
	return x + 1
}

// ReasonableShardCount is nextPow2(2*GOMAXPROCS) clamped to [1, MaxShards].
func ReasonableShardCount() int {
	p := max(runtime.GOMAXPROCS(0), 1)
	return min(int(NextPow2(uint64(2*p))), MaxShards)
}

// ShardCount turns a requested shard count into the one actually used:
// auto when requested <= 0, rounded up to a power of two, and never more
// shards than capacity so every shard can hold at least one entry.
// The result is a power of two and at least 1.
func ShardCount(requested, capacity int) int {
	n := requested
	if n <= 0 {
		n = ReasonableShardCount()
	}
	n = int(NextPow2(uint64(n)))
	for n > 1 && n > capacity {
		n >>= 1
	}
	return n
}

// ShardIndex maps a hash onto [0, shards). shards must be a power of two.
func ShardIndex(hash uint64, shards int) int {
	return int(hash & uint64(shards-1))
}

// SplitEven divides total into parts shares that differ by at most one and
// sum exactly to total. The first total%parts shares get the extra unit.
func SplitEven(total int64, parts int) []int64 {
	out := make([]int64, parts)
	if parts <= 0 {
		return out
	}
	base, rem := total/int64(parts), total%int64(parts)
	for i := range out {
		out[i] = base
		if int64(i) < rem {
			out[i]++
		}
	}
	return out
}
