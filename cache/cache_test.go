package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/evictcache/policy/lfu"
	"github.com/IvanBrykalov/evictcache/policy/twoq"
)

type fakeClock struct{ t int64 }

func (f *fakeClock) NowUnixNano() int64  { return f.t }
func (f *fakeClock) add(d time.Duration) { f.t += int64(d) }

type evictRec struct {
	key    int
	reason EvictReason
}

// Uses a fake clock to avoid timing flakiness.
func TestCache_TTL_FakeClock(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	c := New[string, string](Options[string, string]{Capacity: 4, Clock: clk})
	t.Cleanup(func() { _ = c.Close() })

	c.SetWithTTL("x", "v", 100*time.Millisecond)
	if _, ok := c.Get("x"); !ok {
		t.Fatal("fresh miss")
	}
	clk.add(200 * time.Millisecond)
	if _, ok := c.Get("x"); ok {
		t.Fatal("expired hit")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry must be collected, Len=%d", c.Len())
	}
}

func TestCache_DefaultTTL_AndExpiredVictim(t *testing.T) {
	t.Parallel()

	clk := &fakeClock{}
	var reasons []EvictReason
	c := New[int, int](Options[int, int]{
		Capacity:   2,
		Shards:     1,
		DefaultTTL: time.Second,
		Clock:      clk,
		OnEvict:    func(_ int, _ int, r EvictReason) { reasons = append(reasons, r) },
	})

	c.Set(1, 1)
	c.SetWithTTL(2, 2, 0) // no expiry
	clk.add(2 * time.Second)
	c.Set(3, 3) // full: victim 1 has expired

	if len(reasons) != 1 || reasons[0] != EvictTTL {
		t.Fatalf("want one TTL eviction, got %v", reasons)
	}
	if _, ok := c.Get(2); !ok {
		t.Fatal("entry without TTL must survive")
	}
}

func TestCache_BasicAddSetGetRemove(t *testing.T) {
	t.Parallel()

	c := New[string, int](Options[string, int]{Capacity: 8})
	t.Cleanup(func() { _ = c.Close() })

	if !c.Add("a", 1) {
		t.Fatal("Add a=1 must be true")
	}
	if c.Add("a", 2) {
		t.Fatal("Add duplicate must be false")
	}

	c.Set("a", 11)
	if v, ok := c.Get("a"); !ok || v != 11 {
		t.Fatalf("Get a want 11, got %v ok=%v", v, ok)
	}

	if !c.Remove("a") {
		t.Fatal("Remove a must be true")
	}
	if c.Remove("a") {
		t.Fatal("second Remove must be false")
	}
	if _, ok := c.Get("a"); ok {
		t.Fatal("a must be absent after Remove")
	}
}

// A stored -1 (or zero value) is distinguishable from a miss.
func TestCache_NoSentinelCollision(t *testing.T) {
	t.Parallel()

	c := NewLRU[int, int](2)
	c.Set(1, -1)
	c.Set(2, 0)

	if v, ok := c.Get(1); !ok || v != -1 {
		t.Fatalf("Get(1) = %d,%v; want -1,true", v, ok)
	}
	if v, ok := c.Get(2); !ok || v != 0 {
		t.Fatalf("Get(2) = %d,%v; want 0,true", v, ok)
	}
	if _, ok := c.Get(3); ok {
		t.Fatal("Get(3) must miss")
	}
}

func TestCache_EvictionLRU(t *testing.T) {
	t.Parallel()

	c := New[string, int](Options[string, int]{Capacity: 2, Shards: 1})
	t.Cleanup(func() { _ = c.Close() })

	c.Set("a", 1)
	c.Set("b", 2)

	if _, ok := c.Get("a"); !ok {
		t.Fatal("expect hit for a")
	}
	c.Set("c", 3) // evicts b

	if _, ok := c.Get("b"); ok {
		t.Fatal("b must be evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatal("a must survive (promoted)")
	}
	if v, ok := c.Get("c"); !ok || v != 3 {
		t.Fatal("c must be present")
	}
}

// capacity=4; put(2,6),put(4,7),put(8,11),put(7,10); get(2)=6; get(8)=11;
// put(5,6) evicts 4; put(5,7) updates 5 in place.
func TestLRU_WorkedExample(t *testing.T) {
	t.Parallel()

	var evicted []int
	c := New[int, int](Options[int, int]{
		Capacity: 4,
		Shards:   1,
		OnEvict:  func(k, _ int, _ EvictReason) { evicted = append(evicted, k) },
	})

	c.Set(2, 6)
	c.Set(4, 7)
	c.Set(8, 11)
	c.Set(7, 10)

	if v, ok := c.Get(2); !ok || v != 6 {
		t.Fatalf("get(2) = %d,%v; want 6", v, ok)
	}
	if v, ok := c.Get(8); !ok || v != 11 {
		t.Fatalf("get(8) = %d,%v; want 11", v, ok)
	}

	c.Set(5, 6)
	if len(evicted) != 1 || evicted[0] != 4 {
		t.Fatalf("put(5,6) must evict 4, evicted=%v", evicted)
	}

	c.Set(5, 7)
	if len(evicted) != 1 {
		t.Fatalf("updating 5 must not evict, evicted=%v", evicted)
	}
	if v, _ := c.Get(5); v != 7 {
		t.Fatalf("get(5) = %d; want 7", v)
	}

	want := []int{5, 8, 2, 7}
	if got := c.Keys(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("recency order = %v; want %v", got, want)
	}
}

// capacity=3; put(1,10),put(2,20),put(3,30); get(1)=10; put(4,40) evicts 2;
// get(2) misses; get(3)=30; get(4)=40.
func TestLFU_WorkedExample(t *testing.T) {
	t.Parallel()

	var evicted []evictRec
	c := New[int, int](Options[int, int]{
		Capacity: 3,
		Shards:   1,
		Policy:   lfu.New[int, int](),
		OnEvict:  func(k, _ int, r EvictReason) { evicted = append(evicted, evictRec{k, r}) },
	})

	c.Set(1, 10)
	c.Set(2, 20)
	c.Set(3, 30)
	if v, ok := c.Get(1); !ok || v != 10 {
		t.Fatalf("get(1) = %d,%v; want 10", v, ok)
	}

	c.Set(4, 40)
	if len(evicted) != 1 || evicted[0] != (evictRec{2, EvictPolicy}) {
		t.Fatalf("put(4,40) must evict 2 by policy, evicted=%v", evicted)
	}
	if _, ok := c.Get(2); ok {
		t.Fatal("get(2) must miss")
	}
	if v, ok := c.Get(3); !ok || v != 30 {
		t.Fatalf("get(3) = %d,%v; want 30", v, ok)
	}
	if v, ok := c.Get(4); !ok || v != 40 {
		t.Fatalf("get(4) = %d,%v; want 40", v, ok)
	}
}

// A hot key whose count grew must not be the victim of its own insertion
// wave: insertion makes room before the newcomer is admitted.
func TestLFU_NewKeyIsNotItsOwnVictim(t *testing.T) {
	t.Parallel()

	c := NewLFU[int, string](1)
	c.Set(1, "a")
	c.Get(1)
	c.Set(2, "b")

	if _, ok := c.Peek(1); ok {
		t.Fatal("1 must be evicted to make room")
	}
	if v, ok := c.Get(2); !ok || v != "b" {
		t.Fatalf("2 must be resident, got %q,%v", v, ok)
	}
}

// Capacity 0 is a valid, empty cache for both policies.
func TestCache_ZeroCapacityIsNoOp(t *testing.T) {
	t.Parallel()

	for name, c := range map[string]Cache[int, int]{
		"lru": NewLRU[int, int](0),
		"lfu": NewLFU[int, int](0),
	} {
		c.Set(1, 1)
		if c.Add(2, 2) {
			t.Fatalf("%s: Add must report false on a zero-capacity cache", name)
		}
		if _, ok := c.Get(1); ok {
			t.Fatalf("%s: Get must miss", name)
		}
		if c.Len() != 0 {
			t.Fatalf("%s: Len = %d", name, c.Len())
		}
	}
}

func TestCache_NegativeCapacityPanics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Fatal("negative capacity must panic")
		}
	}()
	New[int, int](Options[int, int]{Capacity: -1})
}

// Peek reads without promoting: the peeked key stays the LRU victim.
func TestCache_PeekDoesNotPromote(t *testing.T) {
	t.Parallel()

	c := NewLRU[string, int](2)
	c.Set("a", 1)
	c.Set("b", 2)
	if v, ok := c.Peek("a"); !ok || v != 1 {
		t.Fatal("peek must hit")
	}
	c.Set("c", 3)
	if _, ok := c.Peek("a"); ok {
		t.Fatal("a must be evicted: Peek does not count as a use")
	}
	if st := c.Stats(); st.Hits != 0 || st.Misses != 0 {
		t.Fatalf("Peek must not touch hit/miss stats, got %+v", st)
	}
}

// Across many shards the cache still never exceeds Capacity.
func TestCache_ShardedNeverExceedsCapacity(t *testing.T) {
	t.Parallel()

	const capacity = 10
	c := New[int, int](Options[int, int]{Capacity: capacity, Shards: 64})
	for i := 0; i < 1000; i++ {
		c.Set(i, i)
		if n := c.Len(); n > capacity {
			t.Fatalf("Len=%d exceeds capacity after %d inserts", n, i+1)
		}
	}
	if got := len(c.Keys()); got != c.Len() {
		t.Fatalf("Keys len %d != Len %d", got, c.Len())
	}
}

func TestCache_MaxCost(t *testing.T) {
	t.Parallel()

	var reasons []EvictReason
	c := New[string, string](Options[string, string]{
		Capacity: 100,
		Shards:   1,
		Cost:     func(v string) int { return len(v) },
		MaxCost:  10,
		OnEvict:  func(_, _ string, r EvictReason) { reasons = append(reasons, r) },
	})

	c.Set("a", "aaaa")
	c.Set("b", "bbbb")
	c.Set("c", "cccc") // 12 > 10: evict a

	if _, ok := c.Peek("a"); ok {
		t.Fatal("a must be evicted by cost")
	}
	if len(reasons) != 1 || reasons[0] != EvictCapacity {
		t.Fatalf("want one capacity eviction, got %v", reasons)
	}
	if c.Len() != 2 {
		t.Fatalf("Len = %d; want 2", c.Len())
	}
}

// A cost budget smaller than the shard count shrinks the shard count
// instead of handing every shard a unit the budget does not have.
func TestCache_MaxCostBelowShardCount(t *testing.T) {
	t.Parallel()

	c := New[int, int](Options[int, int]{
		Capacity: 100,
		Shards:   8,
		Cost:     func(int) int { return 1 },
		MaxCost:  3,
	}).(*cache[int, int])

	var budget int64
	for _, s := range c.shards {
		if s.maxCost < 1 {
			t.Fatalf("shard budget %d would disable the limit", s.maxCost)
		}
		budget += s.maxCost
	}
	if budget != 3 {
		t.Fatalf("shard budgets sum to %d; want 3", budget)
	}

	for i := 0; i < 50; i++ {
		c.Set(i, i)
	}
	if c.Len() > 3 {
		t.Fatalf("Len = %d; cost budget allows 3", c.Len())
	}
}

func TestCache_StatsAndClose(t *testing.T) {
	t.Parallel()

	c := NewLRU[string, int](1)
	c.Set("a", 1)
	c.Get("a")
	c.Get("zz")
	c.Set("b", 2)

	st := c.Stats()
	if st.Hits != 1 || st.Misses != 1 || st.Evictions != 1 || st.Len != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
	if st.HitRatio() != 0.5 {
		t.Fatalf("HitRatio = %v", st.HitRatio())
	}

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	c.Set("c", 3)
	if _, ok := c.Get("b"); ok {
		t.Fatal("closed cache must miss")
	}
	if _, err := c.GetOrLoad(context.Background(), "b"); !errors.Is(err, ErrClosed) {
		t.Fatalf("want ErrClosed, got %v", err)
	}
}

type recMetrics struct {
	NoopMetrics
	hits, misses, loads atomic.Int64
	entries, cost       atomic.Int64
}

func (m *recMetrics) Hit()  { m.hits.Add(1) }
func (m *recMetrics) Miss() { m.misses.Add(1) }
func (m *recMetrics) SizeDelta(entries int, cost int64) {
	m.entries.Add(int64(entries))
	m.cost.Add(cost)
}
func (m *recMetrics) ObserveLoad(_ time.Duration, _ error) { m.loads.Add(1) }

// The size deltas of all shards add up to the whole cache.
func TestCache_MetricsAggregateAcrossShards(t *testing.T) {
	t.Parallel()

	m := &recMetrics{}
	c := New[int, int](Options[int, int]{Capacity: 1024, Shards: 8, Metrics: m})
	for i := 0; i < 20; i++ {
		c.Set(i, i)
	}
	c.Get(0)
	c.Get(1000)

	if got := m.entries.Load(); got != int64(c.Len()) {
		t.Fatalf("size entries = %d; Len = %d", got, c.Len())
	}
	if m.hits.Load() != 1 || m.misses.Load() != 1 {
		t.Fatalf("hits=%d misses=%d", m.hits.Load(), m.misses.Load())
	}
}

// Shards reporting concurrently must not leave the size on a stale total.
func TestCache_SizeMetricExactUnderConcurrency(t *testing.T) {
	t.Parallel()

	m := &recMetrics{}
	c := New[int, int](Options[int, int]{
		Capacity: 256,
		Shards:   16,
		Metrics:  m,
		Cost:     func(v int) int { return v%3 + 1 },
		MaxCost:  400,
	})

	var g errgroup.Group
	for w := 0; w < 8; w++ {
		g.Go(func() error {
			for i := 0; i < 5_000; i++ {
				k := (w*7919 + i) % 1_000
				switch i % 4 {
				case 3:
					c.Remove(k)
				default:
					c.Set(k, i)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	var cost int64
	for _, s := range c.(*cache[int, int]).shards {
		cost += s.cost
	}
	if got := m.entries.Load(); got != int64(c.Len()) {
		t.Fatalf("size entries = %d; Len = %d", got, c.Len())
	}
	if got := m.cost.Load(); got != cost {
		t.Fatalf("size cost = %d; resident cost = %d", got, cost)
	}
}

func TestCache_GetOrLoad_NoLoader(t *testing.T) {
	t.Parallel()

	c := NewLRU[string, int](4)
	if _, err := c.GetOrLoad(context.Background(), "k"); !errors.Is(err, ErrNoLoader) {
		t.Fatalf("want ErrNoLoader, got %v", err)
	}
}

func TestCache_GetOrLoad_ErrorNotCached(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	var calls atomic.Int64
	m := &recMetrics{}
	c := New[string, int](Options[string, int]{
		Capacity: 4,
		Metrics:  m,
		Loader: func(context.Context, string) (int, error) {
			if calls.Add(1) == 1 {
				return 0, boom
			}
			return 7, nil
		},
	})

	if _, err := c.GetOrLoad(context.Background(), "k"); !errors.Is(err, boom) {
		t.Fatalf("want boom, got %v", err)
	}
	if v, err := c.GetOrLoad(context.Background(), "k"); err != nil || v != 7 {
		t.Fatalf("retry: v=%d err=%v", v, err)
	}
	if m.loads.Load() != 2 {
		t.Fatalf("ObserveLoad calls = %d; want 2", m.loads.Load())
	}
}

// Concurrent GetOrLoad calls for the same key run the Loader once.
func TestCache_GetOrLoad_Singleflight(t *testing.T) {
	var calls int64

	c := New[string, string](Options[string, string]{
		Capacity: 64,
		Policy:   lfu.New[string, string](),
		Loader: func(_ context.Context, k string) (string, error) {
			atomic.AddInt64(&calls, 1)
			time.Sleep(5 * time.Millisecond) // simulate I/O
			return "v:" + k, nil
		},
	})
	t.Cleanup(func() { _ = c.Close() })

	const N = 64
	var g errgroup.Group
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < N; i++ {
		g.Go(func() error {
			v, err := c.GetOrLoad(ctx, "k")
			if err != nil {
				return err
			}
			if v != "v:k" {
				return fmt.Errorf("got %q", v)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	if got := atomic.LoadInt64(&calls); got != 1 {
		t.Fatalf("loader must run exactly once, got %d", got)
	}
}

// Single-shard caches accept keys the shard hash cannot handle.
func TestCache_SingleShardAnyComparableKey(t *testing.T) {
	t.Parallel()

	type point struct{ x, y int }
	c := NewLFU[point, string](2)
	c.Set(point{1, 2}, "a")
	if v, ok := c.Get(point{1, 2}); !ok || v != "a" {
		t.Fatalf("got %q,%v", v, ok)
	}
}

// Remove is not memory pressure: a deleted key that comes back starts on
// probation again instead of skipping it as a returning ghost.
func TestCache_TwoQRemoveThenReaddIsProbation(t *testing.T) {
	t.Parallel()

	c := New[string, int](Options[string, int]{
		Capacity: 3,
		Shards:   1,
		Policy:   twoq.New[string, int](1, 4),
	})
	c.Set("hot", 0)
	c.Get("hot") // main queue

	c.Set("a", 1)
	if !c.Remove("a") {
		t.Fatal("Remove must report a")
	}
	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3) // full: oldest probation entry goes

	if _, ok := c.Peek("a"); ok {
		t.Fatal("re-added key must be evicted from probation first")
	}
	for _, k := range []string{"hot", "b", "c"} {
		if _, ok := c.Peek(k); !ok {
			t.Fatalf("%s must be resident", k)
		}
	}
}
