// Command bench runs a synthetic zipf workload against the cache and
// exposes Prometheus metrics and optional pprof endpoints.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof/* on DefaultServeMux
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/IvanBrykalov/evictcache/cache"
	pmet "github.com/IvanBrykalov/evictcache/metrics/prom"
	"github.com/IvanBrykalov/evictcache/policy"
	"github.com/IvanBrykalov/evictcache/policy/lfu"
	"github.com/IvanBrykalov/evictcache/policy/lru"
	"github.com/IvanBrykalov/evictcache/policy/twoq"
)

type counters struct {
	reads, writes, hits, misses atomic.Uint64
}

func main() {
	var (
		capacity = flag.Int("cap", 100_000, "cache capacity (entries)")
		shards   = flag.Int("shards", 0, "number of shards (0=auto)")
		polName  = flag.String("policy", "lru", "eviction policy: lru | lfu | 2q")

		workers  = flag.Int("workers", 2*runtime.GOMAXPROCS(0), "number of worker goroutines")
		duration = flag.Duration("duration", 10*time.Second, "benchmark duration")
		readPct  = flag.Int("reads", 80, "read percentage [0..100]")

		keys      = flag.Int("keys", 1_000_000, "keyspace size")
		zipfS     = flag.Float64("zipf_s", 1.1, "Zipf s > 1 (skew)")
		zipfV     = flag.Float64("zipf_v", 1.0, "Zipf v")
		seed      = flag.Int64("seed", time.Now().UnixNano(), "random seed")
		preload   = flag.Int("preload", 0, "preload entries (0 = cap/2)")
		valueSize = flag.Uint("value_size", 32, "generated value length in letters")

		pprofAddr   = flag.String("pprof", "", "serve pprof at addr (e.g. :6060); empty = disabled")
		metricsAddr = flag.String("http", ":8080", "serve Prometheus metrics at addr; empty = disabled")
	)
	flag.Parse()

	if *pprofAddr != "" {
		go func() {
			log.Printf("pprof: serving at %s", *pprofAddr)
			log.Println(http.ListenAndServe(*pprofAddr, nil))
		}()
	}

	opt := cache.Options[string, string]{
		Capacity: *capacity,
		Shards:   *shards,
		Policy:   choosePolicy(*polName, *capacity, *shards),
	}
	if *metricsAddr != "" {
		opt.Metrics = pmet.New(nil, "evictcache", "bench", prometheus.Labels{"policy": *polName})
		http.Handle("/metrics", promhttp.Handler())
		go func() {
			log.Printf("metrics: serving at %s", *metricsAddr)
			log.Println(http.ListenAndServe(*metricsAddr, nil))
		}()
	}
	c := cache.New[string, string](opt)
	defer func() { _ = c.Close() }()

	faker := gofakeit.New(uint64(*seed))
	pl := *preload
	if pl == 0 {
		pl = *capacity / 2
	}
	for i := 0; i < pl; i++ {
		c.Set("k:"+strconv.Itoa(i), faker.LetterN(*valueSize))
	}

	n := max(*workers, 1)
	keysMax := uint64(max(*keys-1, 1))
	var cnt counters

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < n; w++ {
		id := int64(w)
		g.Go(func() error {
			// rand.Rand and Faker are not goroutine-safe: one each per worker.
			r := rand.New(rand.NewSource(*seed + id*9973))
			z := rand.NewZipf(r, *zipfS, *zipfV, keysMax)
			f := gofakeit.New(uint64(*seed + id))
			runWorker(ctx, c, r, z, f, *readPct, *valueSize, &cnt)
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	report(c, &cnt, elapsed, *polName, *capacity, n, *keys, *seed)
}

func choosePolicy(name string, capacity, shards int) policy.Policy[string, string] {
	switch name {
	case "lru":
		return lru.New[string, string]()
	case "lfu":
		return lfu.New[string, string]()
	case "2q":
		// 2Q queues are sized per shard.
		perShard := capacity
		if shards > 0 {
			perShard = (capacity + shards - 1) / shards
		}
		return twoq.New[string, string](perShard/4, perShard/2)
	default:
		log.Fatalf("unknown policy: %q (use lru, lfu or 2q)", name)
		return nil
	}
}

func runWorker(ctx context.Context, c cache.Cache[string, string], r *rand.Rand, z *rand.Zipf,
	f *gofakeit.Faker, readPct int, valueSize uint, cnt *counters) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		k := "k:" + strconv.FormatUint(z.Uint64(), 10)
		if int(r.Int31n(100)) < readPct {
			cnt.reads.Add(1)
			if _, ok := c.Get(k); ok {
				cnt.hits.Add(1)
			} else {
				cnt.misses.Add(1)
			}
			continue
		}
		cnt.writes.Add(1)
		c.Set(k, f.LetterN(valueSize))
	}
}

func report(c cache.Cache[string, string], cnt *counters, elapsed time.Duration,
	polName string, capacity, workers, keys int, seed int64) {
	reads, writes := cnt.reads.Load(), cnt.writes.Load()
	ops := reads + writes
	hitRate := 0.0
	if reads > 0 {
		hitRate = float64(cnt.hits.Load()) / float64(reads) * 100
	}
	st := c.Stats()

	fmt.Printf("policy=%s cap=%d workers=%d keys=%d dur=%v seed=%d\n",
		polName, capacity, workers, keys, elapsed, seed)
	fmt.Printf("ops=%d (%.0f ops/s)  reads=%d  writes=%d\n",
		ops, float64(ops)/elapsed.Seconds(), reads, writes)
	fmt.Printf("hits=%d  misses=%d  hit-rate=%.2f%%  evictions=%d\n",
		cnt.hits.Load(), cnt.misses.Load(), hitRate, st.Evictions)
	fmt.Printf("Len()=%d\n", c.Len())
}
