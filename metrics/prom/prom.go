// Package prom exports cache.Metrics to Prometheus.
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/IvanBrykalov/evictcache/cache"
)

// Adapter implements cache.Metrics with Prometheus counters, gauges and a
// load-latency histogram. All Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits       prometheus.Counter
	misses     prometheus.Counter
	evicts     *prometheus.CounterVec
	sizeEnt    prometheus.Gauge
	sizeCost   prometheus.Gauge
	loadDur    prometheus.Histogram
	loadErrors prometheus.Counter
}

// New builds an Adapter and registers it.
//   - reg:         registry (nil => prometheus.DefaultRegisterer)
//   - ns, sub:     namespace and subsystem
//   - constLabels: static labels on every series, e.g. {"policy": "lfu"}
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: name, Help: help, ConstLabels: constLabels,
		})
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: name, Help: help, ConstLabels: constLabels,
		})
	}

	a := &Adapter{
		hits:   counter("hits_total", "Cache hits"),
		misses: counter("misses_total", "Cache misses"),
		evicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "evictions_total",
			Help:        "Cache evictions by reason",
			ConstLabels: constLabels,
		}, []string{"reason"}),
		sizeEnt:  gauge("size_entries", "Number of resident entries"),
		sizeCost: gauge("size_cost", "Total resident cost"),
		loadDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "load_duration_seconds",
			Help:        "Latency of Loader calls made by GetOrLoad",
			ConstLabels: constLabels,
			Buckets:     prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms .. ~4s
		}),
		loadErrors: counter("load_errors_total", "Loader calls that returned an error"),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.sizeEnt, a.sizeCost, a.loadDur, a.loadErrors)
	return a
}

func (a *Adapter) Hit()  { a.hits.Inc() }
func (a *Adapter) Miss() { a.misses.Inc() }

// Evict counts an eviction under its reason label (policy|ttl|capacity).
func (a *Adapter) Evict(r cache.EvictReason) { a.evicts.WithLabelValues(r.String()).Inc() }

// SizeDelta moves the resident entries/cost gauges. Applying deltas keeps
// the gauges exact when several shards report concurrently.
func (a *Adapter) SizeDelta(entries int, cost int64) {
	a.sizeEnt.Add(float64(entries))
	a.sizeCost.Add(float64(cost))
}

// ObserveLoad records loader latency, and failures separately.
func (a *Adapter) ObserveLoad(d time.Duration, err error) {
	a.loadDur.Observe(d.Seconds())
	if err != nil {
		a.loadErrors.Inc()
	}
}

var _ cache.Metrics = (*Adapter)(nil)
