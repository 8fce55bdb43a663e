package cache

import "time"

// NoopMetrics discards every signal. It is the default Metrics.
type NoopMetrics struct{}

func (NoopMetrics) Hit()                             {}
func (NoopMetrics) Miss()                            {}
func (NoopMetrics) Evict(EvictReason)                {}
func (NoopMetrics) SizeDelta(int, int64)             {}
func (NoopMetrics) ObserveLoad(time.Duration, error) {}

var _ Metrics = NoopMetrics{}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
	Len       int
}

// HitRatio returns hits/(hits+misses), or 0 before any lookup.
func (s Stats) HitRatio() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}
