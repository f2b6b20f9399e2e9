package expiringcache

import (
	"sync/atomic"

	"github.com/karupanerura/expiring-cache/internal/padding"
)

// EvictReason explains why an entry was evicted.
type EvictReason int

const (
	// EvictExpired means the entry was evicted because it expired.
	EvictExpired EvictReason = iota
	// EvictCapacity means the entry was evicted to honor the maximum size.
	EvictCapacity
)

// String implements fmt.Stringer.
func (r EvictReason) String() string {
	switch r {
	case EvictExpired:
		return "expired"
	case EvictCapacity:
		return "capacity"
	default:
		return "unknown"
	}
}

// Statistics is a snapshot of the cache counters.
type Statistics struct {
	Hits      int64
	Misses    int64
	Puts      int64
	Removals  int64
	Evictions int64
}

// Gets returns the number of lookups.
func (s Statistics) Gets() int64 {
	return s.Hits + s.Misses
}

// HitRatio returns hits divided by lookups, or 0 when there were no lookups.
func (s Statistics) HitRatio() float64 {
	if s.Gets() == 0 {
		return 0
	}
	return float64(s.Hits) / float64(s.Gets())
}

// counters are updated by many goroutines at once, so each one owns a cache line.
type counters struct {
	enabled   atomic.Bool
	metrics   Metrics
	hits      padding.Int64
	misses    padding.Int64
	puts      padding.Int64
	removals  padding.Int64
	evictions padding.Int64
}

func (s *counters) hit(n int) {
	if n == 0 || !s.enabled.Load() {
		return
	}
	s.hits.Add(int64(n))
	for range n {
		s.metrics.Hit()
	}
}

func (s *counters) miss(n int) {
	if n == 0 || !s.enabled.Load() {
		return
	}
	s.misses.Add(int64(n))
	for range n {
		s.metrics.Miss()
	}
}

func (s *counters) put() {
	if !s.enabled.Load() {
		return
	}
	s.puts.Add(1)
	s.metrics.Put()
}

func (s *counters) remove() {
	if !s.enabled.Load() {
		return
	}
	s.removals.Add(1)
	s.metrics.Remove()
}

func (s *counters) evict(reason EvictReason) {
	if !s.enabled.Load() {
		return
	}
	s.evictions.Add(1)
	s.metrics.Evict(reason)
}

func (s *counters) size(n int) {
	if !s.enabled.Load() {
		return
	}
	s.metrics.Size(n)
}

func (s *counters) snapshot() Statistics {
	return Statistics{
		Hits:      s.hits.Load(),
		Misses:    s.misses.Load(),
		Puts:      s.puts.Load(),
		Removals:  s.removals.Load(),
		Evictions: s.evictions.Load(),
	}
}

func (s *counters) reset() {
	s.hits.Store(0)
	s.misses.Store(0)
	s.puts.Store(0)
	s.removals.Store(0)
	s.evictions.Store(0)
}

// Statistics returns a snapshot of the counters.
func (c *Cache[K, V]) Statistics() Statistics {
	return c.stats.snapshot()
}

// ClearStatistics resets the counters to zero.
func (c *Cache[K, V]) ClearStatistics() {
	c.stats.reset()
}

// SetStatisticsEnabled turns the counters and the Metrics sink on or off.
func (c *Cache[K, V]) SetStatisticsEnabled(enabled bool) {
	c.stats.enabled.Store(enabled)
}

// StatisticsEnabled reports whether statistics are collected.
func (c *Cache[K, V]) StatisticsEnabled() bool {
	return c.stats.enabled.Load()
}
