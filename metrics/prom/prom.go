// Package prom exports cache statistics as Prometheus metrics.
package prom

import (
	expiringcache "github.com/karupanerura/expiring-cache"
	"github.com/prometheus/client_golang/prometheus"
)

// Adapter implements expiringcache.Metrics and exports Prometheus counters/gauges.
// Safe for concurrent use; all Prometheus metric types are goroutine-safe.
type Adapter struct {
	hits     prometheus.Counter
	misses   prometheus.Counter
	puts     prometheus.Counter
	removals prometheus.Counter
	evicts   *prometheus.CounterVec
	size     prometheus.Gauge
}

// New constructs a Prometheus metrics adapter.
//   - reg:          registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
//
// Use a distinct constLabels set (for example {"cache": name}) per cache
// when several caches share a registry.
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        name,
			Help:        help,
			ConstLabels: constLabels,
		})
	}
	a := &Adapter{
		hits:     counter("hits_total", "Cache hits"),
		misses:   counter("misses_total", "Cache misses"),
		puts:     counter("puts_total", "Values stored in the cache"),
		removals: counter("removals_total", "Entries removed from the cache"),
		evicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   ns,
				Subsystem:   sub,
				Name:        "evictions_total",
				Help:        "Cache evictions by reason",
				ConstLabels: constLabels,
			},
			[]string{"reason"},
		),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   ns,
			Subsystem:   sub,
			Name:        "size_entries",
			Help:        "Number of resident entries after the last cleanup pass",
			ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.puts, a.removals, a.evicts, a.size)
	return a
}

// Hit increments the hit counter.
func (a *Adapter) Hit() { a.hits.Inc() }

// Miss increments the miss counter.
func (a *Adapter) Miss() { a.misses.Inc() }

// Put increments the put counter.
func (a *Adapter) Put() { a.puts.Inc() }

// Remove increments the removal counter.
func (a *Adapter) Remove() { a.removals.Inc() }

// Evict increments the eviction counter with a reason label.
func (a *Adapter) Evict(r expiringcache.EvictReason) {
	a.evicts.WithLabelValues(r.String()).Inc()
}

// Size updates the gauge for the number of entries.
func (a *Adapter) Size(entries int) {
	a.size.Set(float64(entries))
}

// Compile-time check: ensure Adapter implements expiringcache.Metrics.
var _ expiringcache.Metrics = (*Adapter)(nil)
