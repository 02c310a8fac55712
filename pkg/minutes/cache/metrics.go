package cache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// StatsCollector exposes cache counters as Prometheus metrics. It reads the
// counters on each scrape.
type StatsCollector struct {
	cache *Cache

	entries         *prometheus.Desc
	hits            *prometheus.Desc
	misses          *prometheus.Desc
	evictions       *prometheus.Desc
	inconsistencies *prometheus.Desc
}

// NewStatsCollector creates a collector for c.
func NewStatsCollector(c *Cache, namespace string) *StatsCollector {
	return &StatsCollector{
		cache: c,
		entries: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pattern_cache", "entries"),
			"Number of live entries in the pattern cache",
			nil, nil,
		),
		hits: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pattern_cache", "hits_total"),
			"Pattern cache lookups that found a value",
			nil, nil,
		),
		misses: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pattern_cache", "misses_total"),
			"Pattern cache lookups that found nothing",
			nil, nil,
		),
		evictions: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pattern_cache", "evictions_total"),
			"Entries evicted, expired or invalidated",
			nil, nil,
		),
		inconsistencies: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "pattern_cache", "inconsistencies_total"),
			"Entries discarded because their content did not match their key",
			nil, nil,
		),
	}
}

// Describe sends all metric descriptors to the channel.
func (s *StatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- s.entries
	ch <- s.hits
	ch <- s.misses
	ch <- s.evictions
	ch <- s.inconsistencies
}

// Collect sends the current counter values.
func (s *StatsCollector) Collect(ch chan<- prometheus.Metric) {
	if s.cache == nil {
		return
	}
	st := s.cache.Stats()
	ch <- prometheus.MustNewConstMetric(s.entries, prometheus.GaugeValue, float64(st.Entries))
	ch <- prometheus.MustNewConstMetric(s.hits, prometheus.CounterValue, float64(st.Hits))
	ch <- prometheus.MustNewConstMetric(s.misses, prometheus.CounterValue, float64(st.Misses))
	ch <- prometheus.MustNewConstMetric(s.evictions, prometheus.CounterValue, float64(st.Evictions))
	ch <- prometheus.MustNewConstMetric(s.inconsistencies, prometheus.CounterValue, float64(st.Inconsistencies))
}

// RegisterStatsCollector registers a collector for c with reg. An already
// registered collector is not an error.
func RegisterStatsCollector(c *Cache, namespace string, reg prometheus.Registerer) (*StatsCollector, error) {
	collector := NewStatsCollector(c, namespace)
	if err := reg.Register(collector); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			return nil, err
		}
	}
	return collector, nil
}
