package db

import (
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// PoolStatsCollector exports connection pool statistics, read from the pool
// on each scrape.
type PoolStatsCollector struct {
	pool *pgxpool.Pool

	totalConns    *prometheus.Desc
	idleConns     *prometheus.Desc
	acquiredConns *prometheus.Desc
	maxConns      *prometheus.Desc
}

// NewPoolStatsCollector creates a collector for pool.
func NewPoolStatsCollector(pool *pgxpool.Pool, namespace string) *PoolStatsCollector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "db_pool", name), help, nil, nil)
	}
	return &PoolStatsCollector{
		pool:          pool,
		totalConns:    desc("total_conns", "Connections currently open in the pool"),
		idleConns:     desc("idle_conns", "Idle connections in the pool"),
		acquiredConns: desc("acquired_conns", "Connections currently acquired from the pool"),
		maxConns:      desc("max_conns", "Maximum connections allowed in the pool"),
	}
}

// Describe implements prometheus.Collector.
func (c *PoolStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.totalConns
	ch <- c.idleConns
	ch <- c.acquiredConns
	ch <- c.maxConns
}

// Collect implements prometheus.Collector.
func (c *PoolStatsCollector) Collect(ch chan<- prometheus.Metric) {
	if c.pool == nil {
		return
	}
	stats := c.pool.Stat()
	ch <- prometheus.MustNewConstMetric(c.totalConns, prometheus.GaugeValue, float64(stats.TotalConns()))
	ch <- prometheus.MustNewConstMetric(c.idleConns, prometheus.GaugeValue, float64(stats.IdleConns()))
	ch <- prometheus.MustNewConstMetric(c.acquiredConns, prometheus.GaugeValue, float64(stats.AcquiredConns()))
	ch <- prometheus.MustNewConstMetric(c.maxConns, prometheus.GaugeValue, float64(stats.MaxConns()))
}

// RegisterPoolStatsCollector registers a pool collector with reg. An
// already registered collector is not an error.
func RegisterPoolStatsCollector(pool *pgxpool.Pool, namespace string, reg prometheus.Registerer) (*PoolStatsCollector, error) {
	collector := NewPoolStatsCollector(pool, namespace)
	if err := reg.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return nil, err
		}
	}
	return collector, nil
}
