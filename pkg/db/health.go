package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// HealthStatus represents the health state of a database connection.
type HealthStatus struct {
	Healthy       bool          `json:"healthy"`
	Latency       time.Duration `json:"latency"`
	TotalConns    int32         `json:"total_conns"`
	AcquiredConns int32         `json:"acquired_conns"`
	Error         string        `json:"error,omitempty"`
}

// Check pings the database and reports pool statistics.
func Check(ctx context.Context, pool *pgxpool.Pool) HealthStatus {
	var status HealthStatus
	if pool == nil {
		status.Error = "pool is nil"
		return status
	}

	start := time.Now()
	err := pool.Ping(ctx)
	status.Latency = time.Since(start)
	if err != nil {
		status.Error = fmt.Sprintf("ping failed: %v", err)
		return status
	}

	stats := pool.Stat()
	status.Healthy = true
	status.TotalConns = stats.TotalConns()
	status.AcquiredConns = stats.AcquiredConns()
	return status
}
