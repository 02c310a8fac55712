package stage

import (
	"sync"
	"time"
)

// accuracyAlpha weights the newest score in the accuracy estimate.
const accuracyAlpha = 0.1

// Stats keeps rolling performance metrics for a stage.
type Stats struct {
	mu        sync.Mutex
	processed int64
	cacheHits int64
	failures  int64
	accuracy  float64
	lastScore float64
	latency   time.Duration
	updatedAt time.Time
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	TotalProcessed   int64         `json:"total_processed"`
	CacheHits        int64         `json:"cache_hits"`
	Failures         int64         `json:"failures"`
	AccuracyEstimate float64       `json:"accuracy_estimate"`
	LastScore        float64       `json:"last_score"`
	MeanLatency      time.Duration `json:"mean_latency"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// NewStats creates empty statistics.
func NewStats() *Stats {
	return &Stats{}
}

// Record adds one completed analysis.
func (s *Stats) Record(score float64, latency time.Duration, cacheHit bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	if cacheHit {
		s.cacheHits++
	}
	if s.processed == 1 {
		s.accuracy = score
		s.latency = latency
	} else {
		s.accuracy = accuracyAlpha*score + (1-accuracyAlpha)*s.accuracy
		s.latency = time.Duration(accuracyAlpha*float64(latency) + (1-accuracyAlpha)*float64(s.latency))
	}
	s.lastScore = score
	s.updatedAt = time.Now()
}

// RecordFailure counts a failed analysis.
func (s *Stats) RecordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures++
	s.updatedAt = time.Now()
}

// Reset clears all metrics.
func (s *Stats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed, s.cacheHits, s.failures = 0, 0, 0
	s.accuracy, s.lastScore = 0, 0
	s.latency = 0
	s.updatedAt = time.Time{}
}

// Snapshot returns a copy of the metrics.
func (s *Stats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StatsSnapshot{
		TotalProcessed:   s.processed,
		CacheHits:        s.cacheHits,
		Failures:         s.failures,
		AccuracyEstimate: s.accuracy,
		LastScore:        s.lastScore,
		MeanLatency:      s.latency,
		UpdatedAt:        s.updatedAt,
	}
}
