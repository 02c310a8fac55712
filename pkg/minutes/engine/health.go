package engine

import (
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/backend"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/cache"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/stage"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
)

// Health status values.
const (
	HealthOK       = "ok"
	HealthDegraded = "degraded"
)

// StageHealth describes one stage slot.
type StageHealth struct {
	State   stage.State `json:"state"`
	Model   string      `json:"model"`
	Version int64       `json:"version"`
	Usable  bool        `json:"usable"`
}

// Health is the engine health report.
type Health struct {
	Status  string                 `json:"status"`
	Device  string                 `json:"device"`
	Version string                 `json:"version,omitempty"`
	Stages  map[string]StageHealth `json:"stages"`
	Cache   *cache.Stats           `json:"cache,omitempty"`
}

// Health reports the backend device and the state of every stage. The
// engine is degraded while any stage has no usable model.
func (e *Engine) Health() Health {
	h := Health{
		Status:  HealthOK,
		Device:  backend.DeviceOf(e.backend),
		Version: e.version,
		Stages:  make(map[string]StageHealth, len(types.Stages)),
	}
	for _, name := range types.Stages {
		slot := e.slots[name]
		sh := StageHealth{State: slot.State(), Usable: slot.Usable()}
		if active := slot.Active(); active != nil {
			sh.Model = active.ModelID()
			sh.Version = active.Version
		}
		if !sh.Usable {
			h.Status = HealthDegraded
		}
		h.Stages[name] = sh
	}
	if e.cache != nil {
		stats := e.cache.Stats()
		h.Cache = &stats
	}
	return h
}

// PerformanceMetrics returns the rolling statistics of every stage.
func (e *Engine) PerformanceMetrics() map[string]stage.StatsSnapshot {
	out := make(map[string]stage.StatsSnapshot, len(types.Stages))
	for _, name := range types.Stages {
		out[name] = e.slots[name].Stats().Snapshot()
	}
	return out
}

// ResetPerformanceMetrics clears the rolling statistics of every stage.
func (e *Engine) ResetPerformanceMetrics() {
	for _, name := range types.Stages {
		e.slots[name].Stats().Reset()
	}
}
