package stage

import (
	"context"
	"fmt"
	"time"

	"github.com/romuloxaguiar/teste-yfbai3/pkg/logging"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/backend"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
)

// unloadTimeout bounds unloading a retired model.
const unloadTimeout = 30 * time.Second

// TaskFor returns the backend task a stage's models run.
func TaskFor(stage string) (backend.Task, error) {
	switch stage {
	case types.StageTopicDetection:
		return backend.TaskTopics, nil
	case types.StageActionItemRecognition:
		return backend.TaskClassify, nil
	case types.StageSummaryGeneration:
		return backend.TaskGenerate, nil
	}
	return "", fmt.Errorf("unknown stage %q", stage)
}

// Set is the slots of the analysis stages, keyed by stage name.
type Set map[string]*Slot

// LoadSet validates cfgs, loads one model per stage on b and wraps each in a
// slot whose retired models are unloaded from b. Models already loaded are
// unloaded again when a later stage fails.
func LoadSet(ctx context.Context, b backend.Backend, cfgs map[string]Config, logger logging.Logger, opts ...SlotOption) (Set, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	set := make(Set, len(types.Stages))
	for _, name := range types.Stages {
		cfg, ok := cfgs[name]
		if !ok {
			cfg = DefaultConfig(name)
		}
		if err := cfg.Validate(name); err != nil {
			set.Close()
			return nil, err
		}
		task, _ := TaskFor(name)
		ref, err := b.Load(ctx, cfg.ModelName, task)
		if err != nil {
			set.Close()
			return nil, fmt.Errorf("load %s model %s: %w", name, cfg.ModelName, err)
		}
		slotOpts := append([]SlotOption{WithSlotLogger(logger), WithUnload(unloader(b, logger))}, opts...)
		set[name] = NewSlot(name, NewHandle(name, cfg, ref, 1), slotOpts...)
		logger.Info("Stage model loaded",
			logging.Stage(name),
			logging.F("model", cfg.ModelName),
			logging.F("device", ref.Device),
		)
	}
	return set, nil
}

func unloader(b backend.Backend, logger logging.Logger) func(*Handle) {
	return func(h *Handle) {
		ctx, cancel := context.WithTimeout(context.Background(), unloadTimeout)
		defer cancel()
		if err := b.Unload(ctx, h.Ref); err != nil {
			logger.Warn("Failed to unload retired model",
				logging.Stage(h.Stage),
				logging.F("model", h.ModelID()),
				logging.Err(err),
			)
		}
	}
}

// Snapshot is the handles of every stage held for one request.
type Snapshot map[string]*Handle

// Acquire snapshots every stage's active handle. It fails when a stage has
// no model; handles already acquired are released.
func (s Set) Acquire() (Snapshot, error) {
	snap := make(Snapshot, len(s))
	for _, name := range types.Stages {
		slot, ok := s[name]
		if !ok {
			s.Release(snap)
			return nil, fmt.Errorf("stage %s is not configured", name)
		}
		h := slot.Acquire()
		if h == nil {
			s.Release(snap)
			return nil, fmt.Errorf("stage %s has no active model", name)
		}
		snap[name] = h
	}
	return snap, nil
}

// Release drops every reference held by snap.
func (s Set) Release(snap Snapshot) {
	for name, h := range snap {
		if slot, ok := s[name]; ok {
			slot.Release(h)
		}
	}
}

// Usable reports whether every stage can serve requests.
func (s Set) Usable() bool {
	for _, name := range types.Stages {
		slot, ok := s[name]
		if !ok || !slot.Usable() {
			return false
		}
	}
	return true
}

// ModelVersions maps each stage to its active model name.
func (s Set) ModelVersions() map[string]string {
	out := make(map[string]string, len(s))
	for name, slot := range s {
		if h := slot.Active(); h != nil {
			out[name] = h.ModelID()
		}
	}
	return out
}

// Close unloads every active model. The set must not be used afterwards.
func (s Set) Close() {
	for _, slot := range s {
		if h := slot.Active(); h != nil && slot.unload != nil {
			slot.unload(h)
		}
	}
}
