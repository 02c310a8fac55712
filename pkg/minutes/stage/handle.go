package stage

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/backend"
)

// Handle is an immutable snapshot of a stage's active model. A handle is
// reference counted: the owning slot holds one reference and every reader
// holds one from Acquire until Release. The release callback runs once,
// when the last reference of a retired handle is dropped.
type Handle struct {
	Stage       string
	Config      Config
	Ref         backend.ModelRef
	Version     int64
	ActivatedAt time.Time

	refs      atomic.Int64
	once      sync.Once
	onRelease func(*Handle)
}

// NewHandle creates a handle owned by a slot.
func NewHandle(stage string, cfg Config, ref backend.ModelRef, version int64) *Handle {
	h := &Handle{
		Stage:       stage,
		Config:      cfg,
		Ref:         ref,
		Version:     version,
		ActivatedAt: time.Now(),
	}
	h.refs.Store(1)
	return h
}

// ModelID is the configured model name.
func (h *Handle) ModelID() string {
	return h.Config.ModelName
}

// Refs returns the current reference count.
func (h *Handle) Refs() int64 {
	return h.refs.Load()
}

func (h *Handle) retain() {
	h.refs.Add(1)
}

func (h *Handle) release() {
	if h.refs.Add(-1) == 0 {
		h.once.Do(func() {
			if h.onRelease != nil {
				h.onRelease(h)
			}
		})
	}
}
