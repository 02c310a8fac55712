package stage

import (
	"context"

	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/backend"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
)

// Result is a stage result with a performance score in [0, 1].
type Result interface {
	Score() float64
}

// Analyzer is one analysis stage. Analyze must not retain doc.
type Analyzer interface {
	// Name is the stage name.
	Name() string

	// Task is the backend task the stage's models run.
	Task() backend.Task

	// Analyze runs the stage with the model of h and the effective cfg.
	Analyze(ctx context.Context, doc *types.ProcessedDocument, h *Handle, cfg Config) (Result, error)
}
