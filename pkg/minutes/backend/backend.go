// Package backend defines the inference backend the analysis stages run
// models through. Implementations live in the lexical and remote
// subpackages.
package backend

import (
	"context"
	"fmt"
	"time"
)

// Task is the kind of inference a model performs.
type Task string

const (
	// TaskTopics returns scored topic labels with children and keywords.
	TaskTopics Task = "topics"

	// TaskClassify returns scored labels per input.
	TaskClassify Task = "classify"

	// TaskGenerate returns generated text per input.
	TaskGenerate Task = "generate"
)

// LabelAction is the classification label the action item stage reads.
const LabelAction = "action"

// ModelRef identifies a loaded model.
type ModelRef struct {
	ID       string    `json:"id"`
	Model    string    `json:"model"`
	Task     Task      `json:"task"`
	Device   string    `json:"device"`
	LoadedAt time.Time `json:"loaded_at"`
}

// Params controls a single inference call.
type Params struct {
	MinLength int `json:"min_length,omitempty"`
	MaxLength int `json:"max_length,omitempty"`
	NumBeams  int `json:"num_beams,omitempty"`
	TopK      int `json:"top_k,omitempty"`
}

// LabelScore is a scored label. Children are nested labels (subtopics).
type LabelScore struct {
	Label    string       `json:"label"`
	Score    float64      `json:"score"`
	Keywords []string     `json:"keywords,omitempty"`
	Children []LabelScore `json:"children,omitempty"`
}

// Output is the result for one batch input.
type Output struct {
	Labels []LabelScore `json:"labels,omitempty"`
	Text   string       `json:"text,omitempty"`
}

// Score returns the score of label, or 0 when it is absent.
func (o Output) Score(label string) float64 {
	for _, l := range o.Labels {
		if l.Label == label {
			return l.Score
		}
	}
	return 0
}

// Backend loads models and runs batched inference.
type Backend interface {
	Load(ctx context.Context, model string, task Task) (ModelRef, error)
	Infer(ctx context.Context, ref ModelRef, batch []string, params Params) ([]Output, error)
	Unload(ctx context.Context, ref ModelRef) error
}

// DeviceReporter is implemented by backends that know which device they
// run on.
type DeviceReporter interface {
	Device() string
}

// DeviceOf returns the device b reports, or "cpu".
func DeviceOf(b Backend) string {
	if d, ok := b.(DeviceReporter); ok && d.Device() != "" {
		return d.Device()
	}
	return "cpu"
}

// ValidateOutputs checks that outs has one entry per input and that every
// score, at any depth, lies in [0, 1].
func ValidateOutputs(outs []Output, inputs int) error {
	if len(outs) != inputs {
		return fmt.Errorf("backend returned %d outputs for %d inputs", len(outs), inputs)
	}
	for i, o := range outs {
		if err := validateLabels(o.Labels); err != nil {
			return fmt.Errorf("output %d: %w", i, err)
		}
	}
	return nil
}

func validateLabels(labels []LabelScore) error {
	for _, l := range labels {
		if l.Score < 0 || l.Score > 1 || l.Score != l.Score {
			return fmt.Errorf("label %q has score %v outside [0,1]", l.Label, l.Score)
		}
		if err := validateLabels(l.Children); err != nil {
			return err
		}
	}
	return nil
}

// Batches splits inputs into consecutive groups of at most size.
func Batches[T any](inputs []T, size int) [][]T {
	if size < 1 {
		size = 1
	}
	out := make([][]T, 0, (len(inputs)+size-1)/size)
	for start := 0; start < len(inputs); start += size {
		end := start + size
		if end > len(inputs) {
			end = len(inputs)
		}
		out = append(out, inputs[start:end])
	}
	return out
}
