package stage

import (
	"fmt"
	"strings"

	merrors "github.com/romuloxaguiar/teste-yfbai3/pkg/errors"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
)

// MaxBatchSize bounds batch_size values.
const MaxBatchSize = 1024

// Config is the configuration of one analysis stage. Fields that do not
// apply to a stage are left zero.
type Config struct {
	ModelName           string  `yaml:"model_name" json:"model_name"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" json:"confidence_threshold"`
	PerformanceTarget   float64 `yaml:"performance_target" json:"performance_target"`
	BatchSize           int     `yaml:"batch_size" json:"batch_size"`
	Device              string  `yaml:"device" json:"device"`

	// Topic detection.
	MaxTopics int `yaml:"max_topics,omitempty" json:"max_topics,omitempty"`
	ChunkSize int `yaml:"chunk_size,omitempty" json:"chunk_size,omitempty"`

	// Action item recognition.
	MaxItems           int  `yaml:"max_items,omitempty" json:"max_items,omitempty"`
	IncludeUnvalidated bool `yaml:"include_unvalidated,omitempty" json:"include_unvalidated,omitempty"`

	// Summary generation.
	MinLength int `yaml:"min_length,omitempty" json:"min_length,omitempty"`
	MaxLength int `yaml:"max_length,omitempty" json:"max_length,omitempty"`
	NumBeams  int `yaml:"num_beams,omitempty" json:"num_beams,omitempty"`
}

// DefaultConfig returns the defaults for stage.
func DefaultConfig(stage string) Config {
	switch stage {
	case types.StageTopicDetection:
		return Config{
			ModelName:           "bert-base-uncased",
			ConfidenceThreshold: 0.85,
			PerformanceTarget:   0.95,
			BatchSize:           16,
			Device:              "cpu",
			MaxTopics:           10,
			ChunkSize:           512,
		}
	case types.StageActionItemRecognition:
		return Config{
			ModelName:           "roberta-base",
			ConfidenceThreshold: 0.8,
			PerformanceTarget:   0.90,
			BatchSize:           32,
			Device:              "cpu",
			MaxItems:            20,
		}
	case types.StageSummaryGeneration:
		return Config{
			ModelName:           "facebook/bart-large-cnn",
			ConfidenceThreshold: 0.8,
			PerformanceTarget:   0.85,
			BatchSize:           8,
			Device:              "cpu",
			MaxLength:           1024,
			MinLength:           256,
			NumBeams:            4,
		}
	}
	return Config{}
}

// Validate checks required keys and value ranges for stage. Every problem
// is reported.
func (c Config) Validate(stage string) error {
	var problems []string
	if strings.TrimSpace(c.ModelName) == "" {
		problems = append(problems, "missing required key model_name")
	}
	if c.ConfidenceThreshold == 0 {
		problems = append(problems, "missing required key confidence_threshold")
	} else if c.ConfidenceThreshold < 0 || c.ConfidenceThreshold > 1 {
		problems = append(problems, fmt.Sprintf("confidence_threshold %v outside (0,1]", c.ConfidenceThreshold))
	}
	if c.PerformanceTarget == 0 {
		problems = append(problems, "missing required key performance_target")
	} else if c.PerformanceTarget < 0 || c.PerformanceTarget > 1 {
		problems = append(problems, fmt.Sprintf("performance_target %v outside (0,1]", c.PerformanceTarget))
	}
	if c.BatchSize < 1 || c.BatchSize > MaxBatchSize {
		problems = append(problems, fmt.Sprintf("batch_size %d outside [1,%d]", c.BatchSize, MaxBatchSize))
	}

	switch stage {
	case types.StageTopicDetection:
		if c.MaxTopics < 1 {
			problems = append(problems, "max_topics must be positive")
		}
	case types.StageActionItemRecognition:
		if c.MaxItems < 1 {
			problems = append(problems, "max_items must be positive")
		}
	case types.StageSummaryGeneration:
		if c.MinLength < 1 || c.MaxLength < 1 {
			problems = append(problems, "min_length and max_length must be positive")
		} else if c.MinLength >= c.MaxLength {
			problems = append(problems, fmt.Sprintf("min_length %d must be below max_length %d", c.MinLength, c.MaxLength))
		}
		if c.NumBeams < 1 {
			problems = append(problems, "num_beams must be positive")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown stage %q", stage))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid %s config: %s", stage, strings.Join(problems, "; "))
	}
	return nil
}

// Merge returns a copy of c with the non-nil overrides applied. Out of range
// overrides are invalid input.
func (c Config) Merge(o types.StageOverrides) (Config, error) {
	out := c
	if o.ConfidenceThreshold != nil {
		v := *o.ConfidenceThreshold
		if v <= 0 || v > 1 {
			return c, merrors.InvalidInput("confidence_threshold override %v outside (0,1]", v)
		}
		out.ConfidenceThreshold = v
	}
	if o.BatchSize != nil {
		v := *o.BatchSize
		if v < 1 || v > MaxBatchSize {
			return c, merrors.InvalidInput("batch_size override %d outside [1,%d]", v, MaxBatchSize)
		}
		out.BatchSize = v
	}
	if o.IncludeUnvalidated != nil {
		out.IncludeUnvalidated = *o.IncludeUnvalidated
	}
	return out, nil
}
