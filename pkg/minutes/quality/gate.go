// Package quality implements the joint quality gate applied to the three
// stage results of a request.
package quality

import (
	"fmt"

	"github.com/romuloxaguiar/teste-yfbai3/pkg/logging"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/stage"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
)

// Targets are the thresholds the gate checks against.
type Targets struct {
	TopicPerformance   float64
	ActionConfidence   float64
	SummaryPerformance float64
}

// TargetsFrom reads the targets from the effective stage configurations.
func TargetsFrom(topics, actions, summary stage.Config) Targets {
	return Targets{
		TopicPerformance:   topics.PerformanceTarget,
		ActionConfidence:   actions.ConfidenceThreshold,
		SummaryPerformance: summary.PerformanceTarget,
	}
}

// Gate validates stage results. The zero value is usable.
type Gate struct {
	logger logging.Logger
}

// NewGate creates a gate that logs failed verdicts.
func NewGate(logger logging.Logger) *Gate {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Gate{logger: logger.With(logging.Component("quality-gate"))}
}

// Validate fails when the mean topic relevance is below the topic target,
// when any action item's confidence is below the action threshold, or when
// the summary quality is below the summary target. Raising any target can
// only turn a pass into a failure.
func (g *Gate) Validate(topics types.TopicResult, actions types.ActionItemResult, summary types.SummaryResult, t Targets) types.QualityVerdict {
	v := types.QualityVerdict{Topics: true, ActionItems: true, Summary: true}

	if score := topics.Score(); score < t.TopicPerformance {
		v.Topics = false
		v.Reasons = append(v.Reasons, fmt.Sprintf("topic relevance %.3f below target %.3f", score, t.TopicPerformance))
	}
	for _, item := range actions.Items {
		if item.Confidence < t.ActionConfidence {
			v.ActionItems = false
			v.Reasons = append(v.Reasons, fmt.Sprintf("action item confidence %.3f below threshold %.3f", item.Confidence, t.ActionConfidence))
			break
		}
	}
	if score := summary.Score(); score < t.SummaryPerformance {
		v.Summary = false
		v.Reasons = append(v.Reasons, fmt.Sprintf("summary quality %.3f below target %.3f", score, t.SummaryPerformance))
	}

	v.Passed = v.Topics && v.ActionItems && v.Summary
	if !v.Passed && g != nil && g.logger != nil {
		g.logger.Warn("Quality gate failed", logging.F("reasons", v.Reasons))
	}
	return v
}

// Meets reports whether a single stage result meets its own target. It
// decides cache eligibility, which is per stage.
func Meets(r stage.Result, target float64) bool {
	return r != nil && r.Score() >= target
}
