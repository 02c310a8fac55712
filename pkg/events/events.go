// Package events publishes minutes and model lifecycle events to Redis.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/update"
)

// Redis channels
const (
	ChannelMinutesProcessed   = "events.minutes.processed"
	ChannelModelCommitted     = "events.model.committed"
	ChannelModelRolledBack    = "events.model.rolled_back"
	ChannelModelDriftDetected = "events.model.drift_detected"
)

// Event types
const (
	TypeMinutesProcessed = "minutes.processed"
	TypeModelCommitted   = "model.committed"
	TypeModelRolledBack  = "model.rolled_back"
	TypeDriftDetected    = "model.drift_detected"
)

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Version   string    `json:"version"`
}

// NewBaseEvent creates a BaseEvent with a fresh id.
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Source:    "minutes",
		Version:   "1.0",
	}
}

// MinutesProcessedEvent is published after a request produced minutes.
type MinutesProcessedEvent struct {
	BaseEvent

	ResultID  string `json:"result_id"`
	RequestID string `json:"request_id"`
	MeetingID string `json:"meeting_id"`

	TopicCount      int `json:"topic_count"`
	ActionItemCount int `json:"action_item_count"`
	SummaryLength   int `json:"summary_length"`

	SummaryQuality float64           `json:"summary_quality"`
	ModelVersions  map[string]string `json:"model_versions"`
	Device         string            `json:"device"`
	ProcessingMs   int64             `json:"processing_ms"`
	CacheHit       bool              `json:"cache_hit"`
}

// NewMinutesProcessedEvent builds the event for r.
func NewMinutesProcessedEvent(r *types.MinutesResult) MinutesProcessedEvent {
	return MinutesProcessedEvent{
		BaseEvent:       NewBaseEvent(TypeMinutesProcessed),
		ResultID:        r.ID,
		RequestID:       r.Metadata.RequestID,
		MeetingID:       r.MeetingID,
		TopicCount:      len(r.Topics.Topics),
		ActionItemCount: len(r.ActionItems.Items),
		SummaryLength:   len(r.Summary.Summary),
		SummaryQuality:  r.Summary.Metadata.QualityScore,
		ModelVersions:   r.Metadata.ModelVersions,
		Device:          r.Metadata.Device,
		ProcessingMs:    r.Metadata.ProcessingTime.Milliseconds(),
		CacheHit:        r.Metadata.CacheHit,
	}
}

// ModelUpdateEvent is published when a model update finishes.
type ModelUpdateEvent struct {
	BaseEvent

	UpdateID      string `json:"update_id"`
	Stage         string `json:"stage"`
	Result        string `json:"result"`
	PreviousModel string `json:"previous_model"`
	Model         string `json:"model"`
	Version       int64  `json:"version"`

	BaselineScore  float64 `json:"baseline_score"`
	CandidateScore float64 `json:"candidate_score"`
	Degradation    float64 `json:"degradation"`
	Reason         string  `json:"reason,omitempty"`
	DurationMs     int64   `json:"duration_ms"`
}

// NewModelUpdateEvent builds the event for o. The event type follows the
// outcome: committed or rolled back.
func NewModelUpdateEvent(o update.Outcome) ModelUpdateEvent {
	eventType := TypeModelCommitted
	if o.Result == update.RolledBack {
		eventType = TypeModelRolledBack
	}
	return ModelUpdateEvent{
		BaseEvent:      NewBaseEvent(eventType),
		UpdateID:       o.ID,
		Stage:          o.Stage,
		Result:         string(o.Result),
		PreviousModel:  o.PreviousModel,
		Model:          o.Model,
		Version:        o.Version,
		BaselineScore:  o.BaselineScore,
		CandidateScore: o.CandidateScore,
		Degradation:    o.Degradation,
		Reason:         o.Reason,
		DurationMs:     o.Duration.Milliseconds(),
	}
}

// DriftDetectedEvent is published when a stage drifts from its target.
type DriftDetectedEvent struct {
	BaseEvent

	Stage      string  `json:"stage"`
	Model      string  `json:"model"`
	Accuracy   float64 `json:"accuracy"`
	Target     float64 `json:"target"`
	Drift      float64 `json:"drift"`
	Samples    int64   `json:"samples"`
	AutoUpdate string  `json:"auto_update,omitempty"`
}

// NewDriftDetectedEvent builds the event for r.
func NewDriftDetectedEvent(r update.DriftReport) DriftDetectedEvent {
	return DriftDetectedEvent{
		BaseEvent:  NewBaseEvent(TypeDriftDetected),
		Stage:      r.Stage,
		Model:      r.Model,
		Accuracy:   r.Accuracy,
		Target:     r.Target,
		Drift:      r.Drift,
		Samples:    r.Samples,
		AutoUpdate: r.AutoUpdate,
	}
}

// channelFor returns the channel a model update outcome is published on.
// Unchanged outcomes are not published.
func channelFor(o update.Outcome) (string, bool) {
	switch o.Result {
	case update.Committed:
		return ChannelModelCommitted, true
	case update.RolledBack:
		return ChannelModelRolledBack, true
	default:
		return "", false
	}
}
