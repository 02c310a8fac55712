// Package types holds the records exchanged between the minutes engine
// components: transcripts, preprocessing output, stage results and the final
// minutes.
package types

import (
	"time"
)

// Stage names.
const (
	StageTopicDetection        = "topic_detection"
	StageActionItemRecognition = "action_item_recognition"
	StageSummaryGeneration     = "summary_generation"
)

// Stages lists the analysis stages in a stable order.
var Stages = []string{StageTopicDetection, StageActionItemRecognition, StageSummaryGeneration}

// Transcript is an inbound processing request. It is never mutated after
// it is received.
type Transcript struct {
	MeetingID string             `json:"meeting_id"`
	Text      string             `json:"text"`
	Options   *ProcessingOptions `json:"processing_options,omitempty"`
}

// ProcessingOptions carries per-request, per-stage overrides.
type ProcessingOptions struct {
	Topics      StageOverrides `json:"topic_detection,omitempty"`
	ActionItems StageOverrides `json:"action_item_recognition,omitempty"`
	Summary     StageOverrides `json:"summary_generation,omitempty"`
}

// For returns the overrides for stage.
func (o *ProcessingOptions) For(stage string) StageOverrides {
	if o == nil {
		return StageOverrides{}
	}
	switch stage {
	case StageTopicDetection:
		return o.Topics
	case StageActionItemRecognition:
		return o.ActionItems
	case StageSummaryGeneration:
		return o.Summary
	}
	return StageOverrides{}
}

// StageOverrides are optional replacements for stage configuration values.
// A nil field keeps the configured value.
type StageOverrides struct {
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
	BatchSize           *int     `json:"batch_size,omitempty"`
	IncludeUnvalidated  *bool    `json:"include_unvalidated,omitempty"`
}

// SpeakerSegment is a run of text attributed to one speaker.
type SpeakerSegment struct {
	Speaker    string  `json:"speaker"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Start      int     `json:"start_index"`
	End        int     `json:"end_index"`
}

// SpeakerContext summarises a speaker's participation.
type SpeakerContext struct {
	Label          string  `json:"label"`
	SegmentCount   int     `json:"segment_count"`
	WordCount      int     `json:"word_count"`
	MeanConfidence float64 `json:"mean_confidence"`
}

// TextChunk is a bounded window over the cleaned text. End is exclusive.
type TextChunk struct {
	Text         string                    `json:"text"`
	Start        int                       `json:"start_idx"`
	End          int                       `json:"end_idx"`
	Speakers     map[string]SpeakerContext `json:"speakers"`
	OverlapsNext bool                      `json:"overlap_next"`
}

// Sentence is a sentence span of the cleaned text.
type Sentence struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// DocumentMetadata describes a preprocessing run.
type DocumentMetadata struct {
	OriginalLength  int           `json:"original_length"`
	ProcessedLength int           `json:"processed_length"`
	Duration        time.Duration `json:"processing_time"`
	Fingerprint     string        `json:"fingerprint"`
	CacheHit        bool          `json:"cache_hit"`
}

// ProcessedDocument is the output of the preprocessing pipeline. It is owned
// by a single request.
type ProcessedDocument struct {
	Text      string           `json:"processed_text"`
	Segments  []SpeakerSegment `json:"speaker_segments"`
	Chunks    []TextChunk      `json:"chunks"`
	Sentences []Sentence       `json:"sentences"`
	Metadata  DocumentMetadata `json:"metadata"`
}

// Clone returns a deep copy so cached documents are never shared mutably.
func (d *ProcessedDocument) Clone() *ProcessedDocument {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Segments = append([]SpeakerSegment(nil), d.Segments...)
	cp.Sentences = append([]Sentence(nil), d.Sentences...)
	cp.Chunks = make([]TextChunk, len(d.Chunks))
	for i, c := range d.Chunks {
		cc := c
		cc.Speakers = make(map[string]SpeakerContext, len(c.Speakers))
		for k, v := range c.Speakers {
			cc.Speakers[k] = v
		}
		cp.Chunks[i] = cc
	}
	return &cp
}

// Speaker returns the label of the segment whose text contains s, if any.
func (d *ProcessedDocument) Speaker(s string) (string, bool) {
	if d == nil || s == "" {
		return "", false
	}
	for _, seg := range d.Segments {
		if containsFold(seg.Text, s) {
			return seg.Speaker, true
		}
	}
	return "", false
}

// SourceFingerprint returns the fingerprint of the raw text the document was
// built from.
func (d *ProcessedDocument) SourceFingerprint() string {
	return d.Metadata.Fingerprint
}
