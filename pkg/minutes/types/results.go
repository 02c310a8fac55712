package types

import "time"

// Topic is a detected topic. Subtopics never exceed their parent's relevance.
type Topic struct {
	Name      string   `json:"topic"`
	Relevance float64  `json:"relevance"`
	Keywords  []string `json:"keywords"`
	Subtopics []Topic  `json:"subtopics,omitempty"`

	// Context scores a top-level topic against the meeting text.
	Context *TopicRelevance `json:"context_relevance,omitempty"`
}

// TopicRelevance scores a topic against a meeting context. All scores are
// in [0, 1].
type TopicRelevance struct {
	TFIDF    float64 `json:"tf_idf_score"`
	Context  float64 `json:"context_score"`
	Combined float64 `json:"combined_score"`
}

// TopicMetadata describes a topic detection run.
type TopicMetadata struct {
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	ModelName           string  `json:"model_name"`
	PerformanceScore    float64 `json:"performance_score"`
}

// TopicResult is the output of the topic detection stage.
type TopicResult struct {
	Topics   []Topic       `json:"topics"`
	Metadata TopicMetadata `json:"metadata"`
}

// ActionItemMetadata is the structured metadata of an action item.
type ActionItemMetadata struct {
	Assignee         string             `json:"assignee,omitempty"`
	Deadline         string             `json:"deadline,omitempty"`
	Priority         string             `json:"priority,omitempty"`
	Status           string             `json:"status"`
	CreatedAt        time.Time          `json:"created_at"`
	Entities         map[string]string  `json:"entities"`
	ConfidenceScores map[string]float64 `json:"confidence_scores"`
}

// Validation is the verdict of an action item validation.
type Validation struct {
	IsValid         bool     `json:"is_valid"`
	ConfidenceCheck bool     `json:"confidence_check"`
	MetadataCheck   bool     `json:"metadata_check"`
	FormatCheck     bool     `json:"format_check"`
	Feedback        []string `json:"feedback"`
}

// ActionItem is a recognised action item.
type ActionItem struct {
	Text       string             `json:"text"`
	Confidence float64            `json:"confidence"`
	Metadata   ActionItemMetadata `json:"metadata"`
	Validation Validation         `json:"validation"`
}

// ActionItemResultMetadata describes an action item recognition run.
type ActionItemResultMetadata struct {
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	ModelName           string  `json:"model_name"`
	Candidates          int     `json:"candidates"`
	Rejected            int     `json:"rejected"`
	PerformanceScore    float64 `json:"performance_score"`
}

// ActionItemResult is the output of the action item stage.
type ActionItemResult struct {
	Items    []ActionItem             `json:"items"`
	Metadata ActionItemResultMetadata `json:"metadata"`
}

// SummaryMetadata describes a summary generation run.
type SummaryMetadata struct {
	QualityScore   float64 `json:"quality_score"`
	ChunkCount     int     `json:"chunk_count"`
	OriginalLength int     `json:"original_length"`
	SummaryLength  int     `json:"summary_length"`
	ModelName      string  `json:"model_name"`
}

// SummaryResult is the output of the summary stage.
type SummaryResult struct {
	Summary  string          `json:"summary"`
	Metadata SummaryMetadata `json:"metadata"`
}

// QualityVerdict is the joint quality gate decision. Never persisted.
type QualityVerdict struct {
	Topics      bool     `json:"topics"`
	ActionItems bool     `json:"action_items"`
	Summary     bool     `json:"summary"`
	Passed      bool     `json:"passed"`
	Reasons     []string `json:"reasons,omitempty"`
}

// MinutesMetadata describes how a result was produced.
type MinutesMetadata struct {
	RequestID      string            `json:"request_id"`
	ProcessingTime time.Duration     `json:"processing_time"`
	Device         string            `json:"device"`
	ModelVersions  map[string]string `json:"model_versions"`
	EngineVersion  string            `json:"engine_version"`
	CacheHit       bool              `json:"cache_hit"`
	Verdict        QualityVerdict    `json:"verdict"`
}

// MinutesResult is the final structured minutes for a meeting.
type MinutesResult struct {
	ID          string           `json:"id"`
	MeetingID   string           `json:"meeting_id"`
	Topics      TopicResult      `json:"topics"`
	ActionItems ActionItemResult `json:"action_items"`
	Summary     SummaryResult    `json:"summary"`
	Metadata    MinutesMetadata  `json:"metadata"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Score is the topic stage performance score.
func (r TopicResult) Score() float64 { return r.Metadata.PerformanceScore }

// Score is the action item stage performance score.
func (r ActionItemResult) Score() float64 { return r.Metadata.PerformanceScore }

// Score is the summary quality score.
func (r SummaryResult) Score() float64 { return r.Metadata.QualityScore }

// Clone returns a deep copy of r.
func (r *MinutesResult) Clone() *MinutesResult {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Topics.Topics = cloneTopics(r.Topics.Topics)
	if r.ActionItems.Items != nil {
		cp.ActionItems.Items = make([]ActionItem, len(r.ActionItems.Items))
		for i, it := range r.ActionItems.Items {
			cp.ActionItems.Items[i] = it.clone()
		}
	}
	cp.Metadata.ModelVersions = cloneStrings(r.Metadata.ModelVersions)
	cp.Metadata.Verdict.Reasons = append([]string(nil), r.Metadata.Verdict.Reasons...)
	return &cp
}

func cloneTopics(in []Topic) []Topic {
	if in == nil {
		return nil
	}
	out := make([]Topic, len(in))
	for i, t := range in {
		t.Keywords = append([]string(nil), t.Keywords...)
		t.Subtopics = cloneTopics(t.Subtopics)
		if t.Context != nil {
			c := *t.Context
			t.Context = &c
		}
		out[i] = t
	}
	return out
}

func (a ActionItem) clone() ActionItem {
	a.Metadata.Entities = cloneStrings(a.Metadata.Entities)
	if a.Metadata.ConfidenceScores != nil {
		scores := make(map[string]float64, len(a.Metadata.ConfidenceScores))
		for k, v := range a.Metadata.ConfidenceScores {
			scores[k] = v
		}
		a.Metadata.ConfidenceScores = scores
	}
	a.Validation.Feedback = append([]string(nil), a.Validation.Feedback...)
	return a
}

func cloneStrings(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
