package topics

import (
	"math"

	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/nlp"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
)

// Weights balances term salience against context coverage in
// AnalyzeRelevance.
type Weights struct {
	TFIDF   float64 `yaml:"tf_idf" json:"tf_idf"`
	Context float64 `yaml:"context" json:"context"`
}

// DefaultWeights are used when both weights are zero.
var DefaultWeights = Weights{TFIDF: 0.6, Context: 0.4}

// Relevance scores a topic against a meeting context.
type Relevance = types.TopicRelevance

// AnalyzeRelevance scores each topic against meetingContext. The TF-IDF
// score is the salience of the topic's terms in the context sentences,
// normalized to the most salient topic. The context score blends that
// salience with the share of the topic's terms that occur in the context.
// Combined is their product.
func AnalyzeRelevance(topics []types.Topic, meetingContext string, weights Weights) map[string]Relevance {
	out := make(map[string]Relevance, len(topics))
	if len(topics) == 0 {
		return out
	}
	if weights.TFIDF == 0 && weights.Context == 0 {
		weights = DefaultWeights
	}
	if sum := weights.TFIDF + weights.Context; sum > 0 {
		weights.TFIDF /= sum
		weights.Context /= sum
	}

	sentences := nlp.Sentences(meetingContext)
	corpus := make([]string, len(sentences))
	for i, s := range sentences {
		corpus[i] = s.Text
	}
	idf := nlp.IDF(corpus)

	tf := map[string]int{}
	tokens := nlp.ContentTokens(meetingContext)
	for _, tok := range tokens {
		tf[tok]++
	}

	raw := make([]float64, len(topics))
	coverage := make([]float64, len(topics))
	maxRaw := 0.0
	for i, t := range topics {
		terms := topicTerms(t)
		present := 0
		for _, term := range terms {
			if tf[term] == 0 {
				continue
			}
			present++
			raw[i] += float64(tf[term]) / float64(len(tokens)) * idf[term]
		}
		if len(terms) > 0 {
			coverage[i] = float64(present) / float64(len(terms))
		}
		maxRaw = math.Max(maxRaw, raw[i])
	}

	for i, t := range topics {
		r := Relevance{}
		if maxRaw > 0 {
			r.TFIDF = raw[i] / maxRaw
		}
		r.Context = types.Clamp01(weights.TFIDF*r.TFIDF + weights.Context*coverage[i])
		r.Combined = r.TFIDF * r.Context
		out[t.Name] = r
	}
	return out
}

func topicTerms(t types.Topic) []string {
	seen := map[string]struct{}{}
	var terms []string
	add := func(s string) {
		for _, tok := range nlp.ContentTokens(s) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			terms = append(terms, tok)
		}
	}
	add(t.Name)
	for _, k := range t.Keywords {
		add(k)
	}
	return terms
}
