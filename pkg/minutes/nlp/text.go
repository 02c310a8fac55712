// Package nlp provides the lightweight language helpers the analysis stages
// rely on: tokenization, sentence spans, keyword extraction, entity and
// temporal expression recognition, priority cues and assignee resolution.
package nlp

import (
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
)

var (
	tokenRegex    = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceRegex = regexp.MustCompile(`[^.!?]+(?:[.!?]+|$)`)
)

var stopwords = func() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by",
		"with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those",
		"from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about",
		"between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too",
		"very", "can", "will", "just", "don", "should", "now", "i", "we", "you", "he", "she", "they", "me", "us",
		"him", "her", "them", "my", "our", "your", "his", "their", "its", "do", "does", "did", "have", "has",
		"had", "not", "no", "yes", "all", "any", "some", "what", "which", "who", "when", "where", "why", "how",
		"there", "here", "also", "let", "lets", "let's", "okay", "ok", "would", "could", "need", "needs", "going",
		"get", "got", "make", "sure", "think", "know", "one", "well", "right", "like", "really", "next",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

// IsStopword reports whether the lower-cased token w carries no content.
func IsStopword(w string) bool {
	_, ok := stopwords[w]
	return ok
}

// Tokens returns the lower-cased word tokens of text.
func Tokens(text string) []string {
	return tokenRegex.FindAllString(strings.ToLower(text), -1)
}

// ContentTokens returns Tokens without stopwords and one or two letter words.
func ContentTokens(text string) []string {
	all := Tokens(text)
	out := all[:0]
	for _, t := range all {
		if len([]rune(t)) < 3 || IsStopword(t) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// WordCount counts whitespace separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// Sentences splits text on '.', '!' and '?' and returns trimmed spans with
// their offsets into text. A trailing fragment without a terminal is kept.
func Sentences(text string) []types.Sentence {
	var out []types.Sentence
	for _, loc := range sentenceRegex.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		for start < end && isSpace(text[start]) {
			start++
		}
		for end > start && isSpace(text[end-1]) {
			end--
		}
		if start == end || !tokenRegex.MatchString(text[start:end]) {
			continue
		}
		out = append(out, types.Sentence{Text: text[start:end], Start: start, End: end})
	}
	return out
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r'
}

// Keywords returns up to n content words of text ranked by frequency. Ties
// are broken alphabetically so the result is deterministic.
func Keywords(text string, n int) []string {
	if n <= 0 {
		return nil
	}
	freq := map[string]int{}
	for _, tok := range ContentTokens(text) {
		freq[tok]++
	}
	words := make([]string, 0, len(freq))
	for w := range freq {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if freq[words[i]] != freq[words[j]] {
			return freq[words[i]] > freq[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > n {
		words = words[:n]
	}
	return words
}

// IDF computes smoothed inverse document frequencies of the content words
// of corpus: ln((1+N)/(1+df)) + 1.
func IDF(corpus []string) map[string]float64 {
	df := map[string]int{}
	for _, doc := range corpus {
		seen := map[string]struct{}{}
		for _, tok := range ContentTokens(doc) {
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			df[tok]++
		}
	}
	n := float64(len(corpus))
	idf := make(map[string]float64, len(df))
	for term, count := range df {
		idf[term] = math.Log((1+n)/(1+float64(count))) + 1.0
	}
	return idf
}

// Jaccard is the token-set similarity of a and b in [0, 1].
func Jaccard(a, b string) float64 {
	sa, sb := tokenSet(a), tokenSet(b)
	if len(sa) == 0 && len(sb) == 0 {
		return 1
	}
	inter := 0
	for t := range sa {
		if _, ok := sb[t]; ok {
			inter++
		}
	}
	union := len(sa) + len(sb) - inter
	return float64(inter) / float64(union)
}

func tokenSet(text string) map[string]struct{} {
	set := map[string]struct{}{}
	for _, t := range Tokens(text) {
		set[t] = struct{}{}
	}
	return set
}
