// Package segment splits transcript text into speaker-attributed segments.
package segment

import (
	"math"
	"regexp"
	"strings"

	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/normalize"
	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
)

// fullConfidenceWords is the segment length at which confidence reaches 1.
const fullConfidenceWords = 5

// Speaker 2:  or  Jane Doe:
var headerRegex = regexp.MustCompile(`(Speaker \d+|[A-Z][a-z]+ [A-Z][a-z]+):\s*`)

// Segment splits text at speaker headers. Each segment runs from its header
// to the next header or the end of text. Text without headers yields an
// empty slice.
func Segment(text string) []types.SpeakerSegment {
	matches := headerRegex.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return []types.SpeakerSegment{}
	}

	segments := make([]types.SpeakerSegment, 0, len(matches))
	for i, m := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		content := normalize.Clean(strings.TrimSpace(text[m[1]:end]))
		segments = append(segments, types.SpeakerSegment{
			Speaker:    text[m[2]:m[3]],
			Text:       content,
			Confidence: Confidence(content),
			Start:      m[0],
			End:        end,
		})
	}
	return segments
}

// Align moves segment offsets computed against source onto text, the form
// of source produced by clean. Segments are located in order, each by the
// cleaned form of its source span; a segment that cannot be located gets an
// empty span at the end of the previous one.
func Align(segments []types.SpeakerSegment, source, text string, clean func(string) string) {
	cursor := 0
	for i := range segments {
		s := &segments[i]
		var needle string
		if 0 <= s.Start && s.Start <= s.End && s.End <= len(source) {
			needle = clean(source[s.Start:s.End])
		}

		start, end := cursor, cursor
		if needle != "" {
			if idx := strings.Index(text[cursor:], needle); idx >= 0 {
				start = cursor + idx
				end = start + len(needle)
			}
		}
		s.Start, s.End = start, end
		cursor = end
	}
}

// Confidence scores a segment by its length: min(1, words/5).
func Confidence(text string) float64 {
	return math.Min(1.0, float64(len(strings.Fields(text)))/fullConfidenceWords)
}

// SpeakerContexts aggregates segments per speaker label.
func SpeakerContexts(segments []types.SpeakerSegment) map[string]types.SpeakerContext {
	out := make(map[string]types.SpeakerContext)
	for _, s := range segments {
		c := out[s.Speaker]
		c.Label = s.Speaker
		c.MeanConfidence = (c.MeanConfidence*float64(c.SegmentCount) + s.Confidence) / float64(c.SegmentCount+1)
		c.SegmentCount++
		c.WordCount += len(strings.Fields(s.Text))
		out[s.Speaker] = c
	}
	return out
}
