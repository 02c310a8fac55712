// Package chunk splits long text into bounded, optionally overlapping chunks
// that carry the context of the speakers they mention.
package chunk

import (
	"strings"
	"unicode/utf8"

	"github.com/romuloxaguiar/teste-yfbai3/pkg/minutes/types"
)

// OverlapWidth is the number of bytes shared by adjacent chunks when overlap
// is preserved.
const OverlapWidth = 100

// bytesPerChar is the device memory reserved per chunk character by Budget.
const bytesPerChar = 1024 * 1024 * 4

// MemoryProbe reports free accelerator memory. ok is false when no
// accelerator is present.
type MemoryProbe interface {
	FreeMemory() (free uint64, ok bool)
}

// StaticProbe is a MemoryProbe with a fixed answer.
type StaticProbe struct {
	Free      uint64
	Available bool
}

// FreeMemory implements MemoryProbe.
func (p StaticProbe) FreeMemory() (uint64, bool) {
	return p.Free, p.Available
}

// Budget returns the chunk target size: the configured maximum, lowered to a
// conservative fraction of free device memory when the probe reports an
// accelerator. It never exceeds configuredMax and is at least 1.
func Budget(configuredMax int, probe MemoryProbe) int {
	target := configuredMax
	if probe != nil {
		if free, ok := probe.FreeMemory(); ok {
			if limit := free / bytesPerChar; limit < uint64(target) {
				target = int(limit)
			}
		}
	}
	if target < 1 {
		target = 1
	}
	return target
}

// Chunk splits text into windows of roughly targetSize bytes.
//
// With preserveOverlap, a window that would end inside the text is extended
// to include the next '.', '!' or '?', and the next window starts
// OverlapWidth bytes before the end of the previous one. The start always
// advances by at least max(1, targetSize-OverlapWidth) with overlap and by at
// least 1 without, so the loop terminates for any input.
//
// Each chunk's speaker map is restricted to labels that appear in its text.
func Chunk(text string, targetSize int, speakers map[string]types.SpeakerContext, preserveOverlap bool) []types.TextChunk {
	n := len(text)
	if n == 0 {
		return nil
	}
	if targetSize < 1 {
		targetSize = 1
	}

	minAdvance := 1
	if preserveOverlap && targetSize-OverlapWidth > minAdvance {
		minAdvance = targetSize - OverlapWidth
	}

	chunks := make([]types.TextChunk, 0, n/targetSize+1)
	start := 0
	for start < n {
		end := start + targetSize
		if end >= n {
			end = n
		} else if preserveOverlap {
			end = sentenceEnd(text, end)
		} else {
			end = alignForward(text, end)
		}

		body := text[start:end]
		chunks = append(chunks, types.TextChunk{
			Text:         body,
			Start:        start,
			End:          end,
			Speakers:     restrictSpeakers(body, speakers),
			OverlapsNext: preserveOverlap && end < n,
		})
		if end >= n {
			break
		}

		next := end
		if preserveOverlap {
			next = end - OverlapWidth
		}
		if next < start+minAdvance {
			next = start + minAdvance
		}
		start = alignForward(text, next)
	}
	return chunks
}

// sentenceEnd returns the index just past the first sentence terminal at or
// after i, or len(text) when there is none.
func sentenceEnd(text string, i int) int {
	if j := strings.IndexAny(text[i:], ".!?"); j >= 0 {
		return i + j + 1
	}
	return len(text)
}

// alignForward moves i to the next rune boundary.
func alignForward(text string, i int) int {
	for i < len(text) && !utf8.RuneStart(text[i]) {
		i++
	}
	return i
}

func restrictSpeakers(body string, speakers map[string]types.SpeakerContext) map[string]types.SpeakerContext {
	out := make(map[string]types.SpeakerContext)
	for label, ctx := range speakers {
		if label != "" && strings.Contains(body, label) {
			out[label] = ctx
		}
	}
	return out
}

// MaxSteps is the upper bound on the number of chunks Chunk produces for a
// text of length n.
func MaxSteps(n, targetSize int) int {
	step := targetSize - OverlapWidth
	if step < 1 {
		step = 1
	}
	return (n + step - 1) / step
}
