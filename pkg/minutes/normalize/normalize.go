// Package normalize cleans raw transcript text: timestamp markers, speaker
// labels, filler words, stray symbols and Unicode compatibility forms.
package normalize

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"

	merrors "github.com/romuloxaguiar/teste-yfbai3/pkg/errors"
)

var (
	// [00:01:02]
	timestampRegex = regexp.MustCompile(`\[\d{2}:\d{2}:\d{2}\]`)

	// Speaker 3:
	speakerLabelRegex = regexp.MustCompile(`Speaker \d+:`)

	// Anything that is not a letter, digit, underscore, whitespace or . , ! ? -
	disallowedRegex = regexp.MustCompile(`[^\p{L}\p{N}_\s.,!?-]`)

	// Whitespace left in front of punctuation once a word is removed.
	spaceBeforePunctRegex = regexp.MustCompile(`\s+([.,!?])`)

	fillerRegex = compileFillers(DefaultFillerWords)
)

// DefaultFillerWords are removed by RemoveFillers.
var DefaultFillerWords = []string{
	"um", "uh", "ah", "er", "like", "you know", "sort of", "kind of",
	"basically", "actually", "literally", "well", "so", "right",
}

func compileFillers(words []string) *regexp.Regexp {
	sorted := append([]string(nil), words...)
	sort.Slice(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	quoted := make([]string, len(sorted))
	for i, w := range sorted {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b,?`)
}

// Normalize cleans raw transcript text. It removes [HH:MM:SS] markers and
// "Speaker N:" labels, strips characters outside word characters, whitespace
// and ". , ! ? -", and collapses whitespace. The empty string stands for an
// absent transcript and is rejected with an invalid-input error.
func Normalize(raw string) (string, error) {
	if raw == "" {
		return "", merrors.InvalidInput("transcript text is absent")
	}
	return Clean(raw), nil
}

// Clean is Normalize without the absent-input check.
func Clean(raw string) string {
	text := timestampRegex.ReplaceAllString(raw, "")
	text = speakerLabelRegex.ReplaceAllString(text, "")
	text = disallowedRegex.ReplaceAllString(text, "")
	return collapse(text)
}

// StripArtifacts removes timestamp markers and collapses whitespace but keeps
// speaker headers intact so the text can still be segmented.
func StripArtifacts(raw string) string {
	return collapse(timestampRegex.ReplaceAllString(raw, ""))
}

// RemoveFillers removes filler words on word boundaries, together with a
// directly following comma.
func RemoveFillers(text string) string {
	if text == "" {
		return text
	}
	text = fillerRegex.ReplaceAllString(text, "")
	text = collapse(text)
	return spaceBeforePunctRegex.ReplaceAllString(text, "$1")
}

// Unicode applies NFKC normalization and collapses whitespace.
func Unicode(text string) string {
	return collapse(norm.NFKC.String(text))
}

func collapse(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Options selects the normalization passes Apply runs.
type Options struct {
	CleanArtifacts    bool
	RemoveFillerWords bool
	NormalizeText     bool
}

// Normalizer applies a fixed set of passes.
type Normalizer struct {
	opts Options
}

// New returns a Normalizer for opts.
func New(opts Options) *Normalizer {
	return &Normalizer{opts: opts}
}

// Apply runs the enabled passes in order: artifacts, fillers, Unicode.
// Whitespace is always collapsed.
func (n *Normalizer) Apply(text string) string {
	return collapse(n.Compose(n.Prepare(text)))
}

// Prepare runs the artifact and filler passes. Their patterns span several
// words, so Prepare must see the whole text.
func (n *Normalizer) Prepare(text string) string {
	if n.opts.CleanArtifacts {
		text = Clean(text)
	}
	if n.opts.RemoveFillerWords {
		text = RemoveFillers(text)
	}
	return text
}

// Compose runs the Unicode pass when enabled. It leaves whitespace alone, so
// text cut at normalization boundaries can be composed piece by piece and
// rejoined with the same result.
func (n *Normalizer) Compose(text string) string {
	if n.opts.NormalizeText {
		return norm.NFKC.String(text)
	}
	return text
}

// Composes reports whether the Unicode pass is enabled.
func (n *Normalizer) Composes() bool {
	return n.opts.NormalizeText
}
