// Package transcript converts caption and transcript exports into the
// "Speaker: text" form the engine processes.
package transcript

import (
	"bytes"
	"fmt"
	"strings"
)

// Format identifies a transcript encoding.
type Format string

// Supported formats.
const (
	FormatAuto        Format = "auto"
	FormatJSON        Format = "json"
	FormatText        Format = "text"
	FormatVTT         Format = "vtt"
	FormatTimestamped Format = "timestamped"
)

// ParseFormat validates s. An empty string selects FormatAuto.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatAuto, nil
	case FormatAuto, FormatJSON, FormatText, FormatVTT, FormatTimestamped:
		return f, nil
	default:
		return "", fmt.Errorf("invalid transcript format: %q (must be auto, json, text, vtt, or timestamped)", s)
	}
}

// Segment is one utterance.
type Segment struct {
	Speaker string `json:"speaker,omitempty"`
	Text    string `json:"text"`
	StartMs int    `json:"start_ms"`
	EndMs   int    `json:"end_ms"`
}

// Document is a parsed caption or transcript export.
type Document struct {
	Format          Format    `json:"format"`
	Segments        []Segment `json:"segments"`
	Speakers        []string  `json:"speakers"`
	DurationSeconds int       `json:"duration_seconds"`
}

// Text renders the document with one line per speaker turn. Consecutive
// segments from the same speaker are joined into a single turn.
func (d *Document) Text() string {
	var b strings.Builder
	prev := ""
	for i, s := range d.Segments {
		if i > 0 && s.Speaker != "" && s.Speaker == prev {
			b.WriteString(" ")
			b.WriteString(s.Text)
			continue
		}
		if i > 0 {
			b.WriteString("\n")
		}
		if s.Speaker != "" {
			b.WriteString(s.Speaker)
			b.WriteString(": ")
		}
		b.WriteString(s.Text)
		prev = s.Speaker
	}
	return b.String()
}

// Detect guesses the format of data from its first non-blank line.
func Detect(data []byte) Format {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0:
		return FormatText
	case trimmed[0] == '{':
		return FormatJSON
	case bytes.HasPrefix(trimmed, []byte("WEBVTT")):
		return FormatVTT
	}

	first, _, _ := bytes.Cut(trimmed, []byte("\n"))
	if timestampedLineRegex.Match(bytes.TrimSpace(first)) {
		return FormatTimestamped
	}
	return FormatText
}

// Decode parses data as a caption format. Only FormatVTT and
// FormatTimestamped carry segment structure.
func Decode(data []byte, f Format) (*Document, error) {
	switch f {
	case FormatVTT:
		return ParseVTT(bytes.NewReader(data))
	case FormatTimestamped:
		return ParseTimestamped(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("format %q has no segment structure", f)
	}
}

// speakerSet records speakers in first-seen order.
type speakerSet struct {
	seen  map[string]bool
	names []string
}

func newSpeakerSet() *speakerSet {
	return &speakerSet{seen: make(map[string]bool), names: make([]string, 0)}
}

func (s *speakerSet) add(name string) {
	if name == "" || s.seen[name] {
		return
	}
	s.seen[name] = true
	s.names = append(s.names, name)
}
