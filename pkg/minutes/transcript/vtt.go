package transcript

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"
)

const maxLineSize = 1024 * 1024

var (
	// 1 "Speaker Name" (123)  or  1 "" (0)
	vttSpeakerHeaderRegex = regexp.MustCompile(`^\d+\s+"([^"]*)"(?:\s+\((\d+)\))?$`)

	// 00:00:05.579 --> 00:00:06.858 [cue settings]; hours are optional.
	vttTimingRegex = regexp.MustCompile(`^((?:\d{2,}:)?\d{2}:\d{2}\.\d{3})\s+-->\s+((?:\d{2,}:)?\d{2}:\d{2}\.\d{3})`)

	// <v Speaker Name>text  or  <v.loud Speaker Name>text
	vttVoiceRegex = regexp.MustCompile(`^<v(?:\.[^\s>]+)?\s+([^>]+)>(.*)$`)

	// Alan Dickens: text
	vttNamePrefixRegex = regexp.MustCompile(`^([A-Z][\w.'-]*(?: [A-Z][\w.'-]*){0,3}):\s+(.+)$`)

	vttTagRegex = regexp.MustCompile(`</?[^>]+>`)
)

// ParseVTT parses a WebVTT caption file. Speakers are taken from a quoted
// header line before the cue timing, a <v> voice tag, or a "Name: " prefix
// on the cue text. Blocks without a valid cue timing are skipped.
func ParseVTT(r io.Reader) (*Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	doc := &Document{Format: FormatVTT, Segments: make([]Segment, 0)}
	speakers := newSpeakerSet()
	var lastEndMs int

	var block []string
	flush := func() {
		defer func() { block = block[:0] }()
		seg, ok := parseVTTCue(block)
		if !ok {
			return
		}
		doc.Segments = append(doc.Segments, seg)
		speakers.add(seg.Speaker)
		if seg.EndMs > lastEndMs {
			lastEndMs = seg.EndMs
		}
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			flush()
			continue
		}
		block = append(block, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	flush()

	doc.Speakers = speakers.names
	doc.DurationSeconds = lastEndMs / 1000
	return doc, nil
}

// parseVTTCue turns one blank-line separated block into a segment.
func parseVTTCue(block []string) (Segment, bool) {
	timing := -1
	for i, line := range block {
		if vttTimingRegex.MatchString(line) {
			timing = i
			break
		}
	}
	if timing < 0 {
		return Segment{}, false
	}

	var seg Segment
	for _, line := range block[:timing] {
		if m := vttSpeakerHeaderRegex.FindStringSubmatch(line); m != nil {
			seg.Speaker = m[1]
		}
	}

	m := vttTimingRegex.FindStringSubmatch(block[timing])
	seg.StartMs = parseVTTTimestamp(m[1])
	seg.EndMs = parseVTTTimestamp(m[2])

	texts := make([]string, 0, len(block)-timing-1)
	for _, line := range block[timing+1:] {
		if vm := vttVoiceRegex.FindStringSubmatch(line); vm != nil {
			if seg.Speaker == "" {
				seg.Speaker = strings.TrimSpace(vm[1])
			}
			line = vm[2]
		}
		line = strings.TrimSpace(vttTagRegex.ReplaceAllString(line, ""))
		if line != "" {
			texts = append(texts, line)
		}
	}
	seg.Text = strings.Join(texts, " ")

	if seg.Speaker == "" {
		if nm := vttNamePrefixRegex.FindStringSubmatch(seg.Text); nm != nil {
			seg.Speaker = nm[1]
			seg.Text = nm[2]
		}
	}

	return seg, seg.Text != ""
}

// parseVTTTimestamp converts [HH:]MM:SS.mmm to milliseconds.
func parseVTTTimestamp(ts string) int {
	parts := strings.Split(ts, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}

	hours := 0
	if len(parts) == 3 {
		hours, _ = strconv.Atoi(parts[0])
		parts = parts[1:]
	}
	minutes, _ := strconv.Atoi(parts[0])

	secParts := strings.SplitN(parts[1], ".", 2)
	seconds, _ := strconv.Atoi(secParts[0])
	millis := 0
	if len(secParts) == 2 {
		millis, _ = strconv.Atoi(secParts[1])
	}

	return hours*3600000 + minutes*60000 + seconds*1000 + millis
}
