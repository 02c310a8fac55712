package transcript

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// 0:11 : Speaker Name : text  or  1:02:03 : Speaker Name (she/her) : text
var timestampedLineRegex = regexp.MustCompile(`^(?:(\d+):)?(\d+):(\d{2})\s*:\s*([^:]+?)\s*:\s*(.+)$`)

// ParseTimestamped parses a "timestamp : speaker : text" transcript export.
// Lines that do not match are skipped. A segment ends where the next one
// starts; the last segment has zero length.
func ParseTimestamped(r io.Reader) (*Document, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	doc := &Document{Format: FormatTimestamped, Segments: make([]Segment, 0)}
	speakers := newSpeakerSet()
	var lastMs int

	for scanner.Scan() {
		m := timestampedLineRegex.FindStringSubmatch(strings.TrimSpace(scanner.Text()))
		if m == nil {
			continue
		}

		hours := 0
		if m[1] != "" {
			hours, _ = strconv.Atoi(m[1])
		}
		minutes, _ := strconv.Atoi(m[2])
		seconds, _ := strconv.Atoi(m[3])
		startMs := ((hours*60+minutes)*60 + seconds) * 1000

		if n := len(doc.Segments); n > 0 {
			doc.Segments[n-1].EndMs = startMs
		}

		speaker := strings.TrimSpace(m[4])
		doc.Segments = append(doc.Segments, Segment{
			Speaker: speaker,
			Text:    strings.TrimSpace(m[5]),
			StartMs: startMs,
			EndMs:   startMs,
		})
		speakers.add(speaker)

		if startMs > lastMs {
			lastMs = startMs
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	doc.Speakers = speakers.names
	doc.DurationSeconds = lastMs / 1000
	return doc, nil
}
