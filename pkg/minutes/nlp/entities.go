package nlp

import (
	"regexp"
	"strings"
)

// EntityKind classifies a recognised entity.
type EntityKind string

const (
	EntityPerson EntityKind = "PERSON"
	EntityDate   EntityKind = "DATE"
)

// Entity is a recognised span of text.
type Entity struct {
	Text  string     `json:"text"`
	Kind  EntityKind `json:"kind"`
	Start int        `json:"start"`
	End   int        `json:"end"`
}

var (
	capitalizedRegex = regexp.MustCompile(`\b[A-Z][a-z]+\b`)

	// "assigned to David", "assign to Maria"
	assignedToRegex = regexp.MustCompile(`\bassign(?:ed)? to ([A-Z][a-z]+)`)

	// "John will", "Sarah and Mike to", "Mike needs to"
	subjectRegex = regexp.MustCompile(`\b([A-Z][a-z]+)((?:(?:,| and) [A-Z][a-z]+)*) (?:will|to|needs to|should|must|shall|can|is going to|has to|is to)\b`)

	firstPersonRegex = regexp.MustCompile(`(?i)^\s*(?:i|i'll|i'm|i am|we|we'll|we're)\b`)
)

// notNames are capitalized words that commonly start a sentence in meeting
// transcripts but are not people.
var notNames = func() map[string]struct{} {
	words := []string{
		"action", "item", "items", "please", "team", "urgent", "note", "todo", "task", "speaker", "agenda",
		"everyone", "everybody", "thanks", "thank", "great", "good", "sounds", "maybe", "today", "tomorrow",
		"tonight", "yesterday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
		"january", "february", "march", "april", "may", "june", "july", "august", "september", "october",
		"november", "december", "eod", "eow", "follow", "decision", "summary", "meeting", "first", "second",
		"finally", "someone", "somebody",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}()

func isName(word string) bool {
	lower := strings.ToLower(word)
	if _, ok := notNames[lower]; ok {
		return false
	}
	return !IsStopword(lower)
}

// Entities recognises person names and temporal expressions in text.
func Entities(text string) []Entity {
	var out []Entity
	for _, loc := range capitalizedRegex.FindAllStringIndex(text, -1) {
		word := text[loc[0]:loc[1]]
		if !isName(word) {
			continue
		}
		out = append(out, Entity{Text: word, Kind: EntityPerson, Start: loc[0], End: loc[1]})
	}
	for _, span := range temporalSpans(text) {
		out = append(out, Entity{Text: text[span[0]:span[1]], Kind: EntityDate, Start: span[0], End: span[1]})
	}
	return out
}

// EntityMap flattens entities to text -> kind, the shape stored on action
// item metadata.
func EntityMap(entities []Entity) map[string]string {
	m := make(map[string]string, len(entities))
	for _, e := range entities {
		m[e.Text] = string(e.Kind)
	}
	return m
}

// Assignee resolves who an action item sentence is addressed to: an explicit
// "assigned to X", otherwise the named subject of a commitment ("X will",
// "X and Y to"). Multiple subjects are joined with ", ".
func Assignee(text string) (string, bool) {
	if m := assignedToRegex.FindStringSubmatch(text); m != nil && isName(m[1]) {
		return m[1], true
	}
	for _, m := range subjectRegex.FindAllStringSubmatch(text, -1) {
		if !isName(m[1]) {
			continue
		}
		names := []string{m[1]}
		for _, extra := range strings.FieldsFunc(m[2], func(r rune) bool { return r == ',' || r == ' ' }) {
			if extra == "and" || !isName(extra) {
				continue
			}
			names = append(names, extra)
		}
		return strings.Join(names, ", "), true
	}
	return "", false
}

// FirstPerson reports whether text is a first-person commitment ("I will",
// "We'll"), in which case the assignee is the speaker.
func FirstPerson(text string) bool {
	return firstPersonRegex.MatchString(text)
}

// Priority levels.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

var (
	highPriorityRegex = regexp.MustCompile(`(?i)\b(?:urgent|urgently|asap|critical|immediately|high priority|top priority|blocker|blocking|as soon as possible)\b`)
	lowPriorityRegex  = regexp.MustCompile(`(?i)\b(?:low priority|when possible|whenever|eventually|nice to have|no rush|someday|if time permits)\b`)
)

// Priority classifies the urgency cues of text. Text without cues is medium.
func Priority(text string) string {
	switch {
	case highPriorityRegex.MatchString(text):
		return PriorityHigh
	case lowPriorityRegex.MatchString(text):
		return PriorityLow
	default:
		return PriorityMedium
	}
}
