package nlp

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DeadlineHour is the local hour a date-only deadline resolves to.
const DeadlineHour = 17

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
}

type temporalRule struct {
	re      *regexp.Regexp
	resolve func(m []string, now time.Time) (time.Time, bool)
}

const weekdayAlt = `(monday|tuesday|wednesday|thursday|friday|saturday|sunday)`

var temporalRules = []temporalRule{
	{
		re: regexp.MustCompile(`(?i)\b(\d{4}-\d{2}-\d{2})(?:[T ](\d{2}:\d{2}))?\b`),
		resolve: func(m []string, now time.Time) (time.Time, bool) {
			if m[2] != "" {
				t, err := time.ParseInLocation("2006-01-02 15:04", m[1]+" "+m[2], now.Location())
				return t, err == nil
			}
			d, err := time.ParseInLocation("2006-01-02", m[1], now.Location())
			if err != nil {
				return time.Time{}, false
			}
			return atDeadlineHour(d), true
		},
	},
	{
		re: regexp.MustCompile(`(?i)\b(?:next|by|before|on|this|until|due) ` + weekdayAlt + `\b`),
		resolve: func(m []string, now time.Time) (time.Time, bool) {
			return nextWeekday(now, weekdays[strings.ToLower(m[1])]), true
		},
	},
	{
		re: regexp.MustCompile(`(?i)\btomorrow\b`),
		resolve: func(_ []string, now time.Time) (time.Time, bool) {
			return atDeadlineHour(now.AddDate(0, 0, 1)), true
		},
	},
	{
		re: regexp.MustCompile(`(?i)\b(?:eod|end of (?:the )?day|today|tonight)\b`),
		resolve: func(_ []string, now time.Time) (time.Time, bool) {
			return atDeadlineHour(now), true
		},
	},
	{
		re: regexp.MustCompile(`(?i)\b(?:eow|end of (?:the )?week)\b`),
		resolve: func(_ []string, now time.Time) (time.Time, bool) {
			offset := (int(time.Friday) - int(now.Weekday()) + 7) % 7
			return atDeadlineHour(now.AddDate(0, 0, offset)), true
		},
	},
	{
		re: regexp.MustCompile(`(?i)\bnext week\b`),
		resolve: func(_ []string, now time.Time) (time.Time, bool) {
			return atDeadlineHour(now.AddDate(0, 0, 7)), true
		},
	},
	{
		re: regexp.MustCompile(`(?i)\b(?:end of (?:the )?month|eom)\b`),
		resolve: func(_ []string, now time.Time) (time.Time, bool) {
			firstOfNext := time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, now.Location())
			return atDeadlineHour(firstOfNext.AddDate(0, 0, -1)), true
		},
	},
	{
		re: regexp.MustCompile(`(?i)\bin (\d{1,3}) (day|days|week|weeks)\b`),
		resolve: func(m []string, now time.Time) (time.Time, bool) {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				return time.Time{}, false
			}
			if strings.HasPrefix(strings.ToLower(m[2]), "week") {
				n *= 7
			}
			return atDeadlineHour(now.AddDate(0, 0, n)), true
		},
	},
}

func atDeadlineHour(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), DeadlineHour, 0, 0, 0, t.Location())
}

// nextWeekday returns the first day strictly after now that falls on wd.
func nextWeekday(now time.Time, wd time.Weekday) time.Time {
	offset := (int(wd) - int(now.Weekday()) + 7) % 7
	if offset == 0 {
		offset = 7
	}
	return atDeadlineHour(now.AddDate(0, 0, offset))
}

// Temporal resolves the first temporal expression in text relative to now.
// Date-only expressions resolve to DeadlineHour local time.
func Temporal(text string, now time.Time) (time.Time, bool) {
	best := -1
	var result time.Time
	for _, rule := range temporalRules {
		loc := rule.re.FindStringSubmatchIndex(text)
		if loc == nil || (best >= 0 && loc[0] >= best) {
			continue
		}
		m := submatches(text, loc)
		t, ok := rule.resolve(m, now)
		if !ok {
			continue
		}
		best, result = loc[0], t
	}
	return result, best >= 0
}

func submatches(text string, loc []int) []string {
	m := make([]string, len(loc)/2)
	for i := range m {
		if loc[2*i] >= 0 {
			m[i] = text[loc[2*i]:loc[2*i+1]]
		}
	}
	return m
}

// temporalSpans returns the non-overlapping spans of every temporal
// expression in text, in order.
func temporalSpans(text string) [][2]int {
	var spans [][2]int
	for _, rule := range temporalRules {
		for _, loc := range rule.re.FindAllStringIndex(text, -1) {
			spans = append(spans, [2]int{loc[0], loc[1]})
		}
	}
	sort.Slice(spans, func(i, j int) bool {
		if spans[i][0] != spans[j][0] {
			return spans[i][0] < spans[j][0]
		}
		return spans[i][1] > spans[j][1]
	})
	out := spans[:0]
	lastEnd := -1
	for _, s := range spans {
		if s[0] < lastEnd {
			continue
		}
		out = append(out, s)
		lastEnd = s[1]
	}
	return out
}
