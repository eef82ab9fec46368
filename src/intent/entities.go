package intent

import (
	"regexp"
	"strings"
	"time"
)

var entryIDPattern = regexp.MustCompile(`(entry|note|recording)\s*#?\s*([a-z0-9]+)`)

// ExtractDateRange maps relative phrases onto a window ending now. Anything it
// does not recognise falls back to the trailing seven days.
func ExtractDateRange(now time.Time, text string) (start, end time.Time) {
	lower := strings.ToLower(text)
	midnight := func(t time.Time) time.Time {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	}
	switch {
	case strings.Contains(lower, "today"):
		return midnight(now), now
	case strings.Contains(lower, "yesterday"):
		y := midnight(now.AddDate(0, 0, -1))
		return y, y.Add(23*time.Hour + 59*time.Minute + 59*time.Second)
	case strings.Contains(lower, "last week"), strings.Contains(lower, "this week"):
		return now.AddDate(0, 0, -7), now
	case strings.Contains(lower, "last month"), strings.Contains(lower, "this month"):
		return now.AddDate(0, 0, -30), now
	default:
		return now.AddDate(0, 0, -7), now
	}
}

func dateEntities(now time.Time, text string) map[string]string {
	start, end := ExtractDateRange(now, text)
	return map[string]string{
		EntityStart: start.Format(time.RFC3339Nano),
		EntityEnd:   end.Format(time.RFC3339Nano),
	}
}

func entryEntities(text string) map[string]string {
	out := map[string]string{}
	if m := entryIDPattern.FindStringSubmatch(strings.ToLower(text)); m != nil {
		out[EntityEntryID] = m[2]
	}
	return out
}

// entitiesFor extracts the entities an intent needs.
func entitiesFor(in Intent, now time.Time, text string) map[string]string {
	switch in {
	case Summarize, DeleteRange:
		return dateEntities(now, text)
	case DeleteEntry:
		return entryEntities(text)
	case AskJournal:
		return map[string]string{EntityQuery: text}
	case LogEntry:
		return map[string]string{EntityContent: text}
	}
	return map[string]string{}
}

// logTriggers are checked in order; longer phrases precede their prefixes.
var logTriggers = []string{
	"log my note",
	"note this down",
	"remember this",
	"remember to",
	"record this",
	"journal this",
	"note this",
	"save this",
}

// StripTrigger removes a leading log trigger phrase and an optional colon.
func StripTrigger(text string) string {
	content := strings.TrimSpace(text)
	for _, trig := range logTriggers {
		if len(content) >= len(trig) && strings.EqualFold(content[:len(trig)], trig) {
			content = strings.TrimSpace(content[len(trig):])
			content = strings.TrimSpace(strings.TrimPrefix(content, ":"))
			break
		}
	}
	return content
}
