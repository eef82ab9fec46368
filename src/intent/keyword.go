package intent

import (
	"context"
	"strings"
)

// DefaultLogKeywords mark a turn as a note when found anywhere in the text.
var DefaultLogKeywords = []string{"log my note", "note this", "record this", "journal this", "save this", "remember this"}

// KeywordClassifier is the synchronous fallback of the semantic router.
type KeywordClassifier struct {
	Keywords []string
}

func (k KeywordClassifier) Classify(_ context.Context, text string) Result {
	keywords := k.Keywords
	if len(keywords) == 0 {
		keywords = DefaultLogKeywords
	}
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return newResult(LogEntry, 0.8, text, map[string]string{EntityContent: text})
		}
	}
	return chatResult(text, 0.5)
}

func chatResult(text string, conf float64) Result {
	res := newResult(AskJournal, conf, text, map[string]string{EntityQuery: text})
	res.Route = RouteChat
	return res
}
