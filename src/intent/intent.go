// Package intent maps free-form journal utterances onto a closed set of intents.
//
// Several strategies implement the same Classifier contract: regexp rules,
// embedding similarity against reference utterances, and an LLM prompt. Each
// degrades to a deterministic answer instead of returning an error.
package intent

import (
	"context"
	"strings"
	"time"
)

// Intent is the closed set of actions a turn can request.
type Intent string

const (
	LogEntry      Intent = "log_entry"
	AskJournal    Intent = "ask_journal"
	Summarize     Intent = "summarize"
	DeleteEntry   Intent = "delete_entry"
	DeleteRange   Intent = "delete_range"
	DeleteAll     Intent = "delete_all"
	ConfirmDelete Intent = "confirm_delete"
	Help          Intent = "help"
	Unknown       Intent = "unknown"
)

var allIntents = []Intent{LogEntry, AskJournal, Summarize, DeleteEntry, DeleteRange, DeleteAll, ConfirmDelete, Help, Unknown}

// Destructive reports whether the intent asks to remove entries.
func (i Intent) Destructive() bool {
	return i == DeleteEntry || i == DeleteRange || i == DeleteAll
}

// ParseIntent accepts either the lowercase value or the upper-case label ("LOG_ENTRY").
func ParseIntent(s string) (Intent, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, in := range allIntents {
		if string(in) == s {
			return in, true
		}
	}
	return Unknown, false
}

// Route is the output of the reduced three-way router.
type Route string

const (
	RouteLog      Route = "log"
	RouteCalendar Route = "calendar"
	RouteChat     Route = "chat"
)

// Entity keys.
const (
	EntityStart   = "start"
	EntityEnd     = "end"
	EntityEntryID = "entry_id"
	EntityQuery   = "query"
	EntityContent = "content"
)

// Result is one classification.
type Result struct {
	Intent     Intent
	Route      Route
	Confidence float64
	Entities   map[string]string
	Text       string
}

// Calendar reports whether the turn should be answered from the calendar.
func (r Result) Calendar() bool { return r.Route == RouteCalendar }

// DateRange decodes the start/end entities.
func (r Result) DateRange() (start, end time.Time, ok bool) {
	s, okS := r.Entities[EntityStart]
	e, okE := r.Entities[EntityEnd]
	if !okS || !okE {
		return time.Time{}, time.Time{}, false
	}
	start, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	end, err = time.Parse(time.RFC3339Nano, e)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// Classifier maps text to a Result. Implementations never fail; internal errors
// degrade to a deterministic default.
type Classifier interface {
	Classify(ctx context.Context, text string) Result
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(ctx context.Context, text string) Result

func (f ClassifierFunc) Classify(ctx context.Context, text string) Result { return f(ctx, text) }

func routeFor(in Intent) Route {
	switch in {
	case LogEntry:
		return RouteLog
	case AskJournal, Summarize:
		return RouteChat
	}
	return ""
}

func newResult(in Intent, conf float64, text string, entities map[string]string) Result {
	if entities == nil {
		entities = map[string]string{}
	}
	return Result{Intent: in, Route: routeFor(in), Confidence: conf, Entities: entities, Text: text}
}
