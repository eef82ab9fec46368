package intent

import (
	"context"
	"regexp"
	"strings"
	"time"
)

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

var (
	confirmPatterns = compile(
		`^(yes,? )?confirm delete`,
		`^yes,? (delete|remove|erase)`,
		`^(i )?confirm`,
	)
	helpPatterns = compile(
		`^help$`,
		`what can you do`,
		`how (do i|can i|does this) (use|work)`,
		`show (me )?(commands|capabilities|features)`,
	)
	deleteAllPatterns = compile(
		`delete (all|everything|all my)`,
		`clear (all|my entire|everything)`,
		`erase (all|everything|my entire)`,
		`wipe (all|everything|my)`,
	)
	deleteRangePatterns = compile(
		`delete (entries|notes|recordings) from`,
		`delete (everything|all) from (last|this|yesterday)`,
		`clear (entries|notes) (from|between)`,
	)
	deleteEntryPatterns = compile(
		`delete (the |my )?(entry|note|recording)`,
		`remove (the |my )?(entry|note|recording)`,
		`erase (the |my )?(entry|note|recording)`,
		`^(delete|remove|erase) (that|this|it)( one| entry| note)?[.!]?$`,
	)
	summarizePatterns = compile(
		`^summari[sz]e\b`,
		`summarize (my|the)? ?(last|past|this|yesterday)`,
		`(give me|show me|what's) (a )?summary`,
		`how (have i been|was i|am i) (doing|feeling)`,
		`what('ve| have) i (been|talked about|recorded)`,
		`recap (of )?(my|the|this|last)`,
		`overview of (my|the) (week|month|day|entries)`,
	)
	askPatterns = compile(
		`what did i (say|mention|write|record|note) about`,
		`when did i (last )?(talk|mention|say|write) about`,
		`have i (ever )?(mentioned|said|written|talked) about`,
		`find (entries|notes|recordings) (about|with|containing)`,
		`search (for|my) (entries|notes|journal)`,
		`do i have any (notes|entries) (about|on|regarding)`,
	)
	calendarPatterns = compile(
		`\b(my|the) (calendar|schedule|agenda)\b`,
		`\b(any|my|next) (meetings?|appointments?|events?)\b`,
		`^am i (free|busy|available)\b`,
		`what('s| is) (on|scheduled)\b`,
		`\b(anything|something) scheduled\b`,
	)
	questionPatterns = compile(
		`^(what|when|where|who|how|why|which|did|do|does|is|are|was|were|has|have|can|could|will|would)\b.*\??\s*$`,
		`^tell me (about|what|when|where)`,
		`^(show|give) me`,
	)
	logPatterns = compile(
		`^(log|record|add|save|note|journal|write down|remember)\b`,
		`^(today|this morning|tonight|right now)\b.*\bi\b`,
		`^i (want to|need to|'d like to) (log|record|note|journal)`,
		`^(here's|here is) (my|a) (note|entry|journal)`,
	)
)

var interrogatives = []string{"what", "when", "how", "why", "where", "who", "did", "have", "do"}

type rule struct {
	intent     Intent
	confidence float64
	patterns   []*regexp.Regexp
	// route overrides the intent's default route when set.
	route Route
}

// Ordered by priority. Log triggers are anchored verbs, so they are tried
// before calendar phrases ("remember my meeting with Sam" is a note).
var rules = []rule{
	{ConfirmDelete, 0.95, confirmPatterns, ""},
	{Help, 0.95, helpPatterns, ""},
	{DeleteAll, 0.85, deleteAllPatterns, ""},
	{DeleteRange, 0.85, deleteRangePatterns, ""},
	{DeleteEntry, 0.85, deleteEntryPatterns, ""},
	{Summarize, 0.85, summarizePatterns, ""},
	{AskJournal, 0.85, askPatterns, ""},
	{LogEntry, 0.85, logPatterns, ""},
	{AskJournal, 0.85, calendarPatterns, RouteCalendar},
	{AskJournal, 0.85, questionPatterns, ""},
}

// RuleClassifier classifies with ordered regular expressions.
type RuleClassifier struct {
	now func() time.Time
}

func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{now: time.Now}
}

// WithClock overrides the time source used for date entities.
func (r *RuleClassifier) WithClock(now func() time.Time) *RuleClassifier {
	if now != nil {
		r.now = now
	}
	return r
}

// Match returns the first matching rule, or false when only the default applies.
func (r *RuleClassifier) Match(text string) (Result, bool) {
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, rl := range rules {
		for _, p := range rl.patterns {
			if p.MatchString(lower) {
				res := newResult(rl.intent, rl.confidence, text, entitiesFor(rl.intent, r.now(), text))
				if rl.route != "" {
					res.Route = rl.route
				}
				return res, true
			}
		}
	}
	return Result{}, false
}

func (r *RuleClassifier) Classify(_ context.Context, text string) Result {
	if res, ok := r.Match(text); ok {
		return res
	}
	return defaultResult(text, 0.5)
}

// defaultResult treats questions as journal queries and everything else as a note.
func defaultResult(text string, conf float64) Result {
	if looksLikeQuestion(text) {
		return newResult(AskJournal, conf, text, map[string]string{EntityQuery: text})
	}
	return newResult(LogEntry, conf, text, map[string]string{EntityContent: text})
}

func looksLikeQuestion(text string) bool {
	if strings.Contains(text, "?") {
		return true
	}
	lower := strings.ToLower(strings.TrimSpace(text))
	for _, w := range interrogatives {
		if strings.HasPrefix(lower, w) {
			return true
		}
	}
	return false
}
