package intent

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/Protocol-Lattice/journal-agent/src/concurrent"
	"github.com/Protocol-Lattice/journal-agent/src/memory/embed"
	"github.com/Protocol-Lattice/journal-agent/src/memory/model"
)

// DefaultDistanceThreshold is the largest cosine distance accepted as a route match.
const DefaultDistanceThreshold = 0.5

// RouteSpec labels a route with example utterances.
type RouteSpec struct {
	Name       Route
	References []string
}

// DefaultRoutes are the reference utterances of the three-way router.
var DefaultRoutes = []RouteSpec{
	{Name: RouteLog, References: []string{
		"log my note",
		"log my note I had a great day",
		"note this down",
		"note this down meeting went well",
		"record this",
		"journal this",
		"save this entry",
		"remember this",
		"remember this call mom later",
		"add to my journal",
		"write this down",
		"make a note",
		"log entry",
		"I want to log something",
		"let me note that",
		"save this thought",
		"jot this down",
	}},
	{Name: RouteCalendar, References: []string{
		"what's on my calendar",
		"what's my schedule",
		"do I have any meetings",
		"what events do I have",
		"am I free today",
		"am I busy",
		"what appointments do I have",
		"check my calendar",
		"when is my next meeting",
		"what's scheduled for today",
		"show my schedule",
		"any meetings today",
		"what time is my meeting",
		"calendar for this week",
		"do I have anything scheduled",
	}},
	{Name: RouteChat, References: []string{
		"what did I do yesterday",
		"how was my day",
		"tell me about my week",
		"what have I been working on",
		"summarize my journal",
		"what did I write about",
		"find my notes about",
		"search my journal",
		"what did I mention about",
		"remind me what I said",
		"how have I been feeling",
		"what were my thoughts on",
	}},
}

type reference struct {
	route  Route
	vector []float32
}

// SemanticRouter picks the route whose nearest reference utterance is closest
// to the input. References are embedded once, on first use.
type SemanticRouter struct {
	embedder    embed.Embedder
	routes      []RouteSpec
	threshold   float64
	fallback    Classifier
	concurrency int
	logger      *log.Logger

	mu   sync.Mutex
	refs []reference
}

func NewSemanticRouter(embedder embed.Embedder, routes []RouteSpec, threshold float64) *SemanticRouter {
	if len(routes) == 0 {
		routes = DefaultRoutes
	}
	if threshold <= 0 {
		threshold = DefaultDistanceThreshold
	}
	return &SemanticRouter{
		embedder:    embedder,
		routes:      routes,
		threshold:   threshold,
		fallback:    KeywordClassifier{},
		concurrency: 4,
		logger:      log.New(os.Stderr, "intent-router: ", log.LstdFlags),
	}
}

// WithFallback replaces the keyword fallback used when embedding fails.
func (s *SemanticRouter) WithFallback(c Classifier) *SemanticRouter {
	if c != nil {
		s.fallback = c
	}
	return s
}

func (s *SemanticRouter) WithLogger(l *log.Logger) *SemanticRouter {
	if l != nil {
		s.logger = l
	}
	return s
}

func (s *SemanticRouter) references(ctx context.Context) ([]reference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refs != nil {
		return s.refs, nil
	}
	var flat []reference
	var texts []string
	for _, r := range s.routes {
		for _, text := range r.References {
			flat = append(flat, reference{route: r.Name})
			texts = append(texts, text)
		}
	}
	vecs, err := concurrent.ParallelMap(ctx, texts, func(text string) ([]float32, error) {
		return s.embedder.Embed(ctx, text)
	}, s.concurrency)
	if err != nil {
		return nil, fmt.Errorf("embed route references: %w", err)
	}
	for i := range flat {
		flat[i].vector = vecs[i]
	}
	s.refs = flat
	s.logf("initialised %d references over %d routes", len(flat), len(s.routes))
	return s.refs, nil
}

func (s *SemanticRouter) Classify(ctx context.Context, text string) Result {
	if s.embedder == nil {
		return s.fallback.Classify(ctx, text)
	}
	refs, err := s.references(ctx)
	if err != nil {
		s.logf("%v, falling back to keywords", err)
		return s.fallback.Classify(ctx, text)
	}
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		s.logf("embed input: %v, falling back to keywords", err)
		return s.fallback.Classify(ctx, text)
	}
	best, bestDist := Route(""), 2.0
	for _, ref := range refs {
		if d := model.CosineDistance(vec, ref.vector); d < bestDist {
			best, bestDist = ref.route, d
		}
	}
	if best == "" || bestDist >= s.threshold {
		return chatResult(text, 0.5)
	}
	return routeResult(best, 1-bestDist, text)
}

func routeResult(route Route, conf float64, text string) Result {
	switch route {
	case RouteLog:
		return newResult(LogEntry, conf, text, map[string]string{EntityContent: text})
	case RouteCalendar:
		res := newResult(AskJournal, conf, text, map[string]string{EntityQuery: text})
		res.Route = RouteCalendar
		return res
	default:
		return chatResult(text, conf)
	}
}

func (s *SemanticRouter) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
