package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/Protocol-Lattice/journal-agent/src/memory/embed"
	"github.com/Protocol-Lattice/journal-agent/src/memory/model"
	"github.com/Protocol-Lattice/journal-agent/src/memory/store"
)

// ErrEmptyText is returned when Add receives blank entry text.
var ErrEmptyText = errors.New("memory text is empty")

// ErrNoTopicGraph is returned by topic queries on backends without a topic index.
var ErrNoTopicGraph = errors.New("backend does not index topics")

// Default long-term search parameters.
const (
	LongTermLimit             = 5
	LongTermDistanceThreshold = 0.8
)

// AddParams describes a new journal entry.
type AddParams struct {
	UserID       string
	SessionID    string
	Text         string
	Topics       []string
	Mood         string
	LanguageCode string
}

// Engine is the journal memory store: it embeds entries, ranks search hits by
// similarity and recency, and soft deletes. Persistence is delegated to a Backend.
type Engine struct {
	backend  store.Backend
	embedder embed.Embedder
	opts     Options
	metrics  *Metrics
	logger   *log.Logger
}

// NewEngine wires a memory engine over backend with a dummy embedder.
func NewEngine(backend store.Backend, opts Options) *Engine {
	return &Engine{
		backend:  backend,
		embedder: embed.DummyEmbedder{},
		opts:     opts.withDefaults(),
		metrics:  &Metrics{},
		logger:   log.New(os.Stderr, "memory-engine: ", log.LstdFlags),
	}
}

// WithEmbedder sets the embedder used for entries and queries.
func (e *Engine) WithEmbedder(embedder embed.Embedder) *Engine {
	if embedder != nil {
		e.embedder = embedder
	}
	return e
}

// WithLogger overrides the engine logger.
func (e *Engine) WithLogger(l *log.Logger) *Engine {
	if l != nil {
		e.logger = l
	}
	return e
}

// Metrics exposes the engine counters.
func (e *Engine) Metrics() *Metrics { return e.metrics }

// Backend returns the underlying persistence layer.
func (e *Engine) Backend() store.Backend { return e.backend }

// Add embeds and stores a new entry and returns its id. Entries that cannot be
// embedded are still stored, they just never appear in similarity search.
func (e *Engine) Add(ctx context.Context, p AddParams) (string, error) {
	if e == nil || e.backend == nil {
		return "", errors.New("memory engine is not configured")
	}
	text := strings.TrimSpace(p.Text)
	if text == "" {
		return "", ErrEmptyText
	}
	now := e.opts.Clock().UTC()
	m := model.Memory{
		ID:           e.opts.NewID(now),
		UserID:       p.UserID,
		SessionID:    p.SessionID,
		Text:         text,
		Topics:       model.NormalizeTopics(p.Topics),
		Mood:         p.Mood,
		LanguageCode: p.LanguageCode,
		CreatedAt:    now,
	}
	vec, err := e.embedder.Embed(ctx, text)
	if err != nil {
		e.metrics.IncEmbedFailure()
		e.logf("embed entry for %s: %v", p.UserID, err)
	} else {
		m.Embedding = vec
	}
	if err := e.backend.Insert(ctx, m); err != nil {
		return "", fmt.Errorf("store memory: %w", err)
	}
	e.metrics.IncStored()
	return m.ID, nil
}

// Search ranks the user's entries against query with the configured recency boost.
func (e *Engine) Search(ctx context.Context, userID, query string, k int) ([]model.ScoredMemory, error) {
	return e.SearchSimilar(ctx, userID, query, k, e.opts.RecencyBoost)
}

// SearchSimilar fetches CandidateFactor*k nearest neighbours and re-ranks them by
// (1-boost)*similarity + boost*recency.
func (e *Engine) SearchSimilar(ctx context.Context, userID, query string, k int, boost float64) ([]model.ScoredMemory, error) {
	if k <= 0 || strings.TrimSpace(query) == "" {
		return nil, nil
	}
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		e.metrics.IncEmbedFailure()
		return nil, fmt.Errorf("embed query: %w", err)
	}
	cands, err := e.backend.Nearest(ctx, userID, vec, k*e.opts.CandidateFactor)
	if err != nil {
		return nil, fmt.Errorf("nearest: %w", err)
	}
	hits := Rank(cands, e.opts.Clock(), model.ClampBoost(boost), k)
	e.metrics.IncSearch(len(hits))
	return hits, nil
}

// LongTermSearch returns up to LongTermLimit entries whose cosine distance to
// query is within LongTermDistanceThreshold, ranked by similarity alone.
func (e *Engine) LongTermSearch(ctx context.Context, userID, query string) ([]model.ScoredMemory, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		e.metrics.IncEmbedFailure()
		return nil, fmt.Errorf("embed query: %w", err)
	}
	cands, err := e.backend.Nearest(ctx, userID, vec, LongTermLimit)
	if err != nil {
		return nil, fmt.Errorf("nearest: %w", err)
	}
	kept := cands[:0]
	for _, c := range cands {
		if c.Distance <= LongTermDistanceThreshold {
			kept = append(kept, c)
		}
	}
	hits := Rank(kept, e.opts.Clock(), 0, LongTermLimit)
	e.metrics.IncSearch(len(hits))
	return hits, nil
}

// Get returns a live entry. Soft-deleted entries report store.ErrNotFound.
func (e *Engine) Get(ctx context.Context, id string) (model.Memory, error) {
	m, err := e.backend.Get(ctx, id)
	if err != nil {
		return model.Memory{}, err
	}
	if m.Deleted {
		return model.Memory{}, store.ErrNotFound
	}
	return m, nil
}

// Audit returns an entry whether or not it was soft deleted.
func (e *Engine) Audit(ctx context.Context, id string) (model.Memory, error) {
	return e.backend.Get(ctx, id)
}

// SoftDelete flags a single entry owned by userID. It reports false when the entry
// is unknown, belongs to someone else or was already deleted.
func (e *Engine) SoftDelete(ctx context.Context, userID, id string) (bool, error) {
	m, err := e.backend.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if m.UserID != userID || m.Deleted {
		return false, nil
	}
	ok, err := e.backend.SoftDelete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("soft delete %s: %w", id, err)
	}
	if ok {
		e.metrics.IncSoftDeleted(1)
	}
	return ok, nil
}

// DeleteByDateRange soft deletes the user's live entries created in [start, end].
func (e *Engine) DeleteByDateRange(ctx context.Context, userID string, start, end time.Time) (int, error) {
	n, err := e.backend.SoftDeleteMatching(ctx, store.Filter{UserID: userID, Start: start, End: end})
	if err != nil {
		return 0, fmt.Errorf("delete range: %w", err)
	}
	e.metrics.IncSoftDeleted(n)
	return n, nil
}

// DeleteAll soft deletes every live entry of the user.
func (e *Engine) DeleteAll(ctx context.Context, userID string) (int, error) {
	n, err := e.backend.SoftDeleteMatching(ctx, store.Filter{UserID: userID})
	if err != nil {
		return 0, fmt.Errorf("delete all: %w", err)
	}
	e.metrics.IncSoftDeleted(n)
	return n, nil
}

// CountByDateRange counts live entries in [start, end].
func (e *Engine) CountByDateRange(ctx context.Context, userID string, start, end time.Time) (int, error) {
	return e.backend.Count(ctx, store.Filter{UserID: userID, Start: start, End: end})
}

// EntryCount counts all live entries of the user.
func (e *Engine) EntryCount(ctx context.Context, userID string) (int, error) {
	return e.backend.Count(ctx, store.Filter{UserID: userID})
}

// Recent returns the user's newest live entries, newest first.
func (e *Engine) Recent(ctx context.Context, userID string, limit int) ([]model.Memory, error) {
	return e.backend.List(ctx, store.Filter{UserID: userID, Limit: limit, Newest: true})
}

// ListByDateRange returns live entries in [start, end], oldest first.
func (e *Engine) ListByDateRange(ctx context.Context, userID string, start, end time.Time, limit int) ([]model.Memory, error) {
	return e.backend.List(ctx, store.Filter{UserID: userID, Start: start, End: end, Limit: limit})
}

// TopicCounts returns the user's most frequent topics when the backend keeps a topic graph.
func (e *Engine) TopicCounts(ctx context.Context, userID string, limit int) ([]store.TopicCount, error) {
	g, ok := e.backend.(store.TopicGraph)
	if !ok {
		return nil, ErrNoTopicGraph
	}
	return g.TopicCounts(ctx, userID, limit)
}

// Related returns entries sharing topics with id when the backend keeps a topic graph.
func (e *Engine) Related(ctx context.Context, id string, limit int) ([]model.Memory, error) {
	g, ok := e.backend.(store.TopicGraph)
	if !ok {
		return nil, ErrNoTopicGraph
	}
	return g.RelatedByTopic(ctx, id, limit)
}

func (e *Engine) logf(format string, args ...any) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
	}
}
