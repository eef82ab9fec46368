package store

import (
	"context"
	"errors"
	"time"

	"github.com/Protocol-Lattice/journal-agent/src/memory/model"
)

// ErrNotFound is returned when an id does not address any memory.
var ErrNotFound = errors.New("memory not found")

// Backend persists journal memories. Ranking and embedding happen above it, in the engine.
// Every read except Get excludes soft-deleted memories.
type Backend interface {
	Insert(ctx context.Context, m model.Memory) error
	// Get returns the memory even when soft-deleted, so it stays addressable by id.
	Get(ctx context.Context, id string) (model.Memory, error)
	// Nearest returns up to limit searchable memories of userID ordered by ascending cosine distance.
	Nearest(ctx context.Context, userID string, query []float32, limit int) ([]Candidate, error)
	List(ctx context.Context, f Filter) ([]model.Memory, error)
	Count(ctx context.Context, f Filter) (int, error)
	// SoftDelete flags one memory. It reports false for unknown or already deleted ids.
	SoftDelete(ctx context.Context, id string) (bool, error)
	// SoftDeleteMatching flags every live memory matching f and returns how many changed.
	SoftDeleteMatching(ctx context.Context, f Filter) (int, error)
}

// SchemaInitializer allows stores to expose optional schema/bootstrap routines.
type SchemaInitializer interface {
	CreateSchema(ctx context.Context, schemaPath string) error
}

// TopicGraph is implemented by stores that index memories by topic.
type TopicGraph interface {
	TopicCounts(ctx context.Context, userID string, limit int) ([]TopicCount, error)
	RelatedByTopic(ctx context.Context, id string, limit int) ([]model.Memory, error)
}

// TopicCount pairs a topic with the number of live memories tagged with it.
type TopicCount struct {
	Topic string
	Count int
}

// Candidate is a nearest-neighbour hit before ranking.
type Candidate struct {
	Memory   model.Memory
	Distance float64
}

// Filter selects a user's live memories. Zero Start/End leave that side of the range open.
// Both bounds are inclusive.
type Filter struct {
	UserID string
	Start  time.Time
	End    time.Time
	Limit  int
	// Newest orders results by descending creation time; otherwise ascending.
	Newest bool
}

// Match reports whether m is live, owned by f.UserID and inside the range.
func (f Filter) Match(m model.Memory) bool {
	if m.Deleted || m.UserID != f.UserID {
		return false
	}
	if !f.Start.IsZero() && m.CreatedAt.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && m.CreatedAt.After(f.End) {
		return false
	}
	return true
}
