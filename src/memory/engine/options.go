package engine

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultRecencyBoost is the recency weight used by Search.
const DefaultRecencyBoost = 0.3

// Options configures the memory engine.
type Options struct {
	// RecencyBoost is the default blend weight for Search; zero selects DefaultRecencyBoost.
	// Pass an explicit boost to SearchSimilar to rank purely by similarity.
	RecencyBoost float64
	// CandidateFactor multiplies k to size the nearest-neighbour pool before re-ranking.
	CandidateFactor int
	Clock           func() time.Time
	NewID           func(time.Time) string
}

// DefaultOptions returns the recommended defaults.
func DefaultOptions() Options {
	return Options{
		RecencyBoost:    DefaultRecencyBoost,
		CandidateFactor: 2,
		Clock:           time.Now,
		NewID:           newULID,
	}
}

func (o Options) withDefaults() Options {
	defaults := DefaultOptions()
	if o.RecencyBoost == 0 {
		o.RecencyBoost = defaults.RecencyBoost
	}
	if o.CandidateFactor <= 0 {
		o.CandidateFactor = defaults.CandidateFactor
	}
	if o.Clock == nil {
		o.Clock = defaults.Clock
	}
	if o.NewID == nil {
		o.NewID = defaults.NewID
	}
	return o
}

func newULID(t time.Time) string {
	return ulid.MustNew(ulid.Timestamp(t), ulid.DefaultEntropy()).String()
}
