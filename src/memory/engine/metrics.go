package engine

import "sync/atomic"

// Metrics captures lightweight runtime counters for observability.
type Metrics struct {
	stored        atomic.Int64
	searches      atomic.Int64
	retrieved     atomic.Int64
	softDeleted   atomic.Int64
	embedFailures atomic.Int64
}

func (m *Metrics) IncStored()            { m.stored.Add(1) }
func (m *Metrics) IncSearch(hits int)    { m.searches.Add(1); m.retrieved.Add(int64(hits)) }
func (m *Metrics) IncSoftDeleted(n int)  { m.softDeleted.Add(int64(n)) }
func (m *Metrics) IncEmbedFailure()      { m.embedFailures.Add(1) }

// MetricsSnapshot is a point-in-time copy of the counters.
type MetricsSnapshot struct {
	Stored        int64 `json:"stored"`
	Searches      int64 `json:"searches"`
	Retrieved     int64 `json:"retrieved"`
	SoftDeleted   int64 `json:"soft_deleted"`
	EmbedFailures int64 `json:"embed_failures"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		Stored:        m.stored.Load(),
		Searches:      m.searches.Load(),
		Retrieved:     m.retrieved.Load(),
		SoftDeleted:   m.softDeleted.Load(),
		EmbedFailures: m.embedFailures.Load(),
	}
}
