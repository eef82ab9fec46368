package engine

import (
	"sort"
	"time"

	"github.com/Protocol-Lattice/journal-agent/src/memory/model"
	"github.com/Protocol-Lattice/journal-agent/src/memory/store"
)

// Rank scores nearest-neighbour candidates by (1-boost)*similarity + boost*recency,
// sorts descending and keeps the top k. Similarity is 1 - cosine distance.
// Ties keep candidate order, which is ascending distance.
func Rank(cands []store.Candidate, now time.Time, boost float64, k int) []model.ScoredMemory {
	if k <= 0 || len(cands) == 0 {
		return nil
	}
	out := make([]model.ScoredMemory, 0, len(cands))
	for _, c := range cands {
		sim := 1 - c.Distance
		rec := model.Recency(c.Memory.CreatedAt, now)
		out = append(out, model.ScoredMemory{
			Memory:     c.Memory,
			Score:      model.CombinedScore(sim, rec, boost),
			Similarity: sim,
			Recency:    rec,
			Distance:   c.Distance,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out
}
