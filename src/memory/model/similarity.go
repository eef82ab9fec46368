package model

import (
	"math"
	"time"
)

// RecencyWindow is the age after which an entry no longer earns a recency bonus.
const RecencyWindow = 30 * 24 * time.Hour

// CosineSimilarity computes the cosine similarity between two vectors.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var dot, normA, normB float64
	length := min(len(a), len(b))
	for i := 0; i < length; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// CosineDistance is 1 - cosine similarity, in [0, 2].
func CosineDistance(a, b []float32) float64 {
	return 1 - CosineSimilarity(a, b)
}

// Recency maps an entry age onto [0, 1], linearly decaying to zero over RecencyWindow.
func Recency(createdAt, now time.Time) float64 {
	if createdAt.IsZero() {
		return 0
	}
	age := now.Sub(createdAt)
	if age < 0 {
		age = 0
	}
	score := 1 - float64(age)/float64(RecencyWindow)
	if score < 0 {
		return 0
	}
	return score
}

// CombinedScore blends similarity and recency: (1-boost)*similarity + boost*recency.
func CombinedScore(similarity, recency, boost float64) float64 {
	boost = ClampBoost(boost)
	return (1-boost)*similarity + boost*recency
}

// ClampBoost keeps the recency weight inside [0, 1].
func ClampBoost(boost float64) float64 {
	switch {
	case math.IsNaN(boost), boost < 0:
		return 0
	case boost > 1:
		return 1
	}
	return boost
}
