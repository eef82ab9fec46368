package model

import (
	"sort"
	"strings"
	"time"
)

// Memory is a single journal entry owned by one user.
type Memory struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	SessionID    string    `json:"session_id,omitempty"`
	Text         string    `json:"text"`
	Topics       []string  `json:"topics,omitempty"`
	Mood         string    `json:"mood,omitempty"`
	LanguageCode string    `json:"language_code,omitempty"`
	Embedding    []float32 `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	Deleted      bool      `json:"deleted"`
}

// ScoredMemory is a search hit with its combined score and the parts it was built from.
type ScoredMemory struct {
	Memory     Memory  `json:"memory"`
	Score      float64 `json:"score"`
	Similarity float64 `json:"similarity"`
	Recency    float64 `json:"recency"`
	Distance   float64 `json:"distance"`
}

// Searchable reports whether the memory may take part in similarity search.
func (m Memory) Searchable() bool {
	return !m.Deleted && len(m.Embedding) > 0
}

// HasTopic reports whether topic is in the memory's topic set (case-insensitive).
func (m Memory) HasTopic(topic string) bool {
	topic = strings.ToLower(strings.TrimSpace(topic))
	for _, t := range m.Topics {
		if strings.ToLower(t) == topic {
			return true
		}
	}
	return false
}

// NormalizeTopics trims, lowercases and deduplicates topics. Order is not significant,
// the result is sorted so stored sets compare equal.
func NormalizeTopics(topics []string) []string {
	if len(topics) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(topics))
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (m Memory) Clone() Memory {
	out := m
	if m.Topics != nil {
		out.Topics = append([]string(nil), m.Topics...)
	}
	if m.Embedding != nil {
		out.Embedding = append([]float32(nil), m.Embedding...)
	}
	return out
}

// IDs extracts the ids of the scored hits in order.
func IDs(hits []ScoredMemory) []string {
	if len(hits) == 0 {
		return nil
	}
	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		ids = append(ids, h.Memory.ID)
	}
	return ids
}
