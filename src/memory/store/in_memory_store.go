package store

import (
	"context"
	"sort"
	"sync"

	"github.com/Protocol-Lattice/journal-agent/src/memory/model"
)

// InMemoryStore keeps memories in process. Each user has a timeline ordered by creation time.
type InMemoryStore struct {
	mu        sync.RWMutex
	records   map[string]model.Memory
	timelines map[string][]string
}

var _ Backend = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records:   make(map[string]model.Memory),
		timelines: make(map[string][]string),
	}
}

func (s *InMemoryStore) Insert(_ context.Context, m model.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[m.ID] = m.Clone()

	line := s.timelines[m.UserID]
	idx := sort.Search(len(line), func(i int) bool {
		return s.records[line[i]].CreatedAt.After(m.CreatedAt)
	})
	line = append(line, "")
	copy(line[idx+1:], line[idx:])
	line[idx] = m.ID
	s.timelines[m.UserID] = line
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.records[id]
	if !ok {
		return model.Memory{}, ErrNotFound
	}
	return m.Clone(), nil
}

func (s *InMemoryStore) Nearest(_ context.Context, userID string, query []float32, limit int) ([]Candidate, error) {
	if limit <= 0 || len(query) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	out := make([]Candidate, 0, len(s.timelines[userID]))
	for _, id := range s.timelines[userID] {
		m := s.records[id]
		if !m.Searchable() {
			continue
		}
		out = append(out, Candidate{Memory: m.Clone(), Distance: model.CosineDistance(query, m.Embedding)})
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) List(_ context.Context, f Filter) ([]model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(f), nil
}

func (s *InMemoryStore) Count(_ context.Context, f Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f.Limit = 0
	return len(s.collect(f)), nil
}

func (s *InMemoryStore) SoftDelete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.records[id]
	if !ok || m.Deleted {
		return false, nil
	}
	m.Deleted = true
	s.records[id] = m
	return true, nil
}

func (s *InMemoryStore) SoftDeleteMatching(_ context.Context, f Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range s.timelines[f.UserID] {
		m := s.records[id]
		if !f.Match(m) {
			continue
		}
		m.Deleted = true
		s.records[id] = m
		n++
	}
	return n, nil
}

// collect walks the user's timeline; callers hold the lock.
func (s *InMemoryStore) collect(f Filter) []model.Memory {
	line := s.timelines[f.UserID]
	out := make([]model.Memory, 0)
	visit := func(id string) bool {
		m := s.records[id]
		if !f.Match(m) {
			return true
		}
		out = append(out, m.Clone())
		return f.Limit <= 0 || len(out) < f.Limit
	}
	if f.Newest {
		for i := len(line) - 1; i >= 0; i-- {
			if !visit(line[i]) {
				break
			}
		}
	} else {
		for _, id := range line {
			if !visit(id) {
				break
			}
		}
	}
	return out
}
