package agent

import (
	"container/list"
	"sync"
	"time"
)

type sessionKey struct {
	userID    string
	sessionID string
}

// SessionStore owns one State per (user, session). States are created on first
// use and only removed by Evict, EvictIdle or the optional size bound.
type SessionStore struct {
	mu      sync.Mutex
	states  map[sessionKey]*list.Element
	order   *list.List
	maxSize int
	now     func() time.Time
}

type sessionEntry struct {
	key   sessionKey
	state *State
}

// NewSessionStore returns a store. maxSize <= 0 disables the size bound.
func NewSessionStore(maxSize int, now func() time.Time) *SessionStore {
	if now == nil {
		now = time.Now
	}
	return &SessionStore{
		states:  make(map[sessionKey]*list.Element),
		order:   list.New(),
		maxSize: maxSize,
		now:     now,
	}
}

// GetOrCreate returns the state for the pair, creating it in LOG mode.
func (s *SessionStore) GetOrCreate(userID, sessionID string) *State {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := sessionKey{userID, sessionID}
	if el, ok := s.states[key]; ok {
		s.order.MoveToFront(el)
		return el.Value.(*sessionEntry).state
	}
	st := newState(userID, sessionID, s.now())
	s.states[key] = s.order.PushFront(&sessionEntry{key: key, state: st})
	if s.maxSize > 0 {
		for s.order.Len() > s.maxSize {
			s.removeElement(s.order.Back())
		}
	}
	return st
}

// Lookup returns the state without creating it.
func (s *SessionStore) Lookup(userID, sessionID string) (*State, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.states[sessionKey{userID, sessionID}]
	if !ok {
		return nil, false
	}
	return el.Value.(*sessionEntry).state, true
}

// Evict drops one session and reports whether it existed.
func (s *SessionStore) Evict(userID, sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.states[sessionKey{userID, sessionID}]
	if !ok {
		return false
	}
	s.removeElement(el)
	return true
}

// EvictIdle drops every session whose last turn is older than maxIdle and
// returns how many were removed. A session with a turn in flight is busy, not
// idle, and is skipped without waiting for it.
func (s *SessionStore) EvictIdle(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for el := s.order.Back(); el != nil; {
		prev := el.Prev()
		st := el.Value.(*sessionEntry).state
		idle := false
		if st.mu.TryLock() {
			idle = st.LastActive.Before(cutoff)
			st.mu.Unlock()
		}
		if idle {
			s.removeElement(el)
			removed++
		}
		el = prev
	}
	return removed
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

func (s *SessionStore) removeElement(el *list.Element) {
	if el == nil {
		return
	}
	entry := el.Value.(*sessionEntry)
	delete(s.states, entry.key)
	s.order.Remove(el)
}
