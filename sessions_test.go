package agent

import (
	"sync"
	"testing"
	"time"
)

func TestSessionStoreCreatesOnFirstUse(t *testing.T) {
	s := NewSessionStore(0, nil)
	a := s.GetOrCreate("u1", "s1")
	if a.Mode != ModeLog {
		t.Fatalf("new sessions start in log mode, got %s", a.Mode)
	}
	if b := s.GetOrCreate("u1", "s1"); b != a {
		t.Fatalf("expected the same state for the same key")
	}
	if c := s.GetOrCreate("u2", "s1"); c == a {
		t.Fatalf("users must not share state")
	}
	if s.Len() != 2 {
		t.Fatalf("len = %d", s.Len())
	}
	if !s.Evict("u1", "s1") || s.Evict("u1", "s1") {
		t.Fatalf("evict should report existence once")
	}
	if _, ok := s.Lookup("u1", "s1"); ok {
		t.Fatalf("evicted state still present")
	}
}

func TestSessionStoreEvictIdle(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	s := NewSessionStore(0, func() time.Time { return now })
	old := s.GetOrCreate("u1", "old")
	old.LastActive = now.Add(-2 * time.Hour)
	s.GetOrCreate("u1", "fresh")

	if n := s.EvictIdle(time.Hour); n != 1 {
		t.Fatalf("evicted %d, want 1", n)
	}
	if _, ok := s.Lookup("u1", "fresh"); !ok {
		t.Fatalf("fresh session evicted")
	}
}

func TestSessionStoreEvictIdleSkipsBusySessions(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	s := NewSessionStore(0, func() time.Time { return now })
	busy := s.GetOrCreate("u1", "busy")
	busy.LastActive = now.Add(-2 * time.Hour)
	idle := s.GetOrCreate("u1", "idle")
	idle.LastActive = now.Add(-2 * time.Hour)

	// A turn in flight holds the state lock.
	busy.mu.Lock()
	defer busy.mu.Unlock()

	done := make(chan int, 1)
	go func() {
		n := s.EvictIdle(time.Hour)
		s.GetOrCreate("u2", "other")
		done <- n
	}()
	select {
	case n := <-done:
		if n != 1 {
			t.Fatalf("evicted %d, want 1", n)
		}
	case <-time.After(time.Second):
		t.Fatalf("EvictIdle blocked behind a session with a turn in flight")
	}
	if _, ok := s.Lookup("u1", "busy"); !ok {
		t.Fatalf("busy session must not be evicted")
	}
	if _, ok := s.Lookup("u1", "idle"); ok {
		t.Fatalf("idle session should be gone")
	}
}

func TestSessionStoreMaxSizeEvictsLeastRecent(t *testing.T) {
	s := NewSessionStore(2, nil)
	s.GetOrCreate("u1", "a")
	s.GetOrCreate("u1", "b")
	s.GetOrCreate("u1", "a")
	s.GetOrCreate("u1", "c")

	if s.Len() != 2 {
		t.Fatalf("len = %d", s.Len())
	}
	if _, ok := s.Lookup("u1", "b"); ok {
		t.Fatalf("least recently used session should be gone")
	}
	if _, ok := s.Lookup("u1", "a"); !ok {
		t.Fatalf("recently used session evicted")
	}
}

func TestSessionStoreConcurrentAccess(t *testing.T) {
	s := NewSessionStore(0, nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st := s.GetOrCreate("u1", "shared")
			st.mu.Lock()
			st.appendTurn("x", "y", time.Time{}, 20)
			st.mu.Unlock()
		}()
	}
	wg.Wait()
	st, _ := s.Lookup("u1", "shared")
	if len(st.snapshot().History) != 20 {
		t.Fatalf("history = %d", len(st.History))
	}
}
