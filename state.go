package agent

import (
	"strings"
	"sync"
	"time"

	"github.com/Protocol-Lattice/journal-agent/src/memory/session"
)

// Mode is the conversational mode a session is in.
type Mode string

const (
	ModeLog  Mode = "log"
	ModeChat Mode = "chat"
)

// ParseMode accepts "log" or "chat" in any case.
func ParseMode(s string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeLog:
		return ModeLog, true
	case ModeChat:
		return ModeChat, true
	}
	return "", false
}

// PendingKind is the scope of a destructive action awaiting confirmation.
type PendingKind string

const (
	PendingSingle PendingKind = "single"
	PendingRange  PendingKind = "range"
	PendingAll    PendingKind = "all"
)

// PendingAction is a delete that was requested but not yet confirmed. Count is
// computed when the request is made; nothing is mutated until confirmation.
type PendingAction struct {
	Kind        PendingKind
	EntryID     string
	Start       time.Time
	End         time.Time
	Count       int
	RequestedAt time.Time
}

// State is the per-session conversational state. Its mutex serialises turns of
// the same session so history order equals turn order.
type State struct {
	mu sync.Mutex

	UserID           string
	SessionID        string
	Mode             Mode
	Pending          *PendingAction
	History          []session.Message
	LastEntriesShown []string
	LastActive       time.Time
}

func newState(userID, sessionID string, now time.Time) *State {
	return &State{UserID: userID, SessionID: sessionID, Mode: ModeLog, LastActive: now}
}

// appendTurn records the user and assistant messages of one exchange and
// keeps only the newest limit messages.
func (s *State) appendTurn(user, assistant string, at time.Time, limit int) {
	s.History = append(s.History,
		session.Message{Role: session.RoleUser, Content: user, At: at},
		session.Message{Role: session.RoleAssistant, Content: assistant, At: at})
	if limit > 0 && len(s.History) > limit {
		trimmed := make([]session.Message, limit)
		copy(trimmed, s.History[len(s.History)-limit:])
		s.History = trimmed
	}
}

// Snapshot is a copy of State safe to hand out.
type Snapshot struct {
	UserID           string
	SessionID        string
	Mode             Mode
	Pending          *PendingAction
	History          []session.Message
	LastEntriesShown []string
	LastActive       time.Time
}

func (s *State) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		UserID:           s.UserID,
		SessionID:        s.SessionID,
		Mode:             s.Mode,
		History:          append([]session.Message(nil), s.History...),
		LastEntriesShown: append([]string(nil), s.LastEntriesShown...),
		LastActive:       s.LastActive,
	}
	if s.Pending != nil {
		p := *s.Pending
		snap.Pending = &p
	}
	return snap
}
