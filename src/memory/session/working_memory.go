package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// Roles recorded in working memory.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultCapacity bounds how many messages a session keeps.
const DefaultCapacity = 40

// ErrUnknownSession is returned when appending to a session that was never created.
var ErrUnknownSession = errors.New("working memory session not found")

// Message is one utterance of a conversation.
type Message struct {
	Role    string    `json:"role" bson:"role"`
	Content string    `json:"content" bson:"content"`
	At      time.Time `json:"at" bson:"at"`
}

// WorkingMemory holds the short conversational context of a session.
type WorkingMemory interface {
	GetOrCreate(ctx context.Context, sessionID, userID string) error
	Append(ctx context.Context, sessionID, role, content string) error
	// Messages returns the last maxTurns exchanges (two messages per turn), oldest first.
	// maxTurns <= 0 returns everything kept.
	Messages(ctx context.Context, sessionID string, maxTurns int) ([]Message, error)
	Delete(ctx context.Context, sessionID string) error
}

type conversation struct {
	userID   string
	messages []Message
	touched  time.Time
}

// InMemory is a process-local WorkingMemory bounded per session.
type InMemory struct {
	mu       sync.RWMutex
	sessions map[string]*conversation
	capacity int
	now      func() time.Time
}

// NewInMemory returns a working memory keeping at most capacity messages per session.
func NewInMemory(capacity int) *InMemory {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &InMemory{sessions: make(map[string]*conversation), capacity: capacity, now: time.Now}
}

func (w *InMemory) GetOrCreate(_ context.Context, sessionID, userID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return errors.New("session id is empty")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.sessions[sessionID]; !ok {
		w.sessions[sessionID] = &conversation{userID: userID, touched: w.now()}
	}
	return nil
}

func (w *InMemory) Append(_ context.Context, sessionID, role, content string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	conv, ok := w.sessions[sessionID]
	if !ok {
		return ErrUnknownSession
	}
	now := w.now()
	conv.messages = append(conv.messages, Message{Role: role, Content: content, At: now})
	if len(conv.messages) > w.capacity {
		conv.messages = conv.messages[len(conv.messages)-w.capacity:]
	}
	conv.touched = now
	return nil
}

func (w *InMemory) Messages(_ context.Context, sessionID string, maxTurns int) ([]Message, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	conv, ok := w.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return tail(conv.messages, maxTurns), nil
}

func (w *InMemory) Delete(_ context.Context, sessionID string) error {
	w.mu.Lock()
	delete(w.sessions, sessionID)
	w.mu.Unlock()
	return nil
}

// Len reports how many sessions are held.
func (w *InMemory) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.sessions)
}

func tail(msgs []Message, maxTurns int) []Message {
	if maxTurns > 0 && len(msgs) > maxTurns*2 {
		msgs = msgs[len(msgs)-maxTurns*2:]
	}
	return append([]Message(nil), msgs...)
}

// FormatHistory renders messages as "role: content" lines.
func FormatHistory(msgs []Message) string {
	var sb strings.Builder
	for i, m := range msgs {
		if i > 0 {
			sb.WriteByte('\n')
		}
		role := m.Role
		if role == RoleUser {
			role = "User"
		} else if role == RoleAssistant {
			role = "Assistant"
		}
		sb.WriteString(role)
		sb.WriteString(": ")
		sb.WriteString(m.Content)
	}
	return sb.String()
}
