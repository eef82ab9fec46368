package agent

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Protocol-Lattice/journal-agent/src/memory/model"
	"github.com/Protocol-Lattice/journal-agent/src/memory/session"
)

type searcherFunc func(ctx context.Context, userID, query string) ([]model.ScoredMemory, error)

func (f searcherFunc) LongTermSearch(ctx context.Context, userID, query string) ([]model.ScoredMemory, error) {
	return f(ctx, userID, query)
}

func hit(id, text string, at time.Time) model.ScoredMemory {
	return model.ScoredMemory{Memory: model.Memory{ID: id, Text: text, CreatedAt: at}}
}

func newTestAssembler(mem MemorySearcher, wm session.WorkingMemory, cal calendarFunc) *Assembler {
	var a *Assembler
	if cal != nil {
		a = NewAssembler(mem, wm, cal)
	} else {
		a = NewAssembler(mem, wm, nil)
	}
	a.Logger = quietLogger()
	return a
}

func TestAssembleSlowSearchTimesOut(t *testing.T) {
	wm := session.NewInMemory(0)
	ctx := context.Background()
	_ = wm.GetOrCreate(ctx, "s1", "u1")
	_ = wm.Append(ctx, "s1", session.RoleUser, "hello")
	_ = wm.Append(ctx, "s1", session.RoleAssistant, "hi there")

	block := make(chan struct{})
	defer close(block)
	slow := searcherFunc(func(context.Context, string, string) ([]model.ScoredMemory, error) {
		<-block // ignores ctx on purpose
		return nil, nil
	})
	a := newTestAssembler(slow, wm, nil)
	a.MemoryTimeout = 30 * time.Millisecond

	start := time.Now()
	b := a.Assemble(ctx, ContextRequest{Query: "q", UserID: "u1", SessionID: "s1"})
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("assemble waited %s for a stuck fetch", elapsed)
	}
	if !errors.Is(b.Errors[SourceMemories], context.DeadlineExceeded) {
		t.Fatalf("memories error = %v", b.Errors[SourceMemories])
	}
	if b.Conversation != "User: hello\nAssistant: hi there" {
		t.Fatalf("conversation = %q", b.Conversation)
	}
}

func TestAssembleCalendarFailureIsolated(t *testing.T) {
	wm := session.NewInMemory(0)
	ctx := context.Background()
	_ = wm.GetOrCreate(ctx, "s1", "u1")
	_ = wm.Append(ctx, "s1", session.RoleUser, "hello")

	a := newTestAssembler(nil, wm, func(context.Context, int, int) (string, error) {
		return "", errors.New("oauth expired")
	})
	b := a.Assemble(ctx, ContextRequest{Query: "what's on today", UserID: "u1", SessionID: "s1", Calendar: true})
	if b.Calendar != "" || b.Errors[SourceCalendar] == nil {
		t.Fatalf("calendar = %q err = %v", b.Calendar, b.Errors[SourceCalendar])
	}
	if b.Conversation != "User: hello" {
		t.Fatalf("conversation = %q", b.Conversation)
	}
}

func TestAssembleCalendarBlockingCallBounded(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	a := newTestAssembler(nil, nil, func(context.Context, int, int) (string, error) {
		<-block
		return "late", nil
	})
	a.CalendarTimeout = 30 * time.Millisecond
	b := a.Assemble(context.Background(), ContextRequest{Query: "q", UserID: "u1", Calendar: true})
	if b.Calendar != "" || !errors.Is(b.Errors[SourceCalendar], context.DeadlineExceeded) {
		t.Fatalf("calendar = %q err = %v", b.Calendar, b.Errors[SourceCalendar])
	}
}

func TestAssemblePanicBecomesError(t *testing.T) {
	boom := searcherFunc(func(context.Context, string, string) ([]model.ScoredMemory, error) {
		panic("index corrupted")
	})
	a := newTestAssembler(boom, nil, nil)
	b := a.Assemble(context.Background(), ContextRequest{Query: "q", UserID: "u1",
		History: []session.Message{
			{Role: session.RoleUser, Content: "hey"},
			{Role: session.RoleAssistant, Content: "hello"},
		}})
	if b.Errors[SourceMemories] == nil || !strings.Contains(b.Errors[SourceMemories].Error(), "index corrupted") {
		t.Fatalf("memories error = %v", b.Errors[SourceMemories])
	}
	if b.Conversation != "User: hey\nAssistant: hello" {
		t.Fatalf("conversation = %q", b.Conversation)
	}
}

func TestAssembleSkipsPerRoute(t *testing.T) {
	searched, calendared := false, false
	mem := searcherFunc(func(context.Context, string, string) ([]model.ScoredMemory, error) {
		searched = true
		return []model.ScoredMemory{hit("a", "x", time.Time{})}, nil
	})
	cal := func(context.Context, int, int) (string, error) {
		calendared = true
		return "events", nil
	}

	a := newTestAssembler(mem, nil, cal)
	b := a.Assemble(context.Background(), ContextRequest{Query: "q", UserID: "u1"})
	if !searched || calendared || len(b.Memories) != 1 {
		t.Fatalf("chat turn: searched=%t calendar=%t", searched, calendared)
	}

	searched = false
	b = a.Assemble(context.Background(), ContextRequest{Query: "q", UserID: "u1", Calendar: true})
	if searched || !calendared || b.Calendar != "events" {
		t.Fatalf("calendar turn: searched=%t calendar=%t", searched, calendared)
	}
}

func TestFormatMemories(t *testing.T) {
	long := strings.Repeat("a", 160)
	got := FormatMemories([]model.ScoredMemory{
		hit("1", "trip to Goa", time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)),
		hit("2", long, time.Time{}),
	}, journalSnippet)
	want := "• Mar 15: trip to Goa\n• Recent: " + strings.Repeat("a", 150) + "..."
	if got != want {
		t.Fatalf("got %q\nwant %q", got, want)
	}
	if FormatMemories(nil, journalSnippet) != "" {
		t.Fatalf("empty input should render nothing")
	}
}

func TestBuildPromptOmitsEmptySections(t *testing.T) {
	got := buildPrompt("", "", "• Mar 15: trip", "what about my trip")
	if got != "Journal:\n• Mar 15: trip\n\nUser: what about my trip" {
		t.Fatalf("prompt = %q", got)
	}
	got = buildPrompt("User: hi", "No upcoming calendar events.", "", "and today?")
	want := "Chat history:\nUser: hi\n\nCalendar:\nNo upcoming calendar events.\n\nUser: and today?"
	if got != want {
		t.Fatalf("prompt = %q", got)
	}
}
