package agent

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Protocol-Lattice/journal-agent/src/calendar"
	"github.com/Protocol-Lattice/journal-agent/src/concurrent"
	"github.com/Protocol-Lattice/journal-agent/src/memory/model"
	"github.com/Protocol-Lattice/journal-agent/src/memory/session"
)

// Default per-source fetch timeouts.
const (
	DefaultConversationTimeout = 2 * time.Second
	DefaultMemoryTimeout       = 5 * time.Second
	DefaultCalendarTimeout     = 8 * time.Second

	conversationTurns = 3
	journalSnippet    = 150
	summarySnippet    = 100
)

// Source names one context fetch.
type Source string

const (
	SourceConversation Source = "conversation"
	SourceMemories     Source = "memories"
	SourceCalendar     Source = "calendar"
)

// MemorySearcher is the long-term search collaborator. *engine.Engine satisfies it.
type MemorySearcher interface {
	LongTermSearch(ctx context.Context, userID, query string) ([]model.ScoredMemory, error)
}

// ContextRequest describes one retrieval.
type ContextRequest struct {
	Query     string
	UserID    string
	SessionID string
	Calendar  bool
	// History is rendered as the conversation when no working memory is wired.
	History []session.Message
}

// Bundle is the assembled context. A source that failed or timed out is empty
// and its error is kept in Errors.
type Bundle struct {
	Conversation string
	Memories     []model.ScoredMemory
	Calendar     string
	Errors       map[Source]error
	Elapsed      time.Duration
}

// Assembler fetches conversation, journal and calendar context concurrently.
// A fetch that fails, times out or panics never affects the others.
type Assembler struct {
	Memories     MemorySearcher
	Conversation session.WorkingMemory
	Calendar     calendar.Provider
	Pool         *concurrent.WorkerPool
	Logger       *log.Logger

	ConversationTimeout time.Duration
	MemoryTimeout       time.Duration
	CalendarTimeout     time.Duration
	DaysAhead           int
	DaysBack            int
}

// NewAssembler returns an assembler with default timeouts and a four slot pool
// for calendar calls.
func NewAssembler(memories MemorySearcher, conversation session.WorkingMemory, cal calendar.Provider) *Assembler {
	return &Assembler{
		Memories:            memories,
		Conversation:        conversation,
		Calendar:            cal,
		Pool:                concurrent.NewWorkerPool(4),
		Logger:              log.New(os.Stderr, "context: ", log.LstdFlags),
		ConversationTimeout: DefaultConversationTimeout,
		MemoryTimeout:       DefaultMemoryTimeout,
		CalendarTimeout:     DefaultCalendarTimeout,
		DaysAhead:           7,
		DaysBack:            0,
	}
}

// Assemble runs the applicable fetches in parallel and waits for all of them.
// Calendar turns skip the journal search; other turns skip the calendar.
func (a *Assembler) Assemble(ctx context.Context, req ContextRequest) Bundle {
	start := time.Now()
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		bundle = Bundle{Errors: map[Source]error{}}
	)
	record := func(src Source, err error) {
		a.logf("[%s] fetch failed: %v", src, err)
		mu.Lock()
		bundle.Errors[src] = err
		mu.Unlock()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		text, err := a.fetchConversation(ctx, req)
		if err != nil {
			record(SourceConversation, err)
			return
		}
		mu.Lock()
		bundle.Conversation = text
		mu.Unlock()
	}()

	if !req.Calendar && a.Memories != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hits, err := withTimeout(ctx, a.MemoryTimeout, func(ctx context.Context) ([]model.ScoredMemory, error) {
				return a.Memories.LongTermSearch(ctx, req.UserID, req.Query)
			})
			if err != nil {
				record(SourceMemories, err)
				return
			}
			mu.Lock()
			bundle.Memories = hits
			mu.Unlock()
		}()
	}

	if req.Calendar && a.Calendar != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			text, err := a.fetchCalendar(ctx)
			if err != nil {
				record(SourceCalendar, err)
				return
			}
			mu.Lock()
			bundle.Calendar = text
			mu.Unlock()
		}()
	}

	wg.Wait()
	bundle.Elapsed = time.Since(start)
	a.logf("parallel fetch: %s (memories: %d, calendar: %t)", bundle.Elapsed.Round(time.Millisecond), len(bundle.Memories), bundle.Calendar != "")
	return bundle
}

func (a *Assembler) fetchConversation(ctx context.Context, req ContextRequest) (string, error) {
	if a.Conversation == nil || req.SessionID == "" {
		return session.FormatHistory(recentTurns(req.History, conversationTurns)), nil
	}
	msgs, err := withTimeout(ctx, a.ConversationTimeout, func(ctx context.Context) ([]session.Message, error) {
		return a.Conversation.Messages(ctx, req.SessionID, conversationTurns)
	})
	if err != nil {
		return "", err
	}
	return session.FormatHistory(msgs), nil
}

// fetchCalendar runs on the worker pool since calendar sources may block
// without honouring ctx.
func (a *Assembler) fetchCalendar(ctx context.Context) (string, error) {
	timeout := a.CalendarTimeout
	if timeout <= 0 {
		timeout = DefaultCalendarTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	pool := a.Pool
	if pool == nil {
		pool = concurrent.NewWorkerPool(1)
	}
	return concurrent.Submit(cctx, pool, func(ctx context.Context) (string, error) {
		return a.Calendar.Context(ctx, a.DaysAhead, a.DaysBack)
	})
}

// withTimeout runs fn under its own deadline. It returns as soon as the
// deadline passes even if fn does not, and converts a panic into an error.
func withTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		var r result
		defer func() {
			if p := recover(); p != nil {
				r.err = fmt.Errorf("panic: %v", p)
			}
			done <- r
		}()
		r.val, r.err = fn(ctx)
	}()
	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-done:
		return r.val, r.err
	}
}

func (a *Assembler) logf(format string, args ...any) {
	if a != nil && a.Logger != nil {
		a.Logger.Printf(format, args...)
	}
}

// FormatMemories renders hits as "• Mar 15: text" lines, cutting each text at
// limit runes.
func FormatMemories(hits []model.ScoredMemory, limit int) string {
	entries := make([]model.Memory, len(hits))
	for i, h := range hits {
		entries[i] = h.Memory
	}
	return FormatEntries(entries, limit)
}

// FormatEntries renders entries like FormatMemories.
func FormatEntries(entries []model.Memory, limit int) string {
	lines := make([]string, 0, len(entries))
	for _, m := range entries {
		label := "Recent"
		if !m.CreatedAt.IsZero() {
			label = m.CreatedAt.Format("Jan 02")
		}
		lines = append(lines, fmt.Sprintf("• %s: %s", label, truncate(m.Text, limit)))
	}
	return strings.Join(lines, "\n")
}

// recentTurns keeps the messages of the last n exchanges.
func recentTurns(msgs []session.Message, n int) []session.Message {
	if n > 0 && len(msgs) > 2*n {
		return msgs[len(msgs)-2*n:]
	}
	return msgs
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if limit <= 0 || len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
