// Package agent is the conversational core of the voice journal. It classifies
// each turn, logs entries, answers questions from retrieved journal and
// calendar context, and guards destructive actions behind a confirmation step.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/Protocol-Lattice/journal-agent/src/calendar"
	"github.com/Protocol-Lattice/journal-agent/src/concurrent"
	"github.com/Protocol-Lattice/journal-agent/src/intent"
	"github.com/Protocol-Lattice/journal-agent/src/memory/engine"
	"github.com/Protocol-Lattice/journal-agent/src/memory/model"
	"github.com/Protocol-Lattice/journal-agent/src/memory/session"
	"github.com/Protocol-Lattice/journal-agent/src/models"
)

const (
	DefaultUserID      = "default_user"
	DefaultHistorySize = 20
	DefaultMaxTokens   = 120
	DefaultTemperature = 0.7
	DefaultLanguage    = "en-IN"

	generateTimeout = 15 * time.Second
	persistTimeout  = 5 * time.Second
	summaryLimit    = 50
)

// Topics attached to entries logged through conversation.
var logTopics = []string{"journal", "chat_entry"}

// Options configure a new Agent.
type Options struct {
	Engine        *engine.Engine
	Model         models.Agent
	Classifier    intent.Classifier
	WorkingMemory session.WorkingMemory
	Calendar      calendar.Provider
	Pool          *concurrent.WorkerPool
	Summarizer    engine.Summarizer
	Logger        *log.Logger
	Clock         func() time.Time

	SystemPrompt string
	HistorySize  int
	MaxTokens    int
	Temperature  float32
	LanguageCode string
	MaxSessions  int

	ConversationTimeout time.Duration
	MemoryTimeout       time.Duration
	CalendarTimeout     time.Duration
	CalendarDaysAhead   int
	CalendarDaysBack    int
}

// Response is the outcome of one turn.
type Response struct {
	Text       string
	Intent     intent.Intent
	Mode       Mode
	EntryCount int
	SessionID  string
}

// Agent runs turns for any number of sessions.
type Agent struct {
	engine        *engine.Engine
	model         models.Agent
	classifier    intent.Classifier
	workingMemory session.WorkingMemory
	summarizer    engine.Summarizer
	assembler     *Assembler
	sessions      *SessionStore
	logger        *log.Logger
	now           func() time.Time

	systemPrompt string
	historySize  int
	maxTokens    int
	temperature  float32
	language     string

	background sync.WaitGroup
}

// New creates an Agent with the provided options.
func New(opts Options) (*Agent, error) {
	if opts.Engine == nil {
		return nil, errors.New("agent requires a memory engine")
	}
	if opts.Model == nil {
		return nil, errors.New("agent requires a language model")
	}

	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "agent: ", log.LstdFlags)
	}
	classifier := opts.Classifier
	if classifier == nil {
		classifier = intent.NewRuleClassifier().WithClock(now)
	}
	summarizer := opts.Summarizer
	if summarizer == nil {
		summarizer = engine.HeuristicSummarizer{}
	}
	systemPrompt := opts.SystemPrompt
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = defaultSystemPrompt
	}
	historySize := opts.HistorySize
	if historySize <= 0 {
		historySize = DefaultHistorySize
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = DefaultTemperature
	}
	language := opts.LanguageCode
	if language == "" {
		language = DefaultLanguage
	}

	asm := NewAssembler(opts.Engine, opts.WorkingMemory, opts.Calendar)
	asm.Logger = logger
	if opts.Pool != nil {
		asm.Pool = opts.Pool
	}
	if opts.ConversationTimeout > 0 {
		asm.ConversationTimeout = opts.ConversationTimeout
	}
	if opts.MemoryTimeout > 0 {
		asm.MemoryTimeout = opts.MemoryTimeout
	}
	if opts.CalendarTimeout > 0 {
		asm.CalendarTimeout = opts.CalendarTimeout
	}
	if opts.CalendarDaysAhead > 0 {
		asm.DaysAhead = opts.CalendarDaysAhead
	}
	if opts.CalendarDaysBack > 0 {
		asm.DaysBack = opts.CalendarDaysBack
	}

	return &Agent{
		engine:        opts.Engine,
		model:         opts.Model,
		classifier:    classifier,
		workingMemory: opts.WorkingMemory,
		summarizer:    summarizer,
		assembler:     asm,
		sessions:      NewSessionStore(opts.MaxSessions, now),
		logger:        logger,
		now:           now,
		systemPrompt:  systemPrompt,
		historySize:   historySize,
		maxTokens:     maxTokens,
		temperature:   temperature,
		language:      language,
	}, nil
}

// Sessions exposes the session store so callers can drive eviction.
func (a *Agent) Sessions() *SessionStore { return a.sessions }

// Classify runs the configured classifier without touching any session.
func (a *Agent) Classify(ctx context.Context, text string) intent.Result {
	return a.classifier.Classify(ctx, text)
}

// HandleTurn processes one user utterance for the given session.
//
// Recoverable failures (collaborators down, timeouts, malformed input, a
// confirm with nothing pending) are turned into reply text. Only unexpected
// store errors are returned.
func (a *Agent) HandleTurn(ctx context.Context, userID, sessionID, text string) (Response, error) {
	if userID = strings.TrimSpace(userID); userID == "" {
		userID = DefaultUserID
	}
	st := a.sessions.GetOrCreate(userID, sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()

	text = strings.TrimSpace(text)
	if text == "" {
		return Response{Text: replyUnknown, Intent: intent.Unknown, Mode: st.Mode, SessionID: sessionID}, nil
	}

	start := a.now()
	res := a.classifier.Classify(ctx, text)
	a.logf("intent %s (%.2f) in %s", res.Intent, res.Confidence, a.now().Sub(start).Round(time.Millisecond))

	if res.Intent != intent.ConfirmDelete && !res.Intent.Destructive() {
		st.Pending = nil
	}

	var (
		reply string
		err   error
	)
	switch res.Intent {
	case intent.LogEntry:
		st.Mode = ModeLog
		reply = a.handleLog(ctx, st, res)
	case intent.AskJournal:
		st.Mode = ModeChat
		reply = a.handleAsk(ctx, st, res)
	case intent.Summarize:
		st.Mode = ModeChat
		reply, err = a.handleSummarize(ctx, st, res)
	case intent.DeleteEntry, intent.DeleteRange, intent.DeleteAll:
		reply, err = a.requestDelete(ctx, st, res)
	case intent.ConfirmDelete:
		reply, err = a.confirmDelete(ctx, st)
	case intent.Help:
		reply = helpText
	default:
		reply = replyUnknown
	}
	if err != nil {
		return Response{}, err
	}

	st.LastActive = a.now()
	st.appendTurn(text, reply, st.LastActive, a.historySize)
	if sessionID != "" {
		a.persistTurn(userID, sessionID, text, reply)
	}

	count, cerr := a.engine.EntryCount(ctx, userID)
	if cerr != nil {
		a.logf("entry count for %s: %v", userID, cerr)
	}
	return Response{
		Text:       reply,
		Intent:     res.Intent,
		Mode:       st.Mode,
		EntryCount: count,
		SessionID:  sessionID,
	}, nil
}

func (a *Agent) handleLog(ctx context.Context, st *State, res intent.Result) string {
	content := res.Entities[intent.EntityContent]
	if content == "" {
		content = res.Text
	}
	content = intent.StripTrigger(content)
	if len([]rune(content)) < 5 {
		return replyLogClarify
	}
	id, err := a.engine.Add(ctx, engine.AddParams{
		UserID:       st.UserID,
		SessionID:    st.SessionID,
		Text:         content,
		Topics:       logTopics,
		LanguageCode: a.language,
	})
	if err != nil {
		a.logf("[store] saving entry: %v", err)
		return replySaveFailed
	}
	a.logf("logged entry %s for %s", id, st.UserID)
	return replyLogged
}

func (a *Agent) handleAsk(ctx context.Context, st *State, res intent.Result) string {
	query := res.Entities[intent.EntityQuery]
	if query == "" {
		query = res.Text
	}
	bundle := a.assembler.Assemble(ctx, ContextRequest{
		Query:     query,
		UserID:    st.UserID,
		SessionID: st.SessionID,
		Calendar:  res.Calendar(),
		History:   st.History,
	})
	prompt := buildPrompt(bundle.Conversation, bundle.Calendar, FormatMemories(bundle.Memories, journalSnippet), query)
	reply, ok := a.generate(ctx, a.systemPrompt, prompt)
	if !ok {
		reply = replyApology
	}
	st.LastEntriesShown = model.IDs(bundle.Memories)
	return reply
}

func (a *Agent) handleSummarize(ctx context.Context, st *State, res intent.Result) (string, error) {
	start, end, ok := res.DateRange()
	if !ok {
		end = a.now()
		start = end.AddDate(0, 0, -7)
	}
	entries, err := a.engine.ListByDateRange(ctx, st.UserID, start, end, summaryLimit)
	if err != nil {
		return "", fmt.Errorf("list entries: %w", err)
	}
	ids := make([]string, len(entries))
	for i, m := range entries {
		ids[i] = m.ID
	}
	st.LastEntriesShown = ids
	if len(entries) == 0 {
		return replyNoEntriesPeriod, nil
	}

	prompt := buildSummaryPrompt(FormatEntries(entries, summarySnippet), res.Text)
	if reply, ok := a.generate(ctx, summarySystemPrompt, prompt); ok {
		return reply, nil
	}
	summary, err := a.summarizer.Summarize(ctx, entries)
	if err != nil || summary == "" {
		a.logf("[summarizer] %v", err)
		return replyApology, nil
	}
	return summary, nil
}

// generate calls the language model and reports false when no usable text came back.
func (a *Agent) generate(ctx context.Context, system, prompt string) (string, bool) {
	gctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()
	start := a.now()
	out, err := a.model.Generate(gctx, models.Request{
		System:      system,
		Prompt:      prompt,
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
	})
	a.logf("llm response in %s", a.now().Sub(start).Round(time.Millisecond))
	if err != nil {
		a.logf("[llm] generate failed: %v", err)
		return "", false
	}
	out = strings.TrimSpace(out)
	return out, out != ""
}

// persistTurn writes the exchange to working memory without blocking the turn.
func (a *Agent) persistTurn(userID, sessionID, userText, reply string) {
	if a.workingMemory == nil {
		return
	}
	a.background.Add(1)
	go func() {
		defer a.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := a.workingMemory.GetOrCreate(ctx, sessionID, userID); err != nil {
			a.logf("[working memory] background save: %v", err)
			return
		}
		if err := a.workingMemory.Append(ctx, sessionID, session.RoleUser, userText); err != nil {
			a.logf("[working memory] background save: %v", err)
			return
		}
		if err := a.workingMemory.Append(ctx, sessionID, session.RoleAssistant, reply); err != nil {
			a.logf("[working memory] background save: %v", err)
		}
	}()
}

// Wait blocks until background working-memory writes have finished.
func (a *Agent) Wait() { a.background.Wait() }

// Mode returns the session's current mode; unknown sessions are in LOG mode.
func (a *Agent) Mode(userID, sessionID string) Mode {
	st, ok := a.sessions.Lookup(userID, sessionID)
	if !ok {
		return ModeLog
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.Mode
}

// SetMode forces the session's mode.
func (a *Agent) SetMode(userID, sessionID string, mode Mode) error {
	parsed, ok := ParseMode(string(mode))
	if !ok {
		return fmt.Errorf("unknown mode %q", mode)
	}
	st := a.sessions.GetOrCreate(userID, sessionID)
	st.mu.Lock()
	st.Mode = parsed
	st.mu.Unlock()
	return nil
}

// State returns a copy of the session's state.
func (a *Agent) State(userID, sessionID string) (Snapshot, bool) {
	st, ok := a.sessions.Lookup(userID, sessionID)
	if !ok {
		return Snapshot{}, false
	}
	return st.snapshot(), true
}

// EndSession drops the in-process state and the session's working memory.
func (a *Agent) EndSession(ctx context.Context, userID, sessionID string) error {
	a.sessions.Evict(userID, sessionID)
	if a.workingMemory == nil || sessionID == "" {
		return nil
	}
	if err := a.workingMemory.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("delete working memory: %w", err)
	}
	return nil
}

func (a *Agent) logf(format string, args ...any) {
	if a.logger != nil {
		a.logger.Printf(format, args...)
	}
}
