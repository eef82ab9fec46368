package intent

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/Protocol-Lattice/journal-agent/src/models"
)

const llmPrompt = `Classify the user's intent for a voice journal app.

User message: %q

Intents:
- LOG_ENTRY: User wants to add a new journal note
- ASK_JOURNAL: User is asking a question about their past journal entries
- SUMMARIZE: User wants a summary of entries (e.g., "summarize my week")
- DELETE_ENTRY: User wants to delete a specific entry
- DELETE_RANGE: User wants to delete entries in a date range
- DELETE_ALL: User wants to delete all entries
- HELP: User is asking for help or capabilities

Respond with ONLY the intent name (e.g., "LOG_ENTRY") and nothing else.`

// LLMClassifier asks a language model for the intent label.
type LLMClassifier struct {
	llm     models.Agent
	timeout time.Duration
	now     func() time.Time
	logger  *log.Logger
}

func NewLLMClassifier(llm models.Agent) *LLMClassifier {
	return &LLMClassifier{
		llm:     llm,
		timeout: 10 * time.Second,
		now:     time.Now,
		logger:  log.New(os.Stderr, "intent-llm: ", log.LstdFlags),
	}
}

func (c *LLMClassifier) WithClock(now func() time.Time) *LLMClassifier {
	if now != nil {
		c.now = now
	}
	return c
}

func (c *LLMClassifier) WithLogger(l *log.Logger) *LLMClassifier {
	if l != nil {
		c.logger = l
	}
	return c
}

func (c *LLMClassifier) Classify(ctx context.Context, text string) Result {
	if c.llm == nil {
		return heuristic(text)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	out, err := c.llm.Generate(ctx, models.Request{
		Prompt:      fmt.Sprintf(llmPrompt, text),
		MaxTokens:   20,
		Temperature: 0,
	})
	if err != nil {
		if c.logger != nil {
			c.logger.Printf("llm intent detection failed: %v", err)
		}
		return heuristic(text)
	}
	label := strings.ToUpper(models.CleanResponse(out))
	in, ok := ParseIntent(label)
	if !ok || in == ConfirmDelete {
		in = Unknown
	}
	return newResult(in, 0.8, text, entitiesFor(in, c.now(), text))
}

func heuristic(text string) Result {
	if strings.Contains(text, "?") {
		return newResult(AskJournal, 0.4, text, map[string]string{EntityQuery: text})
	}
	return newResult(LogEntry, 0.4, text, map[string]string{EntityContent: text})
}
