package engine

import (
	"context"
	"strings"

	"github.com/Protocol-Lattice/journal-agent/src/memory/model"
)

// Summarizer condenses a set of journal entries into a short text.
type Summarizer interface {
	Summarize(ctx context.Context, entries []model.Memory) (string, error)
}

// HeuristicSummarizer joins entries oldest first and cuts at 280 characters.
// Used when no language model is available.
type HeuristicSummarizer struct{}

func (HeuristicSummarizer) Summarize(_ context.Context, entries []model.Memory) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}
	sentences := make([]string, 0, len(entries))
	for _, m := range entries {
		text := strings.TrimSpace(m.Text)
		if text == "" {
			continue
		}
		if !strings.HasSuffix(text, ".") && !strings.HasSuffix(text, "!") && !strings.HasSuffix(text, "?") {
			text += "."
		}
		sentences = append(sentences, text)
	}
	summary := strings.Join(sentences, " ")
	if r := []rune(summary); len(r) > 280 {
		summary = string(r[:277]) + "..."
	}
	return summary, nil
}
