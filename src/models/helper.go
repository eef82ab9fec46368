package models

import (
	"context"
	"fmt"
	"strings"
)

// NewLLMProvider builds an Agent for the named provider.
func NewLLMProvider(ctx context.Context, provider string, model string) (Agent, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "openai":
		return NewOpenAILLM(model), nil
	case "gemini", "google":
		return NewGeminiLLM(ctx, model)
	case "ollama":
		return NewOllamaLLM(model)
	case "anthropic", "claude":
		return NewAnthropicLLM(model), nil
	case "dummy", "":
		return NewDummyLLM(""), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}
}

// CleanResponse trims whitespace and a single pair of wrapping quotes.
func CleanResponse(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			s = strings.TrimSpace(s[1 : len(s)-1])
		}
	}
	return s
}
