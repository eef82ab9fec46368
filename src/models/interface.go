package models

import "context"

// Request is a single-turn text generation call.
type Request struct {
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float32
}

// Agent generates text from a prompt.
type Agent interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Func adapts a function to the Agent interface.
type Func func(ctx context.Context, req Request) (string, error)

func (f Func) Generate(ctx context.Context, req Request) (string, error) { return f(ctx, req) }
