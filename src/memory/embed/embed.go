package embed

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
)

// Embedder is a pluggable text-embedding provider.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ErrNotSupported is returned by providers that do not offer embeddings.
var ErrNotSupported = errors.New("embeddings not supported by this provider")

// DummyDimension is the vector size produced by DummyEmbedder.
const DummyDimension = 768

// DummyEmbedder hashes bytes into a fixed vector. Deterministic, offline, not semantic.
type DummyEmbedder struct{}

func (DummyEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return DummyEmbedding(text), nil
}

func DummyEmbedding(text string) []float32 {
	vec := make([]float32, DummyDimension)
	for i, ch := range []byte(strings.ToLower(text)) {
		vec[i%DummyDimension] += float32(ch) / 255.0
	}
	return vec
}

// NewProvider builds the embedder named by provider.
// Known providers: openai, google|gemini|vertex, ollama, voyage|claude, fastembed, dummy.
func NewProvider(ctx context.Context, provider, model string) (Embedder, error) {
	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "openai":
		return NewOpenAIEmbedder(model)
	case "google", "gemini", "vertex", "vertexai":
		return NewVertexAIEmbedder(ctx, model)
	case "ollama":
		return NewOllamaEmbedder(model)
	case "claude", "anthropic", "voyage":
		return NewClaudeEmbedder(model)
	case "fastembed":
		opts := defaultFastEmbedOptions()
		if opts == nil {
			return nil, fmt.Errorf("fastembed support not included; rebuild with -tags fastembed")
		}
		if model != "" {
			opts.Model = model
		}
		return NewFastEmbedder(ctx, opts)
	case "", "dummy":
		return DummyEmbedder{}, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", provider)
	}
}

// AutoEmbedder chooses a provider from env:
// JOURNAL_EMBED_PROVIDER=openai|google|gemini|ollama|voyage|fastembed
// JOURNAL_EMBED_MODEL=<model string>
// Unset or failing providers fall back to DummyEmbedder.
func AutoEmbedder() Embedder {
	provider := strings.TrimSpace(os.Getenv("JOURNAL_EMBED_PROVIDER"))
	model := strings.TrimSpace(os.Getenv("JOURNAL_EMBED_MODEL"))
	if provider != "" {
		e, err := NewProvider(context.Background(), provider, model)
		if err == nil {
			return e
		}
		log.Printf("AutoEmbedder: %s unavailable: %v", provider, err)
	}
	log.Printf("AutoEmbedder: falling back to DummyEmbedder")
	return DummyEmbedder{}
}

// Func adapts a plain function to Embedder.
type Func func(ctx context.Context, text string) ([]float32, error)

func (f Func) Embed(ctx context.Context, text string) ([]float32, error) { return f(ctx, text) }

func f64toF32(v []float64) []float32 {
	r := make([]float32, len(v))
	for i, x := range v {
		r[i] = float32(x)
	}
	return r
}
