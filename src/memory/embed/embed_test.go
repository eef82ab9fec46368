package embed

import (
	"context"
	"errors"
	"testing"
	"time"
)

type countingEmbedder struct {
	calls int
	err   error
}

func (c *countingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func TestDummyEmbeddingLength(t *testing.T) {
	vec := DummyEmbedding("hello world")
	if len(vec) != DummyDimension {
		t.Fatalf("expected dummy embedding to be length %d, got %d", DummyDimension, len(vec))
	}
	if vec[0] == 0 {
		t.Fatalf("expected dummy embedding to have non-zero signal")
	}
}

func TestDummyEmbeddingIgnoresCase(t *testing.T) {
	a := DummyEmbedding("Call Mom")
	b := DummyEmbedding("call mom")
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected case-insensitive vectors, differ at %d", i)
		}
	}
}

func TestCachedEmbedderHitsProviderOnce(t *testing.T) {
	inner := &countingEmbedder{}
	c := NewCachedEmbedder(inner, 8, time.Minute)
	for i := 0; i < 3; i++ {
		if _, err := c.Embed(context.Background(), "what did I do yesterday"); err != nil {
			t.Fatalf("embed failed: %v", err)
		}
	}
	if inner.calls != 1 {
		t.Fatalf("expected 1 provider call, got %d", inner.calls)
	}
}

func TestCachedEmbedderDoesNotCacheErrors(t *testing.T) {
	inner := &countingEmbedder{err: errors.New("boom")}
	c := NewCachedEmbedder(inner, 8, time.Minute)
	_, _ = c.Embed(context.Background(), "x")
	_, _ = c.Embed(context.Background(), "x")
	if inner.calls != 2 {
		t.Fatalf("expected errors to bypass cache, got %d calls", inner.calls)
	}
}

func TestNewProviderSelection(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "dummy-key")
	e, err := NewProvider(context.Background(), "openai", "test-model")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := e.(*OpenAIEmbedder); !ok {
		t.Fatalf("expected *OpenAIEmbedder, got %T", e)
	}
	if _, err := NewProvider(context.Background(), "nope", ""); err == nil {
		t.Fatal("expected unknown provider error")
	}
}

func TestAutoEmbedderFallback(t *testing.T) {
	t.Setenv("JOURNAL_EMBED_PROVIDER", "")
	if _, ok := AutoEmbedder().(DummyEmbedder); !ok {
		t.Fatal("expected AutoEmbedder to fall back to DummyEmbedder")
	}
	t.Setenv("JOURNAL_EMBED_PROVIDER", "voyage")
	t.Setenv("VOYAGE_API_KEY", "")
	if _, ok := AutoEmbedder().(DummyEmbedder); !ok {
		t.Fatal("expected misconfigured provider to fall back to DummyEmbedder")
	}
}
