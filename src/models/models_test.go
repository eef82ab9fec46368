package models

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestDummyLLMEchoesLastLine(t *testing.T) {
	out, err := NewDummyLLM("").Generate(context.Background(), Request{Prompt: "Journal:\n• note\n\nUser: how was my week?\n"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != "Dummy response: User: how was my week?" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestNewLLMProviderUnknown(t *testing.T) {
	if _, err := NewLLMProvider(context.Background(), "nope", ""); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
	agent, err := NewLLMProvider(context.Background(), "dummy", "")
	if err != nil {
		t.Fatalf("dummy provider: %v", err)
	}
	if _, ok := agent.(*DummyLLM); !ok {
		t.Fatalf("expected DummyLLM, got %T", agent)
	}
}

func TestCleanResponse(t *testing.T) {
	cases := map[string]string{
		"  hello \n":     "hello",
		`"ASK_JOURNAL"`:  "ASK_JOURNAL",
		"'quoted words'": "quoted words",
		`"`:              `"`,
	}
	for in, want := range cases {
		if got := CleanResponse(in); got != want {
			t.Fatalf("CleanResponse(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCachedLLMCachesByFullRequest(t *testing.T) {
	calls := 0
	inner := Func(func(_ context.Context, req Request) (string, error) {
		calls++
		return "reply to " + req.Prompt, nil
	})
	c := NewCachedLLM(inner, 8, time.Minute, "")
	ctx := context.Background()
	req := Request{System: "s", Prompt: "p", MaxTokens: 120}
	for i := 0; i < 3; i++ {
		if out, _ := c.Generate(ctx, req); out != "reply to p" {
			t.Fatalf("unexpected output %q", out)
		}
	}
	if calls != 1 {
		t.Fatalf("expected a single upstream call, got %d", calls)
	}
	req.MaxTokens = 20
	_, _ = c.Generate(ctx, req)
	if calls != 2 {
		t.Fatalf("different max tokens should miss the cache, calls=%d", calls)
	}
}

func TestCachedLLMDoesNotCacheErrors(t *testing.T) {
	calls := 0
	inner := Func(func(context.Context, Request) (string, error) {
		calls++
		return "", errors.New("rate limited")
	})
	c := NewCachedLLM(inner, 8, time.Minute, "")
	for i := 0; i < 2; i++ {
		if _, err := c.Generate(context.Background(), Request{Prompt: "p"}); err == nil {
			t.Fatalf("expected error")
		}
	}
	if calls != 2 {
		t.Fatalf("errors must not be cached, calls=%d", calls)
	}
}

func TestCachedLLMPersistsToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "llm_cache.json")
	inner := Func(func(context.Context, Request) (string, error) { return "persisted", nil })
	first := NewCachedLLM(inner, 8, time.Hour, path)
	if _, err := first.Generate(context.Background(), Request{Prompt: "p"}); err != nil {
		t.Fatalf("generate: %v", err)
	}

	failing := Func(func(context.Context, Request) (string, error) { return "", errors.New("offline") })
	second := NewCachedLLM(failing, 8, time.Hour, path)
	out, err := second.Generate(context.Background(), Request{Prompt: "p"})
	if err != nil || out != "persisted" {
		t.Fatalf("expected restored cache entry, got %q err=%v", out, err)
	}
}

func TestCachedLLMConcurrentSavesKeepFileValid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "llm_cache.json")
	inner := Func(func(_ context.Context, req Request) (string, error) { return "reply " + req.Prompt, nil })
	c := NewCachedLLM(inner, 64, time.Hour, path)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := c.Generate(context.Background(), Request{Prompt: fmt.Sprintf("p%d", i)}); err != nil {
				t.Errorf("generate: %v", err)
			}
		}(i)
	}
	wg.Wait()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read cache file: %v", err)
	}
	var dump map[string]json.RawMessage
	if err := json.Unmarshal(raw, &dump); err != nil {
		t.Fatalf("cache file is not valid JSON: %v", err)
	}
	if len(dump) != 32 {
		t.Fatalf("cache file holds %d entries, want 32", len(dump))
	}
	leftovers, _ := filepath.Glob(filepath.Join(dir, "*.tmp"))
	if len(leftovers) != 0 {
		t.Fatalf("temp files left behind: %v", leftovers)
	}
}

func TestOpenAILLMSendsZeroTemperature(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		_ = json.Unmarshal(body, &req)
		mu.Lock()
		seen = append(seen, req)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"choices":[{"index":0,"message":{"role":"assistant","content":"LOG_ENTRY"}}]}`)
	}))
	defer srv.Close()
	t.Setenv("OPENAI_API_KEY", "test")
	t.Setenv("OPENAI_BASE_URL", srv.URL)

	llm := NewOpenAILLM("")
	for _, temp := range []float32{0, 0.7} {
		out, err := llm.Generate(context.Background(), Request{Prompt: "classify", MaxTokens: 20, Temperature: temp})
		if err != nil || strings.TrimSpace(out) != "LOG_ENTRY" {
			t.Fatalf("generate: %q err=%v", out, err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("requests = %d", len(seen))
	}
	zero, ok := seen[0]["temperature"].(float64)
	if !ok || zero <= 0 || zero > 1e-30 {
		t.Fatalf("zero temperature must be sent as a tiny positive value, got %v", seen[0]["temperature"])
	}
	if got, _ := seen[1]["temperature"].(float64); got < 0.69 || got > 0.71 {
		t.Fatalf("temperature = %v, want 0.7", got)
	}
}

func TestTryCreateCachedLLM(t *testing.T) {
	base := NewDummyLLM("")
	t.Setenv("JOURNAL_LLM_CACHE_SIZE", "")
	if got := TryCreateCachedLLM(base); got != Agent(base) {
		t.Fatalf("expected passthrough without cache size")
	}
	t.Setenv("JOURNAL_LLM_CACHE_SIZE", "16")
	t.Setenv("JOURNAL_LLM_CACHE_PATH", "")
	if _, ok := TryCreateCachedLLM(base).(*CachedLLM); !ok {
		t.Fatalf("expected cached wrapper")
	}
}
