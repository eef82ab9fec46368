package voice

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func chunks(items ...string) StreamFunc[string] {
	return func(ctx context.Context) (<-chan Chunk[string], error) {
		ch := make(chan Chunk[string])
		go func() {
			defer close(ch)
			for _, it := range items {
				var c Chunk[string]
				switch it {
				case "<done>":
					c = Chunk[string]{Done: true}
				case "<err>":
					c = Chunk[string]{Err: errors.New("socket reset")}
				case "<hang>":
					<-ctx.Done()
					return
				default:
					c = Chunk[string]{Data: it}
				}
				select {
				case ch <- c:
				case <-ctx.Done():
					return
				}
			}
		}()
		return ch, nil
	}
}

func rest(payload string, calls *int) RESTFunc[string] {
	return func(context.Context) (string, error) {
		*calls++
		return payload, nil
	}
}

func joinStrings(parts []string) string { return strings.Join(parts, "") }

func TestFallbackReturnsCollectedChunksOnCompletion(t *testing.T) {
	calls := 0
	f := NewFallback(time.Second, joinStrings)
	res, err := f.Run(context.Background(), chunks("hel", "lo", "<done>"), rest("rest", &calls))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Path != PathStream || res.Payload != "hello" || res.Chunks != 2 {
		t.Fatalf("unexpected result %+v", res)
	}
	if calls != 0 {
		t.Fatalf("rest should not be called")
	}
}

func TestFallbackDiscardsPartialChunksOnStreamError(t *testing.T) {
	calls := 0
	f := NewFallback(time.Second, joinStrings)
	res, err := f.Run(context.Background(), chunks("par", "<err>"), rest("whole", &calls))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Path != PathREST || res.Payload != "whole" || calls != 1 {
		t.Fatalf("expected pure rest payload, got %+v calls=%d", res, calls)
	}
}

func TestFallbackTimeoutWithChunksReturnsThem(t *testing.T) {
	calls := 0
	f := NewFallback(50*time.Millisecond, joinStrings)
	start := time.Now()
	res, err := f.Run(context.Background(), chunks("partial", "<hang>"), rest("rest", &calls))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("adapter exceeded its deadline: %s", elapsed)
	}
	if res.Path != PathStream || res.Payload != "partial" || calls != 0 {
		t.Fatalf("expected partial stream payload, got %+v calls=%d", res, calls)
	}
}

func TestFallbackTimeoutWithoutChunksUsesREST(t *testing.T) {
	calls := 0
	f := NewFallback(50*time.Millisecond, joinStrings)
	start := time.Now()
	res, err := f.Run(context.Background(), chunks("<hang>"), rest("rest", &calls))
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("adapter exceeded its deadline: %s", elapsed)
	}
	if res.Path != PathREST || res.Payload != "rest" || calls != 1 {
		t.Fatalf("expected rest fallback, got %+v calls=%d", res, calls)
	}
}

func TestFallbackOpenErrorUsesREST(t *testing.T) {
	calls := 0
	open := func(context.Context) (<-chan Chunk[string], error) { return nil, errors.New("refused") }
	res, err := NewFallback(time.Second, joinStrings).Run(context.Background(), open, rest("rest", &calls))
	if err != nil || res.Path != PathREST || calls != 1 {
		t.Fatalf("expected rest fallback, got %+v err=%v", res, err)
	}
}

func TestFallbackCompletionWithoutChunksUsesREST(t *testing.T) {
	calls := 0
	res, err := NewFallback(time.Second, joinStrings).Run(context.Background(), chunks("<done>"), rest("rest", &calls))
	if err != nil || res.Path != PathREST {
		t.Fatalf("expected rest fallback, got %+v err=%v", res, err)
	}
}

func TestFallbackReportsRESTFailure(t *testing.T) {
	failing := func(context.Context) (string, error) { return "", errors.New("503") }
	if _, err := NewFallback(time.Second, joinStrings).Run(context.Background(), chunks("<err>"), failing); err == nil {
		t.Fatalf("expected error when both paths fail")
	}
	if _, err := NewFallback[string](time.Second, nil).Run(context.Background(), nil, nil); !errors.Is(err, ErrNoPayload) {
		t.Fatalf("expected ErrNoPayload, got %v", err)
	}
}

func TestFallbackHonoursParentCancellation(t *testing.T) {
	calls := 0
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := NewFallback(time.Second, joinStrings).Run(ctx, chunks("<hang>"), rest("rest", &calls))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("rest must not run after cancellation")
	}
}

func TestJoinTranscripts(t *testing.T) {
	got := joinTranscripts([]Transcript{{Text: " remember to "}, {Text: "call mom", LanguageCode: "en-IN"}})
	if got.Text != "remember to call mom" || got.LanguageCode != "en-IN" {
		t.Fatalf("unexpected transcript %+v", got)
	}
	if baseLanguage("en-IN") != "en" || baseLanguage("hi") != "hi" {
		t.Fatalf("baseLanguage mismatch")
	}
}
