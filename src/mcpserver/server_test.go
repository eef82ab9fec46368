package mcpserver

import (
	"context"
	"strings"
	"testing"

	agent "github.com/Protocol-Lattice/journal-agent"
	"github.com/Protocol-Lattice/journal-agent/src/memory/engine"
	"github.com/Protocol-Lattice/journal-agent/src/memory/store"
	"github.com/Protocol-Lattice/journal-agent/src/models"
	"github.com/mark3labs/mcp-go/mcp"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	return engine.NewEngine(store.NewInMemoryStore(), engine.DefaultOptions()).WithLogger(nil)
}

func call(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Arguments: args}}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if res == nil || len(res.Content) == 0 {
		t.Fatalf("expected non-empty tool result")
	}
	text, ok := mcp.AsTextContent(res.Content[0])
	if !ok {
		t.Fatalf("expected text content")
	}
	return text.Text
}

func TestNewServer(t *testing.T) {
	if srv := NewServer(newTestEngine(t), nil, ""); srv == nil {
		t.Fatalf("expected server")
	}
}

func TestLogSearchCountDelete(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	res, err := handleLog(e, "u1")(ctx, call(map[string]any{"text": "trip to Goa planned for March", "topics": "travel, plans"}))
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	saved := resultText(t, res)
	if !strings.HasPrefix(saved, "Saved entry ") {
		t.Fatalf("unexpected log result %q", saved)
	}
	id := strings.TrimPrefix(saved, "Saved entry ")

	res, _ = handleSearch(e, "u1")(ctx, call(map[string]any{"query": "trip to Goa planned for March", "limit": float64(3)}))
	if got := resultText(t, res); !strings.Contains(got, id) {
		t.Fatalf("search result missing %s: %q", id, got)
	}

	res, _ = handleCount(e, "u1")(ctx, call(nil))
	if got := resultText(t, res); got != "1 entries" {
		t.Fatalf("count = %q", got)
	}

	res, _ = handleDelete(e, "u1")(ctx, call(map[string]any{"id": id}))
	if got := resultText(t, res); got != "Deleted entry "+id {
		t.Fatalf("delete = %q", got)
	}
	res, _ = handleDelete(e, "u1")(ctx, call(map[string]any{"id": id}))
	if got := resultText(t, res); !strings.HasPrefix(got, "No live entry") {
		t.Fatalf("second delete = %q", got)
	}
}

func TestLogRequiresText(t *testing.T) {
	res, err := handleLog(newTestEngine(t), "u1")(context.Background(), call(map[string]any{"text": "  "}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !res.IsError {
		t.Fatalf("expected tool error")
	}
}

func TestTurnRoutesThroughAgent(t *testing.T) {
	e := newTestEngine(t)
	a, err := agent.New(agent.Options{Engine: e, Model: models.NewDummyLLM(""), Logger: nil})
	if err != nil {
		t.Fatalf("new agent: %v", err)
	}
	res, err := handleTurn(a, "u1")(context.Background(), call(map[string]any{"text": "note this: bought new running shoes"}))
	if err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if got := resultText(t, res); got != "Got it! I've saved your note. Anything else?" {
		t.Fatalf("turn reply = %q", got)
	}
	if n, _ := e.EntryCount(context.Background(), "u1"); n != 1 {
		t.Fatalf("entry count = %d", n)
	}
}
