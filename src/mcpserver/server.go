// Package mcpserver exposes the journal over the Model Context Protocol so other
// agents can log, search and manage entries through stdio.
package mcpserver

import (
	"context"
	"fmt"
	"strings"

	agent "github.com/Protocol-Lattice/journal-agent"
	"github.com/Protocol-Lattice/journal-agent/src/memory/engine"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const (
	serverName    = "journal-agent"
	serverVersion = "0.1.0"

	defaultSearchLimit = 5
	maxSearchLimit     = 20
)

const instructions = `Voice journal memory. Use journal_log to save a note for the user, ` +
	`journal_search to recall past entries, journal_turn to talk to the journal ` +
	`assistant directly, journal_count and journal_delete to manage entries.`

// NewServer registers the journal tools. a may be nil, in which case
// journal_turn is not offered.
func NewServer(e *engine.Engine, a *agent.Agent, defaultUser string) *server.MCPServer {
	if defaultUser == "" {
		defaultUser = agent.DefaultUserID
	}
	srv := server.NewMCPServer(serverName, serverVersion,
		server.WithToolCapabilities(true),
		server.WithInstructions(instructions),
	)

	srv.AddTool(
		mcp.NewTool("journal_log",
			mcp.WithDescription("Save a journal entry for the user."),
			mcp.WithString("text", mcp.Required(), mcp.Description("Entry content")),
			mcp.WithString("user_id", mcp.Description("Owner of the entry")),
			mcp.WithString("topics", mcp.Description("Comma separated topics")),
			mcp.WithString("mood", mcp.Description("Optional mood label")),
		),
		handleLog(e, defaultUser),
	)
	srv.AddTool(
		mcp.NewTool("journal_search",
			mcp.WithDescription("Search the user's journal by meaning, favouring recent entries."),
			mcp.WithString("query", mcp.Required(), mcp.Description("Natural language query")),
			mcp.WithString("user_id", mcp.Description("Owner of the entries")),
			mcp.WithNumber("limit", mcp.Description("Max results (default 5, max 20)")),
		),
		handleSearch(e, defaultUser),
	)
	srv.AddTool(
		mcp.NewTool("journal_count",
			mcp.WithDescription("Count the user's live journal entries."),
			mcp.WithString("user_id", mcp.Description("Owner of the entries")),
		),
		handleCount(e, defaultUser),
	)
	srv.AddTool(
		mcp.NewTool("journal_delete",
			mcp.WithDescription("Soft delete one journal entry by id."),
			mcp.WithDestructiveHintAnnotation(true),
			mcp.WithString("id", mcp.Required(), mcp.Description("Entry id")),
			mcp.WithString("user_id", mcp.Description("Owner of the entry")),
		),
		handleDelete(e, defaultUser),
	)
	if a != nil {
		srv.AddTool(
			mcp.NewTool("journal_turn",
				mcp.WithDescription("Send one utterance to the journal assistant and get its reply."),
				mcp.WithString("text", mcp.Required(), mcp.Description("What the user said")),
				mcp.WithString("session_id", mcp.Description("Conversation id")),
				mcp.WithString("user_id", mcp.Description("Speaking user")),
			),
			handleTurn(a, defaultUser),
		)
	}
	return srv
}

// Serve runs the server over stdin/stdout until the client disconnects.
func Serve(srv *server.MCPServer) error {
	return server.ServeStdio(srv)
}

func handleLog(e *engine.Engine, defaultUser string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text := stringArg(req, "text", "")
		if strings.TrimSpace(text) == "" {
			return mcp.NewToolResultError("text is required"), nil
		}
		var topics []string
		if raw := stringArg(req, "topics", ""); raw != "" {
			topics = strings.Split(raw, ",")
		}
		id, err := e.Add(ctx, engine.AddParams{
			UserID: stringArg(req, "user_id", defaultUser),
			Text:   text,
			Topics: topics,
			Mood:   stringArg(req, "mood", ""),
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Could not save entry: %s", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Saved entry %s", id)), nil
	}
}

func handleSearch(e *engine.Engine, defaultUser string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query := stringArg(req, "query", "")
		if strings.TrimSpace(query) == "" {
			return mcp.NewToolResultError("query is required"), nil
		}
		limit := intArg(req, "limit", defaultSearchLimit)
		if limit <= 0 {
			limit = defaultSearchLimit
		}
		if limit > maxSearchLimit {
			limit = maxSearchLimit
		}
		hits, err := e.Search(ctx, stringArg(req, "user_id", defaultUser), query, limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Search error: %s", err)), nil
		}
		if len(hits) == 0 {
			return mcp.NewToolResultText(fmt.Sprintf("No entries found for: %q", query)), nil
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Found %d entries:\n", len(hits))
		for i, h := range hits {
			fmt.Fprintf(&b, "[%d] %s (%s, score %.2f)\n    %s\n",
				i+1, h.Memory.ID, h.Memory.CreatedAt.Format("2006-01-02"), h.Score, h.Memory.Text)
		}
		return mcp.NewToolResultText(b.String()), nil
	}
}

func handleCount(e *engine.Engine, defaultUser string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		n, err := e.EntryCount(ctx, stringArg(req, "user_id", defaultUser))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Count error: %s", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("%d entries", n)), nil
	}
}

func handleDelete(e *engine.Engine, defaultUser string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id := stringArg(req, "id", "")
		if id == "" {
			return mcp.NewToolResultError("id is required"), nil
		}
		ok, err := e.SoftDelete(ctx, stringArg(req, "user_id", defaultUser), id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Delete error: %s", err)), nil
		}
		if !ok {
			return mcp.NewToolResultText(fmt.Sprintf("No live entry %s", id)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf("Deleted entry %s", id)), nil
	}
}

func handleTurn(a *agent.Agent, defaultUser string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text := stringArg(req, "text", "")
		if strings.TrimSpace(text) == "" {
			return mcp.NewToolResultError("text is required"), nil
		}
		resp, err := a.HandleTurn(ctx, stringArg(req, "user_id", defaultUser), stringArg(req, "session_id", ""), text)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Turn failed: %s", err)), nil
		}
		return mcp.NewToolResultText(resp.Text), nil
	}
}

func stringArg(req mcp.CallToolRequest, key, def string) string {
	v, ok := req.GetArguments()[key].(string)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	return strings.TrimSpace(v)
}

func intArg(req mcp.CallToolRequest, key string, def int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return def
	}
	return int(v)
}
