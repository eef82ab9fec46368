package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/Protocol-Lattice/journal-agent/src/memory/embed"
	"github.com/Protocol-Lattice/journal-agent/src/memory/model"
	"github.com/Protocol-Lattice/journal-agent/src/memory/store"
)

// axisEmbedder maps a handful of words onto fixed axes so distances are predictable.
func axisEmbedder() embed.Embedder {
	return embed.Func(func(_ context.Context, text string) ([]float32, error) {
		text = strings.ToLower(text)
		vec := make([]float32, 3)
		if strings.Contains(text, "coffee") {
			vec[0] = 1
		}
		if strings.Contains(text, "run") {
			vec[1] = 1
		}
		if strings.Contains(text, "work") {
			vec[2] = 1
		}
		if vec[0] == 0 && vec[1] == 0 && vec[2] == 0 {
			vec[2] = 0.01
		}
		return vec, nil
	})
}

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newTestEngine(t *testing.T) (*Engine, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)}
	seq := 0
	eng := NewEngine(store.NewInMemoryStore(), Options{
		Clock: clock.Now,
		NewID: func(time.Time) string { seq++; return fmt.Sprintf("e%d", seq) },
	}).WithEmbedder(axisEmbedder())
	return eng, clock
}

func TestRankPrefersRecentOnEqualSimilarity(t *testing.T) {
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	cands := []store.Candidate{
		{Memory: model.Memory{ID: "old", CreatedAt: now.Add(-20 * 24 * time.Hour)}, Distance: 0.1},
		{Memory: model.Memory{ID: "new", CreatedAt: now.Add(-time.Hour)}, Distance: 0.1},
	}
	hits := Rank(cands, now, 0.3, 2)
	if len(hits) != 2 || hits[0].Memory.ID != "new" {
		t.Fatalf("expected newest first, got %+v", hits)
	}
	if hits[0].Score <= hits[1].Score {
		t.Fatalf("scores not descending: %v %v", hits[0].Score, hits[1].Score)
	}
}

func TestRankZeroBoostIsPureSimilarity(t *testing.T) {
	now := time.Now()
	cands := []store.Candidate{
		{Memory: model.Memory{ID: "close", CreatedAt: now.Add(-40 * 24 * time.Hour)}, Distance: 0.05},
		{Memory: model.Memory{ID: "far", CreatedAt: now}, Distance: 0.6},
	}
	hits := Rank(cands, now, 0, 1)
	if len(hits) != 1 || hits[0].Memory.ID != "close" {
		t.Fatalf("expected closest only, got %+v", hits)
	}
	if diff := hits[0].Score - 0.95; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("unexpected score %v", hits[0].Score)
	}
}

func TestRankFullBoostIsPureRecency(t *testing.T) {
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	cands := []store.Candidate{
		{Memory: model.Memory{ID: "close", CreatedAt: now.Add(-15 * 24 * time.Hour)}, Distance: 0},
		{Memory: model.Memory{ID: "fresh", CreatedAt: now}, Distance: 0.9},
		{Memory: model.Memory{ID: "ancient", CreatedAt: now.Add(-60 * 24 * time.Hour)}, Distance: 0},
	}
	hits := Rank(cands, now, 1, 3)
	if len(hits) != 3 || hits[0].Memory.ID != "fresh" || hits[1].Memory.ID != "close" {
		t.Fatalf("expected recency order, got %+v", hits)
	}
	if diff := hits[1].Score - 0.5; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("unexpected score %v", hits[1].Score)
	}
	if hits[2].Score != 0 {
		t.Fatalf("entries older than 30 days should score 0, got %v", hits[2].Score)
	}
}

func TestRankHandlesEmptyInput(t *testing.T) {
	if hits := Rank(nil, time.Now(), 0.3, 5); hits != nil {
		t.Fatalf("expected nil, got %+v", hits)
	}
	if hits := Rank([]store.Candidate{{}}, time.Now(), 0.3, 0); hits != nil {
		t.Fatalf("expected nil for k=0, got %+v", hits)
	}
}

func TestAddRejectsEmptyText(t *testing.T) {
	eng, _ := newTestEngine(t)
	if _, err := eng.Add(context.Background(), AddParams{UserID: "u", Text: "   "}); !errors.Is(err, ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
}

func TestAddNormalizesTopics(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	id, err := eng.Add(ctx, AddParams{UserID: "u", Text: "coffee", Topics: []string{"Journal", "chat_entry", "journal"}})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	m, err := eng.Get(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if strings.Join(m.Topics, ",") != "chat_entry,journal" {
		t.Fatalf("unexpected topics %v", m.Topics)
	}
}

func TestSearchRanksBySimilarity(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	for _, text := range []string{"long run by the river", "coffee with Sam", "work was busy"} {
		if _, err := eng.Add(ctx, AddParams{UserID: "u", Text: text}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if _, err := eng.Add(ctx, AddParams{UserID: "other", Text: "coffee again"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	hits, err := eng.Search(ctx, "u", "coffee", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected 2 hits, got %d", len(hits))
	}
	if hits[0].Memory.Text != "coffee with Sam" {
		t.Fatalf("expected coffee entry first, got %q", hits[0].Memory.Text)
	}
	for _, h := range hits {
		if h.Memory.UserID != "u" {
			t.Fatalf("leaked entry from %s", h.Memory.UserID)
		}
	}
	if snap := eng.Metrics().Snapshot(); snap.Stored != 4 || snap.Searches != 1 {
		t.Fatalf("unexpected metrics %+v", snap)
	}
}

func TestSoftDeletedEntriesLeaveSearchButStayAuditable(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	id, _ := eng.Add(ctx, AddParams{UserID: "u", Text: "coffee"})

	if ok, err := eng.SoftDelete(ctx, "intruder", id); err != nil || ok {
		t.Fatalf("foreign delete should be refused, ok=%v err=%v", ok, err)
	}
	if ok, err := eng.SoftDelete(ctx, "u", id); err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	if ok, _ := eng.SoftDelete(ctx, "u", id); ok {
		t.Fatalf("second delete should report false")
	}
	if ok, _ := eng.SoftDelete(ctx, "u", "missing"); ok {
		t.Fatalf("unknown id should report false")
	}

	hits, err := eng.Search(ctx, "u", "coffee", 5)
	if err != nil || len(hits) != 0 {
		t.Fatalf("deleted entry returned by search: %+v err=%v", hits, err)
	}
	if _, err := eng.Get(ctx, id); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	m, err := eng.Audit(ctx, id)
	if err != nil || !m.Deleted {
		t.Fatalf("audit should return deleted entry, got %+v err=%v", m, err)
	}
}

func TestDateRangeOperations(t *testing.T) {
	eng, clock := newTestEngine(t)
	ctx := context.Background()
	day := clock.now
	for i := 0; i < 4; i++ {
		clock.now = day.Add(time.Duration(-i) * 24 * time.Hour)
		if _, err := eng.Add(ctx, AddParams{UserID: "u", Text: fmt.Sprintf("run %d", i)}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	clock.now = day

	start := day.Add(-36 * time.Hour)
	n, err := eng.CountByDateRange(ctx, "u", start, day)
	if err != nil || n != 2 {
		t.Fatalf("count range = %d err=%v", n, err)
	}
	listed, err := eng.ListByDateRange(ctx, "u", start, day, 0)
	if err != nil || len(listed) != 2 || listed[0].Text != "run 1" {
		t.Fatalf("list range = %+v err=%v", listed, err)
	}
	recent, err := eng.Recent(ctx, "u", 1)
	if err != nil || len(recent) != 1 || recent[0].Text != "run 0" {
		t.Fatalf("recent = %+v err=%v", recent, err)
	}
	deleted, err := eng.DeleteByDateRange(ctx, "u", start, day)
	if err != nil || deleted != 2 {
		t.Fatalf("delete range = %d err=%v", deleted, err)
	}
	total, _ := eng.EntryCount(ctx, "u")
	if total != 2 {
		t.Fatalf("expected 2 left, got %d", total)
	}
	all, err := eng.DeleteAll(ctx, "u")
	if err != nil || all != 2 {
		t.Fatalf("delete all = %d err=%v", all, err)
	}
	if again, _ := eng.DeleteAll(ctx, "u"); again != 0 {
		t.Fatalf("second delete all should be a no-op, got %d", again)
	}
}

func TestLongTermSearchAppliesDistanceThreshold(t *testing.T) {
	eng, _ := newTestEngine(t)
	ctx := context.Background()
	eng.Add(ctx, AddParams{UserID: "u", Text: "coffee"})
	eng.Add(ctx, AddParams{UserID: "u", Text: "run"})
	hits, err := eng.LongTermSearch(ctx, "u", "coffee")
	if err != nil {
		t.Fatalf("long term: %v", err)
	}
	if len(hits) != 1 || hits[0].Memory.Text != "coffee" {
		t.Fatalf("expected only the close entry, got %+v", hits)
	}
}

func TestTopicQueriesNeedGraph(t *testing.T) {
	eng, _ := newTestEngine(t)
	if _, err := eng.TopicCounts(context.Background(), "u", 5); !errors.Is(err, ErrNoTopicGraph) {
		t.Fatalf("expected ErrNoTopicGraph, got %v", err)
	}
}

func TestEmbedFailureStillStores(t *testing.T) {
	eng, _ := newTestEngine(t)
	eng.WithEmbedder(embed.Func(func(context.Context, string) ([]float32, error) {
		return nil, errors.New("offline")
	}))
	ctx := context.Background()
	if _, err := eng.Add(ctx, AddParams{UserID: "u", Text: "coffee"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if n, _ := eng.EntryCount(ctx, "u"); n != 1 {
		t.Fatalf("expected entry stored, got %d", n)
	}
	if eng.Metrics().Snapshot().EmbedFailures != 1 {
		t.Fatalf("embed failure not counted")
	}
}

func TestHeuristicSummarizer(t *testing.T) {
	out, err := HeuristicSummarizer{}.Summarize(context.Background(), []model.Memory{{Text: "Went running"}, {Text: "Felt great!"}})
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if out != "Went running. Felt great!" {
		t.Fatalf("unexpected summary %q", out)
	}
	long := []model.Memory{{Text: strings.Repeat("a", 400)}}
	out, _ = HeuristicSummarizer{}.Summarize(context.Background(), long)
	if len([]rune(out)) != 280 || !strings.HasSuffix(out, "...") {
		t.Fatalf("expected truncated summary, got %d runes", len([]rune(out)))
	}
}
