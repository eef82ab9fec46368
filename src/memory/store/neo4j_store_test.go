package store

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
)

type fakeNeo4jDriver struct {
	mu      sync.Mutex
	queries []string
	params  []map[string]any
	rows    []map[string]any
	runErr  error
}

func (d *fakeNeo4jDriver) NewSession(context.Context, Neo4jSessionConfig) (Neo4jSession, error) {
	return &fakeNeo4jSession{driver: d}, nil
}

func (d *fakeNeo4jDriver) Close(context.Context) error { return nil }

type fakeNeo4jSession struct{ driver *fakeNeo4jDriver }

func (s *fakeNeo4jSession) Run(_ context.Context, query string, params map[string]any) (Neo4jResult, error) {
	s.driver.mu.Lock()
	defer s.driver.mu.Unlock()
	s.driver.queries = append(s.driver.queries, query)
	s.driver.params = append(s.driver.params, params)
	if s.driver.runErr != nil {
		return nil, s.driver.runErr
	}
	return &fakeNeo4jResult{rows: s.driver.rows, idx: -1}, nil
}

func (s *fakeNeo4jSession) Close(context.Context) error { return nil }

type fakeNeo4jResult struct {
	rows []map[string]any
	idx  int
}

func (r *fakeNeo4jResult) Next(context.Context) bool {
	r.idx++
	return r.idx < len(r.rows)
}

func (r *fakeNeo4jResult) Record() Neo4jRecord        { return fakeNeo4jRecord(r.rows[r.idx]) }
func (r *fakeNeo4jResult) Err() error                 { return nil }
func (r *fakeNeo4jResult) Close(context.Context) error { return nil }

type fakeNeo4jRecord map[string]any

func (r fakeNeo4jRecord) Get(key string) (any, bool) {
	v, ok := r[key]
	return v, ok
}

func newGraphStore(t *testing.T, driver *fakeNeo4jDriver) (*Neo4jStore, *InMemoryStore) {
	t.Helper()
	mem := NewInMemoryStore()
	s, err := NewNeo4jStore(mem, driver, "neo4j")
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	s.WithLogger(log.New(io.Discard, "", 0))
	return s, mem
}

func TestNeo4jStoreMirrorsInsertWithTopics(t *testing.T) {
	driver := &fakeNeo4jDriver{}
	s, mem := newGraphStore(t, driver)
	m := seedMemory()
	m.Topics = []string{"Journal", "chat_entry"}
	if err := s.Insert(context.Background(), m); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := mem.Get(context.Background(), "m1"); err != nil {
		t.Fatalf("base store should hold the entry: %v", err)
	}
	if len(driver.queries) != 1 || !strings.Contains(driver.queries[0], "TAGGED") {
		t.Fatalf("expected topic mirror query, got %v", driver.queries)
	}
	topics := driver.params[0]["topics"].([]string)
	if len(topics) != 2 || topics[0] != "chat_entry" || topics[1] != "journal" {
		t.Fatalf("expected normalized topics, got %v", topics)
	}
}

func TestNeo4jStoreGraphFailureDoesNotFailInsert(t *testing.T) {
	driver := &fakeNeo4jDriver{runErr: errors.New("graph down")}
	s, _ := newGraphStore(t, driver)
	if err := s.Insert(context.Background(), seedMemory()); err != nil {
		t.Fatalf("graph errors must not surface: %v", err)
	}
}

func TestNeo4jStoreSoftDeleteMarksNodeOnce(t *testing.T) {
	driver := &fakeNeo4jDriver{}
	s, _ := newGraphStore(t, driver)
	_ = s.Insert(context.Background(), seedMemory())
	driver.queries = nil

	ok, _ := s.SoftDelete(context.Background(), "m1")
	if !ok || len(driver.queries) != 1 {
		t.Fatalf("expected one graph update, ok=%v queries=%v", ok, driver.queries)
	}
	ok, _ = s.SoftDelete(context.Background(), "m1")
	if ok || len(driver.queries) != 1 {
		t.Fatalf("second delete must not touch the graph, ok=%v queries=%d", ok, len(driver.queries))
	}
}

func TestNeo4jStoreTopicCounts(t *testing.T) {
	driver := &fakeNeo4jDriver{rows: []map[string]any{
		{"topic": "journal", "count": int64(3)},
		{"topic": "work", "count": int64(1)},
	}}
	s, _ := newGraphStore(t, driver)
	counts, err := s.TopicCounts(context.Background(), "u", 5)
	if err != nil {
		t.Fatalf("topic counts: %v", err)
	}
	if len(counts) != 2 || counts[0].Topic != "journal" || counts[0].Count != 3 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestNeo4jStoreRelatedSkipsDeleted(t *testing.T) {
	driver := &fakeNeo4jDriver{}
	s, mem := newGraphStore(t, driver)
	ctx := context.Background()
	a, b := seedMemory(), seedMemory()
	b.ID = "m2"
	_ = mem.Insert(ctx, a)
	_ = mem.Insert(ctx, b)
	_, _ = mem.SoftDelete(ctx, "m2")

	driver.rows = []map[string]any{{"id": "m1"}, {"id": "m2"}}
	related, err := s.RelatedByTopic(ctx, "m0", 5)
	if err != nil {
		t.Fatalf("related: %v", err)
	}
	if len(related) != 1 || related[0].ID != "m1" {
		t.Fatalf("unexpected related: %v", ids(related))
	}
}

func TestNewNeo4jStoreValidates(t *testing.T) {
	if _, err := NewNeo4jStore(nil, &fakeNeo4jDriver{}, ""); err == nil {
		t.Fatal("expected error for nil base")
	}
	if _, err := NewNeo4jStore(NewInMemoryStore(), nil, ""); err == nil {
		t.Fatal("expected error for nil driver")
	}
}
