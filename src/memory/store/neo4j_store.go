package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/Protocol-Lattice/journal-agent/src/memory/model"
)

// Neo4jAccessMode controls whether a session is opened for read or write operations.
type Neo4jAccessMode string

const (
	AccessModeWrite Neo4jAccessMode = "write"
	AccessModeRead  Neo4jAccessMode = "read"
)

// Neo4jSessionConfig mirrors the subset of Neo4j session configuration the store needs.
type Neo4jSessionConfig struct {
	AccessMode   Neo4jAccessMode
	DatabaseName string
}

// Neo4jDriver abstracts the driver so tests can use fakes; the real driver is wired
// through WrapNeo4jDriver behind the neo4j build tag.
type Neo4jDriver interface {
	NewSession(ctx context.Context, config Neo4jSessionConfig) (Neo4jSession, error)
	Close(ctx context.Context) error
}

type Neo4jSession interface {
	Run(ctx context.Context, query string, params map[string]any) (Neo4jResult, error)
	Close(ctx context.Context) error
}

type Neo4jResult interface {
	Next(ctx context.Context) bool
	Record() Neo4jRecord
	Err() error
	Close(ctx context.Context) error
}

type Neo4jRecord interface {
	Get(key string) (any, bool)
}

// Neo4jStore decorates a Backend with a topic graph:
// (:User)-[:WROTE]->(:Memory)-[:TAGGED]->(:Topic).
// Entries and vectors stay in the base backend; the graph only mirrors ids, dates and topics.
// Graph write failures are logged and never fail the base operation.
type Neo4jStore struct {
	base     Backend
	driver   Neo4jDriver
	database string
	logger   *log.Logger
}

var (
	_ Backend    = (*Neo4jStore)(nil)
	_ TopicGraph = (*Neo4jStore)(nil)
)

// ErrNeo4jUnavailable is returned when graph queries run without a configured driver.
var ErrNeo4jUnavailable = errors.New("neo4j driver not configured")

func NewNeo4jStore(base Backend, driver Neo4jDriver, database string) (*Neo4jStore, error) {
	if base == nil {
		return nil, errors.New("base store is nil")
	}
	if driver == nil {
		return nil, errors.New("neo4j driver is nil")
	}
	return &Neo4jStore{
		base:     base,
		driver:   driver,
		database: database,
		logger:   log.New(os.Stderr, "neo4j-graph: ", log.LstdFlags),
	}, nil
}

// WithLogger overrides the default logger.
func (s *Neo4jStore) WithLogger(logger *log.Logger) *Neo4jStore {
	if logger != nil {
		s.logger = logger
	}
	return s
}

func (s *Neo4jStore) Insert(ctx context.Context, m model.Memory) error {
	if err := s.base.Insert(ctx, m); err != nil {
		return err
	}
	params := map[string]any{
		"id":         m.ID,
		"user_id":    m.UserID,
		"session_id": m.SessionID,
		"created_at": m.CreatedAt.UTC().Format(time.RFC3339Nano),
		"topics":     model.NormalizeTopics(m.Topics),
	}
	if err := s.write(ctx, neo4jUpsertMemoryCypher, params); err != nil {
		s.logger.Printf("mirror %s: %v", m.ID, err)
	}
	return nil
}

func (s *Neo4jStore) Get(ctx context.Context, id string) (model.Memory, error) {
	return s.base.Get(ctx, id)
}

func (s *Neo4jStore) Nearest(ctx context.Context, userID string, query []float32, limit int) ([]Candidate, error) {
	return s.base.Nearest(ctx, userID, query, limit)
}

func (s *Neo4jStore) List(ctx context.Context, f Filter) ([]model.Memory, error) {
	return s.base.List(ctx, f)
}

func (s *Neo4jStore) Count(ctx context.Context, f Filter) (int, error) {
	return s.base.Count(ctx, f)
}

func (s *Neo4jStore) SoftDelete(ctx context.Context, id string) (bool, error) {
	ok, err := s.base.SoftDelete(ctx, id)
	if err != nil || !ok {
		return ok, err
	}
	if err := s.write(ctx, "MATCH (m:Memory {id: $id}) SET m.deleted = true", map[string]any{"id": id}); err != nil {
		s.logger.Printf("mark deleted %s: %v", id, err)
	}
	return true, nil
}

func (s *Neo4jStore) SoftDeleteMatching(ctx context.Context, f Filter) (int, error) {
	n, err := s.base.SoftDeleteMatching(ctx, f)
	if err != nil || n == 0 {
		return n, err
	}
	params := map[string]any{"user_id": f.UserID, "start": nil, "end": nil}
	if !f.Start.IsZero() {
		params["start"] = f.Start.UTC().Format(time.RFC3339Nano)
	}
	if !f.End.IsZero() {
		params["end"] = f.End.UTC().Format(time.RFC3339Nano)
	}
	if err := s.write(ctx, neo4jDeleteRangeCypher, params); err != nil {
		s.logger.Printf("mark range deleted for %s: %v", f.UserID, err)
	}
	return n, nil
}

// TopicCounts returns the user's most used topics over live memories.
func (s *Neo4jStore) TopicCounts(ctx context.Context, userID string, limit int) ([]TopicCount, error) {
	if limit <= 0 {
		limit = 10
	}
	var out []TopicCount
	err := s.read(ctx, neo4jTopicCountsCypher, map[string]any{"user_id": userID, "limit": limit}, func(rec Neo4jRecord) {
		topic, _ := rec.Get("topic")
		count, _ := rec.Get("count")
		out = append(out, TopicCount{Topic: toString(topic), Count: int(toInt64(count))})
	})
	return out, err
}

// RelatedByTopic returns live memories sharing at least one topic with id, most shared first.
func (s *Neo4jStore) RelatedByTopic(ctx context.Context, id string, limit int) ([]model.Memory, error) {
	if limit <= 0 {
		limit = 5
	}
	var ids []string
	err := s.read(ctx, neo4jRelatedCypher, map[string]any{"id": id, "limit": limit}, func(rec Neo4jRecord) {
		v, _ := rec.Get("id")
		if sid := toString(v); sid != "" {
			ids = append(ids, sid)
		}
	})
	if err != nil {
		return nil, err
	}
	out := make([]model.Memory, 0, len(ids))
	for _, rid := range ids {
		m, err := s.base.Get(ctx, rid)
		if err != nil || m.Deleted {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// CreateSchema delegates to the base store and ensures graph constraints.
func (s *Neo4jStore) CreateSchema(ctx context.Context, schemaPath string) error {
	if initializer, ok := s.base.(SchemaInitializer); ok {
		if err := initializer.CreateSchema(ctx, schemaPath); err != nil {
			return err
		}
	}
	for _, q := range []string{
		"CREATE CONSTRAINT IF NOT EXISTS FOR (m:Memory) REQUIRE m.id IS UNIQUE",
		"CREATE CONSTRAINT IF NOT EXISTS FOR (t:Topic) REQUIRE t.name IS UNIQUE",
		"CREATE CONSTRAINT IF NOT EXISTS FOR (u:User) REQUIRE u.id IS UNIQUE",
	} {
		if err := s.write(ctx, q, nil); err != nil {
			return fmt.Errorf("neo4j schema query: %w", err)
		}
	}
	return nil
}

// Close releases both the base store (when it implements Close) and the driver.
func (s *Neo4jStore) Close() error {
	var errs []error
	if closer, ok := s.base.(interface{ Close() error }); ok {
		errs = append(errs, closer.Close())
	}
	if s.driver != nil {
		errs = append(errs, s.driver.Close(context.Background()))
	}
	return errors.Join(errs...)
}

func (s *Neo4jStore) write(ctx context.Context, query string, params map[string]any) error {
	return s.read(ctx, query, params, nil, AccessModeWrite)
}

func (s *Neo4jStore) read(ctx context.Context, query string, params map[string]any, each func(Neo4jRecord), mode ...Neo4jAccessMode) error {
	if s.driver == nil {
		return ErrNeo4jUnavailable
	}
	access := AccessModeRead
	if len(mode) > 0 {
		access = mode[0]
	}
	session, err := s.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: access, DatabaseName: s.database})
	if err != nil {
		return fmt.Errorf("neo4j new session: %w", err)
	}
	defer session.Close(ctx)
	res, err := session.Run(ctx, query, params)
	if err != nil {
		return err
	}
	if res == nil {
		return nil
	}
	defer res.Close(ctx)
	for res.Next(ctx) {
		if each != nil {
			if rec := res.Record(); rec != nil {
				each(rec)
			}
		}
	}
	return res.Err()
}

const neo4jUpsertMemoryCypher = `
MERGE (u:User {id: $user_id})
MERGE (m:Memory {id: $id})
SET m.user_id = $user_id, m.session_id = $session_id, m.created_at = $created_at, m.deleted = false
MERGE (u)-[:WROTE]->(m)
WITH m
UNWIND $topics AS topic
MERGE (t:Topic {name: topic})
MERGE (m)-[:TAGGED]->(t)
`

const neo4jDeleteRangeCypher = `
MATCH (m:Memory {user_id: $user_id})
WHERE m.deleted = false
  AND ($start IS NULL OR m.created_at >= $start)
  AND ($end IS NULL OR m.created_at <= $end)
SET m.deleted = true
`

const neo4jTopicCountsCypher = `
MATCH (m:Memory {user_id: $user_id, deleted: false})-[:TAGGED]->(t:Topic)
RETURN t.name AS topic, count(m) AS count
ORDER BY count DESC, topic ASC
LIMIT $limit
`

const neo4jRelatedCypher = `
MATCH (m:Memory {id: $id})-[:TAGGED]->(t:Topic)<-[:TAGGED]-(o:Memory)
WHERE o.id <> m.id AND o.user_id = m.user_id AND o.deleted = false
RETURN o.id AS id, count(t) AS shared
ORDER BY shared DESC, o.created_at DESC
LIMIT $limit
`

func toString(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(val))
	}
}

func toInt64(v any) int64 {
	switch val := v.(type) {
	case int64:
		return val
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case float64:
		return int64(val)
	default:
		return 0
	}
}
