package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Protocol-Lattice/journal-agent/src/memory/model"
)

// PostgresStore implements Backend using Postgres + pgvector. Distances use the
// cosine operator so they line up with the in-process backends.
type PostgresStore struct {
	DB        *pgxpool.Pool
	Dimension int
}

var _ Backend = (*PostgresStore)(nil)

// NewPostgresStore connects to Postgres. dimension sizes the vector column created by CreateSchema.
func NewPostgresStore(ctx context.Context, connStr string, dimension int) (*PostgresStore, error) {
	db, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	if dimension <= 0 {
		dimension = 768
	}
	return &PostgresStore{DB: db, Dimension: dimension}, nil
}

func (ps *PostgresStore) Insert(ctx context.Context, m model.Memory) error {
	if ps == nil || ps.DB == nil {
		return nil
	}
	var embedding any
	if len(m.Embedding) > 0 {
		embedding = vectorLiteral(m.Embedding)
	}
	_, err := ps.DB.Exec(ctx, `
                INSERT INTO journal_entries (id, user_id, session_id, text, topics, mood, language_code, embedding, created_at)
                VALUES ($1, $2, $3, $4, $5, $6, $7, $8::vector, $9)
        `, m.ID, m.UserID, m.SessionID, m.Text, append([]string{}, m.Topics...), m.Mood, m.LanguageCode, embedding, m.CreatedAt.UTC())
	return err
}

func (ps *PostgresStore) Get(ctx context.Context, id string) (model.Memory, error) {
	if ps == nil || ps.DB == nil {
		return model.Memory{}, ErrNotFound
	}
	row := ps.DB.QueryRow(ctx, `SELECT `+pgColumns+` FROM journal_entries WHERE id = $1`, id)
	m, err := scanPostgres(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Memory{}, ErrNotFound
	}
	return m, err
}

func (ps *PostgresStore) Nearest(ctx context.Context, userID string, query []float32, limit int) ([]Candidate, error) {
	if ps == nil || ps.DB == nil || limit <= 0 || len(query) == 0 {
		return nil, nil
	}
	rows, err := ps.DB.Query(ctx, `
        SELECT `+pgColumns+`, (embedding <=> $2::vector) AS distance
        FROM journal_entries
        WHERE user_id = $1 AND deleted_at IS NULL AND embedding IS NOT NULL
        ORDER BY embedding <=> $2::vector
        LIMIT $3;
        `, userID, vectorLiteral(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		m, err := scanPostgres(rows, &c.Distance)
		if err != nil {
			return nil, err
		}
		c.Memory = m
		out = append(out, c)
	}
	return out, rows.Err()
}

func (ps *PostgresStore) List(ctx context.Context, f Filter) ([]model.Memory, error) {
	if ps == nil || ps.DB == nil {
		return nil, nil
	}
	where, args := pgWhere(f)
	order := "ASC"
	if f.Newest {
		order = "DESC"
	}
	query := `SELECT ` + pgColumns + ` FROM journal_entries WHERE ` + where + ` ORDER BY created_at ` + order
	if f.Limit > 0 {
		query += " LIMIT " + strconv.Itoa(f.Limit)
	}
	rows, err := ps.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Memory, 0)
	for rows.Next() {
		m, err := scanPostgres(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (ps *PostgresStore) Count(ctx context.Context, f Filter) (int, error) {
	if ps == nil || ps.DB == nil {
		return 0, nil
	}
	where, args := pgWhere(f)
	var count int
	err := ps.DB.QueryRow(ctx, `SELECT COUNT(*) FROM journal_entries WHERE `+where, args...).Scan(&count)
	return count, err
}

func (ps *PostgresStore) SoftDelete(ctx context.Context, id string) (bool, error) {
	if ps == nil || ps.DB == nil {
		return false, nil
	}
	tag, err := ps.DB.Exec(ctx, `UPDATE journal_entries SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (ps *PostgresStore) SoftDeleteMatching(ctx context.Context, f Filter) (int, error) {
	if ps == nil || ps.DB == nil {
		return 0, nil
	}
	where, args := pgWhere(f)
	tag, err := ps.DB.Exec(ctx, `UPDATE journal_entries SET deleted_at = NOW() WHERE `+where, args...)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

// CreateSchema ensures the pgvector extension and entry table exist.
func (ps *PostgresStore) CreateSchema(ctx context.Context, schemaPath string) error {
	if ps == nil || ps.DB == nil {
		return nil
	}
	schema := fmt.Sprintf(defaultPostgresSchema, ps.Dimension)
	if schemaPath != "" {
		data, err := os.ReadFile(schemaPath)
		if err != nil {
			return fmt.Errorf("failed to read schema file: %w", err)
		}
		schema = string(data)
	}
	if _, err := ps.DB.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Close releases the underlying Postgres connection pool.
func (ps *PostgresStore) Close() error {
	if ps == nil || ps.DB == nil {
		return nil
	}
	ps.DB.Close()
	return nil
}

const pgColumns = `id, user_id, session_id, text, topics, mood, language_code, embedding::text, created_at, deleted_at IS NOT NULL`

func scanPostgres(row pgx.Row, extra ...any) (model.Memory, error) {
	var (
		m         model.Memory
		embedding *string
	)
	dest := []any{&m.ID, &m.UserID, &m.SessionID, &m.Text, &m.Topics, &m.Mood, &m.LanguageCode, &embedding, &m.CreatedAt, &m.Deleted}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return model.Memory{}, err
	}
	if embedding != nil {
		m.Embedding = parseVector(*embedding)
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return m, nil
}

func pgWhere(f Filter) (string, []any) {
	clauses := []string{"user_id = $1", "deleted_at IS NULL"}
	args := []any{f.UserID}
	if !f.Start.IsZero() {
		args = append(args, f.Start.UTC())
		clauses = append(clauses, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !f.End.IsZero() {
		args = append(args, f.End.UTC())
		clauses = append(clauses, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

const defaultPostgresSchema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS journal_entries (
    id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    session_id TEXT NOT NULL DEFAULT '',
    text TEXT NOT NULL,
    topics TEXT[] NOT NULL DEFAULT '{}',
    mood TEXT NOT NULL DEFAULT '',
    language_code TEXT NOT NULL DEFAULT '',
    embedding vector(%d),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    deleted_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS journal_entries_user_created_idx ON journal_entries (user_id, created_at);
CREATE INDEX IF NOT EXISTS journal_entries_embedding_idx ON journal_entries USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100);
`

func trimJSON(s string) string { return strings.Trim(s, "[]") }

func vectorLiteral(vec []float32) string {
	raw, _ := json.Marshal(vec)
	return fmt.Sprintf("[%s]", trimJSON(string(raw)))
}

func parseVector(text string) []float32 {
	text = trimJSON(text)
	if strings.TrimSpace(text) == "" {
		return nil
	}
	parts := strings.Split(text, ",")
	vec := make([]float32, 0, len(parts))
	for _, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			continue
		}
		vec = append(vec, float32(f))
	}
	return vec
}

