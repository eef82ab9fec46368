package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/Protocol-Lattice/journal-agent/src/memory/model"
)

// sqliteTimeLayout is fixed-width so text comparison orders like time.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore persists memories in a local SQLite file. Similarity is computed in process
// over the user's live embeddings.
type SQLiteStore struct {
	db *sql.DB
}

var _ Backend = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the database at path and applies the schema.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	s := &SQLiteStore{db: db}
	if err := s.CreateSchema(ctx, ""); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// CreateSchema applies the bundled schema, or the one at schemaPath when given.
func (s *SQLiteStore) CreateSchema(ctx context.Context, schemaPath string) error {
	if s == nil || s.db == nil {
		return nil
	}
	schema := defaultSQLiteSchema
	if schemaPath != "" {
		data, err := os.ReadFile(schemaPath)
		if err != nil {
			return fmt.Errorf("failed to read schema file: %w", err)
		}
		schema = string(data)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Insert(ctx context.Context, m model.Memory) error {
	if s == nil || s.db == nil {
		return nil
	}
	topics, _ := json.Marshal(m.Topics)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO journal_entries (id, user_id, session_id, text, topics, mood, language_code, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.UserID, m.SessionID, m.Text, string(topics), m.Mood, m.LanguageCode,
		encodeEmbedding(m.Embedding), formatSQLiteTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (model.Memory, error) {
	if s == nil || s.db == nil {
		return model.Memory{}, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM journal_entries WHERE id = ?`, id)
	m, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Memory{}, ErrNotFound
	}
	return m, err
}

func (s *SQLiteStore) Nearest(ctx context.Context, userID string, query []float32, limit int) ([]Candidate, error) {
	if s == nil || s.db == nil || limit <= 0 || len(query) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+sqliteColumns+` FROM journal_entries
		WHERE user_id = ? AND deleted_at IS NULL AND embedding IS NOT NULL`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		m, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		if !m.Searchable() {
			continue
		}
		out = append(out, Candidate{Memory: m, Distance: model.CosineDistance(query, m.Embedding)})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *SQLiteStore) List(ctx context.Context, f Filter) ([]model.Memory, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	where, args := sqliteWhere(f)
	order := "ASC"
	if f.Newest {
		order = "DESC"
	}
	query := `SELECT ` + sqliteColumns + ` FROM journal_entries WHERE ` + where + ` ORDER BY created_at ` + order
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Memory, 0)
	for rows.Next() {
		m, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Count(ctx context.Context, f Filter) (int, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	where, args := sqliteWhere(f)
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM journal_entries WHERE `+where, args...).Scan(&n)
	return n, err
}

func (s *SQLiteStore) SoftDelete(ctx context.Context, id string) (bool, error) {
	if s == nil || s.db == nil {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE journal_entries SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`,
		formatSQLiteTime(time.Now()), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *SQLiteStore) SoftDeleteMatching(ctx context.Context, f Filter) (int, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	where, args := sqliteWhere(f)
	args = append([]any{formatSQLiteTime(time.Now())}, args...)
	res, err := s.db.ExecContext(ctx, `UPDATE journal_entries SET deleted_at = ? WHERE `+where, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const sqliteColumns = `id, user_id, session_id, text, topics, mood, language_code, embedding, created_at, deleted_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLite(row rowScanner) (model.Memory, error) {
	var (
		m         model.Memory
		topics    sql.NullString
		embedding []byte
		createdAt string
		deletedAt sql.NullString
	)
	if err := row.Scan(&m.ID, &m.UserID, &m.SessionID, &m.Text, &topics, &m.Mood, &m.LanguageCode,
		&embedding, &createdAt, &deletedAt); err != nil {
		return model.Memory{}, err
	}
	if topics.Valid && topics.String != "" && topics.String != "null" {
		_ = json.Unmarshal([]byte(topics.String), &m.Topics)
	}
	m.Embedding = decodeEmbedding(embedding)
	m.CreatedAt, _ = time.Parse(sqliteTimeLayout, createdAt)
	m.Deleted = deletedAt.Valid
	return m, nil
}

func sqliteWhere(f Filter) (string, []any) {
	clauses := []string{"user_id = ?", "deleted_at IS NULL"}
	args := []any{f.UserID}
	if !f.Start.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, formatSQLiteTime(f.Start))
	}
	if !f.End.IsZero() {
		clauses = append(clauses, "created_at <= ?")
		args = append(args, formatSQLiteTime(f.End))
	}
	return strings.Join(clauses, " AND "), args
}

func formatSQLiteTime(t time.Time) string {
	return t.UTC().Format(sqliteTimeLayout)
}

// encodeEmbedding packs a vector as little-endian float32s.
func encodeEmbedding(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(buf []byte) []float32 {
	if len(buf) < 4 {
		return nil
	}
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return vec
}

const defaultSQLiteSchema = `
CREATE TABLE IF NOT EXISTS journal_entries (
    id            TEXT PRIMARY KEY,
    user_id       TEXT NOT NULL,
    session_id    TEXT NOT NULL DEFAULT '',
    text          TEXT NOT NULL,
    topics        TEXT,
    mood          TEXT NOT NULL DEFAULT '',
    language_code TEXT NOT NULL DEFAULT '',
    embedding     BLOB,
    created_at    TEXT NOT NULL,
    deleted_at    TEXT
);
CREATE INDEX IF NOT EXISTS idx_entries_user_created ON journal_entries(user_id, created_at);
CREATE INDEX IF NOT EXISTS idx_entries_deleted ON journal_entries(deleted_at);
`
