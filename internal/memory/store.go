// Package memory provides the long-term semantic memory store: an
// append-only, embedded record of past turns per user, plus the mutable
// profile row the synthesizer maintains. Backed by SQLite; similarity
// search runs over embeddings held in the records table.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/izaki/koto-agent/internal/embeddings"
)

// Record is one immutable memory entry. Records are never edited or
// deleted after Save.
type Record struct {
	ID        string
	UserID    string
	Role      string
	Text      string
	Embedding []float32
	Timestamp time.Time
}

// SearchResult is one similarity hit.
type SearchResult struct {
	Text      string
	Role      string
	Timestamp time.Time
	Score     float32
}

// Store is the SQLite-backed semantic memory store.
type Store struct {
	db       *sql.DB
	embedder embeddings.Embedder
	logger   *slog.Logger
}

// NewStore creates the store and its schema on the given connection.
func NewStore(db *sql.DB, embedder embeddings.Embedder, logger *slog.Logger) (*Store, error) {
	s := &Store{db: db, embedder: embedder, logger: logger}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("memory migration: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id        TEXT NOT NULL PRIMARY KEY,
		user_id   TEXT NOT NULL,
		role      TEXT NOT NULL,
		text      TEXT NOT NULL,
		embedding TEXT NOT NULL,
		timestamp TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_records_user ON records(user_id, timestamp);

	CREATE TABLE IF NOT EXISTS profiles (
		user_id    TEXT NOT NULL PRIMARY KEY,
		profile    TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// newID returns a time-ordered record ID. UUIDv7 keeps insertion order
// readable in the table; the v4 fallback only fires if the system clock
// is unusable.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Save appends one turn to the user's long-term memory. Memory writes
// are enrichment, not correctness: on embedding or storage failure the
// error is logged and false is returned, and the conversation goes on
// without this record.
func (s *Store) Save(ctx context.Context, userID, role, text string) bool {
	if text == "" {
		return false
	}

	vector, err := s.embedder.Generate(ctx, text)
	if err != nil {
		s.logger.Warn("memory save: embedding failed", "user_id", userID, "error", err)
		return false
	}

	payload, err := json.Marshal(vector)
	if err != nil {
		s.logger.Warn("memory save: marshal embedding failed", "user_id", userID, "error", err)
		return false
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO records (id, user_id, role, text, embedding, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, newID(), userID, role, text, string(payload), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		s.logger.Warn("memory save: insert failed", "user_id", userID, "error", err)
		return false
	}
	return true
}

// Search returns the k records most similar to queryText, strictly
// filtered to the given user. Ordering is deterministic: score
// descending, then timestamp descending, then ID ascending.
func (s *Store) Search(ctx context.Context, userID, queryText string, k int) ([]SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}

	queryVec, err := s.embedder.Generate(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, text, embedding, timestamp FROM records
		WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	type scored struct {
		id     string
		result SearchResult
	}
	var candidates []scored

	for rows.Next() {
		var id, role, text, embJSON, tsStr string
		if err := rows.Scan(&id, &role, &text, &embJSON, &tsStr); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		var vec []float32
		if err := json.Unmarshal([]byte(embJSON), &vec); err != nil {
			s.logger.Warn("memory search: corrupt embedding, skipping", "record_id", id)
			continue
		}
		ts, _ := time.Parse(time.RFC3339Nano, tsStr)
		candidates = append(candidates, scored{
			id: id,
			result: SearchResult{
				Text:      text,
				Role:      role,
				Timestamp: ts,
				Score:     embeddings.CosineSimilarity(queryVec, vec),
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.result.Score != b.result.Score {
			return a.result.Score > b.result.Score
		}
		if !a.result.Timestamp.Equal(b.result.Timestamp) {
			return a.result.Timestamp.After(b.result.Timestamp)
		}
		return a.id < b.id
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]SearchResult, len(candidates))
	for i, c := range candidates {
		out[i] = c.result
	}
	return out, nil
}

// RecentUserTexts returns up to limit user-authored texts written since
// the cutoff, oldest first. The profile synthesizer reads these as its
// analysis input.
func (s *Store) RecentUserTexts(ctx context.Context, userID string, since time.Time, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT text FROM records
		WHERE user_id = ? AND role = 'user' AND timestamp >= ?
		ORDER BY timestamp ASC
		LIMIT ?
	`, userID, since.UTC().Format(time.RFC3339Nano), limit)
	if err != nil {
		return nil, fmt.Errorf("query recent texts: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("scan text: %w", err)
		}
		out = append(out, text)
	}
	return out, rows.Err()
}
