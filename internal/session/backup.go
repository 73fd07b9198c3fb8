package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// SnapshotStore persists session history to SQLite so a restart does not
// wipe short-term context. Snapshots are advisory: the in-memory store is
// authoritative while the process runs, and every failure here is logged
// and swallowed by the callers that can afford to.
type SnapshotStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSnapshotStore creates the snapshot table if needed.
func NewSnapshotStore(db *sql.DB, logger *slog.Logger) (*SnapshotStore, error) {
	s := &SnapshotStore{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("session snapshot migration: %w", err)
	}
	return s, nil
}

func (s *SnapshotStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS session_snapshots (
			user_id    TEXT NOT NULL PRIMARY KEY,
			turns      TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)
	`)
	return err
}

// Save writes one user's history, replacing any previous snapshot.
func (s *SnapshotStore) Save(userID string, turns []Turn) error {
	payload, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO session_snapshots (user_id, turns, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			turns = excluded.turns,
			updated_at = excluded.updated_at
	`, userID, string(payload), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// SaveAll snapshots every live session. Per-user failures are logged and
// do not stop the sweep.
func (s *SnapshotStore) SaveAll(store *Store) {
	for _, userID := range store.Users() {
		if err := s.Save(userID, store.History(userID)); err != nil {
			s.logger.Warn("session snapshot failed", "user_id", userID, "error", err)
		}
	}
}

// Hydrate loads all snapshots into the store. Corrupt rows are skipped
// with a warning; an unreadable table leaves the store empty, which is
// the same state a fresh deployment starts from.
func (s *SnapshotStore) Hydrate(store *Store) {
	rows, err := s.db.Query(`SELECT user_id, turns FROM session_snapshots`)
	if err != nil {
		s.logger.Warn("session hydrate failed", "error", err)
		return
	}
	defer rows.Close()

	restored := 0
	for rows.Next() {
		var userID, payload string
		if err := rows.Scan(&userID, &payload); err != nil {
			s.logger.Warn("session hydrate scan failed", "error", err)
			continue
		}
		var turns []Turn
		if err := json.Unmarshal([]byte(payload), &turns); err != nil {
			s.logger.Warn("session snapshot corrupt, skipping", "user_id", userID, "error", err)
			continue
		}
		store.Restore(userID, turns)
		restored++
	}
	if err := rows.Err(); err != nil {
		s.logger.Warn("session hydrate iteration failed", "error", err)
	}
	s.logger.Info("session snapshots hydrated", "users", restored)
}
