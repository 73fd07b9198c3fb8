// Package session provides the short-term conversation store. History
// lives in memory and is bounded per user; a SQLite snapshot backup
// survives restarts on a best-effort basis.
package session

import (
	"sync"
	"time"
)

// DefaultMaxHistory bounds per-user history when no limit is configured.
const DefaultMaxHistory = 50

// Turn is one entry in a user's conversation history.
type Turn struct {
	Role      string    `json:"role"` // "user" or "model"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Store holds bounded per-user conversation history in memory. All
// methods are safe for concurrent use; operations on different users
// never block each other beyond the short map access.
type Store struct {
	maxHistory int

	mu    sync.RWMutex
	turns map[string][]Turn
}

// NewStore creates a session store. maxHistory <= 0 selects
// [DefaultMaxHistory].
func NewStore(maxHistory int) *Store {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &Store{
		maxHistory: maxHistory,
		turns:      make(map[string][]Turn),
	}
}

// Append adds a turn to the user's history, creating the session on
// first use. When the history exceeds the bound the oldest turns are
// dropped immediately, so a reader never observes an over-long history.
func (s *Store) Append(userID, role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turns := append(s.turns[userID], Turn{
		Role:      role,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
	if excess := len(turns) - s.maxHistory; excess > 0 {
		turns = turns[excess:]
	}
	s.turns[userID] = turns
}

// History returns a copy of the user's turns in chronological order.
// Unknown users get an empty slice.
func (s *Store) History(userID string) []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	turns := s.turns[userID]
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// Clear removes the user's session entirely.
func (s *Store) Clear(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.turns, userID)
}

// Users returns the IDs of all users with a live session.
func (s *Store) Users() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.turns))
	for id := range s.turns {
		out = append(out, id)
	}
	return out
}

// Restore replaces the user's history wholesale, trimming to the bound.
// Used by snapshot hydration at startup.
func (s *Store) Restore(userID string, turns []Turn) {
	if excess := len(turns) - s.maxHistory; excess > 0 {
		turns = turns[excess:]
	}
	cp := make([]Turn, len(turns))
	copy(cp, turns)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns[userID] = cp
}
