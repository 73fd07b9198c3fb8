package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// UserProfile is the synthesized persona summary for one user. The JSON
// tags match the shape the profile-merge prompt asks the model for.
type UserProfile struct {
	Name              string   `json:"name"`
	PersonalityTraits []string `json:"personality_traits"`
	Interests         []string `json:"interests"`
	Values            []string `json:"values"`
	CurrentGoals      []string `json:"current_goals"`
	Summary           string   `json:"summary"`

	LastUpdated time.Time `json:"-"`
}

// GetProfile returns the user's profile, or a zero profile if none has
// been synthesized yet.
func (s *Store) GetProfile(ctx context.Context, userID string) (UserProfile, error) {
	var payload, updatedAtStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT profile, updated_at FROM profiles WHERE user_id = ?
	`, userID).Scan(&payload, &updatedAtStr)
	if err == sql.ErrNoRows {
		return UserProfile{}, nil
	}
	if err != nil {
		return UserProfile{}, fmt.Errorf("get profile: %w", err)
	}

	var p UserProfile
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return UserProfile{}, fmt.Errorf("decode profile: %w", err)
	}
	p.LastUpdated, _ = time.Parse(time.RFC3339Nano, updatedAtStr)
	return p, nil
}

// SaveProfile replaces the user's profile wholesale in one statement.
// The single-row UPSERT makes the swap atomic: a reader sees either the
// old or the new profile, never a mix.
func (s *Store) SaveProfile(ctx context.Context, userID string, p UserProfile) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (user_id, profile, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			profile = excluded.profile,
			updated_at = excluded.updated_at
	`, userID, string(payload), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save profile: %w", err)
	}
	return nil
}
