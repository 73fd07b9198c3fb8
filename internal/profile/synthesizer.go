// Package profile periodically re-synthesizes each user's persona
// profile from their recent long-term memory entries.
package profile

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/izaki/koto-agent/internal/llm"
	"github.com/izaki/koto-agent/internal/memory"
	"github.com/izaki/koto-agent/internal/prompts"
)

// logLimit caps how many recent fragments feed one analysis pass.
const logLimit = 50

// MemoryStore is the subset of [*memory.Store] the synthesizer needs.
type MemoryStore interface {
	RecentUserTexts(ctx context.Context, userID string, since time.Time, limit int) ([]string, error)
	GetProfile(ctx context.Context, userID string) (memory.UserProfile, error)
	SaveProfile(ctx context.Context, userID string, p memory.UserProfile) error
}

// Synthesizer merges recent conversation fragments into the stored
// profile via the model. Every failure path keeps the old profile: the
// analysis is a no-op with respect to persisted state unless the merge
// fully succeeds.
type Synthesizer struct {
	store    MemoryStore
	model    llm.Model
	logger   *slog.Logger
	lookback time.Duration
	nowFunc  func() time.Time // injectable for testing; defaults to time.Now
}

// NewSynthesizer creates a profile synthesizer. lookback bounds how far
// back RunAnalysis reads; zero selects 24h.
func NewSynthesizer(store MemoryStore, model llm.Model, logger *slog.Logger, lookback time.Duration) *Synthesizer {
	if lookback <= 0 {
		lookback = 24 * time.Hour
	}
	return &Synthesizer{
		store:    store,
		model:    model,
		logger:   logger,
		lookback: lookback,
		nowFunc:  time.Now,
	}
}

// RunAnalysis reads the user's recent memory fragments, asks the model
// to merge them into the current profile, and persists the result. With
// no new fragments, or on any merge failure, the current profile is
// returned unchanged.
func (s *Synthesizer) RunAnalysis(ctx context.Context, userID string) (memory.UserProfile, error) {
	current, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return memory.UserProfile{}, err
	}

	logs, err := s.store.RecentUserTexts(ctx, userID, s.nowFunc().Add(-s.lookback), logLimit)
	if err != nil {
		s.logger.Warn("profile analysis: fetch logs failed", "user_id", userID, "error", err)
		return current, nil
	}
	if len(logs) == 0 {
		s.logger.Debug("profile analysis: no new logs", "user_id", userID)
		return current, nil
	}

	currentJSON, err := json.Marshal(current)
	if err != nil {
		return current, nil
	}

	prompt := prompts.ProfilerPrompt(string(currentJSON), logs)
	resp, err := s.model.Generate(ctx, []llm.Content{llm.TextContent("user", prompt)}, nil)
	if err != nil {
		s.logger.Warn("profile analysis: model call failed, keeping old profile", "user_id", userID, "error", err)
		return current, nil
	}

	merged, ok := parseProfile(resp.Text)
	if !ok {
		s.logger.Warn("profile analysis: unparseable response, keeping old profile", "user_id", userID)
		return current, nil
	}

	if err := s.store.SaveProfile(ctx, userID, merged); err != nil {
		s.logger.Warn("profile analysis: save failed, keeping old profile", "user_id", userID, "error", err)
		return current, nil
	}

	s.logger.Info("profile updated", "user_id", userID, "fragments", len(logs))
	return merged, nil
}

var jsonFenceRe = regexp.MustCompile("(?s)```json\\s*\n(.*?)\n```")

// parseProfile extracts a UserProfile from the model's reply, tolerating
// markdown code fences around the JSON.
func parseProfile(text string) (memory.UserProfile, bool) {
	text = strings.TrimSpace(text)
	if m := jsonFenceRe.FindStringSubmatch(text); m != nil {
		text = m[1]
	} else {
		text = strings.ReplaceAll(text, "```", "")
	}

	var p memory.UserProfile
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &p); err != nil {
		return memory.UserProfile{}, false
	}
	return p, true
}
