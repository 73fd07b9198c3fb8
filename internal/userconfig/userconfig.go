// Package userconfig stores per-user settings as YAML files: persona
// override and reminder rules. Files live under one directory, one
// <userID>.yaml each; a user without a file gets the defaults.
package userconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/izaki/koto-agent/internal/prompts"
)

// ReminderRule schedules one proactive message. Time is "HH:MM"; only
// the hour component is matched by the scheduler.
type ReminderRule struct {
	Name    string `yaml:"name"`
	Time    string `yaml:"time"`
	Prompt  string `yaml:"prompt"`
	Enabled bool   `yaml:"enabled"`
}

var timeRe = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// Hour returns the rule's hour component, or -1 when Time is
// malformed.
func (r ReminderRule) Hour() int {
	m := timeRe.FindStringSubmatch(r.Time)
	if m == nil {
		return -1
	}
	h, err := strconv.Atoi(m[1])
	if err != nil || h < 0 || h > 23 {
		return -1
	}
	return h
}

// UserConfig holds one user's settings.
type UserConfig struct {
	Persona   string         `yaml:"persona"`
	Reminders []ReminderRule `yaml:"reminders"`
}

// Default returns the settings a new user starts with: a 07:00 morning
// greeting.
func Default() *UserConfig {
	return &UserConfig{
		Reminders: []ReminderRule{{
			Name:    "morning",
			Time:    "07:00",
			Prompt:  prompts.DefaultMorningPrompt(),
			Enabled: true,
		}},
	}
}

// Store reads and writes per-user config files.
type Store struct {
	dir string
}

// NewStore creates the config directory if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create user config dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

func (s *Store) path(userID string) string {
	// User IDs come from the messaging platform and are opaque; base
	// them to keep path traversal out of the directory.
	return filepath.Join(s.dir, filepath.Base(userID)+".yaml")
}

// Load returns the user's config, or the defaults when no file exists.
func (s *Store) Load(userID string) (*UserConfig, error) {
	data, err := os.ReadFile(s.path(userID))
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read user config: %w", err)
	}

	cfg := &UserConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse user config for %s: %w", userID, err)
	}
	return cfg, nil
}

// Persona returns the user's persona override, or "" when unset or the
// config is unreadable. The agent falls back to the built-in persona.
func (s *Store) Persona(userID string) string {
	cfg, err := s.Load(userID)
	if err != nil {
		return ""
	}
	return cfg.Persona
}

// Save writes the user's config.
func (s *Store) Save(userID string, cfg *UserConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode user config: %w", err)
	}
	if err := os.WriteFile(s.path(userID), data, 0644); err != nil {
		return fmt.Errorf("write user config: %w", err)
	}
	return nil
}
