package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "line:\n  channel_secret: abc\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Line.ChannelSecret != "abc" {
		t.Errorf("ChannelSecret = %q, want %q", cfg.Line.ChannelSecret, "abc")
	}
	if cfg.Memory.MaxHistory != 50 {
		t.Errorf("MaxHistory = %d, want 50", cfg.Memory.MaxHistory)
	}
	if cfg.Gemini.Model != "gemini-2.0-flash" {
		t.Errorf("Model = %q, want default", cfg.Gemini.Model)
	}
	if cfg.Listen.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Listen.Port)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("KOTO_TEST_TOKEN", "tok-123")
	path := writeConfig(t, "line:\n  channel_token: ${KOTO_TEST_TOKEN}\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Line.ChannelToken != "tok-123" {
		t.Errorf("ChannelToken = %q, want tok-123", cfg.Line.ChannelToken)
	}
}

func TestFindConfigExplicitMissing(t *testing.T) {
	if _, err := FindConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config")
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"TRACE", LevelTrace, false},
		{"debug", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"  warn  ", slog.LevelWarn, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLogLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLogLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
