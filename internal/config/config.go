// Package config handles Koto configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/koto/config.yaml, /etc/koto/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "koto", "config.yaml"))
	}

	paths = append(paths, "/etc/koto/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all Koto configuration.
type Config struct {
	Listen     ListenConfig     `yaml:"listen"`
	Line       LineConfig       `yaml:"line"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Memory     MemoryConfig     `yaml:"memory"`
	Mail       MailConfig       `yaml:"mail"`
	DAV        DAVConfig        `yaml:"dav"`
	Search     SearchConfig     `yaml:"search"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Notify     NotifyConfig     `yaml:"notify"`
	Console    ConsoleConfig    `yaml:"console"`
	DataDir    string           `yaml:"data_dir"`
	UserConfDir string          `yaml:"user_conf_dir"`
	LogLevel   string           `yaml:"log_level"`
}

// ListenConfig defines the webhook server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`    // Default: 8080

	// AutocertDomains enables automatic TLS via Let's Encrypt when
	// non-empty. The LINE platform requires HTTPS webhook endpoints.
	AutocertDomains []string `yaml:"autocert_domains"`
	// AutocertCacheDir is where issued certificates are cached.
	AutocertCacheDir string `yaml:"autocert_cache_dir"`
}

// LineConfig defines LINE Messaging API credentials.
type LineConfig struct {
	ChannelSecret string `yaml:"channel_secret"`
	ChannelToken  string `yaml:"channel_token"`
	// AddFriendURL is rendered as a QR code at /qr for onboarding.
	AddFriendURL string `yaml:"add_friend_url"`
}

// GeminiConfig defines the model API settings.
type GeminiConfig struct {
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"` // Defaults to the public endpoint
	Model       string  `yaml:"model"`    // Default: gemini-2.0-flash
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	TimeoutSec  int     `yaml:"timeout_sec"` // Per-call timeout (default 60)
}

// EmbeddingsConfig defines embedding generation settings.
type EmbeddingsConfig struct {
	Model   string `yaml:"model"`    // Default: text-embedding-004
	BaseURL string `yaml:"base_url"` // Defaults to gemini.base_url
}

// MemoryConfig defines session and semantic memory settings.
type MemoryConfig struct {
	MaxHistory    int `yaml:"max_history"`    // Turn window per user (default 50)
	SearchTopK    int `yaml:"search_top_k"`   // RAG retrieval depth (default 5)
	ContextTokens int `yaml:"context_tokens"` // Token budget for the RAG excerpt (default 500)
	SnapshotSec   int `yaml:"snapshot_sec"`   // Session snapshot interval (default 300)
}

// MailConfig defines the IMAP account used by the list_mail tool.
type MailConfig struct {
	Host     string `yaml:"host"` // host:port, e.g. imap.gmail.com:993
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Mailbox  string `yaml:"mailbox"` // Default: INBOX
}

// DAVConfig defines CalDAV/CardDAV endpoints for calendar and contacts tools.
type DAVConfig struct {
	CalendarURL    string `yaml:"calendar_url"`
	AddressBookURL string `yaml:"addressbook_url"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
}

// SearchConfig defines the web search backend for the web_search tool.
type SearchConfig struct {
	Endpoint string `yaml:"endpoint"` // SearXNG-compatible JSON endpoint
}

// MQTTConfig defines the optional MQTT announce channel.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"` // e.g. mqtt://localhost:1883
	Topic    string `yaml:"topic"`  // Default: koto/announce
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// NotifyConfig defines proactive notification cadence.
type NotifyConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Timezone        string `yaml:"timezone"`      // IANA name for reminder hour matching
	ProfileHour     int    `yaml:"profile_hour"`  // Daily profile analysis hour (default 3)
	TickIntervalMin int    `yaml:"tick_interval"` // Minutes between ticks (default 60)
}

// ConsoleConfig defines the developer chat console.
type ConsoleConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Gemini: GeminiConfig{
			BaseURL:     "https://generativelanguage.googleapis.com",
			Model:       "gemini-2.0-flash",
			Temperature: 0.8,
			MaxTokens:   1024,
			TimeoutSec:  60,
		},
		Embeddings: EmbeddingsConfig{
			Model: "text-embedding-004",
		},
		Memory: MemoryConfig{
			MaxHistory:    50,
			SearchTopK:    5,
			ContextTokens: 500,
			SnapshotSec:   300,
		},
		Mail: MailConfig{Mailbox: "INBOX"},
		MQTT: MQTTConfig{Topic: "koto/announce"},
		Notify: NotifyConfig{
			ProfileHour:     3,
			TickIntervalMin: 60,
		},
		DataDir: "data",
	}
}
