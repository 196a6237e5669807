// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/morganforge/nanochat/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete nanochat configuration.
type Config struct {
	// API configuration
	API APIConfig `toml:"api"`

	// Chat defaults applied to new sessions
	Chat ChatConfig `toml:"chat"`

	// History storage and pagination configuration
	History HistoryConfig `toml:"history"`

	// Connectivity probing configuration
	Connectivity ConnectivityConfig `toml:"connectivity"`

	// UI configuration
	UI UIConfig `toml:"ui"`

	// Log configuration
	Log LogConfig `toml:"log"`
}

// APIConfig contains the hosted API endpoint configuration.
type APIConfig struct {
	// BaseURL is the OpenAI-compatible API base URL
	BaseURL string `toml:"base_url"`
	// APIKey is the API credential; NANOGPT_API_KEY overrides it
	APIKey string `toml:"api_key"`
	// DefaultModel is the model used for new sessions
	DefaultModel string `toml:"default_model"`
	// RequestTimeoutSecs bounds a single generation request (0 = default)
	RequestTimeoutSecs int `toml:"request_timeout_secs"`
	// MaxRetries is the retry count for rate-limited and server errors
	MaxRetries int `toml:"max_retries"`
	// RetryDelayMS is the base delay for exponential backoff
	RetryDelayMS int `toml:"retry_delay_ms"`
	// PenaltyParams indicates the backend accepts frequency/presence penalties.
	// When false those fields are omitted from requests instead of probed.
	PenaltyParams bool `toml:"penalty_params"`
	// RequestsPerMinute paces outgoing API calls (0 = unpaced)
	RequestsPerMinute int `toml:"requests_per_minute"`
}

// ChatConfig contains defaults for new chat sessions.
type ChatConfig struct {
	// SystemPrompt is the default system prompt for new sessions
	SystemPrompt string `toml:"system_prompt"`
	// Temperature is the default sampling temperature (0.0-2.0)
	Temperature float64 `toml:"temperature"`
	// MaxTokens caps the assistant response length (0 = backend default)
	MaxTokens int `toml:"max_tokens"`
	// TopP is the nucleus sampling parameter (0.0-1.0)
	TopP float64 `toml:"top_p"`
	// FrequencyPenalty discourages token repetition (-2.0-2.0)
	FrequencyPenalty float64 `toml:"frequency_penalty"`
	// PresencePenalty discourages topic repetition (-2.0-2.0)
	PresencePenalty float64 `toml:"presence_penalty"`
}

// HistoryConfig contains chat history storage and pagination configuration.
type HistoryConfig struct {
	// DBPath is the SQLite database path (empty = ~/.nanochat/chat.db)
	DBPath string `toml:"db_path"`
	// SessionPageSize is the number of sessions fetched per page
	SessionPageSize int `toml:"session_page_size"`
	// MessagePageSize is the number of messages fetched when opening a session
	MessagePageSize int `toml:"message_page_size"`
	// OlderPageSize is the number of messages fetched per scroll-back page
	OlderPageSize int `toml:"older_page_size"`
}

// ConnectivityConfig contains network reachability probe configuration.
type ConnectivityConfig struct {
	// ProbeAddr is the TCP address dialed to test reachability
	ProbeAddr string `toml:"probe_addr"`
	// IntervalSecs is the seconds between probes
	IntervalSecs int `toml:"interval_secs"`
	// TimeoutSecs is the per-probe dial timeout
	TimeoutSecs int `toml:"timeout_secs"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// CoalesceMS is the minimum interval between streaming redraws
	CoalesceMS int `toml:"coalesce_ms"`
	// Markdown enables rendered markdown for assistant messages
	Markdown bool `toml:"markdown"`
	// CompactMode uses a more compact UI layout
	CompactMode bool `toml:"compact_mode"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error"
	Level string `toml:"level"`
	// Path is the log file path (empty = ~/.nanochat/nanochat.log)
	Path string `toml:"path"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:            "https://nano-gpt.com/api/v1",
			APIKey:             "",
			DefaultModel:       "gpt-4o",
			RequestTimeoutSecs: 120,
			MaxRetries:         3,
			RetryDelayMS:       1000,
			PenaltyParams:      true,
			RequestsPerMinute:  0, // unpaced
		},

		Chat: ChatConfig{
			SystemPrompt:     "You are a helpful assistant.",
			Temperature:      0.7,
			MaxTokens:        4096,
			TopP:             1.0,
			FrequencyPenalty: 0,
			PresencePenalty:  0,
		},

		History: HistoryConfig{
			DBPath:          "",
			SessionPageSize: 50,
			MessagePageSize: 50,
			OlderPageSize:   20,
		},

		Connectivity: ConnectivityConfig{
			ProbeAddr:    "8.8.8.8:53",
			IntervalSecs: 10,
			TimeoutSecs:  3,
		},

		UI: UIConfig{
			CoalesceMS:  150,
			Markdown:    true,
			CompactMode: false,
		},

		Log: LogConfig{
			Level: "info",
			Path:  "",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the nanochat configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".nanochat"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DBPath returns the effective database path for the given config.
func (c *Config) DBPath() (string, error) {
	if c.History.DBPath != "" {
		return c.History.DBPath, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "chat.db"), nil
}

// LogPath returns the effective log file path for the given config.
func (c *Config) LogPath() (string, error) {
	if c.Log.Path != "" {
		return c.Log.Path, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "nanochat.log"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions checks and fixes permissions on the config file.
// SECURITY: Config files should be 0600 (owner read/write only) to protect API keys.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default config file. On first run the
// file does not exist yet; a default one is written so the user has
// something to edit. Environment overrides are applied last, then the
// result is validated and clamped.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return loadOrInit(path)
}

// loadOrInit loads the config at path, writing a default file first when
// none exists. The written file holds plain defaults; env overrides apply
// to the returned config only.
func loadOrInit(path string) (*Config, error) {
	if _, statErr := os.Stat(path); statErr != nil {
		cfg := Default()
		if saveErr := SaveTOML(cfg, path); saveErr != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not write default config: %v\n", saveErr)
		}
		cfg.ApplyEnvOverrides()
		cfg.Validate()
		return cfg, nil
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific TOML file.
func LoadFromPath(path string) (*Config, error) {
	if err := ensureSecurePermissions(path); err != nil {
		// Permissions might not be fixable on all systems
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	cfg.fillDefaults()
	cfg.ApplyEnvOverrides()
	cfg.Validate()
	return cfg, nil
}

// fillDefaults fills in any missing values with defaults. Zero values for
// numeric tuning knobs are treated as "unset"; booleans keep their TOML value.
func (c *Config) fillDefaults() {
	defaults := Default()

	if c.API.BaseURL == "" {
		c.API.BaseURL = defaults.API.BaseURL
	}
	if c.API.DefaultModel == "" {
		c.API.DefaultModel = defaults.API.DefaultModel
	}
	if c.API.RequestTimeoutSecs == 0 {
		c.API.RequestTimeoutSecs = defaults.API.RequestTimeoutSecs
	}
	if c.API.MaxRetries == 0 {
		c.API.MaxRetries = defaults.API.MaxRetries
	}
	if c.API.RetryDelayMS == 0 {
		c.API.RetryDelayMS = defaults.API.RetryDelayMS
	}

	if c.Chat.SystemPrompt == "" {
		c.Chat.SystemPrompt = defaults.Chat.SystemPrompt
	}
	if c.Chat.Temperature == 0 {
		c.Chat.Temperature = defaults.Chat.Temperature
	}
	if c.Chat.MaxTokens == 0 {
		c.Chat.MaxTokens = defaults.Chat.MaxTokens
	}
	if c.Chat.TopP == 0 {
		c.Chat.TopP = defaults.Chat.TopP
	}

	if c.History.SessionPageSize == 0 {
		c.History.SessionPageSize = defaults.History.SessionPageSize
	}
	if c.History.MessagePageSize == 0 {
		c.History.MessagePageSize = defaults.History.MessagePageSize
	}
	if c.History.OlderPageSize == 0 {
		c.History.OlderPageSize = defaults.History.OlderPageSize
	}

	if c.Connectivity.ProbeAddr == "" {
		c.Connectivity.ProbeAddr = defaults.Connectivity.ProbeAddr
	}
	if c.Connectivity.IntervalSecs == 0 {
		c.Connectivity.IntervalSecs = defaults.Connectivity.IntervalSecs
	}
	if c.Connectivity.TimeoutSecs == 0 {
		c.Connectivity.TimeoutSecs = defaults.Connectivity.TimeoutSecs
	}

	if c.UI.CoalesceMS == 0 {
		c.UI.CoalesceMS = defaults.UI.CoalesceMS
	}

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
// Environment variables take precedence over file values.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("NANOGPT_API_KEY"); v != "" {
		c.API.APIKey = v
	}
	if v := os.Getenv("NANOGPT_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("NANOCHAT_MODEL"); v != "" {
		c.API.DefaultModel = v
	}
	if v := os.Getenv("NANOCHAT_LOG"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate clamps out-of-range values to safe bounds. Malformed values never
// abort startup; the worst misconfiguration degrades to a default.
func (c *Config) Validate() {
	defaults := Default()

	if _, err := url.Parse(c.API.BaseURL); err != nil {
		c.API.BaseURL = defaults.API.BaseURL
	}
	if c.API.RequestTimeoutSecs < 1 {
		c.API.RequestTimeoutSecs = defaults.API.RequestTimeoutSecs
	}
	if c.API.MaxRetries < 0 {
		c.API.MaxRetries = 0
	}
	if c.API.MaxRetries > 10 {
		c.API.MaxRetries = 10
	}
	if c.API.RetryDelayMS < 0 {
		c.API.RetryDelayMS = defaults.API.RetryDelayMS
	}
	if c.API.RequestsPerMinute < 0 {
		c.API.RequestsPerMinute = 0
	}

	c.Chat.Temperature = clampFloat(c.Chat.Temperature, 0, 2)
	c.Chat.TopP = clampFloat(c.Chat.TopP, 0, 1)
	c.Chat.FrequencyPenalty = clampFloat(c.Chat.FrequencyPenalty, -2, 2)
	c.Chat.PresencePenalty = clampFloat(c.Chat.PresencePenalty, -2, 2)
	if c.Chat.MaxTokens < 0 {
		c.Chat.MaxTokens = 0
	}

	if c.History.SessionPageSize < 1 {
		c.History.SessionPageSize = defaults.History.SessionPageSize
	}
	if c.History.MessagePageSize < 1 {
		c.History.MessagePageSize = defaults.History.MessagePageSize
	}
	if c.History.OlderPageSize < 1 {
		c.History.OlderPageSize = defaults.History.OlderPageSize
	}

	if c.Connectivity.IntervalSecs < 1 {
		c.Connectivity.IntervalSecs = defaults.Connectivity.IntervalSecs
	}
	if c.Connectivity.TimeoutSecs < 1 {
		c.Connectivity.TimeoutSecs = defaults.Connectivity.TimeoutSecs
	}

	if c.UI.CoalesceMS < 0 {
		c.UI.CoalesceMS = defaults.UI.CoalesceMS
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		c.Log.Level = defaults.Log.Level
	}
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// =============================================================================
// DURATION HELPERS
// =============================================================================

// RequestTimeout returns the per-request timeout as a duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.API.RequestTimeoutSecs) * time.Second
}

// RetryDelay returns the base retry delay as a duration.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.API.RetryDelayMS) * time.Millisecond
}

// ProbeInterval returns the connectivity probe interval as a duration.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.Connectivity.IntervalSecs) * time.Second
}

// ProbeTimeout returns the connectivity probe dial timeout as a duration.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Connectivity.TimeoutSecs) * time.Second
}

// CoalesceInterval returns the streaming redraw interval as a duration.
func (c *Config) CoalesceInterval() time.Duration {
	return time.Duration(c.UI.CoalesceMS) * time.Millisecond
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file. The write goes through a
// temp file and rename, so a crash mid-save never leaves a truncated config.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteString("# nanochat configuration file\n")
	buf.WriteString("# Generated by nanochat - edit with care\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
