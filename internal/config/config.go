// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for
// agentdeck.
//
// Supports both TOML and JSON configuration formats, with sensible
// defaults, environment variable overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.agentdeck/config.toml
//   - ~/.agentdeck/config.json
//   - Built-in defaults
package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/agentdeck/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete agentdeck configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	// Server is the agentd backend connection.
	Server ServerConfig `toml:"server" json:"server"`

	// UI configuration
	UI UIConfig `toml:"ui" json:"ui"`

	// Cache configuration (offline session mirror)
	Cache CacheConfig `toml:"cache" json:"cache"`

	// History configuration (REPL input history)
	History HistoryConfig `toml:"history" json:"history"`

	// Logging configuration
	Logging LogConfig `toml:"logging" json:"logging"`
}

// ServerConfig contains agentd backend connection settings.
type ServerConfig struct {
	// URL is the backend base URL.
	URL string `toml:"url" json:"url"`
	// TimeoutSecs is the timeout for non-streaming requests in seconds.
	// The turn stream itself has no timeout; it lives until the terminal
	// frame or cancellation.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// MaxRetries is the retry count for transient failures on
	// non-streaming requests.
	MaxRetries int `toml:"max_retries" json:"max_retries"`
}

// UIConfig contains TUI settings.
type UIConfig struct {
	// Theme selects the color theme: "dark", "light", or "auto".
	Theme string `toml:"theme" json:"theme"`
	// ShowSidebar shows the session sidebar at startup.
	ShowSidebar bool `toml:"show_sidebar" json:"show_sidebar"`
	// SidebarWidth is the sidebar width in columns.
	SidebarWidth int `toml:"sidebar_width" json:"sidebar_width"`
	// Markdown renders assistant replies as markdown.
	Markdown bool `toml:"markdown" json:"markdown"`
	// SyntaxTheme is the chroma style used for code blocks.
	SyntaxTheme string `toml:"syntax_theme" json:"syntax_theme"`
}

// CacheConfig contains offline cache settings.
type CacheConfig struct {
	// Enabled turns the offline mirror on.
	Enabled bool `toml:"enabled" json:"enabled"`
	// Dir is the cache directory (empty = ~/.agentdeck/cache).
	Dir string `toml:"dir" json:"dir"`
	// MaxTranscripts limits cached transcripts (0 = unlimited).
	MaxTranscripts int `toml:"max_transcripts" json:"max_transcripts"`
}

// HistoryConfig contains REPL input history settings.
type HistoryConfig struct {
	// Enabled turns input history on.
	Enabled bool `toml:"enabled" json:"enabled"`
	// File is the history file path (empty = ~/.agentdeck/history).
	File string `toml:"file" json:"file"`
	// MaxEntries limits stored history lines.
	MaxEntries int `toml:"max_entries" json:"max_entries"`
}

// LogConfig contains structured logging settings.
type LogConfig struct {
	// Level is one of "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level"`
	// File is the log file path (empty = ~/.agentdeck/agentdeck.log).
	// The TUI owns the terminal, so logs never go to stderr while it
	// runs.
	File string `toml:"file" json:"file"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Version: "1",
		Server: ServerConfig{
			URL:         "http://127.0.0.1:8000",
			TimeoutSecs: 30,
			MaxRetries:  3,
		},
		UI: UIConfig{
			Theme:        "auto",
			ShowSidebar:  true,
			SidebarWidth: 28,
			Markdown:     true,
			SyntaxTheme:  "monokai",
		},
		Cache: CacheConfig{
			Enabled:        true,
			MaxTranscripts: 100,
		},
		History: HistoryConfig{
			Enabled:    true,
			MaxEntries: 1000,
		},
		Logging: LogConfig{
			Level: "info",
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the agentdeck configuration directory.
func ConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".agentdeck"), nil
}

// ConfigPathTOML returns the TOML config file path.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the JSON config file path.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir creates the configuration directory if needed.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads configuration from the first file found, applies environment
// overrides, validates, and returns the result. A missing file is not an
// error; defaults are used.
func Load() (*Config, error) {
	cfg := Default()

	tomlPath, err := ConfigPathTOML()
	if err != nil {
		return nil, err
	}
	jsonPath, err := ConfigPathJSON()
	if err != nil {
		return nil, err
	}

	switch {
	case fileExists(tomlPath):
		if err := LoadTOML(cfg, tomlPath); err != nil {
			return nil, err
		}
	case fileExists(jsonPath):
		if err := LoadJSON(cfg, jsonPath); err != nil {
			return nil, err
		}
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadTOML reads TOML configuration into cfg.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// LoadJSON reads JSON configuration into cfg.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// LoadFromPath loads configuration from an explicit path, inferring the
// format from the extension.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	var err error
	switch filepath.Ext(path) {
	case ".toml":
		err = LoadTOML(cfg, path)
	case ".json":
		err = LoadJSON(cfg, path)
	default:
		err = fmt.Errorf("unsupported config format: %s", path)
	}
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// =============================================================================
// SAVING
// =============================================================================

// Save writes the configuration to the default TOML path.
func Save(cfg *Config) error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes TOML configuration atomically.
func SaveTOML(cfg *Config, path string) error {
	var buf strings.Builder
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return util.AtomicWriteFile(path, []byte(buf.String()), 0644)
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors aggregates validation failures.
type ValidateErrors []ValidationError

// Error implements the error interface.
func (e ValidateErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// Validate checks the configuration and clamps recoverable values.
// Out-of-range numbers are clamped rather than rejected; only values with
// no sane substitute (like an unparseable URL) fail.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.Server.URL == "" {
		c.Server.URL = Default().Server.URL
	}
	if u, err := url.Parse(c.Server.URL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "server.url",
			Message: fmt.Sprintf("invalid URL %q", c.Server.URL),
		})
	}

	if c.Server.TimeoutSecs < 1 {
		c.Server.TimeoutSecs = 1
	}
	if c.Server.TimeoutSecs > 600 {
		c.Server.TimeoutSecs = 600
	}
	if c.Server.MaxRetries < 1 {
		c.Server.MaxRetries = 1
	}
	if c.Server.MaxRetries > 10 {
		c.Server.MaxRetries = 10
	}

	switch c.UI.Theme {
	case "dark", "light", "auto":
	default:
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("unknown theme %q (want dark, light, or auto)", c.UI.Theme),
		})
	}
	if c.UI.SidebarWidth < 16 {
		c.UI.SidebarWidth = 16
	}
	if c.UI.SidebarWidth > 60 {
		c.UI.SidebarWidth = 60
	}

	if c.Cache.MaxTranscripts < 0 {
		c.Cache.MaxTranscripts = 0
	}
	if c.History.MaxEntries < 0 {
		c.History.MaxEntries = 0
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("unknown level %q (want debug, info, warn, or error)", c.Logging.Level),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies AGENTDECK_* environment variables over the
// loaded configuration. The environment always wins over files.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("AGENTDECK_SERVER_URL"); v != "" {
		c.Server.URL = v
	}
	if v := os.Getenv("AGENTDECK_TIMEOUT_SECS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.TimeoutSecs = n
		}
	}
	if v := os.Getenv("AGENTDECK_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Server.MaxRetries = n
		}
	}
	if v := os.Getenv("AGENTDECK_THEME"); v != "" {
		c.UI.Theme = v
	}
	if v := os.Getenv("AGENTDECK_CACHE_DIR"); v != "" {
		c.Cache.Dir = v
	}
	if v := os.Getenv("AGENTDECK_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("AGENTDECK_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
}

// =============================================================================
// GLOBAL CONFIG
// =============================================================================

var (
	globalMu     sync.RWMutex
	globalConfig *Config
)

// Global returns the process-wide configuration, loading it on first use.
// Load failures fall back to defaults so the client still starts.
func Global() *Config {
	globalMu.RLock()
	if globalConfig != nil {
		defer globalMu.RUnlock()
		return globalConfig
	}
	globalMu.RUnlock()

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			cfg = Default()
		}
		globalConfig = cfg
	}
	return globalConfig
}

// SetGlobal replaces the process-wide configuration.
func SetGlobal(cfg *Config) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting clears the global config so tests start clean.
func ResetGlobalForTesting() {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalConfig = nil
}
