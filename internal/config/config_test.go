// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.URL != "http://127.0.0.1:8000" {
		t.Errorf("server url = %q", cfg.Server.URL)
	}
	if cfg.Server.TimeoutSecs != 30 {
		t.Errorf("timeout = %d", cfg.Server.TimeoutSecs)
	}
	if !cfg.UI.ShowSidebar {
		t.Error("sidebar should default on")
	}
	if !cfg.Cache.Enabled {
		t.Error("cache should default on")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoadTOML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
version = "1"

[server]
url = "http://10.0.0.5:9000"
timeout_secs = 60

[ui]
theme = "light"
sidebar_width = 40

[logging]
level = "debug"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Server.URL != "http://10.0.0.5:9000" {
		t.Errorf("server url = %q", cfg.Server.URL)
	}
	if cfg.Server.TimeoutSecs != 60 {
		t.Errorf("timeout = %d", cfg.Server.TimeoutSecs)
	}
	if cfg.UI.Theme != "light" {
		t.Errorf("theme = %q", cfg.UI.Theme)
	}
	if cfg.UI.SidebarWidth != 40 {
		t.Errorf("sidebar width = %d", cfg.UI.SidebarWidth)
	}
	// Unset fields keep their defaults.
	if cfg.Server.MaxRetries != 3 {
		t.Errorf("max retries = %d, want default 3", cfg.Server.MaxRetries)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{"server": {"url": "http://localhost:7000", "timeout_secs": 15, "max_retries": 2}}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if cfg.Server.URL != "http://localhost:7000" {
		t.Errorf("server url = %q", cfg.Server.URL)
	}
	if cfg.Server.MaxRetries != 2 {
		t.Errorf("max retries = %d", cfg.Server.MaxRetries)
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	if _, err := LoadFromPath("/tmp/config.yaml"); err == nil {
		t.Fatal("yaml should be rejected")
	}
}

func TestValidateClamps(t *testing.T) {
	cfg := Default()
	cfg.Server.TimeoutSecs = 0
	cfg.Server.MaxRetries = 99
	cfg.UI.SidebarWidth = 5
	cfg.Cache.MaxTranscripts = -1

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Server.TimeoutSecs != 1 {
		t.Errorf("timeout clamped to %d", cfg.Server.TimeoutSecs)
	}
	if cfg.Server.MaxRetries != 10 {
		t.Errorf("retries clamped to %d", cfg.Server.MaxRetries)
	}
	if cfg.UI.SidebarWidth != 16 {
		t.Errorf("sidebar clamped to %d", cfg.UI.SidebarWidth)
	}
	if cfg.Cache.MaxTranscripts != 0 {
		t.Errorf("max transcripts clamped to %d", cfg.Cache.MaxTranscripts)
	}
}

func TestValidateRejects(t *testing.T) {
	cfg := Default()
	cfg.Server.URL = "not a url"
	cfg.UI.Theme = "neon"
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation errors")
	}
	errs, ok := err.(ValidateErrors)
	if !ok {
		t.Fatalf("error type = %T", err)
	}
	if len(errs) != 3 {
		t.Errorf("got %d errors, want 3: %v", len(errs), errs)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("AGENTDECK_SERVER_URL", "http://override:8000")
	t.Setenv("AGENTDECK_TIMEOUT_SECS", "45")
	t.Setenv("AGENTDECK_THEME", "dark")
	t.Setenv("AGENTDECK_LOG_LEVEL", "warn")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	if cfg.Server.URL != "http://override:8000" {
		t.Errorf("server url = %q", cfg.Server.URL)
	}
	if cfg.Server.TimeoutSecs != 45 {
		t.Errorf("timeout = %d", cfg.Server.TimeoutSecs)
	}
	if cfg.UI.Theme != "dark" {
		t.Errorf("theme = %q", cfg.UI.Theme)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("log level = %q", cfg.Logging.Level)
	}
}

func TestEnvOverrideIgnoresBadNumbers(t *testing.T) {
	t.Setenv("AGENTDECK_TIMEOUT_SECS", "soon")

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if cfg.Server.TimeoutSecs != 30 {
		t.Errorf("timeout = %d, want default kept", cfg.Server.TimeoutSecs)
	}
}

func TestSaveTOMLRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg := Default()
	cfg.Server.URL = "http://saved:8000"
	cfg.UI.Theme = "light"
	if err := SaveTOML(cfg, path); err != nil {
		t.Fatalf("SaveTOML: %v", err)
	}

	loaded, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath: %v", err)
	}
	if loaded.Server.URL != "http://saved:8000" {
		t.Errorf("server url = %q", loaded.Server.URL)
	}
	if loaded.UI.Theme != "light" {
		t.Errorf("theme = %q", loaded.UI.Theme)
	}
}

func TestGlobal(t *testing.T) {
	ResetGlobalForTesting()
	defer ResetGlobalForTesting()

	cfg := Default()
	cfg.Server.URL = "http://global:8000"
	SetGlobal(cfg)

	if Global().Server.URL != "http://global:8000" {
		t.Errorf("global url = %q", Global().Server.URL)
	}
}

func TestWatcherReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[server]\nurl = \"http://one:8000\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	var reloads atomic.Int32
	var lastURL atomic.Value
	w, err := NewWatcher(path, func(cfg *Config) {
		lastURL.Store(cfg.Server.URL)
		reloads.Add(1)
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()
	w.debounce = 50 * time.Millisecond

	if err := w.Watch(); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := os.WriteFile(path, []byte("[server]\nurl = \"http://two:8000\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for reloads.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	if reloads.Load() == 0 {
		t.Fatal("config change never triggered a reload")
	}
	if got := lastURL.Load(); got != "http://two:8000" {
		t.Errorf("reloaded url = %v", got)
	}
}

func TestWatcherSkipsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[server]\nurl = \"http://one:8000\"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	var reloads atomic.Int32
	w, err := NewWatcher(path, func(*Config) { reloads.Add(1) })
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	defer w.Close()
	w.debounce = 50 * time.Millisecond

	if err := w.Watch(); err != nil {
		t.Fatalf("Watch: %v", err)
	}

	// A torn write mid-save must not reach the callback.
	if err := os.WriteFile(path, []byte("[server\nurl ="), 0644); err != nil {
		t.Fatal(err)
	}

	time.Sleep(300 * time.Millisecond)
	if n := reloads.Load(); n != 0 {
		t.Errorf("invalid config reloaded %d times", n)
	}
}
