// agentdeck - a terminal client for the agentd chat backend.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/agentdeck/internal/agentd"
	"github.com/jeranaias/agentdeck/internal/cli"
	"github.com/jeranaias/agentdeck/internal/config"
	"github.com/jeranaias/agentdeck/internal/controller"
	"github.com/jeranaias/agentdeck/internal/storage"
	"github.com/jeranaias/agentdeck/internal/store"
	"github.com/jeranaias/agentdeck/internal/ui/chat"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	cmd, args := cli.Parse(os.Args[1:])

	switch cmd {
	case cli.CmdVersion:
		cli.HandleVersion(args)
	case cli.CmdHelp:
		cli.HandleHelp()
	case cli.CmdChat:
		bootstrap(args)
		if err := cli.HandleChatCommand(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case cli.CmdSessions:
		bootstrap(args)
		if err := cli.HandleSessions(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	case cli.CmdTasks:
		bootstrap(args)
		if err := cli.HandleTasks(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	default:
		bootstrap(args)
		if err := runTUI(args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

// bootstrap loads configuration and installs the process-wide logger.
// A broken config file is reported but does not block startup.
func bootstrap(args cli.Args) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
		cfg = config.Default()
	}
	config.SetGlobal(cfg)
	setupLogging(cfg, args.Verbose)
}

// setupLogging routes slog to the configured log file. The TUI and the
// REPL own the terminal, so there is no stderr handler; without a usable
// file the logs are discarded.
func setupLogging(cfg *config.Config, verbose bool) {
	level := slog.LevelInfo
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if verbose {
		level = slog.LevelDebug
	}

	var w io.Writer = io.Discard
	if path := logFilePath(cfg); path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err == nil {
			if f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600); err == nil {
				w = f
			}
		}
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func logFilePath(cfg *config.Config) string {
	if cfg.Logging.File != "" {
		return cfg.Logging.File
	}
	dir, err := config.ConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "agentdeck.log")
}

// runTUI starts the full-screen chat interface.
func runTUI(args cli.Args) error {
	cfg := config.Global()
	if args.Server != "" {
		cfg.Server.URL = args.Server
	}

	client := agentd.NewClient(cfg.Server.URL).
		WithMaxRetries(cfg.Server.MaxRetries).
		WithTimeout(time.Duration(cfg.Server.TimeoutSecs) * time.Second).
		WithLogger(slog.Default())

	ctrl := controller.New(client, store.New()).WithLogger(slog.Default())
	if cfg.Cache.Enabled {
		if cache := openCache(cfg); cache != nil {
			ctrl.WithCache(cache)
			// Seed the sidebar from the last run; the first refresh
			// replaces this with live server state.
			if metas, err := cache.Sessions(); err == nil && len(metas) > 0 {
				ctrl.Store().ApplyRefresh(ctrl.Store().NextGeneration(), metas)
			}
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model := chat.New(ctx, cfg, ctrl)
	program := tea.NewProgram(model, tea.WithAltScreen())

	// Config edits take effect on the next redraw; only display settings
	// are hot-reloaded, the server connection keeps its startup settings.
	if watcher := watchConfig(cfg); watcher != nil {
		defer watcher.Close()
	}

	// Preselecting a session needs the listing first; the update loop has
	// not started yet, so applying synchronously here is safe.
	if args.Session != "" {
		ctrl.Apply(ctrl.RefreshCmd(ctx)())
		if loadCmd, err := ctrl.SwitchSession(ctx, args.Session); err != nil {
			return fmt.Errorf("session %s: %w", args.Session, err)
		} else if loadCmd != nil {
			ctrl.Apply(loadCmd())
		}
	}

	_, err := program.Run()
	return err
}

// watchConfig hot-reloads display settings from the TOML config file.
func watchConfig(cfg *config.Config) *config.Watcher {
	path, err := config.ConfigPathTOML()
	if err != nil {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}

	watcher, err := config.NewWatcher(path, func(next *config.Config) {
		cfg.UI = next.UI
		config.SetGlobal(next)
	})
	if err != nil {
		return nil
	}
	if err := watcher.Watch(); err != nil {
		watcher.Close()
		return nil
	}
	return watcher
}

func openCache(cfg *config.Config) *storage.Cache {
	var cache *storage.Cache
	var err error
	if cfg.Cache.Dir != "" {
		cache, err = storage.NewCacheWithDir(cfg.Cache.Dir)
	} else {
		cache, err = storage.NewCache()
	}
	if err != nil {
		slog.Warn("transcript cache unavailable", slog.Any("error", err))
		return nil
	}
	if cfg.Cache.MaxTranscripts > 0 {
		cache.MaxTranscripts = cfg.Cache.MaxTranscripts
	}
	return cache
}
