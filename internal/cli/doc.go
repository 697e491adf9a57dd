// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements agentdeck's command line surface: argument
// parsing, the interactive chat REPL, and session management commands.
// The default command (no arguments) launches the TUI from main.
package cli
