// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - CLI parsing and command handlers for agentdeck.
package cli

import (
	"fmt"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdTUI Command = iota
	CmdChat
	CmdSessions
	CmdTasks
	CmdVersion
	CmdHelp
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet   bool
	Verbose bool
	JSON    bool

	// Server overrides the configured backend URL.
	Server string

	// Session selects a session ID for chat and sessions subcommands.
	Session string

	// Offline reads the local cache instead of the server.
	Offline bool

	// Command-specific
	Subcommand string

	// Raw args (remaining after flag parsing)
	Raw []string
}

const usageText = `agentdeck - terminal client for the agentd chat backend

Agentdeck talks to a running agentd server: it lists your chat sessions,
streams replies with live progress, and keeps an offline mirror of the
last known state.

Usage:
  agentdeck                      Start TUI (default)
  agentdeck chat                 Interactive chat in the terminal
    --session ID                 Resume an existing session
  agentdeck sessions [subcommand] Session management
  agentdeck tasks [subcommand]   Saved agent tasks
  agentdeck version              Show version information
  agentdeck help                 Show this help

Session Commands:
  agentdeck sessions list        List all sessions (default)
    --offline                    Read the offline cache, skip the server
  agentdeck sessions show <id>   Print a session transcript
  agentdeck sessions delete <id> Delete a session

Task Commands:
  agentdeck tasks list           List saved agent tasks (default)
  agentdeck tasks add <name> <task...>  Save a new agent task

Global Flags:
  --server URL                   Backend URL (default from config)
  --session ID                   Open the given session (TUI and chat)
  --json                         Output in JSON format
  -q, --quiet                    Suppress informational output
  -v, --verbose                  Verbose output

Environment:
  AGENTDECK_SERVER_URL           Backend URL override
  AGENTDECK_LOG_LEVEL            Log level (debug, info, warn, error)

Config file: ~/.agentdeck/config.toml

Version: %s
`

// PrintUsage prints usage information.
func PrintUsage() {
	fmt.Printf(usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion() {
	fmt.Printf("agentdeck version %s\n", Version)
	fmt.Printf("  Git commit: %s\n", GitCommit)
	fmt.Printf("  Build date: %s\n", BuildDate)
}

// Parse parses command-line arguments and returns the command and args.
func Parse(argv []string) (Command, Args) {
	remaining, parsedArgs := parseGlobalFlags(argv)

	// No command defaults to the TUI.
	if len(remaining) == 0 {
		return CmdTUI, parsedArgs
	}

	cmd := strings.ToLower(remaining[0])
	remaining = remaining[1:]
	parsedArgs.Raw = remaining

	switch cmd {
	case "tui":
		return CmdTUI, parsedArgs

	case "chat":
		parseChatArgs(&parsedArgs, remaining)
		return CmdChat, parsedArgs

	case "session", "sessions":
		parseSessionsArgs(&parsedArgs, remaining)
		return CmdSessions, parsedArgs

	case "task", "tasks":
		parseTasksArgs(&parsedArgs, remaining)
		return CmdTasks, parsedArgs

	case "version", "--version", "-V":
		return CmdVersion, parsedArgs

	case "help", "--help", "-h":
		return CmdHelp, parsedArgs

	default:
		return CmdHelp, parsedArgs
	}
}

// parseGlobalFlags extracts flags that apply to every command.
func parseGlobalFlags(args []string) ([]string, Args) {
	var remaining []string
	parsedArgs := Args{}

	i := 0
	for i < len(args) {
		arg := args[i]

		switch arg {
		case "-q", "--quiet":
			parsedArgs.Quiet = true
		case "-v", "--verbose":
			parsedArgs.Verbose = true
		case "--json":
			parsedArgs.JSON = true
		case "--server":
			if i+1 < len(args) {
				i++
				parsedArgs.Server = args[i]
			}
		case "--session":
			if i+1 < len(args) {
				i++
				parsedArgs.Session = args[i]
			}
		default:
			switch {
			case strings.HasPrefix(arg, "--server="):
				parsedArgs.Server = strings.TrimPrefix(arg, "--server=")
			case strings.HasPrefix(arg, "--session="):
				parsedArgs.Session = strings.TrimPrefix(arg, "--session=")
			default:
				remaining = append(remaining, arg)
			}
		}
		i++
	}

	return remaining, parsedArgs
}

// parseChatArgs parses chat command specific arguments.
func parseChatArgs(args *Args, remaining []string) {
	i := 0
	for i < len(remaining) {
		arg := remaining[i]
		switch arg {
		case "-s", "--session":
			if i+1 < len(remaining) {
				i++
				args.Session = remaining[i]
			}
		default:
			if strings.HasPrefix(arg, "--session=") {
				args.Session = strings.TrimPrefix(arg, "--session=")
			}
		}
		i++
	}
}

// parseTasksArgs parses tasks command specific arguments.
func parseTasksArgs(args *Args, remaining []string) {
	args.Subcommand = "list"

	if len(remaining) > 0 {
		switch remaining[0] {
		case "list":
		case "add":
			args.Subcommand = "add"
			args.Raw = remaining[1:]
		}
	}
}

// parseSessionsArgs parses sessions command specific arguments.
func parseSessionsArgs(args *Args, remaining []string) {
	args.Subcommand = "list"

	i := 0
	for i < len(remaining) {
		arg := remaining[i]
		switch arg {
		case "list", "show", "delete":
			args.Subcommand = arg
			if (arg == "show" || arg == "delete") && i+1 < len(remaining) {
				i++
				args.Session = remaining[i]
			}
		case "--offline":
			args.Offline = true
		}
		i++
	}
}

// HandleVersion handles the version command.
func HandleVersion(args Args) {
	if args.JSON {
		fmt.Printf(`{"version": %q, "git_commit": %q, "build_date": %q}`+"\n",
			Version, GitCommit, BuildDate)
		return
	}
	PrintVersion()
}

// HandleHelp handles the help command.
func HandleHelp() {
	PrintUsage()
}
