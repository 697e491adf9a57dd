// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - interactive terminal chat without the full TUI.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/peterh/liner"

	"github.com/jeranaias/agentdeck/internal/agentd"
	"github.com/jeranaias/agentdeck/internal/config"
	"github.com/jeranaias/agentdeck/internal/controller"
	"github.com/jeranaias/agentdeck/internal/model"
	"github.com/jeranaias/agentdeck/internal/storage"
	"github.com/jeranaias/agentdeck/internal/store"
	"github.com/jeranaias/agentdeck/internal/util"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatInput provides input history and line editing for interactive chat.
// USABILITY: Supports arrow keys for history navigation and line editing.
type ChatInput struct {
	line        *liner.State
	historyFile string
}

// NewChatInput creates a ChatInput with input history support.
func NewChatInput(cfg *config.Config) *ChatInput {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	historyFile := cfg.History.File
	if historyFile == "" {
		configDir, err := config.ConfigDir()
		if err != nil {
			configDir = os.TempDir()
		}
		historyFile = filepath.Join(configDir, "history")
	}

	in := &ChatInput{
		line:        line,
		historyFile: historyFile,
	}
	if cfg.History.Enabled {
		in.LoadHistory()
	}
	return in
}

// LoadHistory loads input history from file.
func (c *ChatInput) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line of input with the given prompt. Non-empty input
// is added to history.
func (c *ChatInput) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists input history with owner-only permissions.
func (c *ChatInput) SaveHistory() {
	if err := config.EnsureConfigDir(); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and closes the liner.
func (c *ChatInput) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// CHAT SESSION
// =============================================================================

// ChatSession bundles everything one interactive chat needs.
type ChatSession struct {
	Config *config.Config
	Client *agentd.Client
	Ctrl   *controller.Controller
	Input  *ChatInput
	Quiet  bool
}

// NewChatSession builds a chat session from parsed args and config.
func NewChatSession(args Args) *ChatSession {
	cfg := config.Global()
	if args.Server != "" {
		cfg.Server.URL = args.Server
	}

	client := agentd.NewClient(cfg.Server.URL).
		WithMaxRetries(cfg.Server.MaxRetries).
		WithTimeout(time.Duration(cfg.Server.TimeoutSecs) * time.Second)
	ctrl := controller.New(client, store.New())

	if cfg.Cache.Enabled {
		if cache := openCache(cfg); cache != nil {
			ctrl.WithCache(cache)
		}
	}

	return &ChatSession{
		Config: cfg,
		Client: client,
		Ctrl:   ctrl,
		Input:  NewChatInput(cfg),
		Quiet:  args.Quiet,
	}
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
		return nil
	}
	if cfg.Cache.MaxTranscripts > 0 {
		cache.MaxTranscripts = cfg.Cache.MaxTranscripts
	}
	return cache
}

// =============================================================================
// CHAT COMMAND
// =============================================================================

// HandleChatCommand runs the interactive chat REPL.
func HandleChatCommand(args Args) error {
	session := NewChatSession(args)
	ctx := context.Background()

	// Initial sync; chat still works against a fresh server if it fails.
	session.Ctrl.Apply(session.Ctrl.RefreshCmd(ctx)())

	if args.Session != "" {
		loadCmd, err := session.Ctrl.SwitchSession(ctx, args.Session)
		if err != nil {
			return fmt.Errorf("session %s: %w", args.Session, err)
		}
		if loadCmd != nil {
			session.Ctrl.Apply(loadCmd())
		}
		printTranscript(session.Ctrl.Store().Active())
	}

	if !session.Quiet {
		printWelcome(session)
	}

	// USABILITY: Save history for future sessions
	defer session.Input.Close()

	// First Ctrl+C during a turn cancels the stream, not the program.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for range sigChan {
			if session.Ctrl.Busy() {
				session.Ctrl.CancelTurn()
				fmt.Fprintln(os.Stderr, "\n"+warningStyle.Render("[Cancelled]"))
			}
		}
	}()

	for {
		input, err := session.Input.ReadInput(promptStyle.Render("agentdeck> "))
		if err != nil {
			// Ctrl+C at the prompt or EOF (Ctrl+D): exit gracefully.
			fmt.Println()
			return nil
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			keepGoing, err := handleSlashCommand(ctx, session, input)
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
			}
			if !keepGoing {
				return nil
			}
			continue
		}

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			return nil
		}

		if err := processMessage(session, input); err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
		}
	}
}

// processMessage sends one turn and renders its stream: progress to
// stderr so the reply on stdout stays pipeable.
func processMessage(session *ChatSession, input string) error {
	if err := session.Ctrl.Send(input); err != nil {
		return err
	}

	for {
		msg := session.Ctrl.WaitMsg()()
		session.Ctrl.Apply(msg)

		switch m := msg.(type) {
		case controller.ProgressMsg:
			fmt.Fprintf(os.Stderr, "\r\033[K%s", progressStyle.Render(
				fmt.Sprintf("[%d/%d] %s", m.Progress.Step, m.Progress.Total, m.Progress.Message)))

		case controller.TurnCompleteMsg:
			fmt.Fprint(os.Stderr, "\r\033[K")
			fmt.Println(assistantStyle.Render(m.Content))
			fmt.Println()
			return nil

		case controller.TurnFailedMsg:
			fmt.Fprint(os.Stderr, "\r\033[K")
			return fmt.Errorf("%s", m.Message)
		}
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand processes /commands. Returns false when the REPL
// should exit.
func handleSlashCommand(ctx context.Context, session *ChatSession, input string) (bool, error) {
	fields := strings.Fields(input)
	cmd := strings.ToLower(fields[0])
	rest := fields[1:]

	switch cmd {
	case "/exit", "/quit", "/q":
		return false, nil

	case "/help", "/?":
		printChatHelp()
		return true, nil

	case "/sessions", "/list":
		session.Ctrl.Apply(session.Ctrl.RefreshCmd(ctx)())
		for _, meta := range session.Ctrl.Store().Metas() {
			marker := "  "
			if meta.ID == session.Ctrl.Store().ActiveID() {
				marker = "* "
			}
			fmt.Printf("%s%s  %s  %s\n", marker, meta.ID,
				meta.UpdatedAt.Format("2006-01-02 15:04"),
				util.TruncateRunes(meta.Title, 40))
		}
		return true, nil

	case "/switch":
		if len(rest) == 0 {
			return true, fmt.Errorf("usage: /switch <session-id>")
		}
		loadCmd, err := session.Ctrl.SwitchSession(ctx, rest[0])
		if err != nil {
			return true, err
		}
		if loadCmd != nil {
			session.Ctrl.Apply(loadCmd())
		}
		printTranscript(session.Ctrl.Store().Active())
		return true, nil

	case "/new":
		sess := model.NewSession(model.DefaultTitle)
		session.Ctrl.Store().Add(sess)
		if err := session.Ctrl.Store().SetActive(sess.ID); err != nil {
			return true, err
		}
		if _, err := session.Client.CreateSession(ctx, sess.ID, sess.Title); err != nil {
			return true, err
		}
		session.Ctrl.Store().MarkRegistered(sess.ID)
		fmt.Println(dimStyle.Render("Started " + sess.ID))
		return true, nil

	case "/delete":
		if len(rest) == 0 {
			return true, fmt.Errorf("usage: /delete <session-id>")
		}
		deleteCmd, err := session.Ctrl.DeleteSession(ctx, rest[0])
		if err != nil {
			return true, err
		}
		session.Ctrl.Apply(deleteCmd())
		fmt.Println(dimStyle.Render("Deleted " + rest[0]))
		return true, nil

	default:
		return true, fmt.Errorf("unknown command %s (try /help)", cmd)
	}
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func printWelcome(session *ChatSession) {
	fmt.Println(headerStyle.Render("agentdeck chat"))
	fmt.Println(dimStyle.Render("Server: " + session.Client.BaseURL()))
	fmt.Println(dimStyle.Render("Type /help for commands, /exit to quit."))
	fmt.Println()
}

func printChatHelp() {
	fmt.Println(`Commands:
  /sessions          List sessions
  /switch <id>       Switch to a session (loads its transcript)
  /new               Start a new session
  /delete <id>       Delete a session
  /help              Show this help
  /exit              Quit`)
}

func printTranscript(sess *model.Session) {
	if sess == nil || sess.IsEmpty() {
		return
	}
	fmt.Println(dimStyle.Render(fmt.Sprintf("--- %s (%d messages) ---", sess.GetTitle(), sess.MessageCount())))
	for _, msg := range sess.Messages {
		prefix := msg.Role.DisplayName() + ": "
		if msg.Role == model.RoleUser {
			fmt.Println(promptStyle.Render(prefix) + msg.Content)
		} else {
			fmt.Println(assistantStyle.Render(prefix) + msg.Content)
		}
	}
	fmt.Println()
}
