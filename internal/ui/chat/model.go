// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat implements the main TUI view: transcript viewport, input
// line, session sidebar, and the live turn progress gauge.
package chat

import (
	"context"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/agentdeck/internal/config"
	"github.com/jeranaias/agentdeck/internal/controller"
	"github.com/jeranaias/agentdeck/internal/ui/components"
	"github.com/jeranaias/agentdeck/internal/ui/styles"
)

// Model is the Bubble Tea model for the chat view.
type Model struct {
	ctx   context.Context
	cfg   *config.Config
	theme *styles.Theme
	ctrl  *controller.Controller
	keys  KeyMap

	viewport viewport.Model
	input    textinput.Model
	progress *components.TurnProgress
	sidebar  *components.Sidebar
	status   *components.StatusBar
	markdown *components.MarkdownRenderer

	showSidebar  bool
	focusSidebar bool

	width  int
	height int
	ready  bool

	// flash is a transient one-line notice shown in place of the
	// progress line (errors from session operations).
	flash string
}

// New creates the chat model.
func New(ctx context.Context, cfg *config.Config, ctrl *controller.Controller) *Model {
	theme := styles.NewTheme(cfg.UI.Theme)

	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.CharLimit = 4000
	input.Focus()

	m := &Model{
		ctx:         ctx,
		cfg:         cfg,
		theme:       theme,
		ctrl:        ctrl,
		keys:        DefaultKeyMap(),
		input:       input,
		progress:    components.NewTurnProgress(theme),
		sidebar:     components.NewSidebar(theme, cfg.UI.SidebarWidth),
		status:      components.NewStatusBar(theme),
		showSidebar: cfg.UI.ShowSidebar,
	}
	if cfg.UI.Markdown {
		m.markdown = components.NewMarkdownRenderer(theme.GlamourStyle(), 80)
	}
	return m
}

// Init starts the initial session refresh and the turn event pump.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.ctrl.RefreshCmd(m.ctx),
		m.ctrl.WaitMsg(),
		textinput.Blink,
	)
}

// transcriptWidth returns the usable width of the transcript pane.
func (m *Model) transcriptWidth() int {
	w := m.width
	if m.showSidebar {
		w -= m.sidebar.Width()
	}
	w -= 2
	if w < 20 {
		w = 20
	}
	return w
}

// resize lays the components out for a new terminal size.
func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	// header + progress + input + status
	chromeRows := 6
	bodyHeight := height - chromeRows
	if bodyHeight < 3 {
		bodyHeight = 3
	}

	tw := m.transcriptWidth()
	if !m.ready {
		m.viewport = viewport.New(tw, bodyHeight)
		m.ready = true
	} else {
		m.viewport.Width = tw
		m.viewport.Height = bodyHeight
	}

	m.sidebar.SetSize(m.sidebar.Width(), bodyHeight)
	m.progress.SetWidth(width)
	m.status.SetWidth(width)
	m.input.Width = width - 6
	if m.markdown != nil {
		m.markdown.SetWidth(tw - 2)
	}

	m.refreshTranscript()
}
