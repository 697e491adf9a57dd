// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/agentdeck/internal/controller"
	"github.com/jeranaias/agentdeck/internal/model"
)

// Update handles all messages for the chat view. Controller messages are
// routed through ctrl.Apply here, which makes the update loop the single
// writer of session state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case controller.TurnStartedMsg:
		m.ctrl.Apply(msg)
		return m, tea.Batch(m.ctrl.WaitMsg(), m.progress.Start())

	case controller.ProgressMsg:
		m.ctrl.Apply(msg)
		m.progress.SetProgress(msg.Progress)
		return m, m.ctrl.WaitMsg()

	case controller.TurnCompleteMsg:
		m.ctrl.Apply(msg)
		m.progress.Stop()
		m.refreshTranscript()
		m.refreshSidebar()
		return m, m.ctrl.WaitMsg()

	case controller.TurnFailedMsg:
		m.ctrl.Apply(msg)
		m.progress.Stop()
		m.refreshTranscript()
		return m, m.ctrl.WaitMsg()

	case controller.SessionsRefreshedMsg:
		m.ctrl.Apply(msg)
		if msg.Err != nil {
			m.flash = "refresh failed: " + msg.Err.Error()
		}
		m.refreshSidebar()
		m.refreshTranscript()
		return m, nil

	case controller.MessagesLoadedMsg:
		m.ctrl.Apply(msg)
		if msg.Err != nil {
			m.flash = "load failed: " + msg.Err.Error()
		}
		m.refreshTranscript()
		return m, nil

	case controller.SessionDeletedMsg:
		m.ctrl.Apply(msg)
		if msg.Err != nil {
			m.flash = "server delete failed: " + msg.Err.Error()
		}
		return m, nil
	}

	// Spinner ticks and other component messages.
	var cmds []tea.Cmd
	if cmd := m.progress.Update(msg); cmd != nil {
		cmds = append(cmds, cmd)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if cmd != nil {
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// handleKey dispatches one key press.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.flash = ""

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.CancelTurn):
		if m.ctrl.Busy() {
			m.ctrl.CancelTurn()
		}
		return m, nil

	case key.Matches(msg, m.keys.ToggleSidebar):
		if m.showSidebar && !m.focusSidebar {
			m.focusSidebar = true
			m.input.Blur()
		} else if m.focusSidebar {
			m.focusSidebar = false
			m.input.Focus()
		} else {
			m.showSidebar = true
			m.focusSidebar = true
			m.input.Blur()
		}
		m.resize(m.width, m.height)
		return m, nil

	case key.Matches(msg, m.keys.NewSession):
		return m, m.startNewSession()

	case key.Matches(msg, m.keys.DeleteSession):
		return m, m.deleteCurrent()

	case key.Matches(msg, m.keys.Refresh):
		return m, m.ctrl.RefreshCmd(m.ctx)

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	}

	if m.focusSidebar {
		return m.handleSidebarKey(msg)
	}

	if key.Matches(msg, m.keys.Send) {
		return m, m.send()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleSidebarKey handles navigation while the sidebar has focus.
func (m *Model) handleSidebarKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.sidebar.CursorUp()
	case key.Matches(msg, m.keys.Down):
		m.sidebar.CursorDown()
	case key.Matches(msg, m.keys.Select):
		id := m.sidebar.Selected()
		if id == "" {
			return m, nil
		}
		loadCmd, err := m.ctrl.SwitchSession(m.ctx, id)
		if err != nil {
			m.flash = err.Error()
			return m, nil
		}
		m.focusSidebar = false
		m.input.Focus()
		m.refreshSidebar()
		m.refreshTranscript()
		return m, loadCmd
	}
	return m, nil
}

// send submits the input line as a turn.
func (m *Model) send() tea.Cmd {
	text := m.input.Value()
	if err := m.ctrl.Send(text); err != nil {
		switch err {
		case controller.ErrEmptyMessage:
			// Nothing to do.
		case controller.ErrTurnInFlight:
			m.flash = "still waiting for the previous reply"
		default:
			m.flash = err.Error()
		}
		return nil
	}

	m.input.Reset()
	m.refreshTranscript()
	m.refreshSidebar()
	return m.progress.Start()
}

// startNewSession creates and activates a fresh session locally. It is
// registered with the backend on the first send.
func (m *Model) startNewSession() tea.Cmd {
	sess := model.NewSession(model.DefaultTitle)
	m.ctrl.Store().Add(sess)
	if err := m.ctrl.Store().SetActive(sess.ID); err != nil {
		m.flash = err.Error()
		return nil
	}
	m.focusSidebar = false
	m.input.Focus()
	m.refreshSidebar()
	m.refreshTranscript()
	return nil
}

// deleteCurrent deletes the sidebar selection, or the active session.
func (m *Model) deleteCurrent() tea.Cmd {
	id := m.ctrl.Store().ActiveID()
	if m.focusSidebar {
		if selected := m.sidebar.Selected(); selected != "" {
			id = selected
		}
	}
	if id == "" {
		return nil
	}

	cmd, err := m.ctrl.DeleteSession(m.ctx, id)
	if err != nil {
		m.flash = err.Error()
		return nil
	}
	m.progress.Stop()
	m.refreshSidebar()
	m.refreshTranscript()
	return cmd
}
