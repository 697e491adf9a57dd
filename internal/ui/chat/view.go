// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/agentdeck/internal/model"
	"github.com/jeranaias/agentdeck/internal/ui/components"
)

// View renders the whole chat screen.
func (m *Model) View() string {
	if !m.ready {
		return "Starting agentdeck..."
	}

	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	body := m.viewport.View()
	if m.showSidebar {
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.sidebar.View(), body)
	}
	b.WriteString(body)
	b.WriteString("\n")

	switch {
	case m.flash != "":
		b.WriteString(m.theme.ErrorText.Render(m.flash))
	case m.progress.Active():
		b.WriteString(m.progress.View())
	}
	b.WriteString("\n")

	b.WriteString(m.theme.InputContainer.Width(m.width - 2).Render(m.input.View()))
	b.WriteString("\n")

	phase := m.ctrl.Phase().String()
	b.WriteString(m.status.View(m.cfg.Server.URL, phase))

	return b.String()
}

// renderHeader renders the top line: app name and active session title.
func (m *Model) renderHeader() string {
	title := "agentdeck"
	if active := m.ctrl.Store().Active(); active != nil {
		title = active.GetTitle()
	}
	return m.theme.Header.Width(m.width).Render(
		m.theme.HeaderTitle.Render("agentdeck") + "  " + title)
}

// refreshSidebar pushes the current store listing into the sidebar.
func (m *Model) refreshSidebar() {
	m.sidebar.SetSessions(m.ctrl.Store().Metas(), m.ctrl.Store().ActiveID())
}

// refreshTranscript re-renders the active transcript into the viewport
// and follows the tail.
func (m *Model) refreshTranscript() {
	if !m.ready {
		return
	}

	active := m.ctrl.Store().Active()
	if active == nil {
		m.viewport.SetContent(m.theme.Timestamp.Render(
			"\n  No session. Type a message to start one, or press ctrl+n."))
		return
	}

	var b strings.Builder
	for _, msg := range active.Messages {
		b.WriteString(m.renderMessage(msg))
		b.WriteString("\n")
	}

	m.viewport.SetContent(b.String())
	m.viewport.GotoBottom()
}

// renderMessage renders one transcript entry.
func (m *Model) renderMessage(msg *model.Message) string {
	ts := m.theme.Timestamp.Render(msg.Timestamp.Format("15:04"))

	if msg.Role == model.RoleUser {
		label := m.theme.UserLabel.Render("You")
		return label + " " + ts + "\n" + m.theme.UserBubble.
			Width(m.transcriptWidth()-2).
			Render(msg.Content) + "\n"
	}

	label := m.theme.AssistantLabel.Render("Assistant")

	// Failed turns are recorded with an error prefix; render them in the
	// error style instead of as markdown.
	if strings.HasPrefix(msg.Content, "Error: ") {
		return label + " " + ts + "\n" + m.theme.ErrorText.Render(msg.Content) + "\n"
	}

	content := msg.Content
	if m.markdown != nil {
		content = strings.TrimRight(m.markdown.Render(content), "\n") + "\n"
	} else {
		content = components.RenderPlain(content, m.cfg.UI.SyntaxTheme)
	}
	return label + " " + ts + "\n" + content
}
