// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/jeranaias/agentdeck/internal/model"
	"github.com/jeranaias/agentdeck/internal/ui/styles"
	"github.com/jeranaias/agentdeck/internal/util"
)

// Sidebar renders the session list. Selection (cursor) is independent of
// the active session: the cursor moves with the keyboard, enter activates.
type Sidebar struct {
	theme *styles.Theme

	width  int
	height int

	metas    []model.Meta
	activeID string
	cursor   int
}

// NewSidebar creates the component.
func NewSidebar(theme *styles.Theme, width int) *Sidebar {
	return &Sidebar{theme: theme, width: width}
}

// SetSize resizes the sidebar.
func (s *Sidebar) SetSize(width, height int) {
	s.width = width
	s.height = height
}

// Width returns the configured width.
func (s *Sidebar) Width() int {
	return s.width
}

// SetSessions replaces the listing, keeping the cursor on the same
// session when it survives.
func (s *Sidebar) SetSessions(metas []model.Meta, activeID string) {
	var cursorID string
	if s.cursor < len(s.metas) {
		cursorID = s.metas[s.cursor].ID
	}

	s.metas = metas
	s.activeID = activeID

	s.cursor = 0
	for i, meta := range metas {
		if meta.ID == cursorID {
			s.cursor = i
			break
		}
	}
}

// CursorUp moves the selection up.
func (s *Sidebar) CursorUp() {
	if s.cursor > 0 {
		s.cursor--
	}
}

// CursorDown moves the selection down.
func (s *Sidebar) CursorDown() {
	if s.cursor < len(s.metas)-1 {
		s.cursor++
	}
}

// Selected returns the session under the cursor, or "" when empty.
func (s *Sidebar) Selected() string {
	if s.cursor >= len(s.metas) {
		return ""
	}
	return s.metas[s.cursor].ID
}

// View renders the sidebar.
func (s *Sidebar) View() string {
	innerWidth := s.width - 4 // border and padding
	if innerWidth < 8 {
		innerWidth = 8
	}

	var b strings.Builder
	b.WriteString(s.theme.SidebarTitle.Render(util.PadWidth("Sessions", innerWidth)))
	b.WriteString("\n\n")

	if len(s.metas) == 0 {
		b.WriteString(s.theme.SidebarMeta.Render("No sessions yet."))
	}

	// Keep the cursor visible within the height budget.
	maxRows := s.height - 4
	if maxRows < 1 {
		maxRows = 1
	}
	start := 0
	if s.cursor >= maxRows {
		start = s.cursor - maxRows + 1
	}

	for i := start; i < len(s.metas) && i < start+maxRows; i++ {
		meta := s.metas[i]

		title := util.TruncateWidth(util.Flatten(meta.Title), innerWidth-2)
		line := "  " + title
		switch {
		case i == s.cursor:
			line = s.theme.SidebarSelected.Render("> " + title)
		case meta.ID == s.activeID:
			line = s.theme.SidebarItem.Render("* " + title)
		default:
			line = s.theme.SidebarItem.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	return s.theme.Sidebar.
		Width(s.width - 2).
		Height(s.height).
		Render(b.String())
}
