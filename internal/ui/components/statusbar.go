// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/agentdeck/internal/ui/styles"
	"github.com/jeranaias/agentdeck/internal/util"
)

// StatusBar renders the bottom status line: connection state, phase, and
// key hints.
type StatusBar struct {
	theme *styles.Theme
	width int
}

// NewStatusBar creates the component.
func NewStatusBar(theme *styles.Theme) *StatusBar {
	return &StatusBar{theme: theme}
}

// SetWidth resizes the bar.
func (s *StatusBar) SetWidth(width int) {
	s.width = width
}

// shortcut is one key hint.
type shortcut struct {
	key  string
	desc string
}

var statusShortcuts = []shortcut{
	{"tab", "sidebar"},
	{"ctrl+n", "new"},
	{"ctrl+d", "delete"},
	{"esc", "cancel"},
	{"ctrl+c", "quit"},
}

// View renders the status line.
func (s *StatusBar) View(server, phase string) string {
	left := server
	if phase != "" && phase != "idle" {
		left += "  " + s.theme.ProgressStep.Render(phase)
	}

	var hints []string
	for _, sc := range statusShortcuts {
		hints = append(hints,
			s.theme.ShortcutKey.Render(sc.key)+s.theme.ShortcutDesc.Render(" "+sc.desc))
	}
	right := strings.Join(hints, "  ")

	gap := s.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		// Narrow terminal: drop the hints before truncating the server.
		right = ""
		gap = s.width - lipgloss.Width(left) - 2
		if gap < 1 {
			left = util.TruncateWidth(left, s.width-2)
			gap = 1
		}
	}

	return s.theme.StatusBar.
		Width(s.width).
		Render(left + strings.Repeat(" ", gap) + right)
}
