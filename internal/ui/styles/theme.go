// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds all the styled components for the application. It detects
// the terminal's color capability and adjusts accordingly.
type Theme struct {
	// Terminal capabilities
	IsDark       bool
	ColorProfile termenv.Profile

	// ==========================================================================
	// HEADER AND LAYOUT STYLES
	// ==========================================================================

	Header      lipgloss.Style
	HeaderTitle lipgloss.Style

	Sidebar         lipgloss.Style
	SidebarTitle    lipgloss.Style
	SidebarItem     lipgloss.Style
	SidebarSelected lipgloss.Style
	SidebarMeta     lipgloss.Style

	// ==========================================================================
	// MESSAGE STYLES
	// ==========================================================================

	UserLabel      lipgloss.Style
	UserBubble     lipgloss.Style
	AssistantLabel lipgloss.Style
	AssistantText  lipgloss.Style
	ErrorText      lipgloss.Style
	Timestamp      lipgloss.Style

	// ==========================================================================
	// INPUT AND STATUS STYLES
	// ==========================================================================

	InputContainer lipgloss.Style
	StatusBar      lipgloss.Style
	ShortcutKey    lipgloss.Style
	ShortcutDesc   lipgloss.Style

	// ==========================================================================
	// PROGRESS STYLES
	// ==========================================================================

	Spinner       lipgloss.Style
	ProgressLabel lipgloss.Style
	ProgressStep  lipgloss.Style
}

// NewTheme builds the theme for the current terminal. mode is "dark",
// "light", or "auto".
func NewTheme(mode string) *Theme {
	output := termenv.DefaultOutput()

	isDark := output.HasDarkBackground()
	switch mode {
	case "dark":
		isDark = true
	case "light":
		isDark = false
	}
	lipgloss.SetHasDarkBackground(isDark)

	t := &Theme{
		IsDark:       isDark,
		ColorProfile: output.Profile,
	}

	t.Header = lipgloss.NewStyle().
		Foreground(TextPrimary).
		Background(SurfaceDim).
		Padding(0, 1)
	t.HeaderTitle = lipgloss.NewStyle().
		Foreground(Purple).
		Bold(true)

	t.Sidebar = lipgloss.NewStyle().
		BorderStyle(lipgloss.NormalBorder()).
		BorderRight(true).
		BorderForeground(Overlay).
		Padding(0, 1)
	t.SidebarTitle = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Bold(true)
	t.SidebarItem = lipgloss.NewStyle().
		Foreground(TextSecondary)
	t.SidebarSelected = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)
	t.SidebarMeta = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.UserLabel = lipgloss.NewStyle().
		Foreground(UserBubbleFg).
		Bold(true)
	t.UserBubble = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(UserBubbleBorder).
		Padding(0, 1)
	t.AssistantLabel = lipgloss.NewStyle().
		Foreground(AssistantBubbleFg).
		Bold(true)
	t.AssistantText = lipgloss.NewStyle().
		Foreground(TextPrimary)
	t.ErrorText = lipgloss.NewStyle().
		Foreground(ErrorFg).
		Bold(true)
	t.Timestamp = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.InputContainer = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Overlay).
		Padding(0, 1)
	t.StatusBar = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Background(SurfaceDim).
		Padding(0, 1)
	t.ShortcutKey = lipgloss.NewStyle().
		Foreground(Cyan).
		Bold(true)
	t.ShortcutDesc = lipgloss.NewStyle().
		Foreground(TextMuted)

	t.Spinner = lipgloss.NewStyle().
		Foreground(Purple)
	t.ProgressLabel = lipgloss.NewStyle().
		Foreground(TextSecondary).
		Italic(true)
	t.ProgressStep = lipgloss.NewStyle().
		Foreground(Amber).
		Bold(true)

	return t
}

// GlamourStyle returns the glamour style name matching the theme.
func (t *Theme) GlamourStyle() string {
	if t.IsDark {
		return "dark"
	}
	return "light"
}
