// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components provides reusable view components for the agentdeck
// TUI: markdown rendering, the turn progress gauge, the session sidebar,
// and the status bar.
package components

import (
	"github.com/charmbracelet/glamour"
)

// MarkdownRenderer renders assistant replies as terminal markdown. The
// renderer is rebuilt on resize since glamour wraps at a fixed width.
type MarkdownRenderer struct {
	renderer *glamour.TermRenderer
	width    int
	style    string
}

// NewMarkdownRenderer creates a renderer for the given glamour style
// ("dark" or "light") and wrap width.
func NewMarkdownRenderer(style string, width int) *MarkdownRenderer {
	m := &MarkdownRenderer{style: style}
	m.SetWidth(width)
	return m
}

// SetWidth rebuilds the renderer for a new wrap width.
func (m *MarkdownRenderer) SetWidth(width int) {
	if width < 20 {
		width = 20
	}
	if m.renderer != nil && m.width == width {
		return
	}
	m.width = width

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.style),
		glamour.WithWordWrap(width),
		glamour.WithEmoji(),
	)
	if err != nil {
		// Renderer construction only fails on bad options; fall back to
		// plain text.
		m.renderer = nil
		return
	}
	m.renderer = renderer
}

// Render renders markdown to ANSI-styled text. On failure the raw text is
// returned so content is never lost.
func (m *MarkdownRenderer) Render(content string) string {
	if m.renderer == nil {
		return content
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		return content
	}
	return out
}
