// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/agentdeck/internal/model"
	"github.com/jeranaias/agentdeck/internal/ui/styles"
)

// TurnProgress renders the in-flight turn state: a spinner while waiting
// for the stream to open, then a gauge fed by progress frames.
type TurnProgress struct {
	theme   *styles.Theme
	spinner spinner.Model
	gauge   progress.Model

	active  bool
	current model.Progress
}

// NewTurnProgress creates the component.
func NewTurnProgress(theme *styles.Theme) *TurnProgress {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = theme.Spinner

	gauge := progress.New(
		progress.WithDefaultGradient(),
		progress.WithoutPercentage(),
	)

	return &TurnProgress{
		theme:   theme,
		spinner: sp,
		gauge:   gauge,
	}
}

// Start activates the component for a new turn.
func (t *TurnProgress) Start() tea.Cmd {
	t.active = true
	t.current = model.Progress{}
	return t.spinner.Tick
}

// Stop deactivates the component when the turn ends.
func (t *TurnProgress) Stop() {
	t.active = false
	t.current = model.Progress{}
}

// Active reports whether a turn is being rendered.
func (t *TurnProgress) Active() bool {
	return t.active
}

// SetProgress records the latest progress frame.
func (t *TurnProgress) SetProgress(p model.Progress) {
	t.current = p
}

// Update advances the spinner animation.
func (t *TurnProgress) Update(msg tea.Msg) tea.Cmd {
	if !t.active {
		return nil
	}
	var cmd tea.Cmd
	t.spinner, cmd = t.spinner.Update(msg)
	return cmd
}

// SetWidth resizes the gauge.
func (t *TurnProgress) SetWidth(width int) {
	gaugeWidth := width - 30
	if gaugeWidth < 10 {
		gaugeWidth = 10
	}
	t.gauge.Width = gaugeWidth
}

// View renders the progress line, or "" when inactive.
func (t *TurnProgress) View() string {
	if !t.active {
		return ""
	}

	// No frame yet: just the spinner.
	if t.current.Total == 0 {
		return lipgloss.JoinHorizontal(lipgloss.Center,
			t.spinner.View(),
			" ",
			t.theme.ProgressLabel.Render("Waiting for reply..."),
		)
	}

	step := t.theme.ProgressStep.Render(
		fmt.Sprintf("[%d/%d]", t.current.Step, t.current.Total))
	label := t.theme.ProgressLabel.Render(t.current.Message)

	return lipgloss.JoinHorizontal(lipgloss.Center,
		t.spinner.View(),
		" ",
		step,
		" ",
		t.gauge.ViewAs(t.current.Fraction()),
		" ",
		label,
	)
}
