// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// PROGRESS TYPE
// =============================================================================

// Progress is the transient per-turn progress value reported by the backend
// while it works on a reply. It is owned by the in-flight turn and cleared
// on the terminal frame; it is never persisted.
type Progress struct {
	Step    int    // Current step, >= 0
	Total   int    // Total steps, > 0
	Message string // Human-readable step description
}

// Percent returns completion in the range 0-100.
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 0
	}
	pct := float64(p.Step) / float64(p.Total) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// Fraction returns completion in the range 0-1, for gauge widgets.
func (p Progress) Fraction() float64 {
	return p.Percent() / 100
}
