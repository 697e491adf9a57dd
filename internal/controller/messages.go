// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package controller

import (
	"github.com/jeranaias/agentdeck/internal/model"
)

// =============================================================================
// MESSAGE TYPES
// =============================================================================

// Messages emitted by the controller. Turn messages arrive through the
// events channel (drain with WaitMsg); the rest are returned by command
// closures. All of them are routed back into Apply.

// TurnStartedMsg signals that the reply stream opened for a turn.
type TurnStartedMsg struct {
	SessionID string
}

// ProgressMsg carries one progress update from the in-flight turn.
type ProgressMsg struct {
	SessionID string
	Progress  model.Progress
}

// TurnCompleteMsg carries the final reply of a turn.
type TurnCompleteMsg struct {
	SessionID string
	Content   string
}

// TurnFailedMsg carries a turn failure: a backend error frame, a dropped
// stream, or a transport error before the stream opened.
type TurnFailedMsg struct {
	SessionID string
	Message   string
}

// SessionsRefreshedMsg carries the result of a server session listing.
type SessionsRefreshedMsg struct {
	Gen   uint64
	Metas []model.Meta
	Err   error
}

// MessagesLoadedMsg carries a lazily-loaded session transcript.
type MessagesLoadedMsg struct {
	SessionID string
	Messages  []*model.Message
	Err       error
}

// SessionDeletedMsg reports the outcome of a server-side session delete.
type SessionDeletedMsg struct {
	SessionID string
	Err       error
}
