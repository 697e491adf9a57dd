// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// DefaultTitle is the title given to a session created locally before the
// server assigns one from the first message.
const DefaultTitle = "Untitled Chat"

// =============================================================================
// SESSION TYPE
// =============================================================================

// Session holds one chat session: identity, metadata, and the ordered
// message transcript. The transcript is append-only locally; it is replaced
// wholesale only when reloaded from the server.
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Messages []*Message `json:"messages"`
}

// NewSession creates a new session with a generated ID.
func NewSession(title string) *Session {
	if title == "" {
		title = DefaultTitle
	}
	now := time.Now()
	return &Session{
		ID:        generateSessionID(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
		Messages:  make([]*Message, 0),
	}
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// Append adds a message to the end of the transcript and bumps UpdatedAt.
func (s *Session) Append(msg *Message) {
	s.Messages = append(s.Messages, msg)
	s.UpdatedAt = time.Now()
}

// ReplaceMessages swaps in a server-loaded transcript. Used only by the
// store when a lazy per-session load completes.
func (s *Session) ReplaceMessages(msgs []*Message) {
	s.Messages = msgs
}

// LastMessage returns the most recent message, or nil if empty.
func (s *Session) LastMessage() *Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}

// MessageCount returns the number of messages.
func (s *Session) MessageCount() int {
	return len(s.Messages)
}

// IsEmpty returns true if there are no messages.
func (s *Session) IsEmpty() bool {
	return len(s.Messages) == 0
}

// =============================================================================
// METADATA
// =============================================================================

// Meta holds lightweight session metadata for listing.
type Meta struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
}

// GetMeta returns metadata about the session.
func (s *Session) GetMeta() Meta {
	return Meta{
		ID:           s.ID,
		Title:        s.GetTitle(),
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		MessageCount: len(s.Messages),
	}
}

// GetTitle returns the session title or the default.
func (s *Session) GetTitle() string {
	if s.Title != "" {
		return s.Title
	}
	return DefaultTitle
}

// Clone creates a deep copy of the session.
func (s *Session) Clone() *Session {
	clone := &Session{
		ID:        s.ID,
		Title:     s.Title,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
		Messages:  make([]*Message, len(s.Messages)),
	}
	for i, msg := range s.Messages {
		msgCopy := *msg
		clone.Messages[i] = &msgCopy
	}
	return clone
}

// generateSessionID creates a unique session ID.
func generateSessionID() string {
	return "sess_" + uuid.NewString()
}
