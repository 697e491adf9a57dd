// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// ParseRole maps a wire-format role string to a Role. Unknown roles are
// treated as assistant so that a transcript never loses messages to a
// backend role this client predates.
func ParseRole(s string) Role {
	if s == string(RoleUser) {
		return RoleUser
	}
	return RoleAssistant
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a session. Messages are immutable
// once appended to a session; the only exception is IsTyping, which marks a
// render-only placeholder while an assistant reply is still streaming and is
// never persisted or sent over the wire.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// IsTyping is true only on the transient placeholder shown while a
	// turn is in flight. Not persisted.
	IsTyping bool `json:"-"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        generateMessageID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) *Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) *Message {
	return NewMessage(RoleAssistant, content)
}

// NewTypingPlaceholder creates the transient assistant placeholder that is
// rendered while a reply is streaming. It is never appended to a session.
func NewTypingPlaceholder() *Message {
	return &Message{
		ID:        generateMessageID(),
		Role:      RoleAssistant,
		Timestamp: time.Now(),
		IsTyping:  true,
	}
}

// Preview returns a truncated single-line preview of the message content.
// Rune-based truncation keeps multi-byte characters intact.
func (m *Message) Preview(maxLen int) string {
	content := m.Content
	runes := []rune(content)
	if len(runes) <= maxLen {
		return content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// IsEmpty returns true if the message has no content.
func (m *Message) IsEmpty() bool {
	return len(m.Content) == 0
}

// generateMessageID creates a unique message ID.
func generateMessageID() string {
	return "msg_" + uuid.NewString()
}
