// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat sessions and messages.
package model

import (
	"strings"
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
	RoleSystem    Role = "system"
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
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single message in a session.
//
// Seq is a per-session monotonically increasing ordinal assigned by the
// store on insert. Within a session, messages are totally ordered by Seq;
// pagination reads and prepends preserve that order.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	Seq       int64     `json:"seq"`

	// Content
	Content string `json:"content"`

	// Streaming state (not persisted). A streaming message is the trailing
	// assistant placeholder whose content is replaced by cumulative chunks.
	IsStreaming bool `json:"-"`

	// Queued marks a message typed while offline, not yet sent.
	Queued bool `json:"queued,omitempty"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(sessionID string, role Role, content string) *Message {
	return &Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(sessionID, content string) *Message {
	return NewMessage(sessionID, RoleUser, content)
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(sessionID, content string) *Message {
	return NewMessage(sessionID, RoleSystem, content)
}

// NewAssistantPlaceholder creates an empty streaming assistant message.
func NewAssistantPlaceholder(sessionID string) *Message {
	return &Message{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		Role:        RoleAssistant,
		CreatedAt:   time.Now(),
		IsStreaming: true,
	}
}

// IsEmpty reports whether the message content is empty or whitespace-only.
func (m *Message) IsEmpty() bool {
	return strings.TrimSpace(m.Content) == ""
}

// Preview returns the first line of the content, trimmed.
func (m *Message) Preview() string {
	content := strings.TrimSpace(m.Content)
	if idx := strings.IndexByte(content, '\n'); idx >= 0 {
		content = content[:idx]
	}
	return content
}
