// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat sessions and messages.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TitleMaxRunes is the maximum length of an auto-generated session title.
// The title comes from the first user message, truncated to this many runes.
const TitleMaxRunes = 50

// DefaultTitle is the title given to a session before its first message.
const DefaultTitle = "New Chat"

// =============================================================================
// SESSION TYPE
// =============================================================================

// Session is a persisted conversation with its own model and parameters.
// Exactly one session is active in the UI at a time; the controller
// operates against the active session's ID.
type Session struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	Model        string    `json:"model"`
	SystemPrompt string    `json:"system_prompt"`
	Temperature  float64   `json:"temperature"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewSession creates a session with a generated ID and the default title.
func NewSession(model, systemPrompt string, temperature float64) *Session {
	now := time.Now()
	return &Session{
		ID:           uuid.NewString(),
		Title:        DefaultTitle,
		Model:        model,
		SystemPrompt: systemPrompt,
		Temperature:  temperature,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// AutoTitle derives a session title from the first user message: the first
// line, collapsed whitespace, truncated to TitleMaxRunes.
func AutoTitle(content string) string {
	title := strings.TrimSpace(content)
	title = strings.ReplaceAll(title, "\r", "")
	title = strings.ReplaceAll(title, "\n", " ")
	runes := []rune(title)
	if len(runes) > TitleMaxRunes {
		title = string(runes[:TitleMaxRunes])
	}
	if title == "" {
		return DefaultTitle
	}
	return title
}
