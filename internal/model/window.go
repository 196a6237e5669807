// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat sessions and messages.
package model

// =============================================================================
// CONVERSATION WINDOW
// =============================================================================

// Window is the in-memory conversation view for the active session: a
// contiguous range of the persisted history ending at the newest message.
// It grows only by appending new messages at the bottom or prepending older
// contiguous pages at the top.
//
// Window is not safe for concurrent use. All mutations happen on the UI
// event loop; background workers deliver events instead of touching it.
type Window struct {
	messages []*Message
}

// NewWindow creates an empty conversation window.
func NewWindow() *Window {
	return &Window{messages: make([]*Message, 0)}
}

// Reset replaces the window contents with the given page, newest last.
// Used when switching sessions.
func (w *Window) Reset(page []*Message) {
	w.messages = make([]*Message, len(page))
	copy(w.messages, page)
}

// Append adds a message at the bottom of the window.
func (w *Window) Append(msg *Message) {
	w.messages = append(w.messages, msg)
}

// Prepend inserts an older contiguous page at the top of the window,
// preserving chronological order. The page itself must already be in
// chronological order (oldest first).
func (w *Window) Prepend(page []*Message) {
	if len(page) == 0 {
		return
	}
	merged := make([]*Message, 0, len(page)+len(w.messages))
	merged = append(merged, page...)
	merged = append(merged, w.messages...)
	w.messages = merged
}

// Messages returns the messages in chronological order. The returned slice
// is the window's backing store; callers must not mutate it.
func (w *Window) Messages() []*Message {
	return w.messages
}

// Len returns the number of messages in the window.
func (w *Window) Len() int {
	return len(w.messages)
}

// Last returns the newest message, or nil if the window is empty.
func (w *Window) Last() *Message {
	if len(w.messages) == 0 {
		return nil
	}
	return w.messages[len(w.messages)-1]
}

// =============================================================================
// STREAMING
// =============================================================================

// ApplyStream applies a cumulative streaming snapshot to the trailing
// assistant placeholder, creating the placeholder if none exists yet.
//
// Chunks are cumulative, not incremental, so content is always replaced,
// never concatenated. If a later chunk is shorter than what is already
// displayed (out-of-order delivery), the longer content wins so the display
// never regresses.
func (w *Window) ApplyStream(sessionID, cumulative string) *Message {
	msg := w.trailingStream()
	if msg == nil {
		msg = NewAssistantPlaceholder(sessionID)
		w.Append(msg)
	}
	if len(cumulative) > len(msg.Content) {
		msg.Content = cumulative
	}
	return msg
}

// FinalizeStream marks the trailing streaming message complete with the
// final text. Returns the finalized message, or nil if no stream is active.
func (w *Window) FinalizeStream(full string) *Message {
	msg := w.trailingStream()
	if msg == nil {
		return nil
	}
	if len(full) > len(msg.Content) {
		msg.Content = full
	}
	msg.IsStreaming = false
	return msg
}

// AbortStream marks the trailing streaming message as no longer streaming,
// keeping whatever partial content it holds. Returns the message, or nil.
// An empty aborted placeholder is removed from the window.
func (w *Window) AbortStream() *Message {
	msg := w.trailingStream()
	if msg == nil {
		return nil
	}
	msg.IsStreaming = false
	if msg.Content == "" {
		w.messages = w.messages[:len(w.messages)-1]
		return nil
	}
	return msg
}

// Streaming reports whether the window has a trailing streaming message.
func (w *Window) Streaming() bool {
	return w.trailingStream() != nil
}

// trailingStream returns the trailing assistant placeholder, if any.
func (w *Window) trailingStream() *Message {
	last := w.Last()
	if last != nil && last.Role == RoleAssistant && last.IsStreaming {
		return last
	}
	return nil
}

// =============================================================================
// EDITING
// =============================================================================

// IndexOf returns the position of the message with the given ID, or -1.
func (w *Window) IndexOf(messageID string) int {
	for i, m := range w.messages {
		if m.ID == messageID {
			return i
		}
	}
	return -1
}

// TruncateFrom drops the message at index i and everything after it.
// Used for replace-and-resend semantics (edit, regenerate).
func (w *Window) TruncateFrom(i int) {
	if i < 0 || i >= len(w.messages) {
		return
	}
	w.messages = w.messages[:i]
}

// Snapshot returns a copy of the non-queued messages for use as an API
// request payload. Queued offline entries are excluded until resent.
func (w *Window) Snapshot() []*Message {
	out := make([]*Message, 0, len(w.messages))
	for _, m := range w.messages {
		if m.Queued {
			continue
		}
		out = append(out, m)
	}
	return out
}
