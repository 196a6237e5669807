// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package controller

import (
	"github.com/morganforge/nanochat/internal/config"
	"github.com/morganforge/nanochat/internal/connectivity"
	"github.com/morganforge/nanochat/internal/model"
)

// =============================================================================
// STREAMING EVENTS
// =============================================================================

// StreamSnapshotMsg carries the cumulative response text of an in-flight
// generation. Content replaces the display text; it never appends.
type StreamSnapshotMsg struct {
	RequestID string
	SessionID string
	Content   string
}

// StreamDoneMsg signals that a generation finished and was persisted.
type StreamDoneMsg struct {
	RequestID string
	SessionID string
	Message   *model.Message
}

// StreamErrorMsg signals that a generation failed or was cancelled. Partial
// holds whatever text had streamed before the failure.
type StreamErrorMsg struct {
	RequestID string
	SessionID string
	Partial   string
	Err       error
}

// StoreWarningMsg signals a non-fatal persistence failure. The response is
// already on screen; the warning tells the user it may not survive a
// restart.
type StoreWarningMsg struct {
	Err error
}

// =============================================================================
// SESSION EVENTS
// =============================================================================

// SessionsLoadedMsg delivers a page of the session list. Gen is the pager
// generation the load was started under; results from a superseded
// generation are dropped on arrival.
type SessionsLoadedMsg struct {
	Sessions []*model.Session
	Replace  bool
	HasMore  bool
	Query    string
	Gen      int
	Err      error
}

// SessionOpenedMsg delivers a session and its newest page of messages.
type SessionOpenedMsg struct {
	Session  *model.Session
	Messages []*model.Message
	HasMore  bool
	Err      error
}

// MessagesPrependedMsg delivers an older page of the open session's
// messages.
type MessagesPrependedMsg struct {
	SessionID string
	Messages  []*model.Message
	HasMore   bool
	Err       error
}

// TitleChangedMsg signals that a session's title changed, either by rename
// or by the automatic title from the first message.
type TitleChangedMsg struct {
	SessionID string
	Title     string
}

// =============================================================================
// BACKGROUND EVENTS
// =============================================================================

// ModelsFetchedMsg delivers the backend's model list.
type ModelsFetchedMsg struct {
	Models []string
	Err    error
}

// QueueChangedMsg signals that the offline queue depth changed.
type QueueChangedMsg struct {
	Depth int
}

// ConnectivityMsg relays a reachability transition into the UI loop.
type ConnectivityMsg struct {
	State connectivity.State
}

// ConfigReloadedMsg relays a reloaded configuration from the file watcher
// goroutine into the UI loop, where it is applied.
type ConfigReloadedMsg struct {
	Config *config.Config
}
