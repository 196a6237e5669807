// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package controller coordinates chat generation, session management, and
// the offline queue.
//
// The Controller is confined to the UI event loop: its methods are called
// from Bubble Tea's Update, and worker goroutines never touch its state
// directly. Workers report back by emitting messages (StreamSnapshotMsg,
// StreamDoneMsg, StreamErrorMsg, ...) that the UI routes to the matching
// Handle method on the loop goroutine. Every generation carries a request
// ID; events from a superseded or cancelled generation fail the ID check
// and are dropped, so no locking is needed around the conversation window.
//
// # Key Types
//
//   - Controller: the chat controller
//   - Coalescer: caps the rate of streaming snapshot events
//   - OfflineQueue: holds sends made while offline for auto-resend
//   - SessionPager, MessagePager: pagination state with reentrancy guards
//
// # Streaming
//
// Snapshots are cumulative: each event carries the full response text so
// far, and the window replaces its display content rather than appending.
// A stale or reordered snapshot can only shorten the text, and those are
// ignored, so rendering is monotonic.
package controller
