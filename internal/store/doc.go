// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package store provides SQLite persistence for chat sessions and messages.
//
// The database lives at ~/.nanochat/chat.db by default. Sessions carry their
// own model and sampling parameters so a session replays with the settings it
// was created with. Messages carry a per-session sequence number that anchors
// pagination; fetching older pages keys on the lowest sequence already
// loaded, so a contiguous window is guaranteed regardless of insertions in
// other sessions.
//
// # Key Types
//
//   - Store: the database handle; safe for concurrent use
//
// Writes are serialized through a mutex since SQLite allows one writer at a
// time. Reads go through database/sql's pool.
package store
