// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat sessions and messages.
//
// This package defines the core domain types used throughout the application
// for representing persisted sessions, their messages, and the in-memory
// conversation window displayed while a session is active.
//
// # Key Types
//
//   - Session: A persisted conversation with its own model and parameters
//   - Message: Single message with role, content, timestamp and sequence
//   - Role: Message role enumeration (user, assistant, system)
//   - Window: The partially loaded, contiguous in-memory view of a session
//
// # Usage
//
// Create messages and build a window:
//
//	w := model.NewWindow()
//	w.Append(model.NewUserMessage(sessionID, "Hello!"))
//	w.ApplyStream("Hi")
//	w.ApplyStream("Hi there!")
//	msg := w.FinalizeStream("Hi there!")
package model
