// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package api provides the HTTP client for the hosted chat completion API.
//
// The backend speaks the OpenAI chat completion protocol, so the transport
// is the go-openai client pointed at the configured base URL. On top of the
// transport this package adds error categorization, retry with exponential
// backoff for transient failures, request pacing, and cumulative streaming
// delivery.
//
// # Key Types
//
//   - Client: the API client; safe for concurrent use
//   - Request: a single chat completion request
//   - Error: a categorized client error
//
// # Streaming
//
// Stream accumulates the backend's incremental deltas internally and invokes
// the callback with the full response text so far. Consumers replace their
// display content with each snapshot rather than appending.
package api
