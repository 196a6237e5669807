// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"errors"
	"net"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// Category classifies client errors for handling and display.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryAuth
	CategoryRateLimit
	CategoryNetwork
	CategoryServer
	CategoryInvalidRequest
	CategoryCanceled
)

// String returns the category name for logging.
func (c Category) String() string {
	switch c {
	case CategoryAuth:
		return "auth"
	case CategoryRateLimit:
		return "rate_limit"
	case CategoryNetwork:
		return "network"
	case CategoryServer:
		return "server"
	case CategoryInvalidRequest:
		return "invalid_request"
	case CategoryCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Error represents a categorized error from the API client.
type Error struct {
	Category Category
	Message  string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the error is worth retrying with backoff.
// Auth and invalid-request failures will fail the same way every time.
func (e *Error) Retryable() bool {
	switch e.Category {
	case CategoryRateLimit, CategoryServer, CategoryNetwork:
		return true
	default:
		return false
	}
}

// UserMessage returns a short actionable description for display.
func (e *Error) UserMessage() string {
	switch e.Category {
	case CategoryAuth:
		return "Authentication failed. Check your API key in config.toml."
	case CategoryRateLimit:
		return "Rate limited by the API. Wait a moment and try again."
	case CategoryNetwork:
		return "Network error. Check your connection."
	case CategoryServer:
		return "The API returned a server error. Try again shortly."
	case CategoryInvalidRequest:
		return "The API rejected the request: " + e.Message
	case CategoryCanceled:
		return "Cancelled."
	default:
		return e.Message
	}
}

// ErrNoAPIKey indicates no API credential is configured.
var ErrNoAPIKey = errors.New("no API key configured")

// =============================================================================
// ERROR CLASSIFICATION
// =============================================================================

// categorize wraps a transport error in a categorized Error. Errors that are
// already categorized pass through unchanged.
func categorize(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var openaiErr *openai.APIError
	if errors.As(err, &openaiErr) {
		cat := categoryForStatus(openaiErr.HTTPStatusCode)
		return &Error{Category: cat, Message: openaiErr.Message, Cause: err}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		cat := categoryForStatus(reqErr.HTTPStatusCode)
		return &Error{Category: cat, Message: "request failed", Cause: err}
	}

	if errors.Is(err, context.Canceled) {
		return &Error{Category: CategoryCanceled, Message: "request cancelled", Cause: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Category: CategoryNetwork, Message: "request timed out", Cause: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &Error{Category: CategoryNetwork, Message: "network error", Cause: err}
	}

	return &Error{Category: CategoryUnknown, Message: "request failed", Cause: err}
}

func categoryForStatus(status int) Category {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return CategoryAuth
	case status == http.StatusTooManyRequests:
		return CategoryRateLimit
	case status >= 500:
		return CategoryServer
	case status >= 400:
		return CategoryInvalidRequest
	default:
		return CategoryUnknown
	}
}
