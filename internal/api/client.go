// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// Config holds configuration options for the API client.
type Config struct {
	// BaseURL is the OpenAI-compatible API base URL
	BaseURL string

	// APIKey is the API credential
	APIKey string

	// Timeout bounds a single request including streaming (default: 120s)
	Timeout time.Duration

	// MaxRetries for transient failures (default: 3)
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff (default: 1s)
	RetryDelay time.Duration

	// PenaltyParams indicates the backend accepts frequency/presence
	// penalty fields. When false they are omitted from requests.
	PenaltyParams bool

	// RequestsPerMinute paces outgoing requests (0 = unpaced)
	RequestsPerMinute int
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:       "https://nano-gpt.com/api/v1",
		Timeout:       120 * time.Second,
		MaxRetries:    3,
		RetryDelay:    1 * time.Second,
		PenaltyParams: true,
	}
}

// =============================================================================
// REQUEST TYPES
// =============================================================================

// Message is a single turn in a chat completion request.
type Message struct {
	Role    string
	Content string
}

// Request describes a chat completion request.
type Request struct {
	Model            string
	Messages         []Message
	Temperature      float64
	MaxTokens        int
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

// =============================================================================
// CLIENT
// =============================================================================

// Client is the hosted API client. Safe for concurrent use.
type Client struct {
	api     *openai.Client
	cfg     Config
	limiter *rate.Limiter
}

// NewClient creates a client for the configured backend. A missing API key
// is not an error here; requests fail with ErrNoAPIKey until one is set.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 1 * time.Second
	}

	occfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		occfg.BaseURL = cfg.BaseURL
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerMinute)/60, 1)
	}

	return &Client{
		api:     openai.NewClientWithConfig(occfg),
		cfg:     cfg,
		limiter: limiter,
	}
}

// HasKey reports whether an API credential is configured.
func (c *Client) HasKey() bool {
	return c.cfg.APIKey != ""
}

// wait blocks until the pacer admits another request.
func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// =============================================================================
// MODELS
// =============================================================================

// ListModels fetches the model IDs available on the backend, sorted.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	if !c.HasKey() {
		return nil, ErrNoAPIKey
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var list openai.ModelsList
	err := c.withRetry(ctx, func() error {
		if err := c.wait(ctx); err != nil {
			return err
		}
		var callErr error
		list, callErr = c.api.ListModels(ctx)
		return callErr
	})
	if err != nil {
		return nil, categorize(err)
	}

	ids := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		ids = append(ids, m.ID)
	}
	sort.Strings(ids)
	return ids, nil
}

// =============================================================================
// COMPLETION
// =============================================================================

// Complete performs a non-streaming chat completion and returns the
// assistant's response text.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	if !c.HasKey() {
		return "", ErrNoAPIKey
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	ocReq := c.buildRequest(req)

	var resp openai.ChatCompletionResponse
	err := c.withRetry(ctx, func() error {
		if err := c.wait(ctx); err != nil {
			return err
		}
		var callErr error
		resp, callErr = c.api.CreateChatCompletion(ctx, ocReq)
		return callErr
	})
	if err != nil {
		return "", categorize(err)
	}

	if len(resp.Choices) == 0 {
		return "", &Error{Category: CategoryServer, Message: "empty response from API"}
	}
	return resp.Choices[0].Message.Content, nil
}

// Stream performs a streaming chat completion. onSnapshot is invoked with
// the cumulative response text after each delta; the final text is returned.
// On a mid-stream failure the accumulated partial text is returned alongside
// the error.
func (c *Client) Stream(ctx context.Context, req Request, onSnapshot func(string)) (string, error) {
	if !c.HasKey() {
		return "", ErrNoAPIKey
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	ocReq := c.buildRequest(req)
	ocReq.Stream = true

	// Retry applies to connection establishment only; once deltas flow the
	// stream is never silently restarted.
	var stream *openai.ChatCompletionStream
	err := c.withRetry(ctx, func() error {
		if err := c.wait(ctx); err != nil {
			return err
		}
		var callErr error
		stream, callErr = c.api.CreateChatCompletionStream(ctx, ocReq)
		return callErr
	})
	if err != nil {
		return "", categorize(err)
	}
	defer stream.Close()

	var full strings.Builder
	for {
		resp, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			return full.String(), nil
		}
		if recvErr != nil {
			return full.String(), categorize(recvErr)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if onSnapshot != nil {
			onSnapshot(full.String())
		}
	}
}

// buildRequest converts a Request to the wire format, omitting penalty
// fields when the backend does not accept them.
func (c *Client) buildRequest(req Request) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	ocReq := openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
		TopP:        float32(req.TopP),
	}
	if c.cfg.PenaltyParams {
		ocReq.FrequencyPenalty = float32(req.FrequencyPenalty)
		ocReq.PresencePenalty = float32(req.PresencePenalty)
	}
	return ocReq
}

// =============================================================================
// RETRY
// =============================================================================

// withRetry runs fn, retrying transient failures with exponential backoff.
// Delay doubles per attempt starting from the configured base.
func (c *Client) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.cfg.RetryDelay * (1 << (attempt - 1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return lastErr
			}
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !categorize(lastErr).Retryable() {
			return lastErr
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}

	return lastErr
}
