// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for nanochat.
//
// Configuration is stored as TOML at ~/.nanochat/config.toml, with sensible
// defaults, environment variable overrides, and validation with clamping.
// A file watcher reloads safe fields when the config file changes on disk.
//
// # Environment Overrides
//
//   - NANOGPT_API_KEY:  API credential
//   - NANOGPT_BASE_URL: API base URL
//   - NANOCHAT_MODEL:   default model
//   - NANOCHAT_LOG:     log level (debug, info, warn, error)
package config
