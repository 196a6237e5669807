// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging configures the shared structured logger for nanochat.
//
// Logs are written as JSON lines to a file rather than the terminal, since
// the terminal belongs to the TUI. The logger is safe for concurrent use
// from any goroutine.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Log is the shared application logger. It discards output until Setup runs,
// so packages can log during early startup without a nil check.
var Log *logrus.Logger

func init() {
	Log = logrus.New()
	Log.SetOutput(io.Discard)
	Log.SetLevel(logrus.InfoLevel)
	Log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02 15:04:05",
	})
}

// Setup directs the shared logger to the given file at the given level.
// The returned closer flushes and closes the log file.
func Setup(path, level string) (io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, err
	}

	Log.SetOutput(file)
	Log.SetLevel(parseLevel(level))

	return file, nil
}

// parseLevel maps a config level string to a logrus level.
func parseLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
