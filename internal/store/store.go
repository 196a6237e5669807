// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrSessionNotFound indicates the requested session does not exist.
var ErrSessionNotFound = errors.New("session not found")

// =============================================================================
// STORE
// =============================================================================

// Store is the SQLite-backed chat history store.
type Store struct {
	db *sql.DB

	// Serializes writes; SQLite allows a single writer
	mu sync.Mutex
}

// Open opens (or creates) the database at the given path and applies the
// schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Foreign keys are per-connection in SQLite; the DSN pragma applies to
	// every connection the pool opens
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection avoids SQLITE_BUSY under concurrent access
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies the schema. Statements are idempotent.
func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_sessions (
			id            TEXT PRIMARY KEY,
			title         TEXT NOT NULL,
			model         TEXT NOT NULL,
			system_prompt TEXT NOT NULL DEFAULT '',
			temperature   REAL NOT NULL DEFAULT 0.7,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id         TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
			role       TEXT NOT NULL,
			content    TEXT NOT NULL,
			seq        INTEGER NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session_seq
			ON chat_messages(session_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_updated
			ON chat_sessions(updated_at DESC)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// =============================================================================
// TIME ENCODING
// =============================================================================

// Timestamps are stored as fixed-width RFC 3339 text so rows stay readable
// with the sqlite3 CLI and sort lexicographically. RFC3339Nano is avoided
// because it trims trailing zeros and breaks text ordering.

const timeLayout = "2006-01-02T15:04:05.000000000Z"

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func decodeTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
