// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/morganforge/nanochat/internal/model"
)

// =============================================================================
// SESSION OPERATIONS
// =============================================================================

// CreateSession inserts a new session.
func (s *Store) CreateSession(sess *model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO chat_sessions (id, title, model, system_prompt, temperature, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Title, sess.Model, sess.SystemPrompt, sess.Temperature,
		encodeTime(sess.CreatedAt), encodeTime(sess.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

// GetSession fetches a single session by ID.
func (s *Store) GetSession(id string) (*model.Session, error) {
	row := s.db.QueryRow(
		`SELECT id, title, model, system_prompt, temperature, created_at, updated_at
		 FROM chat_sessions WHERE id = ?`, id)

	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return sess, nil
}

// ListSessions fetches a page of sessions ordered by most recently updated.
func (s *Store) ListSessions(limit, offset int) ([]*model.Session, error) {
	rows, err := s.db.Query(
		`SELECT id, title, model, system_prompt, temperature, created_at, updated_at
		 FROM chat_sessions ORDER BY updated_at DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	return collectSessions(rows)
}

// CountSessions returns the total number of sessions.
func (s *Store) CountSessions() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM chat_sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

// SearchSessions finds sessions whose title or message content matches the
// query, ordered by most recently updated. Search results are a complete set
// rather than a page.
func (s *Store) SearchSessions(query string) ([]*model.Session, error) {
	pattern := "%" + query + "%"
	rows, err := s.db.Query(
		`SELECT id, title, model, system_prompt, temperature, created_at, updated_at
		 FROM chat_sessions
		 WHERE title LIKE ?
		    OR EXISTS (SELECT 1 FROM chat_messages m
		               WHERE m.session_id = chat_sessions.id AND m.content LIKE ?)
		 ORDER BY updated_at DESC`,
		pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search sessions: %w", err)
	}
	defer rows.Close()

	return collectSessions(rows)
}

// UpdateSessionTitle renames a session.
func (s *Store) UpdateSessionTitle(id, title string) error {
	return s.updateSession(id,
		`UPDATE chat_sessions SET title = ?, updated_at = ? WHERE id = ?`,
		title, encodeTime(time.Now()), id)
}

// UpdateSessionModel changes the model a session sends requests with.
func (s *Store) UpdateSessionModel(id, modelID string) error {
	return s.updateSession(id,
		`UPDATE chat_sessions SET model = ?, updated_at = ? WHERE id = ?`,
		modelID, encodeTime(time.Now()), id)
}

// UpdateSessionParams changes a session's system prompt and temperature.
func (s *Store) UpdateSessionParams(id, systemPrompt string, temperature float64) error {
	return s.updateSession(id,
		`UPDATE chat_sessions SET system_prompt = ?, temperature = ?, updated_at = ? WHERE id = ?`,
		systemPrompt, temperature, encodeTime(time.Now()), id)
}

// TouchSession bumps a session's updated_at so it sorts to the top of the
// list.
func (s *Store) TouchSession(id string) error {
	return s.updateSession(id,
		`UPDATE chat_sessions SET updated_at = ? WHERE id = ?`,
		encodeTime(time.Now()), id)
}

// DeleteSession removes a session and, via the foreign key cascade, all of
// its messages.
func (s *Store) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM chat_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// updateSession runs an UPDATE and maps zero affected rows to
// ErrSessionNotFound.
func (s *Store) updateSession(id, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// =============================================================================
// SCANNING
// =============================================================================

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	var sess model.Session
	var createdAt, updatedAt string
	err := row.Scan(&sess.ID, &sess.Title, &sess.Model, &sess.SystemPrompt,
		&sess.Temperature, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	sess.CreatedAt = decodeTime(createdAt)
	sess.UpdatedAt = decodeTime(updatedAt)
	return &sess, nil
}

func collectSessions(rows *sql.Rows) ([]*model.Session, error) {
	var sessions []*model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return sessions, nil
}
