// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package store

import (
	"database/sql"
	"fmt"

	"github.com/morganforge/nanochat/internal/model"
)

// =============================================================================
// MESSAGE OPERATIONS
// =============================================================================

// CreateMessage appends a message to a session. The message's Seq is
// assigned here: one past the session's highest existing sequence.
func (s *Store) CreateMessage(msg *model.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRow(
		`SELECT COALESCE(MAX(seq), 0) + 1 FROM chat_messages WHERE session_id = ?`,
		msg.SessionID).Scan(&seq)
	if err != nil {
		return fmt.Errorf("failed to assign sequence: %w", err)
	}
	msg.Seq = seq

	_, err = tx.Exec(
		`INSERT INTO chat_messages (id, session_id, role, content, seq, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.SessionID, msg.Role.String(), msg.Content, msg.Seq,
		encodeTime(msg.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create message: %w", err)
	}

	return tx.Commit()
}

// GetRecentMessages fetches the newest messages of a session in
// chronological order. This is the initial page when opening a session.
func (s *Store) GetRecentMessages(sessionID string, limit int) ([]*model.Message, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, role, content, seq, created_at
		 FROM (SELECT * FROM chat_messages WHERE session_id = ?
		       ORDER BY seq DESC LIMIT ?)
		 ORDER BY seq ASC`,
		sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// GetMessagesBefore fetches up to limit messages with seq below the given
// bound, in chronological order. This is the scroll-back page; keying on the
// lowest loaded sequence keeps the window contiguous.
func (s *Store) GetMessagesBefore(sessionID string, beforeSeq int64, limit int) ([]*model.Message, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, role, content, seq, created_at
		 FROM (SELECT * FROM chat_messages WHERE session_id = ? AND seq < ?
		       ORDER BY seq DESC LIMIT ?)
		 ORDER BY seq ASC`,
		sessionID, beforeSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get older messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// GetAllMessages fetches the complete history of a session in
// chronological order. Used for export; everything else is paged.
func (s *Store) GetAllMessages(sessionID string) ([]*model.Message, error) {
	rows, err := s.db.Query(
		`SELECT id, session_id, role, content, seq, created_at
		 FROM chat_messages WHERE session_id = ?
		 ORDER BY seq ASC`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// CountMessages returns the number of messages in a session.
func (s *Store) CountMessages(sessionID string) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM chat_messages WHERE session_id = ?`, sessionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return n, nil
}

// DeleteMessagesFrom removes a message and everything after it in the
// session. Used when a turn is edited or regenerated: history from the
// edited message on is replaced by the resend.
func (s *Store) DeleteMessagesFrom(sessionID string, fromSeq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`DELETE FROM chat_messages WHERE session_id = ? AND seq >= ?`,
		sessionID, fromSeq)
	if err != nil {
		return fmt.Errorf("failed to delete messages: %w", err)
	}
	return nil
}

// =============================================================================
// SCANNING
// =============================================================================

func collectMessages(rows *sql.Rows) ([]*model.Message, error) {
	var messages []*model.Message
	for rows.Next() {
		var msg model.Message
		var role, createdAt string
		err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content,
			&msg.Seq, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = model.Role(role)
		msg.CreatedAt = decodeTime(createdAt)
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return messages, nil
}
