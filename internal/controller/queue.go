// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package controller

import "github.com/morganforge/nanochat/internal/model"

// =============================================================================
// OFFLINE QUEUE
// =============================================================================

// QueuedSend is a message composed while offline, waiting for the network
// to come back.
type QueuedSend struct {
	// Message is the unpersisted user message shown in the window with the
	// queued marker. It is persisted when the send goes out.
	Message *model.Message
}

// OfflineQueue holds sends made while offline. Drain order is FIFO so the
// conversation resumes in the order the user wrote it. The queue lives on
// the UI goroutine with the Controller, so no locking.
type OfflineQueue struct {
	items []QueuedSend
}

// Enqueue appends a send to the queue.
func (q *OfflineQueue) Enqueue(item QueuedSend) {
	q.items = append(q.items, item)
}

// Pop removes and returns the oldest queued send.
func (q *OfflineQueue) Pop() (QueuedSend, bool) {
	if len(q.items) == 0 {
		return QueuedSend{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// PushFront returns a send to the head of the queue after a failed resend,
// preserving FIFO order for the next drain.
func (q *OfflineQueue) PushFront(item QueuedSend) {
	q.items = append([]QueuedSend{item}, q.items...)
}

// Len returns the queue depth.
func (q *OfflineQueue) Len() int {
	return len(q.items)
}

// Remove deletes a queued send by message ID, for discarding a queued
// message before it goes out.
func (q *OfflineQueue) Remove(messageID string) bool {
	for i, item := range q.items {
		if item.Message.ID == messageID {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}
