// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package controller

import (
	"sync"
	"time"
)

// =============================================================================
// SNAPSHOT COALESCER
// =============================================================================

// Coalescer caps the rate at which streaming snapshots reach the UI.
// Backends can emit hundreds of deltas per second; rendering each one burns
// CPU and causes flicker. Offer admits a snapshot only after the minimum
// interval has passed; a suppressed snapshot arms a timer that delivers it
// through onFlush when the interval elapses, so a stalled stream still shows
// its latest text. ForceFlush releases any remaining suppressed snapshot at
// completion.
//
// Snapshots are cumulative, so suppressed ones cost nothing: the next
// delivered snapshot contains their text.
//
// Thread-safety: Offer runs on the stream goroutine, the timer fires on its
// own goroutine, and ForceFlush may race with both at completion; all paths
// hold the mutex.
type Coalescer struct {
	mu        sync.Mutex
	interval  time.Duration
	lastFlush time.Time
	pending   string
	dirty     bool
	timer     *time.Timer
	onFlush   func(string)
}

// NewCoalescer creates a coalescer with the given minimum interval between
// delivered snapshots. onFlush receives timer-driven deliveries of
// suppressed snapshots; it may be nil, in which case suppressed snapshots
// wait for the next Offer or ForceFlush.
func NewCoalescer(interval time.Duration, onFlush func(string)) *Coalescer {
	return &Coalescer{interval: interval, onFlush: onFlush}
}

// Offer submits a cumulative snapshot. It returns the snapshot and true if
// enough time has passed to admit it, or false if it was suppressed. A
// suppressed snapshot is not lost: the flush timer delivers it if no later
// snapshot supersedes it first.
func (c *Coalescer) Offer(snapshot string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if c.lastFlush.IsZero() || now.Sub(c.lastFlush) >= c.interval {
		c.lastFlush = now
		c.pending = ""
		c.dirty = false
		c.stopTimerLocked()
		return snapshot, true
	}

	c.pending = snapshot
	c.dirty = true
	c.armTimerLocked(c.interval - now.Sub(c.lastFlush))
	return "", false
}

// ForceFlush releases the last suppressed snapshot, if any. Called when the
// stream completes so the final text always reaches the UI.
func (c *Coalescer) ForceFlush() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopTimerLocked()
	if !c.dirty {
		return "", false
	}
	c.dirty = false
	c.lastFlush = time.Now()
	return c.pending, true
}

// Stop discards any suppressed snapshot and disarms the flush timer. Called
// when the stream errors out; the error event carries the partial text.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimerLocked()
	c.pending = ""
	c.dirty = false
}

func (c *Coalescer) armTimerLocked(d time.Duration) {
	if c.onFlush == nil {
		return
	}
	if d <= 0 {
		d = time.Millisecond
	}
	if c.timer == nil {
		c.timer = time.AfterFunc(d, c.fire)
		return
	}
	c.timer.Reset(d)
}

func (c *Coalescer) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
	}
}

// fire delivers the suppressed snapshot when the window elapses with no
// newer Offer to carry it.
func (c *Coalescer) fire() {
	c.mu.Lock()
	if !c.dirty {
		c.mu.Unlock()
		return
	}
	snapshot := c.pending
	c.pending = ""
	c.dirty = false
	c.lastFlush = time.Now()
	onFlush := c.onFlush
	c.mu.Unlock()

	onFlush(snapshot)
}
