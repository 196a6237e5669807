// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package controller

// =============================================================================
// PAGINATION STATE
// =============================================================================

// SessionPager tracks pagination of the session list. A load is in flight
// between BeginLoad and CompleteLoad; BeginLoad refuses reentry so a held
// scroll key cannot launch overlapping loads that would duplicate rows.
type SessionPager struct {
	pageSize int
	offset   int
	hasMore  bool
	loading  bool
	query    string
	gen      int
}

// NewSessionPager creates a pager with the given page size.
func NewSessionPager(pageSize int) *SessionPager {
	return &SessionPager{pageSize: pageSize, hasMore: true}
}

// Reset returns the pager to the first page and supersedes any load still
// in flight: the generation counter advances, so results from loads started
// before the reset no longer match Gen and are dropped on arrival. A
// non-empty query puts the pager in search mode: search results arrive as a
// complete set, so HasMore is forced false when results land.
func (p *SessionPager) Reset(query string) {
	p.offset = 0
	p.hasMore = true
	p.loading = false
	p.query = query
	p.gen++
}

// Gen returns the current load generation. Loads carry the generation they
// were started under; a mismatch on completion means the pager was reset in
// the meantime.
func (p *SessionPager) Gen() int {
	return p.gen
}

// Searching reports whether the pager is in search mode.
func (p *SessionPager) Searching() bool {
	return p.query != ""
}

// Query returns the active search query.
func (p *SessionPager) Query() string {
	return p.query
}

// PageSize returns the configured page size.
func (p *SessionPager) PageSize() int {
	return p.pageSize
}

// Offset returns the number of rows already loaded.
func (p *SessionPager) Offset() int {
	return p.offset
}

// HasMore reports whether another page may exist.
func (p *SessionPager) HasMore() bool {
	return p.hasMore
}

// BeginLoad marks a load in flight. It returns false, and the caller must
// not load, when a load is already running or no more pages exist.
func (p *SessionPager) BeginLoad() bool {
	if p.loading || !p.hasMore {
		return false
	}
	p.loading = true
	return true
}

// CompleteLoad records a page of n rows. A short page means the list is
// exhausted; search mode always is, since search returns everything.
func (p *SessionPager) CompleteLoad(n int) {
	p.loading = false
	p.offset += n
	p.hasMore = n >= p.pageSize && !p.Searching()
}

// FailLoad clears the in-flight flag without advancing, so the page can be
// retried.
func (p *SessionPager) FailLoad() {
	p.loading = false
}

// =============================================================================
// MESSAGE PAGER
// =============================================================================

// MessagePager tracks scroll-back pagination of the open session's
// messages. Pages key on the lowest loaded sequence number rather than an
// offset, so rows inserted during generation cannot shift the window.
type MessagePager struct {
	pageSize  int
	oldestSeq int64
	hasMore   bool
	loading   bool
}

// NewMessagePager creates a pager with the given scroll-back page size.
func NewMessagePager(pageSize int) *MessagePager {
	return &MessagePager{pageSize: pageSize}
}

// Reset primes the pager after the initial page loads. oldestSeq is the
// lowest sequence in the window; hasMore says whether older rows exist.
func (p *MessagePager) Reset(oldestSeq int64, hasMore bool) {
	p.oldestSeq = oldestSeq
	p.hasMore = hasMore
	p.loading = false
}

// PageSize returns the configured page size.
func (p *MessagePager) PageSize() int {
	return p.pageSize
}

// OldestSeq returns the pagination anchor.
func (p *MessagePager) OldestSeq() int64 {
	return p.oldestSeq
}

// HasMore reports whether older messages exist.
func (p *MessagePager) HasMore() bool {
	return p.hasMore
}

// BeginLoad marks a load in flight; false means skip this load.
func (p *MessagePager) BeginLoad() bool {
	if p.loading || !p.hasMore {
		return false
	}
	p.loading = true
	return true
}

// CompleteLoad records a prepended page. The new anchor is the lowest
// sequence of the page; a short page means history is exhausted.
func (p *MessagePager) CompleteLoad(page int, newOldestSeq int64) {
	p.loading = false
	if page > 0 {
		p.oldestSeq = newOldestSeq
	}
	p.hasMore = page >= p.pageSize
}

// FailLoad clears the in-flight flag without moving the anchor.
func (p *MessagePager) FailLoad() {
	p.loading = false
}
