// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/mattn/go-runewidth"

	"github.com/morganforge/nanochat/internal/model"
)

// =============================================================================
// SESSION SIDEBAR
// =============================================================================

// sidebar renders the session list with search and incremental loading.
type sidebar struct {
	theme  *Theme
	search textinput.Model

	sessions  []*model.Session
	cursor    int
	activeID  string
	hasMore   bool
	searching bool

	width  int
	height int
}

func newSidebar(theme *Theme) *sidebar {
	ti := textinput.New()
	ti.Placeholder = "Search..."
	ti.CharLimit = 120

	return &sidebar{theme: theme, search: ti}
}

func (s *sidebar) setSize(width, height int) {
	s.width = width
	s.height = height
	s.search.Width = width - 4
}

// setSessions installs a page of sessions. Replace resets the list (first
// page, search results); otherwise the page is appended.
func (s *sidebar) setSessions(page []*model.Session, replace, hasMore bool) {
	if replace {
		s.sessions = page
		s.cursor = 0
	} else {
		s.sessions = append(s.sessions, page...)
	}
	s.hasMore = hasMore
	if s.cursor >= len(s.sessions) {
		s.cursor = max(0, len(s.sessions)-1)
	}
}

// updateSession refreshes a row in place after a rename or auto-title.
func (s *sidebar) updateTitle(sessionID, title string) {
	for _, sess := range s.sessions {
		if sess.ID == sessionID {
			sess.Title = title
			return
		}
	}
}

func (s *sidebar) removeSession(sessionID string) {
	for i, sess := range s.sessions {
		if sess.ID == sessionID {
			s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
			break
		}
	}
	if s.cursor >= len(s.sessions) {
		s.cursor = max(0, len(s.sessions)-1)
	}
}

func (s *sidebar) selected() *model.Session {
	if s.cursor < 0 || s.cursor >= len(s.sessions) {
		return nil
	}
	return s.sessions[s.cursor]
}

func (s *sidebar) moveCursor(delta int) {
	s.cursor += delta
	if s.cursor < 0 {
		s.cursor = 0
	}
	if s.cursor >= len(s.sessions) {
		s.cursor = len(s.sessions) - 1
	}
}

// nearEnd reports whether the cursor is close enough to the bottom to
// prefetch the next page.
func (s *sidebar) nearEnd() bool {
	return s.hasMore && s.cursor >= len(s.sessions)-3
}

func (s *sidebar) view() string {
	var sb strings.Builder

	sb.WriteString(s.theme.SidebarTitle.Render("Chats"))
	sb.WriteString("\n")

	if s.searching {
		sb.WriteString(" " + s.search.View() + "\n")
	}

	itemWidth := s.width - 3
	visible := s.height - 4
	start := 0
	if s.cursor >= visible {
		start = s.cursor - visible + 1
	}

	for i := start; i < len(s.sessions) && i-start < visible; i++ {
		sess := s.sessions[i]
		title := runewidth.Truncate(sess.Title, itemWidth, "…")
		line := title
		if sess.ID == s.activeID {
			line = "* " + runewidth.Truncate(sess.Title, itemWidth-2, "…")
		}
		if i == s.cursor {
			sb.WriteString(s.theme.SessionSelected.Render(line))
		} else {
			sb.WriteString(s.theme.SessionItem.Render(line))
		}
		sb.WriteString("\n")
	}

	if s.hasMore {
		sb.WriteString(s.theme.LoadMoreHint.Render("...more"))
		sb.WriteString("\n")
	}

	return s.theme.Sidebar.Width(s.width).Height(s.height).Render(sb.String())
}
