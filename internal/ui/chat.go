// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/morganforge/nanochat/internal/model"
)

// =============================================================================
// CHAT PANE
// =============================================================================

// chatPane renders the conversation window and the input area.
type chatPane struct {
	theme    *Theme
	viewport viewport.Model
	input    textarea.Model
	spinner  spinner.Model

	markdown *glamour.TermRenderer
	width    int
	height   int

	// Pinned to the bottom unless the user scrolled up; streaming snapshots
	// only auto-scroll while pinned
	pinned bool
}

func newChatPane(theme *Theme, renderMarkdown bool) *chatPane {
	vp := viewport.New(80, 20)

	ta := textarea.New()
	ta.Placeholder = "Type a message..."
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.ShowLineNumbers = false
	ta.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot

	var md *glamour.TermRenderer
	if renderMarkdown {
		// Renderer failure just means plain text
		md, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(76),
		)
	}

	return &chatPane{
		theme:    theme,
		viewport: vp,
		input:    ta,
		spinner:  sp,
		markdown: md,
		pinned:   true,
	}
}

func (p *chatPane) setSize(width, height int) {
	p.width = width
	p.height = height

	inputHeight := p.input.Height() + 1
	p.viewport.Width = width
	p.viewport.Height = height - inputHeight - 1
	p.input.SetWidth(width - 2)

	if p.markdown != nil && width > 4 {
		p.markdown, _ = glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width-4),
		)
	}
}

// refresh re-renders the window into the viewport. Scroll position is kept
// unless pinned to the bottom.
func (p *chatPane) refresh(win *model.Window, busy bool) {
	p.viewport.SetContent(p.render(win, busy))
	if p.pinned {
		p.viewport.GotoBottom()
	}
}

// refreshPrepended re-renders after an older page lands at the top. The
// offset shifts by the added height, so the messages the user was reading
// stay where they were.
func (p *chatPane) refreshPrepended(win *model.Window, busy bool) {
	if p.pinned {
		p.refresh(win, busy)
		return
	}
	before := p.viewport.TotalLineCount()
	p.viewport.SetContent(p.render(win, busy))
	if delta := p.viewport.TotalLineCount() - before; delta > 0 {
		p.viewport.SetYOffset(p.viewport.YOffset + delta)
	}
}

func (p *chatPane) render(win *model.Window, busy bool) string {
	msgs := win.Messages()
	if len(msgs) == 0 && !busy {
		return p.theme.SessionMeta.Render("\n  Start a conversation. Enter sends; Esc cancels a response.")
	}

	var sb strings.Builder
	for _, msg := range msgs {
		sb.WriteString(p.renderMessage(msg))
		sb.WriteString("\n")
	}

	if busy && !win.Streaming() {
		sb.WriteString(p.theme.AssistantLabel.Render("Assistant"))
		sb.WriteString(" " + p.spinner.View() + "\n")
	}

	return sb.String()
}

func (p *chatPane) renderMessage(msg *model.Message) string {
	var label string
	switch {
	case msg.Queued:
		label = p.theme.QueuedLabel.Render(msg.Role.DisplayName() + " (queued)")
	case msg.Role == model.RoleUser:
		label = p.theme.UserLabel.Render(msg.Role.DisplayName())
	case msg.Role == model.RoleAssistant:
		label = p.theme.AssistantLabel.Render(msg.Role.DisplayName())
	default:
		label = p.theme.SystemLabel.Render(msg.Role.DisplayName())
	}

	ts := p.theme.Timestamp.Render(msg.CreatedAt.Format("15:04"))
	header := lipgloss.JoinHorizontal(lipgloss.Left, label, " ", ts)

	body := msg.Content
	if msg.Role == model.RoleAssistant && !msg.IsStreaming && p.markdown != nil {
		if rendered, err := p.markdown.Render(body); err == nil {
			body = strings.TrimRight(rendered, "\n")
		}
	}
	if msg.IsStreaming {
		body += " " + p.spinner.View()
	}

	return header + "\n" + p.theme.MessageBody.Render(body) + "\n"
}

// atTop reports whether the viewport shows the oldest loaded message, the
// trigger for fetching an older page.
func (p *chatPane) atTop() bool {
	return p.viewport.AtTop()
}

func (p *chatPane) view() string {
	return p.viewport.View() + "\n" +
		p.theme.InputContainer.Render(p.input.View())
}
