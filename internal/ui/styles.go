// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// =============================================================================
// THEME
// =============================================================================

// Theme holds the styled components for the application. It detects the
// terminal's color capability and degrades gracefully on limited terminals.
type Theme struct {
	HasTrueColor bool
	ColorProfile termenv.Profile

	// Chat pane
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	SystemLabel    lipgloss.Style
	QueuedLabel    lipgloss.Style
	MessageBody    lipgloss.Style
	Timestamp      lipgloss.Style

	// Sidebar
	Sidebar          lipgloss.Style
	SessionItem      lipgloss.Style
	SessionSelected  lipgloss.Style
	SessionMeta      lipgloss.Style
	SidebarTitle     lipgloss.Style
	LoadMoreHint     lipgloss.Style

	// Input area
	InputContainer lipgloss.Style

	// Status bar
	StatusBar     lipgloss.Style
	StatusOnline  lipgloss.Style
	StatusOffline lipgloss.Style
	StatusQueued  lipgloss.Style
	StatusError   lipgloss.Style

	// Dialogs
	DialogBox   lipgloss.Style
	DialogTitle lipgloss.Style
}

// NewTheme builds the default theme for the current terminal.
func NewTheme() *Theme {
	profile := termenv.ColorProfile()

	accent := lipgloss.Color("12")
	dim := lipgloss.Color("8")
	warn := lipgloss.Color("11")
	bad := lipgloss.Color("9")
	good := lipgloss.Color("10")

	return &Theme{
		HasTrueColor: profile == termenv.TrueColor,
		ColorProfile: profile,

		UserLabel:      lipgloss.NewStyle().Bold(true).Foreground(accent),
		AssistantLabel: lipgloss.NewStyle().Bold(true).Foreground(good),
		SystemLabel:    lipgloss.NewStyle().Bold(true).Foreground(dim),
		QueuedLabel:    lipgloss.NewStyle().Bold(true).Foreground(warn),
		MessageBody:    lipgloss.NewStyle(),
		Timestamp:      lipgloss.NewStyle().Foreground(dim),

		Sidebar:         lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderRight(true).BorderForeground(dim),
		SessionItem:     lipgloss.NewStyle().PaddingLeft(1),
		SessionSelected: lipgloss.NewStyle().PaddingLeft(1).Bold(true).Foreground(accent),
		SessionMeta:     lipgloss.NewStyle().Foreground(dim),
		SidebarTitle:    lipgloss.NewStyle().Bold(true).PaddingLeft(1),
		LoadMoreHint:    lipgloss.NewStyle().Foreground(dim).Italic(true).PaddingLeft(1),

		InputContainer: lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderTop(true).BorderForeground(dim),

		StatusBar:     lipgloss.NewStyle().Foreground(dim),
		StatusOnline:  lipgloss.NewStyle().Foreground(good),
		StatusOffline: lipgloss.NewStyle().Foreground(bad).Bold(true),
		StatusQueued:  lipgloss.NewStyle().Foreground(warn),
		StatusError:   lipgloss.NewStyle().Foreground(bad),

		DialogBox:   lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).Padding(1, 2).BorderForeground(accent),
		DialogTitle: lipgloss.NewStyle().Bold(true),
	}
}
