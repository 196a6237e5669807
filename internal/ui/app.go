// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ui implements the terminal interface: a session sidebar, the
// conversation view, and the input area, glued to the controller.
//
// The App model owns the Bubble Tea update loop. Controller events arrive
// as messages, get routed to the controller's handler, and then the
// affected panes re-render. All controller access happens here, on the
// update goroutine.
package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/morganforge/nanochat/internal/api"
	"github.com/morganforge/nanochat/internal/config"
	"github.com/morganforge/nanochat/internal/connectivity"
	"github.com/morganforge/nanochat/internal/controller"
	"github.com/morganforge/nanochat/internal/model"
)

// =============================================================================
// FOCUS
// =============================================================================

type focus int

const (
	focusChat focus = iota
	focusSidebar
	focusSearch
	focusRename
)

const sidebarWidth = 28

// =============================================================================
// APP MODEL
// =============================================================================

// Exporter writes a session transcript somewhere and returns the path.
type Exporter func(sess *model.Session) (string, error)

// App is the root Bubble Tea model.
type App struct {
	cfg   *config.Config
	ctrl  *controller.Controller
	theme *Theme
	keys  KeyMap

	chat   *chatPane
	side   *sidebar
	rename textinput.Model

	focus  focus
	width  int
	height int

	online     bool
	queueDepth int
	status     string
	models     []string
	editTarget string

	export Exporter
}

// NewApp creates the root model around a controller.
func NewApp(cfg *config.Config, ctrl *controller.Controller, export Exporter) *App {
	theme := NewTheme()

	rn := textinput.New()
	rn.Placeholder = "New title"
	rn.CharLimit = 120

	return &App{
		cfg:    cfg,
		ctrl:   ctrl,
		theme:  theme,
		keys:   DefaultKeyMap(),
		chat:   newChatPane(theme, cfg.UI.Markdown),
		side:   newSidebar(theme),
		rename: rn,
		online: true,
		export: export,
	}
}

// Init starts background loads and animations.
func (a *App) Init() tea.Cmd {
	a.ctrl.LoadSessions()
	a.ctrl.FetchModels()
	return tea.Batch(a.chat.spinner.Tick, textinput.Blink)
}

// =============================================================================
// UPDATE
// =============================================================================

func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.side.setSize(sidebarWidth, msg.Height-1)
		a.chat.setSize(msg.Width-sidebarWidth-1, msg.Height-1)
		a.refreshChat()
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.chat.spinner, cmd = a.chat.spinner.Update(msg)
		if a.ctrl.Busy() {
			a.refreshChat()
		}
		return a, cmd

	// Controller events
	case controller.StreamSnapshotMsg:
		a.ctrl.HandleStreamSnapshot(msg)
		a.refreshChat()
		return a, nil

	case controller.StreamDoneMsg:
		a.ctrl.HandleStreamDone(msg)
		a.refreshChat()
		return a, nil

	case controller.StreamErrorMsg:
		a.ctrl.HandleStreamError(msg)
		a.status = describeError(msg.Err)
		a.refreshChat()
		return a, nil

	case controller.StoreWarningMsg:
		a.status = "Warning: response shown but not saved (" + msg.Err.Error() + ")"
		return a, nil

	case controller.SessionOpenedMsg:
		if msg.Err != nil {
			a.status = describeError(msg.Err)
			return a, nil
		}
		a.ctrl.HandleSessionOpened(msg)
		a.side.activeID = msg.Session.ID
		a.chat.pinned = true
		a.refreshChat()
		return a, nil

	case controller.SessionsLoadedMsg:
		applied := a.ctrl.HandleSessionsLoaded(msg)
		if msg.Err != nil {
			a.status = describeError(msg.Err)
			return a, nil
		}
		if applied {
			a.side.setSessions(msg.Sessions, msg.Replace, a.ctrl.Sessions().HasMore())
		}
		return a, nil

	case controller.MessagesPrependedMsg:
		a.ctrl.HandleMessagesPrepended(msg)
		if msg.Err != nil {
			a.status = describeError(msg.Err)
		}
		a.chat.refreshPrepended(a.ctrl.Window(), a.ctrl.Busy())
		return a, nil

	case controller.TitleChangedMsg:
		a.side.updateTitle(msg.SessionID, msg.Title)
		return a, nil

	case controller.ModelsFetchedMsg:
		if msg.Err == nil {
			a.models = msg.Models
		}
		return a, nil

	case controller.QueueChangedMsg:
		a.queueDepth = msg.Depth
		a.refreshChat()
		return a, nil

	case controller.ConnectivityMsg:
		a.online = msg.State != connectivity.StateOffline
		a.ctrl.HandleConnectivity(msg)
		return a, nil

	case controller.ConfigReloadedMsg:
		a.ctrl.HandleConfigReloaded(msg)
		return a, nil
	}

	return a, a.updateFocused(msg)
}

// handleKey dispatches a key press by focus.
func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, a.keys.Quit) {
		return a, tea.Quit
	}

	switch a.focus {
	case focusSearch:
		return a.handleSearchKey(msg)
	case focusRename:
		return a.handleRenameKey(msg)
	case focusSidebar:
		return a.handleSidebarKey(msg)
	default:
		return a.handleChatKey(msg)
	}
}

func (a *App) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.Submit) && !msg.Alt:
		content := a.chat.input.Value()
		var err error
		if a.editTarget != "" {
			err = a.ctrl.EditResend(a.editTarget, content)
		} else {
			err = a.ctrl.Send(content)
		}
		if err != nil {
			a.status = describeError(err)
		} else {
			a.editTarget = ""
			a.chat.input.Reset()
			a.status = ""
			a.chat.pinned = true
			a.refreshChat()
		}
		return a, nil

	case key.Matches(msg, a.keys.Cancel):
		switch {
		case a.ctrl.Busy():
			a.ctrl.Cancel()
			a.status = "Cancelled"
		case a.editTarget != "":
			a.editTarget = ""
			a.chat.input.Reset()
			a.status = ""
		}
		return a, nil

	case key.Matches(msg, a.keys.EditLast):
		a.beginEditLast()
		return a, nil

	case key.Matches(msg, a.keys.NewChat):
		if _, err := a.ctrl.NewChat(); err != nil {
			a.status = describeError(err)
			return a, nil
		}
		a.side.activeID = a.ctrl.Session().ID
		a.ctrl.LoadSessions()
		a.refreshChat()
		return a, nil

	case key.Matches(msg, a.keys.Regenerate):
		if err := a.ctrl.Regenerate(); err != nil {
			a.status = describeError(err)
		}
		a.refreshChat()
		return a, nil

	case key.Matches(msg, a.keys.Export):
		a.exportActive()
		return a, nil

	case key.Matches(msg, a.keys.CycleModel):
		a.cycleModel()
		return a, nil

	case key.Matches(msg, a.keys.FocusSide):
		a.focus = focusSidebar
		a.chat.input.Blur()
		return a, nil

	case key.Matches(msg, a.keys.Search):
		a.openSearch()
		return a, nil

	case key.Matches(msg, a.keys.PageUp):
		a.chat.pinned = false
		a.chat.viewport.ViewUp()
		if a.chat.atTop() {
			a.ctrl.LoadOlderMessages()
		}
		return a, nil

	case key.Matches(msg, a.keys.PageDown):
		a.chat.viewport.ViewDown()
		if a.chat.viewport.AtBottom() {
			a.chat.pinned = true
		}
		return a, nil
	}

	var cmd tea.Cmd
	a.chat.input, cmd = a.chat.input.Update(msg)
	return a, cmd
}

func (a *App) handleSidebarKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, a.keys.FocusSide), key.Matches(msg, a.keys.Cancel):
		a.focus = focusChat
		a.chat.input.Focus()
		return a, nil

	case key.Matches(msg, a.keys.Up):
		a.side.moveCursor(-1)
		return a, nil

	case key.Matches(msg, a.keys.Down):
		a.side.moveCursor(1)
		if a.side.nearEnd() {
			a.ctrl.LoadMoreSessions()
		}
		return a, nil

	case key.Matches(msg, a.keys.Open):
		if sess := a.side.selected(); sess != nil {
			a.ctrl.OpenSession(sess.ID)
			a.focus = focusChat
			a.chat.input.Focus()
		}
		return a, nil

	case key.Matches(msg, a.keys.Delete):
		if sess := a.side.selected(); sess != nil {
			if err := a.ctrl.DeleteSession(sess.ID); err != nil {
				a.status = describeError(err)
				return a, nil
			}
			a.side.removeSession(sess.ID)
			a.refreshChat()
		}
		return a, nil

	case key.Matches(msg, a.keys.Rename):
		if sess := a.side.selected(); sess != nil {
			a.rename.SetValue(sess.Title)
			a.rename.Focus()
			a.focus = focusRename
		}
		return a, nil

	case key.Matches(msg, a.keys.Search):
		a.openSearch()
		return a, nil

	case key.Matches(msg, a.keys.NewChat):
		if _, err := a.ctrl.NewChat(); err != nil {
			a.status = describeError(err)
			return a, nil
		}
		a.side.activeID = a.ctrl.Session().ID
		a.ctrl.LoadSessions()
		a.focus = focusChat
		a.chat.input.Focus()
		a.refreshChat()
		return a, nil
	}

	return a, nil
}

func (a *App) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		a.side.searching = false
		a.side.search.Blur()
		a.side.search.Reset()
		a.focus = focusSidebar
		a.ctrl.LoadSessions()
		return a, nil

	case tea.KeyEnter:
		a.side.search.Blur()
		a.focus = focusSidebar
		return a, nil
	}

	var cmd tea.Cmd
	a.side.search, cmd = a.side.search.Update(msg)
	a.ctrl.Search(a.side.search.Value())
	return a, cmd
}

func (a *App) handleRenameKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		a.rename.Blur()
		a.focus = focusSidebar
		return a, nil

	case tea.KeyEnter:
		if sess := a.side.selected(); sess != nil {
			if err := a.ctrl.RenameSession(sess.ID, a.rename.Value()); err != nil {
				a.status = describeError(err)
			}
		}
		a.rename.Blur()
		a.focus = focusSidebar
		return a, nil
	}

	var cmd tea.Cmd
	a.rename, cmd = a.rename.Update(msg)
	return a, cmd
}

func (a *App) updateFocused(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	switch a.focus {
	case focusChat:
		a.chat.input, cmd = a.chat.input.Update(msg)
	case focusSearch:
		a.side.search, cmd = a.side.search.Update(msg)
	case focusRename:
		a.rename, cmd = a.rename.Update(msg)
	}
	return cmd
}

func (a *App) openSearch() {
	a.side.searching = true
	a.side.search.Focus()
	a.chat.input.Blur()
	a.focus = focusSearch
}

func (a *App) exportActive() {
	sess := a.ctrl.Session()
	if sess == nil {
		a.status = "No session to export"
		return
	}
	if a.export == nil {
		return
	}
	path, err := a.export(sess)
	if err != nil {
		a.status = "Export failed: " + err.Error()
		return
	}
	a.status = "Exported to " + path
}

// beginEditLast loads the newest user message into the input; the next
// submit replaces it and everything after it.
func (a *App) beginEditLast() {
	if a.ctrl.Busy() {
		a.status = describeError(controller.ErrBusy)
		return
	}
	messages := a.ctrl.Window().Messages()
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == model.RoleUser && !messages[i].Queued {
			a.editTarget = messages[i].ID
			a.chat.input.SetValue(messages[i].Content)
			a.chat.input.CursorEnd()
			a.status = "Editing last message (Enter resends, Esc keeps it)"
			return
		}
	}
	a.status = "No message to edit"
}

// cycleModel advances the active session to the next fetched model.
func (a *App) cycleModel() {
	sess := a.ctrl.Session()
	if sess == nil || len(a.models) == 0 {
		return
	}
	next := a.models[0]
	for i, m := range a.models {
		if m == sess.Model {
			next = a.models[(i+1)%len(a.models)]
			break
		}
	}
	if err := a.ctrl.SetSessionModel(next); err != nil {
		a.status = describeError(err)
		return
	}
	a.status = "Model: " + next
}

func (a *App) refreshChat() {
	a.chat.refresh(a.ctrl.Window(), a.ctrl.Busy())
}

// =============================================================================
// VIEW
// =============================================================================

func (a *App) View() string {
	if a.width == 0 {
		return "loading..."
	}

	main := lipgloss.JoinHorizontal(lipgloss.Top, a.side.view(), a.chat.view())

	if a.focus == focusRename {
		dialog := a.theme.DialogBox.Render(
			a.theme.DialogTitle.Render("Rename session") + "\n" + a.rename.View())
		main = lipgloss.Place(a.width, a.height-1, lipgloss.Center, lipgloss.Center, dialog)
	}

	return main + "\n" + a.statusBar()
}

func (a *App) statusBar() string {
	var parts []string

	if a.online {
		parts = append(parts, a.theme.StatusOnline.Render("online"))
	} else {
		parts = append(parts, a.theme.StatusOffline.Render("OFFLINE"))
	}

	if a.queueDepth > 0 {
		parts = append(parts, a.theme.StatusQueued.Render(fmt.Sprintf("%d queued", a.queueDepth)))
	}

	if sess := a.ctrl.Session(); sess != nil {
		parts = append(parts, a.theme.StatusBar.Render(sess.Model))
	}

	if a.ctrl.Busy() {
		parts = append(parts, a.theme.StatusBar.Render("generating... (Esc cancels)"))
	}

	if a.status != "" {
		parts = append(parts, a.theme.StatusError.Render(a.status))
	}

	return " " + strings.Join(parts, a.theme.StatusBar.Render(" | "))
}

// describeError maps controller and API errors to short actionable text.
func describeError(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.UserMessage()
	}
	if errors.Is(err, api.ErrNoAPIKey) {
		return "No API key. Set NANOGPT_API_KEY or add api_key to config.toml."
	}
	if errors.Is(err, controller.ErrBusy) {
		return "Still generating; Esc cancels."
	}
	if errors.Is(err, controller.ErrEmptyMessage) {
		return "Nothing to send."
	}
	return err.Error()
}
