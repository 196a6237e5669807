// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package controller

import (
	"context"
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"github.com/morganforge/nanochat/internal/api"
	"github.com/morganforge/nanochat/internal/config"
	"github.com/morganforge/nanochat/internal/connectivity"
	"github.com/morganforge/nanochat/internal/logging"
	"github.com/morganforge/nanochat/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrBusy indicates a generation is already in flight. One generation
	// runs at a time; the caller cancels or waits.
	ErrBusy = errors.New("a response is already being generated")

	// ErrEmptyMessage indicates a send with no content after trimming.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrNoSession indicates an operation that needs an open session.
	ErrNoSession = errors.New("no session is open")
)

// =============================================================================
// DEPENDENCIES
// =============================================================================

// Store is the persistence surface the controller needs.
type Store interface {
	CreateSession(*model.Session) error
	GetSession(id string) (*model.Session, error)
	ListSessions(limit, offset int) ([]*model.Session, error)
	SearchSessions(query string) ([]*model.Session, error)
	UpdateSessionTitle(id, title string) error
	UpdateSessionModel(id, modelID string) error
	UpdateSessionParams(id, systemPrompt string, temperature float64) error
	TouchSession(id string) error
	DeleteSession(id string) error
	CreateMessage(*model.Message) error
	GetRecentMessages(sessionID string, limit int) ([]*model.Message, error)
	GetMessagesBefore(sessionID string, beforeSeq int64, limit int) ([]*model.Message, error)
	CountMessages(sessionID string) (int, error)
	DeleteMessagesFrom(sessionID string, fromSeq int64) error
}

// Generator is the API surface the controller needs.
type Generator interface {
	HasKey() bool
	Stream(ctx context.Context, req api.Request, onSnapshot func(string)) (string, error)
	ListModels(ctx context.Context) ([]string, error)
}

// Network reports reachability. Backed by the connectivity monitor.
type Network interface {
	Online() bool
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller owns the active session, the conversation window, pagination,
// and the offline queue. Confined to the UI event loop; see the package doc
// for the concurrency contract.
type Controller struct {
	cfg    *config.Config
	store  Store
	client Generator
	net    Network
	emit   func(tea.Msg)

	window  *model.Window
	session *model.Session

	sessions *SessionPager
	msgs     *MessagePager
	queue    *OfflineQueue

	busy   bool
	reqID  string
	cancel context.CancelFunc
}

// New creates a controller. emit delivers worker events into the UI loop;
// in production it is tea.Program.Send.
func New(cfg *config.Config, st Store, client Generator, net Network, emit func(tea.Msg)) *Controller {
	return &Controller{
		cfg:      cfg,
		store:    st,
		client:   client,
		net:      net,
		emit:     emit,
		window:   model.NewWindow(),
		sessions: NewSessionPager(cfg.History.SessionPageSize),
		msgs:     NewMessagePager(cfg.History.OlderPageSize),
		queue:    &OfflineQueue{},
	}
}

// Window returns the conversation window for rendering.
func (c *Controller) Window() *model.Window {
	return c.window
}

// Session returns the active session, or nil.
func (c *Controller) Session() *model.Session {
	return c.session
}

// Busy reports whether a generation is in flight.
func (c *Controller) Busy() bool {
	return c.busy
}

// QueueDepth returns the number of sends waiting for connectivity.
func (c *Controller) QueueDepth() int {
	return c.queue.Len()
}

// Sessions returns the session list pager.
func (c *Controller) Sessions() *SessionPager {
	return c.sessions
}

// MessagePages returns the message scroll-back pager.
func (c *Controller) MessagePages() *MessagePager {
	return c.msgs
}

// =============================================================================
// SENDING
// =============================================================================

// Send submits a user message to the active session, creating a session if
// none is open. Offline sends are queued and go out automatically when the
// network returns.
func (c *Controller) Send(content string) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return ErrEmptyMessage
	}
	if c.busy {
		return ErrBusy
	}
	if !c.client.HasKey() {
		return api.ErrNoAPIKey
	}
	if c.session == nil {
		if _, err := c.NewChat(); err != nil {
			return err
		}
	}

	userMsg := model.NewUserMessage(c.session.ID, trimmed)

	if !c.net.Online() {
		userMsg.Queued = true
		c.window.Append(userMsg)
		c.queue.Enqueue(QueuedSend{Message: userMsg})
		c.emit(QueueChangedMsg{Depth: c.queue.Len()})
		logging.Log.WithField("session", c.session.ID).Info("send queued while offline")
		return nil
	}

	return c.dispatch(userMsg)
}

// dispatch persists the user message and starts generation. The message may
// already be in the window (queued resend); it is appended only if new.
func (c *Controller) dispatch(userMsg *model.Message) error {
	sess := c.session
	if sess == nil || userMsg.SessionID != sess.ID {
		return ErrNoSession
	}

	// The user's turn is durable before the assistant's begins; a crash
	// mid-generation loses at most the response
	if err := c.store.CreateMessage(userMsg); err != nil {
		return err
	}
	userMsg.Queued = false

	if c.window.IndexOf(userMsg.ID) < 0 {
		c.window.Append(userMsg)
	}

	if sess.Title == model.DefaultTitle {
		title := model.AutoTitle(userMsg.Content)
		if err := c.store.UpdateSessionTitle(sess.ID, title); err == nil {
			sess.Title = title
			c.emit(TitleChangedMsg{SessionID: sess.ID, Title: title})
		}
	}
	if err := c.store.TouchSession(sess.ID); err != nil {
		logging.Log.WithError(err).Warn("failed to touch session")
	}

	c.startGeneration()
	return nil
}

// startGeneration launches the streaming worker for the current window.
func (c *Controller) startGeneration() {
	sess := c.session
	reqID := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())

	c.busy = true
	c.reqID = reqID
	c.cancel = cancel

	// Snapshot on the UI goroutine; the worker never reads the window
	req := c.buildRequest(sess)
	emit := c.emit
	st := c.store
	coalescer := NewCoalescer(c.cfg.CoalesceInterval(), func(snapshot string) {
		emit(StreamSnapshotMsg{RequestID: reqID, SessionID: sess.ID, Content: snapshot})
	})

	go func() {
		defer cancel()

		full, err := c.client.Stream(ctx, req, func(snapshot string) {
			if flushed, ok := coalescer.Offer(snapshot); ok {
				emit(StreamSnapshotMsg{RequestID: reqID, SessionID: sess.ID, Content: flushed})
			}
		})

		if err != nil {
			coalescer.Stop()
			emit(StreamErrorMsg{RequestID: reqID, SessionID: sess.ID, Partial: full, Err: err})
			return
		}

		if flushed, ok := coalescer.ForceFlush(); ok {
			emit(StreamSnapshotMsg{RequestID: reqID, SessionID: sess.ID, Content: flushed})
		}

		assistant := model.NewMessage(sess.ID, model.RoleAssistant, full)
		if storeErr := st.CreateMessage(assistant); storeErr != nil {
			// The response is on screen; durability lost, display kept
			logging.Log.WithError(storeErr).Error("failed to persist assistant message")
			emit(StoreWarningMsg{Err: storeErr})
		}
		if touchErr := st.TouchSession(sess.ID); touchErr != nil {
			logging.Log.WithError(touchErr).Warn("failed to touch session")
		}

		emit(StreamDoneMsg{RequestID: reqID, SessionID: sess.ID, Message: assistant})
	}()
}

// buildRequest assembles the API payload: system prompt first, then the
// loaded window in order. Queued messages are excluded.
func (c *Controller) buildRequest(sess *model.Session) api.Request {
	snapshot := c.window.Snapshot()
	messages := make([]api.Message, 0, len(snapshot)+1)
	if sess.SystemPrompt != "" {
		messages = append(messages, api.Message{Role: model.RoleSystem.String(), Content: sess.SystemPrompt})
	}
	for _, m := range snapshot {
		messages = append(messages, api.Message{Role: m.Role.String(), Content: m.Content})
	}

	return api.Request{
		Model:            sess.Model,
		Messages:         messages,
		Temperature:      sess.Temperature,
		MaxTokens:        c.cfg.Chat.MaxTokens,
		TopP:             c.cfg.Chat.TopP,
		FrequencyPenalty: c.cfg.Chat.FrequencyPenalty,
		PresencePenalty:  c.cfg.Chat.PresencePenalty,
	}
}

// Cancel aborts the in-flight generation, keeping any partial text. The
// request token is invalidated here, not when the worker notices the
// cancellation: chunk or error events already queued for this request must
// land inert.
func (c *Controller) Cancel() {
	if !c.busy {
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.busy = false
	c.cancel = nil
	c.reqID = ""
	c.window.AbortStream()
}

// =============================================================================
// STREAM EVENT HANDLERS
// =============================================================================

// stale reports whether an event belongs to a superseded generation or a
// session that is no longer open.
func (c *Controller) stale(requestID, sessionID string) bool {
	if requestID != c.reqID {
		return true
	}
	return c.session == nil || c.session.ID != sessionID
}

// HandleStreamSnapshot applies a cumulative snapshot to the window.
func (c *Controller) HandleStreamSnapshot(msg StreamSnapshotMsg) {
	if c.stale(msg.RequestID, msg.SessionID) {
		return
	}
	c.window.ApplyStream(msg.SessionID, msg.Content)
}

// HandleStreamDone finalizes a completed generation and drains the queue if
// sends are waiting.
func (c *Controller) HandleStreamDone(msg StreamDoneMsg) {
	if c.stale(msg.RequestID, msg.SessionID) {
		return
	}
	c.busy = false
	c.cancel = nil
	c.reqID = ""

	final := c.window.FinalizeStream(msg.Message.Content)
	if final == nil {
		// No snapshot ever arrived (coalesced away or empty response);
		// show the persisted message directly
		c.window.Append(msg.Message)
	} else {
		// Adopt the persisted identity so edits address the stored row
		final.ID = msg.Message.ID
		final.Seq = msg.Message.Seq
		final.CreatedAt = msg.Message.CreatedAt
	}

	c.drainQueue()
}

// HandleStreamError aborts a failed or cancelled generation, keeping the
// partial text. The busy flag always clears; a failed generation never
// wedges the controller.
func (c *Controller) HandleStreamError(msg StreamErrorMsg) {
	if c.stale(msg.RequestID, msg.SessionID) {
		return
	}
	c.busy = false
	c.cancel = nil
	c.reqID = ""

	c.window.ApplyStream(msg.SessionID, msg.Partial)
	c.window.AbortStream()

	if errors.Is(msg.Err, context.Canceled) {
		logging.Log.Debug("generation cancelled")
	} else {
		logging.Log.WithError(msg.Err).Warn("generation failed")
	}
}

// HandleConfigReloaded applies safe fields from a config file edit. Only
// generation parameters and the default model are picked up live; transport
// and storage settings need a restart. Runs on the UI goroutine, so
// buildRequest never races the watcher.
func (c *Controller) HandleConfigReloaded(msg ConfigReloadedMsg) {
	if msg.Config == nil {
		return
	}
	c.cfg.Chat = msg.Config.Chat
	c.cfg.API.DefaultModel = msg.Config.API.DefaultModel
	logging.Log.Info("configuration reloaded")
}

// HandleConnectivity reacts to reachability transitions. Queued sends go
// out when the network returns.
func (c *Controller) HandleConnectivity(msg ConnectivityMsg) {
	if msg.State == connectivity.StateOnline {
		c.drainQueue()
	}
}

// drainQueue sends the oldest queued message if the controller is idle and
// the network is up. The next queued send goes out when this one finishes,
// from HandleStreamDone.
func (c *Controller) drainQueue() {
	if c.busy || !c.net.Online() {
		return
	}
	item, ok := c.queue.Pop()
	if !ok {
		return
	}
	c.emit(QueueChangedMsg{Depth: c.queue.Len()})

	if err := c.dispatch(item.Message); err != nil {
		// Put it back; the next transition or completion retries
		c.queue.PushFront(item)
		c.emit(QueueChangedMsg{Depth: c.queue.Len()})
		logging.Log.WithError(err).Warn("failed to resend queued message")
	}
}

// DiscardQueued removes a queued message before it is sent.
func (c *Controller) DiscardQueued(messageID string) {
	if !c.queue.Remove(messageID) {
		return
	}
	if i := c.window.IndexOf(messageID); i >= 0 {
		msgs := c.window.Messages()
		c.window.Reset(append(msgs[:i:i], msgs[i+1:]...))
	}
	c.emit(QueueChangedMsg{Depth: c.queue.Len()})
}

// =============================================================================
// SESSION MANAGEMENT
// =============================================================================

// NewChat creates a session with the configured defaults and makes it
// active. An in-flight generation is cancelled first.
func (c *Controller) NewChat() (*model.Session, error) {
	c.Cancel()

	sess := model.NewSession(c.cfg.API.DefaultModel, c.cfg.Chat.SystemPrompt, c.cfg.Chat.Temperature)
	if err := c.store.CreateSession(sess); err != nil {
		return nil, err
	}

	c.session = sess
	c.window.Reset(nil)
	c.msgs = NewMessagePager(c.cfg.History.OlderPageSize)
	c.reqID = ""
	c.busy = false
	return sess, nil
}

// OpenSession loads a session and its newest page of messages in the
// background. The result arrives as SessionOpenedMsg.
func (c *Controller) OpenSession(id string) {
	c.Cancel()

	pageSize := c.cfg.History.MessagePageSize
	emit := c.emit
	st := c.store

	go func() {
		sess, err := st.GetSession(id)
		if err != nil {
			emit(SessionOpenedMsg{Err: err})
			return
		}
		page, err := st.GetRecentMessages(id, pageSize)
		if err != nil {
			emit(SessionOpenedMsg{Err: err})
			return
		}
		total, err := st.CountMessages(id)
		if err != nil {
			emit(SessionOpenedMsg{Err: err})
			return
		}
		emit(SessionOpenedMsg{Session: sess, Messages: page, HasMore: total > len(page)})
	}()
}

// HandleSessionOpened installs a loaded session as the active one.
func (c *Controller) HandleSessionOpened(msg SessionOpenedMsg) {
	if msg.Err != nil || msg.Session == nil {
		return
	}
	c.session = msg.Session
	c.window.Reset(msg.Messages)
	c.msgs = NewMessagePager(c.cfg.History.OlderPageSize)

	var oldest int64
	if len(msg.Messages) > 0 {
		oldest = msg.Messages[0].Seq
	}
	c.msgs.Reset(oldest, msg.HasMore)
	c.busy = false
	c.reqID = ""
}

// DeleteSession removes a session. Deleting the active session clears the
// window.
func (c *Controller) DeleteSession(id string) error {
	if err := c.store.DeleteSession(id); err != nil {
		return err
	}
	if c.session != nil && c.session.ID == id {
		c.Cancel()
		c.session = nil
		c.window.Reset(nil)
		c.msgs = NewMessagePager(c.cfg.History.OlderPageSize)
	}
	return nil
}

// RenameSession sets a session's title.
func (c *Controller) RenameSession(id, title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrEmptyMessage
	}
	if err := c.store.UpdateSessionTitle(id, title); err != nil {
		return err
	}
	if c.session != nil && c.session.ID == id {
		c.session.Title = title
	}
	c.emit(TitleChangedMsg{SessionID: id, Title: title})
	return nil
}

// SetSessionModel changes the active session's model.
func (c *Controller) SetSessionModel(modelID string) error {
	if c.session == nil {
		return ErrNoSession
	}
	if err := c.store.UpdateSessionModel(c.session.ID, modelID); err != nil {
		return err
	}
	c.session.Model = modelID
	return nil
}

// SetSessionParams changes the active session's system prompt and
// temperature.
func (c *Controller) SetSessionParams(systemPrompt string, temperature float64) error {
	if c.session == nil {
		return ErrNoSession
	}
	if err := c.store.UpdateSessionParams(c.session.ID, systemPrompt, temperature); err != nil {
		return err
	}
	c.session.SystemPrompt = systemPrompt
	c.session.Temperature = temperature
	return nil
}

// =============================================================================
// SESSION LIST
// =============================================================================

// LoadSessions fetches the first page of the session list.
func (c *Controller) LoadSessions() {
	c.sessions.Reset("")
	c.loadSessionPage(true)
}

// LoadMoreSessions fetches the next page. A no-op while a load is in
// flight or when the list is exhausted.
func (c *Controller) LoadMoreSessions() {
	c.loadSessionPage(false)
}

func (c *Controller) loadSessionPage(replace bool) {
	if !c.sessions.BeginLoad() {
		return
	}

	pageSize := c.sessions.PageSize()
	offset := c.sessions.Offset()
	gen := c.sessions.Gen()
	emit := c.emit
	st := c.store

	go func() {
		page, err := st.ListSessions(pageSize, offset)
		emit(SessionsLoadedMsg{
			Sessions: page,
			Replace:  replace,
			HasMore:  len(page) >= pageSize,
			Gen:      gen,
			Err:      err,
		})
	}()
}

// Search replaces the session list with sessions matching the query. An
// empty query returns to the paginated list.
func (c *Controller) Search(query string) {
	query = strings.TrimSpace(query)
	if query == "" {
		c.LoadSessions()
		return
	}

	c.sessions.Reset(query)
	if !c.sessions.BeginLoad() {
		return
	}

	gen := c.sessions.Gen()
	emit := c.emit
	st := c.store

	go func() {
		results, err := st.SearchSessions(query)
		emit(SessionsLoadedMsg{
			Sessions: results,
			Replace:  true,
			HasMore:  false,
			Query:    query,
			Gen:      gen,
			Err:      err,
		})
	}()
}

// HandleSessionsLoaded updates pagination state for a loaded page. It
// reports whether the page was applied: results from a superseded load
// (the pager was reset, or the query changed) are dropped, so the offset
// advances exactly once per displayed page and stale result sets never
// reach the presentation layer.
func (c *Controller) HandleSessionsLoaded(msg SessionsLoadedMsg) bool {
	if msg.Gen != c.sessions.Gen() || msg.Query != c.sessions.Query() {
		return false
	}
	if msg.Err != nil {
		c.sessions.FailLoad()
		return false
	}
	c.sessions.CompleteLoad(len(msg.Sessions))
	return true
}

// =============================================================================
// MESSAGE SCROLL-BACK
// =============================================================================

// LoadOlderMessages fetches the next older page of the open session. A
// no-op while a load is in flight or when history is exhausted.
func (c *Controller) LoadOlderMessages() {
	if c.session == nil {
		return
	}
	if !c.msgs.BeginLoad() {
		return
	}

	sessionID := c.session.ID
	anchor := c.msgs.OldestSeq()
	pageSize := c.msgs.PageSize()
	emit := c.emit
	st := c.store

	go func() {
		page, err := st.GetMessagesBefore(sessionID, anchor, pageSize)
		emit(MessagesPrependedMsg{
			SessionID: sessionID,
			Messages:  page,
			HasMore:   len(page) >= pageSize,
			Err:       err,
		})
	}()
}

// HandleMessagesPrepended inserts an older page at the top of the window.
// Pages for a session that is no longer open are dropped.
func (c *Controller) HandleMessagesPrepended(msg MessagesPrependedMsg) {
	if c.session == nil || c.session.ID != msg.SessionID {
		return
	}
	if msg.Err != nil {
		c.msgs.FailLoad()
		return
	}

	c.window.Prepend(msg.Messages)

	var newOldest int64
	if len(msg.Messages) > 0 {
		newOldest = msg.Messages[0].Seq
	}
	c.msgs.CompleteLoad(len(msg.Messages), newOldest)
}

// =============================================================================
// EDIT AND REGENERATE
// =============================================================================

// EditResend replaces a user message and everything after it with a fresh
// send of the new content.
func (c *Controller) EditResend(messageID, newContent string) error {
	if c.busy {
		return ErrBusy
	}
	if c.session == nil {
		return ErrNoSession
	}

	i := c.window.IndexOf(messageID)
	if i < 0 {
		return ErrNoSession
	}
	target := c.window.Messages()[i]
	if target.Role != model.RoleUser {
		return errors.New("only user messages can be edited")
	}

	// Validation first: a rejected edit must leave the original turn
	// untouched in both the store and the window
	trimmed := strings.TrimSpace(newContent)
	if trimmed == "" {
		return ErrEmptyMessage
	}

	// A queued message has not been sent; just rewrite it in place
	if target.Queued {
		target.Content = trimmed
		return nil
	}

	if !c.client.HasKey() {
		return api.ErrNoAPIKey
	}

	if err := c.store.DeleteMessagesFrom(c.session.ID, target.Seq); err != nil {
		return err
	}
	c.window.TruncateFrom(i)

	return c.Send(trimmed)
}

// Regenerate discards the last assistant response and resends the last user
// message.
func (c *Controller) Regenerate() error {
	if c.busy {
		return ErrBusy
	}
	if c.session == nil {
		return ErrNoSession
	}
	if !c.client.HasKey() {
		return api.ErrNoAPIKey
	}

	msgs := c.window.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m.Role == model.RoleUser && !m.Queued {
			if err := c.store.DeleteMessagesFrom(c.session.ID, m.Seq); err != nil {
				return err
			}
			content := m.Content
			c.window.TruncateFrom(i)
			return c.Send(content)
		}
	}
	return errors.New("nothing to regenerate")
}

// =============================================================================
// MODELS
// =============================================================================

// FetchModels fetches the backend's model list in the background. The
// result arrives as ModelsFetchedMsg.
func (c *Controller) FetchModels() {
	emit := c.emit
	go func() {
		models, err := c.client.ListModels(context.Background())
		emit(ModelsFetchedMsg{Models: models, Err: err})
	}()
}
