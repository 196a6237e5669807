// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package controller

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/morganforge/nanochat/internal/api"
	"github.com/morganforge/nanochat/internal/config"
	"github.com/morganforge/nanochat/internal/connectivity"
	"github.com/morganforge/nanochat/internal/model"
)

// =============================================================================
// FAKES
// =============================================================================

// fakeStore is an in-memory Store.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*model.Session
	messages map[string][]*model.Message

	failCreateMessage bool
	createdMessages   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[string]*model.Session),
		messages: make(map[string][]*model.Message),
	}
}

func (f *fakeStore) CreateSession(s *model.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeStore) GetSession(id string) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, errors.New("session not found")
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) ListSessions(limit, offset int) ([]*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []*model.Session
	for _, s := range f.sessions {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt.After(all[j].UpdatedAt) })
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (f *fakeStore) SearchSessions(query string) ([]*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Session
	for _, s := range f.sessions {
		if strings.Contains(strings.ToLower(s.Title), strings.ToLower(query)) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateSessionTitle(id, title string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		s.Title = title
	}
	return nil
}

func (f *fakeStore) UpdateSessionModel(id, modelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		s.Model = modelID
	}
	return nil
}

func (f *fakeStore) UpdateSessionParams(id, sp string, temp float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		s.SystemPrompt = sp
		s.Temperature = temp
	}
	return nil
}

func (f *fakeStore) TouchSession(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		s.UpdatedAt = time.Now()
	}
	return nil
}

func (f *fakeStore) DeleteSession(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
	delete(f.messages, id)
	return nil
}

func (f *fakeStore) CreateMessage(m *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreateMessage && m.Role == model.RoleAssistant {
		return errors.New("disk full")
	}
	m.Seq = int64(len(f.messages[m.SessionID]) + 1)
	cp := *m
	f.messages[m.SessionID] = append(f.messages[m.SessionID], &cp)
	f.createdMessages++
	return nil
}

func (f *fakeStore) GetRecentMessages(sessionID string, limit int) ([]*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	msgs := f.messages[sessionID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]*model.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (f *fakeStore) GetMessagesBefore(sessionID string, beforeSeq int64, limit int) ([]*model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var older []*model.Message
	for _, m := range f.messages[sessionID] {
		if m.Seq < beforeSeq {
			older = append(older, m)
		}
	}
	if len(older) > limit {
		older = older[len(older)-limit:]
	}
	return older, nil
}

func (f *fakeStore) CountMessages(sessionID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages[sessionID]), nil
}

func (f *fakeStore) DeleteMessagesFrom(sessionID string, fromSeq int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []*model.Message
	for _, m := range f.messages[sessionID] {
		if m.Seq < fromSeq {
			kept = append(kept, m)
		}
	}
	f.messages[sessionID] = kept
	return nil
}

func (f *fakeStore) storedMessages(sessionID string) []*model.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*model.Message, len(f.messages[sessionID]))
	copy(out, f.messages[sessionID])
	return out
}

// fakeGenerator streams scripted cumulative snapshots.
type fakeGenerator struct {
	mu        sync.Mutex
	snapshots []string
	final     string
	err       error
	hasKey    bool
	calls     int
	block     chan struct{} // non-nil: wait before returning
}

func (g *fakeGenerator) HasKey() bool { return g.hasKey }

func (g *fakeGenerator) Stream(ctx context.Context, req api.Request, onSnapshot func(string)) (string, error) {
	g.mu.Lock()
	g.calls++
	snapshots, final, err, block := g.snapshots, g.final, g.err, g.block
	g.mu.Unlock()

	var last string
	for _, s := range snapshots {
		if onSnapshot != nil {
			onSnapshot(s)
		}
		last = s
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return last, ctx.Err()
		}
	}
	if err != nil {
		return last, err
	}
	return final, nil
}

func (g *fakeGenerator) ListModels(ctx context.Context) ([]string, error) {
	return []string{"gpt-4o", "llama-70b"}, nil
}

// fakeNet is a switchable Network.
type fakeNet struct{ online boolFlag }

type boolFlag struct {
	mu sync.Mutex
	v  bool
}

func (b *boolFlag) set(v bool) { b.mu.Lock(); b.v = v; b.mu.Unlock() }
func (b *boolFlag) get() bool  { b.mu.Lock(); defer b.mu.Unlock(); return b.v }

func (n *fakeNet) Online() bool { return n.online.get() }

// =============================================================================
// HARNESS
// =============================================================================

// harness wires a controller to fakes and pumps emitted events through the
// matching handlers, the way the UI Update loop does.
type harness struct {
	t      *testing.T
	ctrl   *Controller
	store  *fakeStore
	gen    *fakeGenerator
	net    *fakeNet
	events chan tea.Msg

	seen []tea.Msg
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := config.Default()
	cfg.UI.CoalesceMS = 0 // admit every snapshot in tests
	cfg.History.OlderPageSize = 3
	cfg.History.MessagePageSize = 4

	h := &harness{
		t:      t,
		store:  newFakeStore(),
		gen:    &fakeGenerator{hasKey: true},
		net:    &fakeNet{},
		events: make(chan tea.Msg, 256),
	}
	h.net.online.set(true)
	h.ctrl = New(cfg, h.store, h.gen, h.net, func(m tea.Msg) { h.events <- m })
	return h
}

// pumpUntil routes events to handlers until pred matches one or the
// timeout expires.
func (h *harness) pumpUntil(pred func(tea.Msg) bool) tea.Msg {
	h.t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-h.events:
			h.route(msg)
			h.seen = append(h.seen, msg)
			if pred(msg) {
				return msg
			}
		case <-deadline:
			h.t.Fatal("timed out waiting for event")
			return nil
		}
	}
}

func (h *harness) route(msg tea.Msg) {
	switch m := msg.(type) {
	case StreamSnapshotMsg:
		h.ctrl.HandleStreamSnapshot(m)
	case StreamDoneMsg:
		h.ctrl.HandleStreamDone(m)
	case StreamErrorMsg:
		h.ctrl.HandleStreamError(m)
	case SessionOpenedMsg:
		h.ctrl.HandleSessionOpened(m)
	case SessionsLoadedMsg:
		h.ctrl.HandleSessionsLoaded(m)
	case MessagesPrependedMsg:
		h.ctrl.HandleMessagesPrepended(m)
	case ConnectivityMsg:
		h.ctrl.HandleConnectivity(m)
	case ConfigReloadedMsg:
		h.ctrl.HandleConfigReloaded(m)
	}
}

func (h *harness) waitDone() {
	h.pumpUntil(func(m tea.Msg) bool {
		_, ok := m.(StreamDoneMsg)
		return ok
	})
}

// =============================================================================
// SEND AND STREAM
// =============================================================================

func TestSendStreamsAndPersists(t *testing.T) {
	h := newHarness(t)
	h.gen.snapshots = []string{"Hel", "Hello", "Hello there"}
	h.gen.final = "Hello there!"

	if err := h.ctrl.Send("Hi"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	h.waitDone()

	if h.ctrl.Busy() {
		t.Error("busy flag should clear after completion")
	}

	msgs := h.ctrl.Window().Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected user + assistant in window, got %d", len(msgs))
	}
	if msgs[1].Content != "Hello there!" {
		t.Errorf("assistant content = %q", msgs[1].Content)
	}
	if msgs[1].IsStreaming {
		t.Error("assistant message still marked streaming")
	}

	stored := h.store.storedMessages(h.ctrl.Session().ID)
	if len(stored) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(stored))
	}
	if stored[0].Role != model.RoleUser || stored[1].Role != model.RoleAssistant {
		t.Error("persisted roles wrong")
	}
}

func TestCumulativeSnapshotsReplace(t *testing.T) {
	h := newHarness(t)
	// Includes a regression: a shorter snapshot after a longer one
	h.gen.snapshots = []string{"Hello world", "Hello"}
	h.gen.final = "Hello world!"

	if err := h.ctrl.Send("Hi"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	var grew bool
	h.pumpUntil(func(m tea.Msg) bool {
		if _, ok := m.(StreamSnapshotMsg); ok {
			last := h.ctrl.Window().Last()
			if last != nil && last.Content == "Hello world" {
				grew = true
			}
			// After the short snapshot the display must not regress
			if grew && last != nil && len(last.Content) < len("Hello world") {
				t.Errorf("display regressed to %q", last.Content)
			}
		}
		_, done := m.(StreamDoneMsg)
		return done
	})

	if h.ctrl.Window().Last().Content != "Hello world!" {
		t.Errorf("final content = %q", h.ctrl.Window().Last().Content)
	}
}

func TestSendRejectsWhileBusy(t *testing.T) {
	h := newHarness(t)
	h.gen.block = make(chan struct{})
	h.gen.final = "slow"

	if err := h.ctrl.Send("first"); err != nil {
		t.Fatalf("first Send failed: %v", err)
	}
	if err := h.ctrl.Send("second"); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}

	close(h.gen.block)
	h.waitDone()

	// Idle again; a new send is accepted
	h.gen.block = nil
	if err := h.ctrl.Send("third"); err != nil {
		t.Errorf("Send after completion failed: %v", err)
	}
	h.waitDone()
}

func TestSendValidation(t *testing.T) {
	h := newHarness(t)

	if err := h.ctrl.Send("   \n  "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("expected ErrEmptyMessage, got %v", err)
	}

	h.gen.hasKey = false
	if err := h.ctrl.Send("hello"); !errors.Is(err, api.ErrNoAPIKey) {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}
}

func TestCancelKeepsPartial(t *testing.T) {
	h := newHarness(t)
	h.gen.snapshots = []string{"partial resp"}
	h.gen.block = make(chan struct{}) // never closed; cancel unblocks

	if err := h.ctrl.Send("Hi"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	// Wait for the snapshot to land, then cancel
	h.pumpUntil(func(m tea.Msg) bool {
		_, ok := m.(StreamSnapshotMsg)
		return ok
	})
	h.ctrl.Cancel()

	h.pumpUntil(func(m tea.Msg) bool {
		_, ok := m.(StreamErrorMsg)
		return ok
	})

	if h.ctrl.Busy() {
		t.Error("busy flag should clear after cancel")
	}
	last := h.ctrl.Window().Last()
	if last == nil || last.Content != "partial resp" {
		t.Errorf("partial text should survive cancel, got %v", last)
	}
	if last.IsStreaming {
		t.Error("aborted message still marked streaming")
	}
}

func TestGenerationErrorClearsBusy(t *testing.T) {
	h := newHarness(t)
	h.gen.err = &api.Error{Category: api.CategoryServer, Message: "boom"}

	if err := h.ctrl.Send("Hi"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	h.pumpUntil(func(m tea.Msg) bool {
		_, ok := m.(StreamErrorMsg)
		return ok
	})

	if h.ctrl.Busy() {
		t.Error("failed generation must clear the busy flag")
	}

	// Empty placeholder is removed
	msgs := h.ctrl.Window().Messages()
	if len(msgs) != 1 {
		t.Errorf("expected only the user message, got %d", len(msgs))
	}
}

func TestStoreFailureKeepsDisplay(t *testing.T) {
	h := newHarness(t)
	h.gen.snapshots = []string{"answer"}
	h.gen.final = "answer"
	h.store.failCreateMessage = true

	if err := h.ctrl.Send("Hi"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	var warned bool
	h.pumpUntil(func(m tea.Msg) bool {
		if _, ok := m.(StoreWarningMsg); ok {
			warned = true
		}
		_, done := m.(StreamDoneMsg)
		return done
	})

	if !warned {
		t.Error("expected a store warning")
	}
	if h.ctrl.Window().Last().Content != "answer" {
		t.Error("response should stay on screen despite store failure")
	}
	if h.ctrl.Busy() {
		t.Error("busy flag should clear")
	}
}

func TestAutoTitleFromFirstMessage(t *testing.T) {
	h := newHarness(t)
	h.gen.final = "ok"

	long := strings.Repeat("x", 80)
	if err := h.ctrl.Send(long); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	h.waitDone()

	sess := h.ctrl.Session()
	if len([]rune(sess.Title)) != model.TitleMaxRunes {
		t.Errorf("title should truncate to %d runes, got %d", model.TitleMaxRunes, len([]rune(sess.Title)))
	}

	// Second message does not retitle
	title := sess.Title
	if err := h.ctrl.Send("another"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	h.waitDone()
	if sess.Title != title {
		t.Error("title changed on second message")
	}
}

// =============================================================================
// OFFLINE QUEUE
// =============================================================================

func TestOfflineSendQueuesAndDrains(t *testing.T) {
	h := newHarness(t)
	h.gen.final = "reply"
	h.net.online.set(false)

	if err := h.ctrl.Send("first offline"); err != nil {
		t.Fatalf("offline Send failed: %v", err)
	}
	if err := h.ctrl.Send("second offline"); err != nil {
		t.Fatalf("offline Send failed: %v", err)
	}

	if h.ctrl.QueueDepth() != 2 {
		t.Fatalf("expected queue depth 2, got %d", h.ctrl.QueueDepth())
	}
	if h.gen.calls != 0 {
		t.Fatal("nothing should be sent while offline")
	}

	// Queued messages are visible but excluded from request payloads
	if got := h.ctrl.Window().Len(); got != 2 {
		t.Fatalf("queued messages should show in window, got %d", got)
	}
	if got := len(h.ctrl.Window().Snapshot()); got != 0 {
		t.Fatalf("queued messages must not enter payloads, got %d", got)
	}

	// Network returns: both drain, in order
	h.net.online.set(true)
	h.ctrl.HandleConnectivity(ConnectivityMsg{State: connectivity.StateOnline})

	var doneCount int
	h.pumpUntil(func(m tea.Msg) bool {
		if _, ok := m.(StreamDoneMsg); ok {
			doneCount++
		}
		return doneCount == 2
	})

	if h.ctrl.QueueDepth() != 0 {
		t.Errorf("queue should be empty, depth %d", h.ctrl.QueueDepth())
	}

	stored := h.store.storedMessages(h.ctrl.Session().ID)
	var userContents []string
	for _, m := range stored {
		if m.Role == model.RoleUser {
			userContents = append(userContents, m.Content)
		}
	}
	want := []string{"first offline", "second offline"}
	if len(userContents) != 2 || userContents[0] != want[0] || userContents[1] != want[1] {
		t.Errorf("queued sends should drain FIFO, got %v", userContents)
	}
}

func TestDiscardQueued(t *testing.T) {
	h := newHarness(t)
	h.net.online.set(false)

	if err := h.ctrl.Send("doomed"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	id := h.ctrl.Window().Last().ID

	h.ctrl.DiscardQueued(id)

	if h.ctrl.QueueDepth() != 0 {
		t.Error("queue should be empty after discard")
	}
	if h.ctrl.Window().Len() != 0 {
		t.Error("discarded message should leave the window")
	}
}

// =============================================================================
// STALE EVENTS
// =============================================================================

func TestStaleSnapshotDropped(t *testing.T) {
	h := newHarness(t)
	h.gen.final = "ok"

	if err := h.ctrl.Send("Hi"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	h.waitDone()

	// An event from a dead generation must not touch the window
	before := h.ctrl.Window().Last().Content
	h.ctrl.HandleStreamSnapshot(StreamSnapshotMsg{
		RequestID: "stale-request",
		SessionID: h.ctrl.Session().ID,
		Content:   "zombie text that is quite long indeed",
	})
	if h.ctrl.Window().Last().Content != before {
		t.Error("stale snapshot mutated the window")
	}
}

// =============================================================================
// SESSIONS AND PAGINATION
// =============================================================================

func TestOpenSessionLoadsRecentPage(t *testing.T) {
	h := newHarness(t)

	sess := model.NewSession("gpt-4o", "", 0.7)
	h.store.CreateSession(sess)
	for i := 0; i < 10; i++ {
		h.store.CreateMessage(model.NewUserMessage(sess.ID, strings.Repeat("m", i+1)))
	}

	h.ctrl.OpenSession(sess.ID)
	h.pumpUntil(func(m tea.Msg) bool {
		_, ok := m.(SessionOpenedMsg)
		return ok
	})

	// MessagePageSize is 4 in the harness
	if got := h.ctrl.Window().Len(); got != 4 {
		t.Fatalf("expected initial page of 4, got %d", got)
	}
	if !h.ctrl.MessagePages().HasMore() {
		t.Error("older messages exist; HasMore should be true")
	}
}

func TestLoadOlderMessagesContiguous(t *testing.T) {
	h := newHarness(t)

	sess := model.NewSession("gpt-4o", "", 0.7)
	h.store.CreateSession(sess)
	for i := 1; i <= 10; i++ {
		h.store.CreateMessage(model.NewUserMessage(sess.ID, strings.Repeat("m", i)))
	}

	h.ctrl.OpenSession(sess.ID)
	h.pumpUntil(func(m tea.Msg) bool { _, ok := m.(SessionOpenedMsg); return ok })

	h.ctrl.LoadOlderMessages()
	h.pumpUntil(func(m tea.Msg) bool { _, ok := m.(MessagesPrependedMsg); return ok })

	// OlderPageSize is 3: window went 4 -> 7, contiguous by Seq
	msgs := h.ctrl.Window().Messages()
	if len(msgs) != 7 {
		t.Fatalf("expected 7 messages after one older page, got %d", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Seq != msgs[i-1].Seq+1 {
			t.Fatalf("window not contiguous at %d: %d then %d", i, msgs[i-1].Seq, msgs[i].Seq)
		}
	}
}

func TestLoadOlderMessagesReentrancyGuard(t *testing.T) {
	h := newHarness(t)

	sess := model.NewSession("gpt-4o", "", 0.7)
	h.store.CreateSession(sess)
	for i := 1; i <= 10; i++ {
		h.store.CreateMessage(model.NewUserMessage(sess.ID, "m"))
	}

	h.ctrl.OpenSession(sess.ID)
	h.pumpUntil(func(m tea.Msg) bool { _, ok := m.(SessionOpenedMsg); return ok })

	// Hammer the load; only one page may land before events are pumped
	h.ctrl.LoadOlderMessages()
	h.ctrl.LoadOlderMessages()
	h.ctrl.LoadOlderMessages()

	h.pumpUntil(func(m tea.Msg) bool { _, ok := m.(MessagesPrependedMsg); return ok })

	select {
	case msg := <-h.events:
		if _, ok := msg.(MessagesPrependedMsg); ok {
			t.Fatal("concurrent older-page load was not dropped")
		}
	case <-time.After(100 * time.Millisecond):
	}

	if got := h.ctrl.Window().Len(); got != 7 {
		t.Errorf("expected exactly one page prepended, got %d messages", got)
	}
}

func TestSessionListPagination(t *testing.T) {
	h := newHarness(t)
	h.ctrl.cfg.History.SessionPageSize = 2
	h.ctrl.sessions = NewSessionPager(2)

	for i := 0; i < 5; i++ {
		sess := model.NewSession("gpt-4o", "", 0.7)
		sess.UpdatedAt = time.Now().Add(time.Duration(i) * time.Second)
		h.store.CreateSession(sess)
	}

	h.ctrl.LoadSessions()
	msg := h.pumpUntil(func(m tea.Msg) bool { _, ok := m.(SessionsLoadedMsg); return ok }).(SessionsLoadedMsg)
	if len(msg.Sessions) != 2 || !msg.HasMore {
		t.Fatalf("first page: got %d sessions, hasMore=%v", len(msg.Sessions), msg.HasMore)
	}

	h.ctrl.LoadMoreSessions()
	msg = h.pumpUntil(func(m tea.Msg) bool { _, ok := m.(SessionsLoadedMsg); return ok }).(SessionsLoadedMsg)
	if len(msg.Sessions) != 2 {
		t.Fatalf("second page: got %d sessions", len(msg.Sessions))
	}

	h.ctrl.LoadMoreSessions()
	msg = h.pumpUntil(func(m tea.Msg) bool { _, ok := m.(SessionsLoadedMsg); return ok }).(SessionsLoadedMsg)
	if len(msg.Sessions) != 1 || msg.HasMore {
		t.Fatalf("last page: got %d sessions, hasMore=%v", len(msg.Sessions), msg.HasMore)
	}

	// Exhausted: further loads are no-ops
	h.ctrl.LoadMoreSessions()
	select {
	case m := <-h.events:
		t.Fatalf("unexpected event after exhaustion: %T", m)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSearchDisablesPagination(t *testing.T) {
	h := newHarness(t)

	for _, title := range []string{"Rust questions", "Go questions", "Dinner"} {
		sess := model.NewSession("gpt-4o", "", 0.7)
		sess.Title = title
		h.store.CreateSession(sess)
	}

	h.ctrl.Search("questions")
	msg := h.pumpUntil(func(m tea.Msg) bool { _, ok := m.(SessionsLoadedMsg); return ok }).(SessionsLoadedMsg)

	if len(msg.Sessions) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(msg.Sessions))
	}
	if msg.HasMore {
		t.Error("search results must report hasMore=false")
	}
	if h.ctrl.Sessions().HasMore() {
		t.Error("pager must not page while searching")
	}

	// Load-more during search is a no-op
	h.ctrl.LoadMoreSessions()
	select {
	case m := <-h.events:
		t.Fatalf("unexpected event during search: %T", m)
	case <-time.After(100 * time.Millisecond):
	}
}

// =============================================================================
// EDIT AND REGENERATE
// =============================================================================

func TestEditResend(t *testing.T) {
	h := newHarness(t)
	h.gen.final = "first answer"

	if err := h.ctrl.Send("first question"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	h.waitDone()

	userID := h.ctrl.Window().Messages()[0].ID
	h.gen.final = "second answer"

	if err := h.ctrl.EditResend(userID, "edited question"); err != nil {
		t.Fatalf("EditResend failed: %v", err)
	}
	h.waitDone()

	msgs := h.ctrl.Window().Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages after edit, got %d", len(msgs))
	}
	if msgs[0].Content != "edited question" {
		t.Errorf("user content = %q", msgs[0].Content)
	}
	if msgs[1].Content != "second answer" {
		t.Errorf("assistant content = %q", msgs[1].Content)
	}

	stored := h.store.storedMessages(h.ctrl.Session().ID)
	if len(stored) != 2 {
		t.Errorf("old turn should be deleted from the store, have %d rows", len(stored))
	}
}

func TestRegenerate(t *testing.T) {
	h := newHarness(t)
	h.gen.final = "take one"

	if err := h.ctrl.Send("question"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	h.waitDone()

	h.gen.final = "take two"
	if err := h.ctrl.Regenerate(); err != nil {
		t.Fatalf("Regenerate failed: %v", err)
	}
	h.waitDone()

	msgs := h.ctrl.Window().Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Content != "question" {
		t.Errorf("user content = %q", msgs[0].Content)
	}
	if msgs[1].Content != "take two" {
		t.Errorf("assistant content = %q", msgs[1].Content)
	}
}

func TestRegenerateWhileBusyRejected(t *testing.T) {
	h := newHarness(t)
	h.gen.block = make(chan struct{})
	h.gen.final = "slow"

	if err := h.ctrl.Send("question"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := h.ctrl.Regenerate(); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	close(h.gen.block)
	h.waitDone()
}

// =============================================================================
// CANCELLATION STALENESS
// =============================================================================

func TestCancelIgnoresLateEvents(t *testing.T) {
	h := newHarness(t)
	h.gen.snapshots = []string{"partial"}
	h.gen.block = make(chan struct{}) // never closed; cancel unblocks

	if err := h.ctrl.Send("Hi"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	msg := h.pumpUntil(func(m tea.Msg) bool {
		_, ok := m.(StreamSnapshotMsg)
		return ok
	}).(StreamSnapshotMsg)

	h.ctrl.Cancel()

	// A chunk that was already in flight when Cancel ran carries the old
	// request ID; it must land inert
	h.ctrl.HandleStreamSnapshot(StreamSnapshotMsg{
		RequestID: msg.RequestID,
		SessionID: msg.SessionID,
		Content:   "partial plus text that arrived after cancel",
	})

	last := h.ctrl.Window().Last()
	if last == nil || last.Content != "partial" {
		t.Errorf("late chunk mutated the window after cancel: %q", last.Content)
	}
	if last.IsStreaming {
		t.Error("cancelled message still marked streaming")
	}
	if h.ctrl.Busy() {
		t.Error("busy flag should clear on cancel")
	}

	// The worker's error event for the cancelled request is equally inert
	h.pumpUntil(func(m tea.Msg) bool {
		_, ok := m.(StreamErrorMsg)
		return ok
	})
	if last := h.ctrl.Window().Last(); last.Content != "partial" {
		t.Errorf("late error event mutated the window: %q", last.Content)
	}
}

// =============================================================================
// EDIT VALIDATION
// =============================================================================

func TestEditResendValidationPreservesTurn(t *testing.T) {
	h := newHarness(t)
	h.gen.final = "answer"

	if err := h.ctrl.Send("question"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	h.waitDone()

	userID := h.ctrl.Window().Messages()[0].ID
	sessID := h.ctrl.Session().ID

	// A blank edit is rejected before anything is deleted
	if err := h.ctrl.EditResend(userID, "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
	if got := len(h.store.storedMessages(sessID)); got != 2 {
		t.Errorf("blank edit destroyed the stored turn, %d rows left", got)
	}
	if got := h.ctrl.Window().Len(); got != 2 {
		t.Errorf("blank edit truncated the window to %d messages", got)
	}

	// Same for an edit that cannot be sent at all
	h.gen.hasKey = false
	if err := h.ctrl.EditResend(userID, "new question"); !errors.Is(err, api.ErrNoAPIKey) {
		t.Fatalf("expected ErrNoAPIKey, got %v", err)
	}
	if got := len(h.store.storedMessages(sessID)); got != 2 {
		t.Errorf("keyless edit destroyed the stored turn, %d rows left", got)
	}
	if h.ctrl.Window().Messages()[0].Content != "question" {
		t.Error("original user message should be untouched")
	}
}

// =============================================================================
// SESSION LOAD GENERATIONS
// =============================================================================

func TestRapidSessionReloadsAdvanceOnce(t *testing.T) {
	h := newHarness(t)
	h.ctrl.cfg.History.SessionPageSize = 2
	h.ctrl.sessions = NewSessionPager(2)

	for i := 0; i < 5; i++ {
		sess := model.NewSession("gpt-4o", "", 0.7)
		sess.UpdatedAt = time.Now().Add(time.Duration(i) * time.Second)
		h.store.CreateSession(sess)
	}

	// Two reloads before either page lands: the first load is superseded
	// and its result must not advance the offset a second time
	h.ctrl.LoadSessions()
	h.ctrl.LoadSessions()

	h.pumpUntil(func(m tea.Msg) bool { _, ok := m.(SessionsLoadedMsg); return ok })
	h.pumpUntil(func(m tea.Msg) bool { _, ok := m.(SessionsLoadedMsg); return ok })

	if got := h.ctrl.Sessions().Offset(); got != 2 {
		t.Fatalf("offset after rapid reloads = %d, want 2", got)
	}

	// The next page follows contiguously, no skipped rows
	h.ctrl.LoadMoreSessions()
	msg := h.pumpUntil(func(m tea.Msg) bool { _, ok := m.(SessionsLoadedMsg); return ok }).(SessionsLoadedMsg)
	if len(msg.Sessions) != 2 {
		t.Fatalf("second page: got %d sessions, want 2", len(msg.Sessions))
	}
	if got := h.ctrl.Sessions().Offset(); got != 4 {
		t.Errorf("offset after second page = %d, want 4", got)
	}
}

func TestSupersededSearchResultDropped(t *testing.T) {
	h := newHarness(t)
	for _, title := range []string{"Go questions", "Dinner"} {
		sess := model.NewSession("gpt-4o", "", 0.7)
		sess.Title = title
		h.store.CreateSession(sess)
	}

	h.ctrl.Search("questions")
	msg := h.pumpUntil(func(m tea.Msg) bool { _, ok := m.(SessionsLoadedMsg); return ok }).(SessionsLoadedMsg)

	// The query moved on before this result is handled
	h.ctrl.Search("dinner")
	if h.ctrl.HandleSessionsLoaded(msg) {
		t.Error("result from a superseded search should not be applied")
	}

	fresh := h.pumpUntil(func(m tea.Msg) bool { _, ok := m.(SessionsLoadedMsg); return ok }).(SessionsLoadedMsg)
	if len(fresh.Sessions) != 1 || fresh.Sessions[0].Title != "Dinner" {
		t.Errorf("fresh search result wrong: %+v", fresh.Sessions)
	}
}

// =============================================================================
// CONFIG RELOAD
// =============================================================================

func TestConfigReloadAppliedOnHandle(t *testing.T) {
	h := newHarness(t)

	next := config.Default()
	next.API.DefaultModel = "llama-70b"
	next.Chat.SystemPrompt = "be brief"

	h.ctrl.HandleConfigReloaded(ConfigReloadedMsg{Config: next})

	sess, err := h.ctrl.NewChat()
	if err != nil {
		t.Fatalf("NewChat failed: %v", err)
	}
	if sess.Model != "llama-70b" {
		t.Errorf("new session model = %q, want reloaded default", sess.Model)
	}
	if sess.SystemPrompt != "be brief" {
		t.Errorf("new session system prompt = %q, want reloaded value", sess.SystemPrompt)
	}

	// A nil config is ignored
	h.ctrl.HandleConfigReloaded(ConfigReloadedMsg{})
}
