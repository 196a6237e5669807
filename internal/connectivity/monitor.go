// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package connectivity tracks network reachability with a periodic probe.
//
// The monitor dials a well-known TCP endpoint on an interval and publishes
// state transitions only: subscribers hear "went offline" and "came back
// online", never a heartbeat. The offline queue drains on the online
// transition.
package connectivity

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/morganforge/nanochat/internal/logging"
)

// =============================================================================
// STATE
// =============================================================================

// State is the current reachability state.
type State int

const (
	// StateUnknown is the state before the first probe completes.
	StateUnknown State = iota
	StateOnline
	StateOffline
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateOnline:
		return "online"
	case StateOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// =============================================================================
// MONITOR
// =============================================================================

// Prober tests reachability once. The production prober is a TCP dial; tests
// substitute a scripted one.
type Prober func(ctx context.Context) bool

// DialProber returns a Prober that dials the given TCP address.
// The default address is a public DNS resolver: reachable from anywhere
// that has a route out, and port 53 is rarely filtered.
func DialProber(addr string, timeout time.Duration) Prober {
	return func(ctx context.Context) bool {
		d := net.Dialer{Timeout: timeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}
}

// Monitor probes reachability on an interval and notifies subscribers of
// state transitions.
type Monitor struct {
	probe    Prober
	interval time.Duration

	mu    sync.Mutex
	state State
	subs  []chan State

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMonitor creates a monitor with the given prober and probe interval.
func NewMonitor(probe Prober, interval time.Duration) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Monitor{
		probe:    probe,
		interval: interval,
		state:    StateUnknown,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// State returns the last observed state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Online reports whether the network was reachable at the last probe.
// The unknown state counts as online so startup does not queue sends
// before the first probe lands.
func (m *Monitor) Online() bool {
	return m.State() != StateOffline
}

// Subscribe returns a channel that receives state transitions. The channel
// is buffered; sends never block the probe loop, so a subscriber that stops
// draining misses transitions rather than stalling the monitor.
func (m *Monitor) Subscribe() <-chan State {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan State, 4)
	m.subs = append(m.subs, ch)
	return ch
}

// Start begins probing. The first probe runs immediately.
func (m *Monitor) Start() {
	go m.run()
}

// Stop halts probing and closes subscriber channels.
func (m *Monitor) Stop() {
	m.cancel()
	<-m.done
}

func (m *Monitor) run() {
	defer close(m.done)
	defer m.closeSubs()

	m.probeOnce()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.probeOnce()
		}
	}
}

// probeOnce runs one probe and publishes the state if it changed.
func (m *Monitor) probeOnce() {
	reachable := m.probe(m.ctx)

	next := StateOffline
	if reachable {
		next = StateOnline
	}

	m.mu.Lock()
	prev := m.state
	if next == prev {
		m.mu.Unlock()
		return
	}
	m.state = next
	subs := make([]chan State, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	logging.Log.WithField("state", next.String()).Info("connectivity changed")

	for _, ch := range subs {
		select {
		case ch <- next:
		default:
			// Drop rather than block; subscriber will see the next transition
		}
	}
}

func (m *Monitor) closeSubs() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subs {
		close(ch)
	}
	m.subs = nil
}
