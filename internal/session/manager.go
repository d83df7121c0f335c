package session

import (
	"sync"
	"sync/atomic"
)

// Manager owns the session-id → session map and is the only component
// that may reach across sessions: it serializes the transition from one
// session to the next on the same editor display via the force-
// terminate handshake.
type Manager struct {
	mu       sync.RWMutex
	sessions map[ID]*Session
	nextID   atomic.Uint64

	cfg  Config
	init SourceInitializer
	mb   MatcherBuilder
	sink Sink
}

// NewManager creates a Manager. The initializer, matcher builder, and
// sink are shared by every session it spawns.
func NewManager(cfg Config, init SourceInitializer, mb MatcherBuilder, sink Sink) *Manager {
	return &Manager{
		sessions: make(map[ID]*Session),
		cfg:      cfg,
		init:     init,
		mb:       mb,
		sink:     sink,
	}
}

// NewSession creates and starts a session for sctx, replacing any prior
// session on the same editor display (identified by DisplayKey). The
// prior session, if any, is force-terminated and its acknowledgement is
// awaited before the new session's loop starts — the only synchronous
// handshake in the system, preventing two sessions from writing to the
// same display concurrently.
func (m *Manager) NewSession(displayKey string, sctx Context) *Session {
	m.mu.Lock()
	prior := m.displaySessionLocked(displayKey)
	id := ID(m.nextID.Add(1))
	sess := New(id, sctx, m.cfg, m.init, m.mb, m.sink)
	m.sessions[id] = sess
	m.mu.Unlock()

	if prior != nil {
		m.forceTerminate(prior)
	}

	go sess.Run()
	return sess
}

// displaySessionLocked finds the live session currently bound to
// displayKey, if any. Must be called with m.mu held.
func (m *Manager) displaySessionLocked(displayKey string) *Session {
	for _, s := range m.sessions {
		if s.ctx.displayKey() == displayKey && s.State() != StateDead {
			return s
		}
	}
	return nil
}

// forceTerminate sends ForceTerminate to sess and blocks until its
// acknowledgement channel closes.
func (m *Manager) forceTerminate(sess *Session) {
	ack := make(chan struct{})
	sess.Post(Event{Kind: EventForceTerminate, Ack: ack})
	<-ack
	m.remove(sess.ID)
}

// Terminate ends session id via the plain (non-handshake) path, used
// when the editor sends exit_session rather than replacing the
// provider.
func (m *Manager) Terminate(id ID) {
	m.mu.RLock()
	sess, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return
	}
	sess.Post(Event{Kind: EventTerminate})
	m.remove(id)
}

// Get returns the session for id, if it exists.
func (m *Manager) Get(id ID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Dispatch routes an event carrying an explicit session id to that
// session, if still live.
func (m *Manager) Dispatch(id ID, ev Event) {
	if s, ok := m.Get(id); ok {
		s.Post(ev)
	}
}

func (m *Manager) remove(id ID) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Shutdown force-terminates every live session, used when the RPC
// adapter detects a fatal error (editor EOF) and the process is about
// to exit.
func (m *Manager) Shutdown() {
	m.mu.RLock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.RUnlock()

	for _, s := range all {
		m.forceTerminate(s)
	}
}

// displayKey identifies the editor display a session is bound to, used
// to find the session a new provider invocation on the same display
// must replace. Providers that don't distinguish displays share one key
// derived from their provider id.
func (c Context) displayKey() string {
	return c.ProviderID
}
