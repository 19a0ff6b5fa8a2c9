package runtime

import (
	"sync"
	"time"
)

// Manager keeps the live sessions of a server, keyed by Session.ID.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	metrics  *Metrics
}

func NewManager(metrics *Metrics) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		metrics:  metrics,
	}
}

// Put registers s, closing any session it replaces.
func (m *Manager) Put(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.sessions[s.ID()]; ok && old != s {
		old.Close()
	}
	m.sessions[s.ID()] = s
	m.metrics.setActiveSessions(len(m.sessions))
}

func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Remove closes and forgets the session. It reports whether the session existed.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.metrics.setActiveSessions(len(m.sessions))
	m.mu.Unlock()

	if ok {
		s.Close()
	}
	return ok
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep closes sessions idle for longer than maxIdle and returns how many were removed.
// Widgets never announce that they closed, so this is the only way sessions end server-side.
func (m *Manager) Sweep(now time.Time, maxIdle time.Duration) int {
	var stale []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		if now.Sub(s.LastActive()) > maxIdle {
			stale = append(stale, s)
			delete(m.sessions, id)
		}
	}
	m.metrics.setActiveSessions(len(m.sessions))
	m.mu.Unlock()

	for _, s := range stale {
		s.Close()
	}
	return len(stale)
}

// CloseAll closes every session. Used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.metrics.setActiveSessions(0)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}
