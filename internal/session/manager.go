package session

import (
	"context"
	"errors"
	"sync"
)

// LocalOwner owns the session when no authentication is configured.
const LocalOwner = "local"

// Factory builds a fresh session for owner.
type Factory func(owner string) *Session

// Manager hands out one Session per owner, creating them on first use.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	factory  Factory
	closed   bool
}

// NewManager returns an empty manager.
func NewManager(factory Factory) *Manager {
	return &Manager{sessions: make(map[string]*Session), factory: factory}
}

// Get returns owner's session, creating it if needed. An empty owner maps to
// LocalOwner.
func (m *Manager) Get(owner string) (*Session, error) {
	if owner == "" {
		owner = LocalOwner
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if s, ok := m.sessions[owner]; ok {
		return s, nil
	}
	s := m.factory(owner)
	m.sessions[owner] = s
	return s, nil
}

// Len reports how many sessions exist.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close tears down every session. Later Gets fail with ErrClosed.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var errs []error
	for _, s := range sessions {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
