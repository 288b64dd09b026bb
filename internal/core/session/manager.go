package session

import (
	"fmt"
	"sort"
	"sync"

	"shelltree/internal/core/errors"
)

// Manager keeps independent sessions keyed by id.
type Manager struct {
	defaults []Option

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager returns a manager that applies defaults before the per-call
// options of every Create.
func NewManager(defaults ...Option) *Manager {
	return &Manager{
		defaults: defaults,
		sessions: make(map[string]*Session),
	}
}

func (m *Manager) Create(opts ...Option) (*Session, error) {
	all := make([]Option, 0, len(m.defaults)+len(opts))
	all = append(all, m.defaults...)
	all = append(all, opts...)

	s, err := New(all...)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.ID()]; exists {
		_ = s.Close()
		return nil, errors.AddContext(
			errors.New(errors.CodeValidationError, fmt.Sprintf("session %s already exists", s.ID())),
			errors.CtxSession, s.ID(),
		)
	}
	m.sessions[s.ID()] = s
	return s, nil
}

func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, errors.AddContext(errors.New(errors.CodeNotFound, "unknown session"), errors.CtxSession, id)
	}
	return s, nil
}

// Remove closes and forgets a session.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return errors.AddContext(errors.New(errors.CodeNotFound, "unknown session"), errors.CtxSession, id)
	}
	return s.Close()
}

// List returns the ids of open sessions in sorted order.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close closes every session.
func (m *Manager) Close() error {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
	return nil
}
