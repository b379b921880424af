package live

import (
	"context"
	"sync"
)

// Manager enforces session exclusivity: at most one live session exists
// at a time, and a new one never connects before the previous one has
// released the microphone.
type Manager struct {
	mu      sync.Mutex
	current *Session
}

func NewManager() *Manager {
	return &Manager{}
}

// Start tears down the current session, waits for it to release its
// devices, then connects the session returned by build. build runs only
// after the previous session is fully gone.
func (m *Manager) Start(ctx context.Context, build func() (*Session, error)) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Disconnect()
		<-m.current.Done()
		m.current = nil
	}
	s, err := build()
	if err != nil {
		return nil, err
	}
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}
	m.current = s
	return s, nil
}

// Stop disconnects the current session, if any, and waits for teardown.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return
	}
	m.current.Disconnect()
	<-m.current.Done()
	m.current = nil
}

// Current returns the active session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}
