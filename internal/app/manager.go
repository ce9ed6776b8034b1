package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/okian/ridetrack/internal/adapters/presence"
	"github.com/okian/ridetrack/pkg/logger"
)

// ErrSessionNotFound reports an unknown session id.
var ErrSessionNotFound = errors.New("session not found")

// TransportFactory builds a fresh transport per session. Sessions never
// share a connection: two dashboards tracking different orders are fully
// independent, and a dropped connection only affects its own session.
type TransportFactory func(ctx context.Context) (presence.Transport, error)

// Manager is the registry of live sessions the HTTP layer works against.
// It is an explicitly constructed instance, injected where needed; there is
// no process-global session state.
type Manager struct {
	factory     TransportFactory
	fetcher     RiderFetcher
	ready       ReadyMarker
	log         logger.Logger
	sessionOpts []Option

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty session registry.
func NewManager(factory TransportFactory, fetcher RiderFetcher, ready ReadyMarker, opts ...ManagerOption) *Manager {
	m := &Manager{
		factory:  factory,
		fetcher:  fetcher,
		ready:    ready,
		sessions: make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logger.Get().Named("sessions")
	}
	return m
}

// CreateSession builds, starts and registers a new tracking session.
func (m *Manager) CreateSession(ctx context.Context, storeID, orderItemID string, sellerLat, sellerLng float64) (*Session, error) {
	transport, err := m.factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("build transport: %w", err)
	}

	s, err := NewSession(storeID, orderItemID, sellerLat, sellerLng,
		transport, m.fetcher, m.ready, m.sessionOpts...)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}

	if err := s.Start(ctx); err != nil {
		s.Stop()
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID()] = s
	m.mu.Unlock()
	return s, nil
}

// Get returns a session by id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// End stops a session and removes it from the registry.
func (m *Manager) End(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.Stop()
	return nil
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// StopAll tears every session down, used on process shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Stop()
	}
}

// Stats aggregates per-session statistics for monitoring.
func (m *Manager) Stats() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	per := make([]map[string]any, 0, len(m.sessions))
	for _, s := range m.sessions {
		per = append(per, s.Stats())
	}
	return map[string]any{
		"sessions": len(m.sessions),
		"detail":   per,
	}
}
