package session

import (
	"sync"

	"github.com/sirupsen/logrus"

	"shockscore-server/pkg/errors"
	"shockscore-server/pkg/metrics"
	"shockscore-server/pkg/report"
)

// Manager tracks concurrently running analysis sessions. Sessions are
// fully independent; the manager only guards its own registry. Each
// session serializes its own frame processing, so one logical worker
// per session is the intended embedding.
type Manager struct {
	logger *logrus.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates an empty session manager.
func NewManager(logger *logrus.Logger) *Manager {
	return &Manager{
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

// Create registers a new session. A duplicate session ID is rejected.
func (m *Manager) Create(opts Options) (*Session, error) {
	s := New(m.logger, opts)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[s.ID()]; exists {
		return nil, errors.ErrSessionExists
	}
	m.sessions[s.ID()] = s

	if metrics.Enabled() {
		metrics.SessionsActive.Set(float64(len(m.sessions)))
	}

	return s, nil
}

// Get returns a registered session.
func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, errors.NewSessionNotFound(sessionID)
	}
	return s, nil
}

// Finalize closes a session, removes it from the registry and returns
// its report.
func (m *Manager) Finalize(sessionID string) (*report.Report, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
		if metrics.Enabled() {
			metrics.SessionsActive.Set(float64(len(m.sessions)))
		}
	}
	m.mu.Unlock()

	if !ok {
		return nil, errors.NewSessionNotFound(sessionID)
	}
	return s.Finalize()
}

// ActiveCount returns the number of registered sessions.
func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// FinalizeAll closes every registered session, returning reports keyed
// by session ID. Used during graceful shutdown.
func (m *Manager) FinalizeAll() map[string]*report.Report {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	if metrics.Enabled() {
		metrics.SessionsActive.Set(0)
	}
	m.mu.Unlock()

	reports := make(map[string]*report.Report, len(sessions))
	for id, s := range sessions {
		rep, err := s.Finalize()
		if err != nil {
			m.logger.WithError(err).WithField("session_id", id).Error("Failed to finalize session")
			continue
		}
		reports[id] = rep
	}
	return reports
}
