package assistant

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"voice-search-assistant/internal/observability/logging"
	"voice-search-assistant/internal/observability/metrics"
	"voice-search-assistant/internal/service/recognition"
)

var ErrSessionNotFound = errors.New("session not found")

// CreateOptions override session defaults.
type CreateOptions struct {
	Language string `json:"language,omitempty"`
	Mode     string `json:"mode,omitempty"`
}

// Manager owns the live sessions.
type Manager struct {
	cfg     Config
	deps    Deps
	metrics *metrics.Metrics

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewManager(cfg Config, deps Deps) *Manager {
	return &Manager{
		cfg:      cfg,
		deps:     deps,
		metrics:  metrics.DefaultMetrics,
		sessions: make(map[string]*Session),
	}
}

// Create starts a new session.
func (m *Manager) Create(opts CreateOptions) (*Session, error) {
	cfg := m.cfg
	if opts.Language != "" {
		if !recognition.ValidLanguage(opts.Language) {
			return nil, fmt.Errorf("%w: %s", recognition.ErrUnsupportedLanguage, opts.Language)
		}
		cfg.Recognition.Language = opts.Language
	}
	if opts.Mode != "" {
		cfg.Recognition.Mode = recognition.ParseMode(opts.Mode)
	}

	id := uuid.NewString()
	s := NewSession(id, cfg, m.deps)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.metrics.RecordSessionOpened()
	l := logging.WithSession(id)
	l.Info().
		Str("language", cfg.Recognition.Language).
		Str("mode", string(cfg.Recognition.Mode)).
		Msg("Session created")
	return s, nil
}

// Get returns the session with id.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close closes and removes the session with id.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}
	s.Close()
	m.metrics.RecordSessionClosed()
	return nil
}

// CloseAll closes every session. Used on shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			s.Close()
			m.metrics.RecordSessionClosed()
		}(s)
	}
	wg.Wait()
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
