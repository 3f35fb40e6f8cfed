package view

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrSessionNotFound = errors.New("page session not found")

// NewPage builds the named page. id is only used by the CRF editor, where
// uuid.Nil opens it in create mode.
func NewPage(name string, deps Deps, id uuid.UUID) (Page, error) {
	switch name {
	case PageTrials:
		return NewTrialsPage(deps), nil
	case PageSubjects:
		return NewSubjectsPage(deps), nil
	case PageVisits:
		return NewVisitsPage(deps), nil
	case PageCRFs:
		return NewCRFsPage(deps), nil
	case PageCRForm:
		return NewCRFormPage(deps, id), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownPage, name)
}

type Session struct {
	ID       string
	Owner    string
	Page     Page
	Created  time.Time
	lastSeen time.Time
}

// SessionObserver is told the open session count after every change.
type SessionObserver interface {
	SetSessions(n int)
}

// SessionManager keeps activated pages between requests and drops those
// left idle longer than the configured timeout.
type SessionManager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	idle     time.Duration
	now      func() time.Time
	observer SessionObserver
	logger   zerolog.Logger
}

func NewSessionManager(idle time.Duration, observer SessionObserver, logger zerolog.Logger) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		idle:     idle,
		now:      time.Now,
		observer: observer,
		logger:   logger.With().Str("component", "page-sessions").Logger(),
	}
}

// Open activates page and registers it for owner.
func (m *SessionManager) Open(ctx context.Context, owner string, page Page) (*Session, error) {
	if err := page.Activate(ctx); err != nil {
		return nil, err
	}
	now := m.now()
	s := &Session{ID: uuid.NewString(), Owner: owner, Page: page, Created: now, lastSeen: now}

	m.mu.Lock()
	m.sessions[s.ID] = s
	n := len(m.sessions)
	m.mu.Unlock()

	m.observe(n)
	m.logger.Debug().Str("session_id", s.ID).Str("page", page.Name()).Str("owner", owner).Msg("page session opened")
	return s, nil
}

// Get returns owner's live session and marks it used. Sessions of other
// users and expired sessions are reported as not found.
func (m *SessionManager) Get(id, owner string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok && m.expired(s) {
		delete(m.sessions, id)
		n := len(m.sessions)
		m.mu.Unlock()
		m.observe(n)
		return nil, ErrSessionNotFound
	}
	if !ok || s.Owner != owner {
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	s.lastSeen = m.now()
	m.mu.Unlock()
	return s, nil
}

func (m *SessionManager) Close(id, owner string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok || s.Owner != owner {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	delete(m.sessions, id)
	n := len(m.sessions)
	m.mu.Unlock()
	m.observe(n)
	return nil
}

func (m *SessionManager) expired(s *Session) bool {
	return m.idle > 0 && m.now().Sub(s.lastSeen) > m.idle
}

// Sweep drops idle sessions and returns how many went.
func (m *SessionManager) Sweep() int {
	m.mu.Lock()
	removed := 0
	for id, s := range m.sessions {
		if m.expired(s) {
			delete(m.sessions, id)
			removed++
		}
	}
	n := len(m.sessions)
	m.mu.Unlock()

	if removed > 0 {
		m.observe(n)
		m.logger.Info().Int("expired", removed).Int("open", n).Msg("page sessions expired")
	}
	return removed
}

// Run sweeps on a ticker until ctx is done.
func (m *SessionManager) Run(ctx context.Context) {
	if m.idle <= 0 {
		return
	}
	interval := m.idle / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Sweep()
		}
	}
}

func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *SessionManager) observe(n int) {
	if m.observer != nil {
		m.observer.SetSessions(n)
	}
}
