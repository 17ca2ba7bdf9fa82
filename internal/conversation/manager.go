package conversation

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Manager owns the in-memory list of sessions, tracks which one is active and
// writes every change through to a Store.
type Manager struct {
	store  Store
	logger zerolog.Logger

	mu       sync.Mutex
	sessions []Session // newest first
	activeID string
	onChange func()
}

// NewManager creates a manager over store. Call Load before use.
func NewManager(store Store, logger zerolog.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger.With().Str("component", "conversation").Logger(),
	}
}

// OnChange registers a callback run after every mutation, outside the lock.
func (m *Manager) OnChange(fn func()) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Load reads sessions from the store and selects the newest, creating an
// empty session when there is none.
func (m *Manager) Load(ctx context.Context) error {
	sessions, err := m.store.List(ctx)
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}

	m.mu.Lock()
	m.sessions = sessions
	m.activeID = ""
	var created *Session
	if len(m.sessions) == 0 {
		s := newSession()
		m.sessions = []Session{s}
		created = &s
	}
	m.activeID = m.sessions[0].ID
	m.mu.Unlock()

	if created != nil {
		if err := m.store.Put(ctx, *created); err != nil {
			return fmt.Errorf("create initial session: %w", err)
		}
	}
	m.logger.Info().Int("sessions", len(sessions)).Msg("Sessions loaded")
	m.notify()
	return nil
}

// Sessions returns a copy of all sessions, newest first.
func (m *Manager) Sessions() []Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Session, len(m.sessions))
	for i, s := range m.sessions {
		out[i] = cloneSession(s)
	}
	return out
}

// ActiveID returns the id of the active session.
func (m *Manager) ActiveID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeID
}

// Active returns a copy of the active session.
func (m *Manager) Active() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i := m.indexLocked(m.activeID); i >= 0 {
		return cloneSession(m.sessions[i])
	}
	return Session{}
}

// History returns the active session's messages.
func (m *Manager) History() []Message {
	return m.Active().Messages
}

// NewSession creates an empty session and makes it active.
func (m *Manager) NewSession(ctx context.Context) (Session, error) {
	s := newSession()

	m.mu.Lock()
	m.sessions = append([]Session{s}, m.sessions...)
	m.activeID = s.ID
	m.mu.Unlock()

	err := m.store.Put(ctx, s)
	m.notify()
	if err != nil {
		return s, fmt.Errorf("save new session: %w", err)
	}
	return s, nil
}

// Switch makes id active. It reports false when id already was active.
func (m *Manager) Switch(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	if m.activeID == id {
		m.mu.Unlock()
		return false, nil
	}
	if m.indexLocked(id) < 0 {
		m.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m.activeID = id
	m.mu.Unlock()

	m.notify()
	return true, nil
}

// Delete removes a session and reports whether it was the active one. When
// the last session is removed a fresh one replaces it.
func (m *Manager) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	i := m.indexLocked(id)
	if i < 0 {
		m.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	m.sessions = append(m.sessions[:i:i], m.sessions[i+1:]...)
	wasActive := m.activeID == id

	var created *Session
	if wasActive {
		if len(m.sessions) == 0 {
			s := newSession()
			m.sessions = []Session{s}
			created = &s
		}
		m.activeID = m.sessions[0].ID
	}
	m.mu.Unlock()

	err := m.store.Delete(ctx, id)
	if err == nil && created != nil {
		err = m.store.Put(ctx, *created)
	}
	m.notify()
	if err != nil {
		return wasActive, fmt.Errorf("delete session: %w", err)
	}
	return wasActive, nil
}

// Append adds messages to the active session and retitles it from the first
// user message while it still carries the default title.
func (m *Manager) Append(ctx context.Context, msgs ...Message) error {
	return m.AppendTo(ctx, "", msgs...)
}

// AppendTo adds messages to the session sessionID, or to the active session
// when sessionID is empty.
func (m *Manager) AppendTo(ctx context.Context, sessionID string, msgs ...Message) error {
	if len(msgs) == 0 {
		return nil
	}
	return m.update(ctx, sessionID, func(s *Session) {
		s.Messages = append(s.Messages, msgs...)
	})
}

// UpdateMessage rewrites the text and completion flag of a message in the
// active session.
func (m *Manager) UpdateMessage(ctx context.Context, id, text string, complete bool) error {
	return m.UpdateMessageIn(ctx, "", id, text, complete)
}

// UpdateMessageIn is UpdateMessage for the session sessionID, whether or not
// it is still active. An empty sessionID selects the active session.
func (m *Manager) UpdateMessageIn(ctx context.Context, sessionID, id, text string, complete bool) error {
	found := false
	err := m.update(ctx, sessionID, func(s *Session) {
		for i := range s.Messages {
			if s.Messages[i].ID == id {
				s.Messages[i].Text = text
				s.Messages[i].IsComplete = complete
				found = true
				return
			}
		}
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	return nil
}

// SessionHistory returns the messages of sessionID.
func (m *Manager) SessionHistory(sessionID string) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i := m.indexLocked(sessionID)
	if i < 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	return cloneSession(m.sessions[i]).Messages, nil
}

func (m *Manager) update(ctx context.Context, sessionID string, update func(*Session)) error {
	m.mu.Lock()
	if sessionID == "" {
		sessionID = m.activeID
	}
	i := m.indexLocked(sessionID)
	if i < 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: session %q", ErrNotFound, sessionID)
	}
	s := &m.sessions[i]
	update(s)
	if s.Title == DefaultTitle {
		if title, ok := TitleFrom(s.Messages); ok {
			s.Title = title
		}
	}
	snapshot := cloneSession(*s)
	m.mu.Unlock()

	err := m.store.Put(ctx, snapshot)
	m.notify()
	if err != nil {
		m.logger.Error().Err(err).Str("session_id", snapshot.ID).Msg("Failed to persist session")
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (m *Manager) indexLocked(id string) int {
	for i := range m.sessions {
		if m.sessions[i].ID == id {
			return i
		}
	}
	return -1
}

func (m *Manager) notify() {
	m.mu.Lock()
	fn := m.onChange
	m.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func newSession() Session {
	return Session{
		ID:        uuid.NewString(),
		Title:     DefaultTitle,
		Timestamp: NowMillis(),
		Messages:  []Message{},
	}
}

func cloneSession(s Session) Session {
	s.Messages = append([]Message(nil), s.Messages...)
	return s
}
