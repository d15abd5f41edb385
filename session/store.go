package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/casualjim/parley/messages"
	"github.com/casualjim/parley/provider"
	"github.com/google/uuid"
)

var (
	// ErrSessionNotFound is returned when an operation names a session id
	// the store doesn't hold.
	ErrSessionNotFound = errors.New("session not found")
	// ErrMessageNotFound is returned when an operation names a message id
	// that isn't part of the target session.
	ErrMessageNotFound = errors.New("message not found")
)

// Store holds every session plus the active pointer. The zero value is
// not usable; construct with NewStore.
type Store struct {
	mu       sync.RWMutex
	sessions []Session
	activeID uuid.UUID

	// seeds for sessions the store synthesizes itself, e.g. after the
	// last session is deleted.
	seedProvider string
	seedModel    string
}

// NewStore creates an empty store. The seed provider/model are used for
// sessions the store has to synthesize on its own.
func NewStore(seedProvider, seedModel string) *Store {
	return &Store{seedProvider: seedProvider, seedModel: seedModel}
}

// Create adds a new session and makes it active.
func (st *Store) Create(model, providerTag, systemPrompt string) Session {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.createLocked(model, providerTag, systemPrompt)
}

func (st *Store) createLocked(model, providerTag, systemPrompt string) Session {
	s := newSession(model, providerTag, systemPrompt)
	st.sessions = append(st.sessions, s)
	st.activeID = s.ID
	return s.clone()
}

// Delete removes a session. Deleting the active session promotes the
// first remaining one; deleting the last session synthesizes a fresh
// default so the collection is never activeless.
func (st *Store) Delete(id uuid.UUID) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	idx := st.indexLocked(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	st.sessions = append(st.sessions[:idx], st.sessions[idx+1:]...)

	if len(st.sessions) == 0 {
		st.createLocked(st.seedModel, st.seedProvider, "")
		return nil
	}
	if st.activeID == id {
		st.activeID = st.sessions[0].ID
	}
	return nil
}

// Select makes the given session active.
func (st *Store) Select(id uuid.UUID) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.indexLocked(id) < 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	st.activeID = id
	return nil
}

// Active returns a copy of the active session.
func (st *Store) Active() (Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	idx := st.indexLocked(st.activeID)
	if idx < 0 {
		return Session{}, false
	}
	return st.sessions[idx].clone(), true
}

// Get returns a copy of the session with the given id.
func (st *Store) Get(id uuid.UUID) (Session, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	idx := st.indexLocked(id)
	if idx < 0 {
		return Session{}, false
	}
	return st.sessions[idx].clone(), true
}

// List returns copies of all sessions in creation order.
func (st *Store) List() []Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]Session, len(st.sessions))
	for i := range st.sessions {
		out[i] = st.sessions[i].clone()
	}
	return out
}

// Len reports how many sessions the store holds.
func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

// Append adds a message to a session and returns the stored copy.
func (st *Store) Append(sessionID uuid.UUID, msg messages.Message) (messages.Message, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s := st.lookupLocked(sessionID)
	if s == nil {
		return messages.Message{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	s.Messages = append(s.Messages, msg)
	s.touch()
	return msg, nil
}

// UpdateContent replaces a message's main content. Called on every
// throttled flush while streaming, and by regenerate for in-place edits.
func (st *Store) UpdateContent(sessionID, messageID uuid.UUID, content string) error {
	return st.mutateMessage(sessionID, messageID, func(m *messages.Message) {
		m.Content = content
	})
}

// UpdateAuxiliary replaces a message's auxiliary (reasoning) content.
func (st *Store) UpdateAuxiliary(sessionID, messageID uuid.UUID, aux string) error {
	return st.mutateMessage(sessionID, messageID, func(m *messages.Message) {
		m.AuxiliaryContent = aux
	})
}

// Finalize ends a message's streaming phase and stamps the provider and
// model that produced it. Content stays whatever the last update wrote.
func (st *Store) Finalize(sessionID, messageID uuid.UUID, providerTag, model string) error {
	return st.mutateMessage(sessionID, messageID, func(m *messages.Message) {
		m.Streaming = false
		m.Provider = providerTag
		m.Model = model
	})
}

// Branch creates a new session holding copies of the source's messages
// strictly before the cutoff, each with a fresh identity, carrying over
// the source's provider, model, system prompt and parameters. The new
// session is appended but not selected.
func (st *Store) Branch(sourceID, uptoMessageID uuid.UUID) (Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	src := st.lookupLocked(sourceID)
	if src == nil {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sourceID)
	}
	cut := src.messageIndex(uptoMessageID)
	if cut < 0 {
		return Session{}, fmt.Errorf("%w: %s", ErrMessageNotFound, uptoMessageID)
	}

	branch := newSession(src.Model, src.Provider, src.SystemPrompt)
	branch.Params = src.Params
	branch.Title = src.Title
	branch.Messages = make([]messages.Message, 0, cut)
	for _, m := range src.Messages[:cut] {
		branch.Messages = append(branch.Messages, m.Clone())
	}
	st.sessions = append(st.sessions, branch)
	return branch.clone(), nil
}

// TruncateForRegenerate edits the message in place with newContent, then
// drops every assistant message after it while keeping any trailing user
// turns. Returns a copy of the edited message.
func (st *Store) TruncateForRegenerate(sessionID, messageID uuid.UUID, newContent string) (messages.Message, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	s := st.lookupLocked(sessionID)
	if s == nil {
		return messages.Message{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	idx := s.messageIndex(messageID)
	if idx < 0 {
		return messages.Message{}, fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	}

	s.Messages[idx].Content = newContent

	kept := s.Messages[:idx+1]
	for _, m := range s.Messages[idx+1:] {
		if m.Role == messages.RoleUser {
			kept = append(kept, m)
		}
	}
	s.Messages = kept
	s.touch()
	return s.Messages[idx], nil
}

// SetTitle replaces a session's title.
func (st *Store) SetTitle(id uuid.UUID, title string) error {
	return st.mutateSession(id, func(s *Session) { s.Title = title })
}

// SetModel switches a session's provider and model.
func (st *Store) SetModel(id uuid.UUID, providerTag, model string) error {
	return st.mutateSession(id, func(s *Session) {
		s.Provider = providerTag
		s.Model = model
	})
}

// SetSystemPrompt replaces a session's system prompt.
func (st *Store) SetSystemPrompt(id uuid.UUID, prompt string) error {
	return st.mutateSession(id, func(s *Session) { s.SystemPrompt = prompt })
}

// SetParams replaces a session's generation parameters.
func (st *Store) SetParams(id uuid.UUID, params provider.GenerationParams) error {
	return st.mutateSession(id, func(s *Session) { s.Params = params })
}

func (st *Store) mutateSession(id uuid.UUID, fn func(*Session)) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	s := st.lookupLocked(id)
	if s == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	fn(s)
	s.touch()
	return nil
}

func (st *Store) mutateMessage(sessionID, messageID uuid.UUID, fn func(*messages.Message)) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	s := st.lookupLocked(sessionID)
	if s == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	idx := s.messageIndex(messageID)
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrMessageNotFound, messageID)
	}
	fn(&s.Messages[idx])
	s.touch()
	return nil
}

func (st *Store) indexLocked(id uuid.UUID) int {
	for i := range st.sessions {
		if st.sessions[i].ID == id {
			return i
		}
	}
	return -1
}

func (st *Store) lookupLocked(id uuid.UUID) *Session {
	idx := st.indexLocked(id)
	if idx < 0 {
		return nil
	}
	return &st.sessions[idx]
}
