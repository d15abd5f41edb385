package session

import (
	"time"

	"github.com/casualjim/parley/messages"
	"github.com/casualjim/parley/pkg/uuidx"
	"github.com/casualjim/parley/provider"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
)

// DefaultTitle is the placeholder a session carries until the title
// generator produces a real one.
const DefaultTitle = "New chat"

// Session is one independent conversation thread.
type Session struct {
	ID           uuid.UUID                 `json:"id"`
	Title        string                    `json:"title"`
	Messages     []messages.Message        `json:"messages"`
	CreatedAt    strfmt.DateTime           `json:"created_at"`
	UpdatedAt    strfmt.DateTime           `json:"updated_at"`
	Provider     string                    `json:"provider,omitempty"`
	Model        string                    `json:"model,omitempty"`
	SystemPrompt string                    `json:"system_prompt,omitempty"`
	Params       provider.GenerationParams `json:"params"`
}

func newSession(model, providerTag, systemPrompt string) Session {
	now := strfmt.DateTime(time.Now())
	return Session{
		ID:           uuidx.New(),
		Title:        DefaultTitle,
		CreatedAt:    now,
		UpdatedAt:    now,
		Provider:     providerTag,
		Model:        model,
		SystemPrompt: systemPrompt,
	}
}

// clone returns a deep copy, so callers can't reach back into store state.
func (s Session) clone() Session {
	out := s
	out.Messages = make([]messages.Message, len(s.Messages))
	copy(out.Messages, s.Messages)
	return out
}

func (s *Session) touch() {
	s.UpdatedAt = strfmt.DateTime(time.Now())
}

func (s *Session) messageIndex(id uuid.UUID) int {
	for i := range s.Messages {
		if s.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// Collection is the serializable shape of the whole store: every session
// plus the active-session pointer.
type Collection struct {
	Sessions []Session `json:"sessions"`
	ActiveID uuid.UUID `json:"active_id"`
}
