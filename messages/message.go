package messages

import (
	"time"

	"github.com/casualjim/parley/pkg/uuidx"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
)

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one the engine knows about.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is a single turn in a conversation.
type Message struct {
	ID      uuid.UUID `json:"id"`
	Role    Role      `json:"role"`
	Content string    `json:"content"`

	// AuxiliaryContent carries the provider's reasoning/thinking trace when
	// the model emits one. It is display-only and never sent back as history.
	AuxiliaryContent string `json:"auxiliary_content,omitempty"`

	CreatedAt strfmt.DateTime `json:"created_at"`
	Streaming bool            `json:"streaming,omitempty"`

	// Provider and Model are stamped onto assistant messages once the
	// stream that produced them finishes.
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
}

// User creates a user message with a fresh identity.
func User(content string) Message {
	return Message{
		ID:        uuidx.New(),
		Role:      RoleUser,
		Content:   content,
		CreatedAt: strfmt.DateTime(time.Now()),
	}
}

// Placeholder creates the empty assistant message an in-flight generation
// streams into.
func Placeholder() Message {
	return Message{
		ID:        uuidx.New(),
		Role:      RoleAssistant,
		CreatedAt: strfmt.DateTime(time.Now()),
		Streaming: true,
	}
}

// Clone returns a copy of the message carrying a fresh identity. Branching
// uses this so copied history never aliases the source session's messages.
func (m Message) Clone() Message {
	m.ID = uuidx.New()
	return m
}
