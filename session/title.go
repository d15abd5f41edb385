package session

import (
	"context"
	"log/slog"
	"strings"

	"github.com/casualjim/parley/messages"
	"github.com/google/uuid"
)

// Titler produces a short conversation title from the opening exchange.
// Implementations typically run a small, low-creativity LLM call.
type Titler interface {
	Title(ctx context.Context, userText, assistantText string) (string, error)
}

// TitlerFunc adapts a function to the Titler interface.
type TitlerFunc func(ctx context.Context, userText, assistantText string) (string, error)

func (f TitlerFunc) Title(ctx context.Context, userText, assistantText string) (string, error) {
	return f(ctx, userText, assistantText)
}

// RefreshTitle generates a title from the session's first full exchange,
// when it still carries the placeholder title. Safe to run fire-and-forget:
// any failure leaves the placeholder in place and is only logged.
//
// Returns true when the title was replaced.
func (st *Store) RefreshTitle(ctx context.Context, titler Titler, id uuid.UUID) bool {
	if titler == nil {
		return false
	}

	s, ok := st.Get(id)
	if !ok || s.Title != DefaultTitle {
		return false
	}
	user, assistant, ok := firstExchange(s.Messages)
	if !ok {
		return false
	}

	title, err := titler.Title(ctx, user, assistant)
	if err != nil {
		slog.Warn("title generation failed", "session", id, "error", err)
		return false
	}
	title = sanitizeTitle(title)
	if title == "" {
		return false
	}

	if err := st.SetTitle(id, title); err != nil {
		return false
	}
	return true
}

func firstExchange(msgs []messages.Message) (user, assistant string, ok bool) {
	for _, m := range msgs {
		switch {
		case user == "" && m.Role == messages.RoleUser && strings.TrimSpace(m.Content) != "":
			user = m.Content
		case user != "" && m.Role == messages.RoleAssistant && !m.Streaming && strings.TrimSpace(m.Content) != "":
			return user, m.Content, true
		}
	}
	return "", "", false
}

// sanitizeTitle flattens whatever the model returned into a single short
// line. Models wrap titles in quotes often enough that we strip them.
func sanitizeTitle(title string) string {
	title = strings.TrimSpace(title)
	title = strings.Trim(title, `"'`)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = title[:i]
	}
	title = strings.TrimSpace(title)
	const maxTitle = 80
	if len(title) > maxTitle {
		title = strings.TrimSpace(title[:maxTitle])
	}
	return title
}
