package parley

import (
	"context"

	"github.com/casualjim/parley/messages"
	"github.com/google/uuid"
)

// Hook is the engine's callback surface towards a UI. Methods are invoked
// from the run's goroutine; implementations that touch UI state must do
// their own marshalling onto the host's main loop.
type Hook interface {
	// OnAssistantDelta fires once per throttled flush with the text added
	// since the previous flush, per channel.
	OnAssistantDelta(ctx context.Context, sessionID, messageID uuid.UUID, main, auxiliary string)
	// OnMessageFinal fires when a run settles, successfully or not, with
	// the message in its final non-streaming form.
	OnMessageFinal(ctx context.Context, sessionID uuid.UUID, msg messages.Message)
	// OnError fires alongside OnMessageFinal when the run failed.
	OnError(ctx context.Context, sessionID uuid.UUID, err error)
	// OnTitle fires when the background title generation replaced a
	// session's placeholder title.
	OnTitle(ctx context.Context, sessionID uuid.UUID, title string)
}

// NoopHook implements Hook doing nothing. Embed it to pick only the
// callbacks you care about.
type NoopHook struct{}

func (NoopHook) OnAssistantDelta(context.Context, uuid.UUID, uuid.UUID, string, string) {}
func (NoopHook) OnMessageFinal(context.Context, uuid.UUID, messages.Message)            {}
func (NoopHook) OnError(context.Context, uuid.UUID, error)                              {}
func (NoopHook) OnTitle(context.Context, uuid.UUID, string)                             {}
