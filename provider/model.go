package provider

import (
	"context"

	"github.com/casualjim/parley/messages"
	"github.com/google/uuid"
)

// Provider defines the interface for LLM providers. Implementations handle
// the specifics of one provider family's wire protocol while exposing a
// uniform streaming contract to the rest of the engine.
//
// Implementations must not mutate shared state: their only side effect is
// the outbound network call.
type Provider interface {
	// Tag returns the stable provider identifier used for capability
	// lookups and credential resolution.
	Tag() string

	// ChatCompletion issues a completion request and returns a finite,
	// non-restartable stream of events. The channel is closed when the
	// provider signals end-of-stream or a failure. A stream that fails
	// midway has already delivered every chunk received before the
	// failure; the Error event is the last thing on the channel.
	ChatCompletion(context.Context, CompletionParams) (<-chan StreamEvent, error)

	// Probe performs a minimal round trip to check whether the given model
	// is reachable. Expected not-configured conditions (missing credential,
	// unknown model) report unavailability instead of returning an error.
	Probe(ctx context.Context, model string) (Availability, error)
}

// GenerationParams are the per-request sampling knobs.
type GenerationParams struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int64   `json:"max_output_tokens"`
}

// CompletionParams encapsulates all parameters for one completion request.
// A value is constructed fresh per call and never persisted.
type CompletionParams struct {
	// RunID uniquely identifies this request for tracking and debugging.
	RunID uuid.UUID

	// Instructions is the effective system prompt. Empty means none. The
	// caller resolves it once per request against the capability table;
	// adapters for models without system-role support fold it into the
	// first user turn instead of emitting a separate system message.
	Instructions string

	// History is the conversation so far, oldest first. It may be empty: a
	// system-prompt-only call is legal.
	History []messages.Message

	// Model names the target model. Names the adapter does not recognize
	// are a configuration fault surfaced before any network call.
	Model string

	Params GenerationParams

	// Stream requests incremental delivery. When false the adapter makes a
	// blocking call and emits a single Response event.
	Stream bool

	// Prevents unkeyed literals
	_ struct{}
}

// Availability is the result of a Probe.
type Availability struct {
	Available         bool `json:"available"`
	SupportsStreaming bool `json:"supports_streaming"`
}

// Credentials resolves API secrets by provider tag. The engine never logs
// or persists the returned values.
type Credentials interface {
	Lookup(tag string) (string, bool)
}

// CredentialFunc adapts a plain function to the Credentials interface.
type CredentialFunc func(tag string) (string, bool)

func (f CredentialFunc) Lookup(tag string) (string, bool) { return f(tag) }
