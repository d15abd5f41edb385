package provider

// Provider tags. These are the stable identifiers persisted on sessions
// and messages, used for capability and credential lookups.
const (
	TagOpenAI   = "openai"
	TagXAI      = "xai"
	TagDeepSeek = "deepseek"
	TagGoogle   = "google"
)

// Capability describes what a provider family supports. The table below is
// consulted once per request; nothing in the engine branches on model-name
// substrings.
type Capability struct {
	// SupportsSystemRole is true when the provider accepts a distinct
	// system-role turn. When false the system prompt is folded into the
	// first user turn.
	SupportsSystemRole bool
	// AuxiliaryChannel is true when the family can interleave a reasoning
	// trace with the main text channel.
	AuxiliaryChannel bool
	// MaxContext is the advertised context window in tokens.
	MaxContext int
}

var capabilityTable = map[string]Capability{
	TagOpenAI:   {SupportsSystemRole: true, AuxiliaryChannel: false, MaxContext: 128_000},
	TagXAI:      {SupportsSystemRole: true, AuxiliaryChannel: true, MaxContext: 131_072},
	TagDeepSeek: {SupportsSystemRole: true, AuxiliaryChannel: true, MaxContext: 65_536},
	TagGoogle:   {SupportsSystemRole: true, AuxiliaryChannel: true, MaxContext: 1_048_576},
}

// Models that structurally cannot carry a system-role turn regardless of
// what their family otherwise supports.
var noSystemRole = map[string]struct{}{
	"o1-mini":           {},
	"o1-preview":        {},
	"deepseek-reasoner": {},
}

// Capabilities returns the capability entry for a provider tag, narrowed by
// the per-model exceptions. Unknown tags get a conservative default that
// still permits a system role.
func Capabilities(tag, model string) Capability {
	c, ok := capabilityTable[tag]
	if !ok {
		c = Capability{SupportsSystemRole: true}
	}
	if _, barred := noSystemRole[model]; barred {
		c.SupportsSystemRole = false
	}
	return c
}

// Tags returns the provider tags the engine knows about.
func Tags() []string {
	return []string{TagOpenAI, TagXAI, TagDeepSeek, TagGoogle}
}
