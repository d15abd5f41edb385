// Package google implements the provider contract for the Gemini API.
//
// No SDK is used: the generateContent/streamGenerateContent REST surface is
// small and the streaming shape needs normalization anyway. Streaming uses
// streamGenerateContent?alt=sse where every SSE event carries a full
// response snapshot, not a delta; the adapter tracks cumulative text length
// per channel and emits only the new portion. Parts flagged as thoughts are
// routed to the auxiliary channel.
package google
