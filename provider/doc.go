// Package provider implements an abstraction layer for interacting with
// LLM providers (Google, OpenAI-compatible, xAI, DeepSeek) in a consistent
// way. It defines the contract that normalizes heterogeneous provider
// streaming protocols into one channel-of-events delivery shape.
//
// Design decisions:
//   - Provider abstraction: a single interface each provider family implements
//   - Streaming first: built around incremental delivery for real-time UIs
//   - Two channels: every text delta is tagged main or auxiliary so callers
//     can route answers and reasoning traces separately
//   - Capability table: a static per-family table consulted once per
//     request replaces model-name substring branching at call sites
//   - Faults: every failure carries a stable kind so callers can tell a
//     missing credential from a mid-stream transport error or a timeout
//
// The streaming contract uses four event types:
//  1. Delim: delimiter events marking stream boundaries
//  2. Chunk: incremental text fragments tagged with their channel
//  3. Response: the complete accumulated response
//  4. Error: failure events; everything accumulated before the failure has
//     already been delivered as chunks
//
// Example usage:
//
//	prov := openaicompat.OpenAI(creds)
//	events, err := prov.ChatCompletion(ctx, provider.CompletionParams{
//	    RunID:   uuidx.New(),
//	    Model:   "gpt-4o-mini",
//	    History: history,
//	    Stream:  true,
//	})
//	if err != nil {
//	    return err
//	}
//	for event := range events {
//	    switch e := event.(type) {
//	    case provider.Chunk:
//	        // incremental fragment, e.Channel routes it
//	    case provider.Response:
//	        // complete response
//	    case provider.Error:
//	        // failure with preserved context
//	    }
//	}
package provider
