// Package parley is a multi-provider streaming chat engine. It drives a
// conversation against any of several LLM providers (OpenAI, xAI,
// DeepSeek, Google) through one uniform contract, streams tokens into
// session state at a bounded cadence, and supports editing, regenerating
// and branching conversation history mid-flight.
//
// The pieces, bottom up:
//
//   - provider: the adapter contract, capability table and fault taxonomy,
//     plus the concrete OpenAI-compatible and Gemini adapters.
//   - throttle: rebatches the uneven provider delta cadence into bounded
//     UI updates without dropping or reordering text.
//   - session: conversation state, branching, regenerate truncation and
//     persistence.
//   - parley (this package): the Engine that ties them together and owns
//     the per-request lifecycle.
//
// A minimal host looks like:
//
//	store := session.NewStore(provider.TagOpenAI, "gpt-4o-mini")
//	provider.Register(openaicompat.OpenAI(creds))
//	engine, err := parley.New(store,
//	    parley.WithHook(myHook),
//	    parley.WithPreferences(prefs),
//	)
//	sess := store.Create("gpt-4o", provider.TagOpenAI, "")
//	run, err := engine.SendMessage(ctx, sess.ID, "hello")
//	if err == nil && run != nil {
//	    <-run.Done()
//	}
//
// The hook receives throttled deltas as they stream and the final message
// when the run settles. Everything the user typed and everything the model
// answered lives in the store; the engine never holds message state of its
// own between runs.
package parley
