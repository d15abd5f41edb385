// Package messages defines the conversation message model shared by the
// session store, the providers, and the orchestrator.
//
// A message is owned by exactly one session. Its content is mutated in
// place while Streaming is true and becomes immutable once streaming has
// finished, whether the stream completed or failed. Providers that emit a
// secondary reasoning trace alongside the answer write it to
// AuxiliaryContent; the main answer always lives in Content.
package messages
