// Package session owns conversation state: the set of sessions, the
// active-session pointer, and every mutation the engine performs on
// message history (append, edit, branch, regenerate truncation).
//
// The store is safe for concurrent use. Mutations are keyed by session
// and message id, so callbacks for different sessions never contend.
// Accessors hand out copies; callers never hold references into the
// store's own slices.
package session
