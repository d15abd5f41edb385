package parley

// RunState tracks one in-flight generation through its lifecycle.
type RunState int32

const (
	// StateIdle is the zero state before a run has been dispatched.
	StateIdle RunState = iota
	// StateSending covers the window between appending the placeholder and
	// the provider accepting the request.
	StateSending
	// StateStreaming means deltas are arriving.
	StateStreaming
	// StateFinalized is the successful terminal state.
	StateFinalized
	// StateFailed is the terminal state after any error; the placeholder
	// carries the fallback text.
	StateFailed
	// StateCanceled is the terminal state after a user-initiated stop; the
	// placeholder keeps whatever content had accumulated.
	StateCanceled
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateFinalized:
		return "finalized"
	case StateFailed:
		return "failed"
	case StateCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the run has settled.
func (s RunState) Terminal() bool {
	return s == StateFinalized || s == StateFailed || s == StateCanceled
}
