package provider

import (
	"errors"
	"fmt"
)

// FaultKind classifies provider failures into the categories callers react
// to differently. The set is closed: surfacing a new category is an API
// change, not a string change.
type FaultKind string

const (
	// FaultConfiguration covers missing credentials and unknown model
	// names. Surfaced immediately, never retried.
	FaultConfiguration FaultKind = "configuration"
	// FaultTransport covers network failures, including mid-stream drops.
	FaultTransport FaultKind = "transport"
	// FaultRefusal covers provider error payloads returned instead of
	// content. Treated like transport failures by callers.
	FaultRefusal FaultKind = "refusal"
	// FaultValidation covers caller mistakes rejected before the network
	// layer is reached.
	FaultValidation FaultKind = "validation"
	// FaultTimeout means the provider never produced a first delta within
	// the bounded wait. Distinct from transport so callers can tell "never
	// heard back" from "heard back with an error".
	FaultTimeout FaultKind = "timeout"
)

// Fault is the provider-agnostic failure value. Kind is stable across
// providers; Cause preserves the underlying error for diagnostics.
type Fault struct {
	Kind     FaultKind
	Provider string
	Message  string
	Cause    error
}

func (f *Fault) Error() string {
	msg := f.Message
	if msg == "" && f.Cause != nil {
		msg = f.Cause.Error()
	}
	if msg == "" {
		msg = string(f.Kind)
	}
	if f.Provider != "" {
		return fmt.Sprintf("%s: %s: %s", f.Provider, f.Kind, msg)
	}
	return fmt.Sprintf("%s: %s", f.Kind, msg)
}

func (f *Fault) Unwrap() error { return f.Cause }

// AsFault unwraps err to a *Fault when one is present anywhere in its chain.
func AsFault(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// IsKind reports whether err carries a Fault of the given kind.
func IsKind(err error, kind FaultKind) bool {
	if f, ok := AsFault(err); ok {
		return f.Kind == kind
	}
	return false
}

// ConfigurationFault builds a configuration-kind fault.
func ConfigurationFault(tag, format string, args ...any) *Fault {
	return &Fault{Kind: FaultConfiguration, Provider: tag, Message: fmt.Sprintf(format, args...)}
}

// TransportFault wraps a network failure.
func TransportFault(tag string, cause error) *Fault {
	return &Fault{Kind: FaultTransport, Provider: tag, Cause: cause}
}

// RefusalFault wraps a provider error payload.
func RefusalFault(tag, message string) *Fault {
	return &Fault{Kind: FaultRefusal, Provider: tag, Message: message}
}

// ValidationFault builds a validation-kind fault.
func ValidationFault(format string, args ...any) *Fault {
	return &Fault{Kind: FaultValidation, Message: fmt.Sprintf(format, args...)}
}

// TimeoutFault builds a timeout-kind fault.
func TimeoutFault(tag, message string) *Fault {
	return &Fault{Kind: FaultTimeout, Provider: tag, Message: message}
}
