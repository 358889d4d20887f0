package mesh

import "fmt"

// Kind identifies one of the seven error taxonomy members from spec §7.
// Kinds, not Go types, are the unit of classification: callers compare
// against the Kind constants via errors.As on *MeshError.
type Kind int

const (
	// KindConfiguration marks invalid option values caught at startup; no
	// side effects have occurred when this is raised.
	KindConfiguration Kind = iota
	// KindCapacity marks allocation failure or capacity-growth exhaustion;
	// fatal to the current step.
	KindCapacity
	// KindProtocol marks an invariant violation detected at a stage
	// boundary (I1/I2/I3, non-canonical Hilbert key, probe-limit exceeded).
	KindProtocol
	// KindConservation marks post-adaptation mass drift beyond tolerance.
	KindConservation
	// KindConvergence marks balance non-convergence; non-fatal.
	KindConvergence
	// KindTransport marks a send/recv/p2p failure or timeout.
	KindTransport
	// KindCancelled marks external cancellation while a node was queued.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "ConfigurationError"
	case KindCapacity:
		return "CapacityError"
	case KindProtocol:
		return "ProtocolError"
	case KindConservation:
		return "ConservationError"
	case KindConvergence:
		return "ConvergenceWarning"
	case KindTransport:
		return "TransportError"
	case KindCancelled:
		return "CancelledError"
	default:
		return "UnknownError"
	}
}

// MeshError is the concrete error type for every taxonomy member. Component
// is the subsystem that raised it (e.g. "hashindex", "adapt.compact").
type MeshError struct {
	Kind      Kind
	Component string
	Message   string
	Cause     error
}

func (e *MeshError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s[%s]: %s: %v", e.Kind, e.Component, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s[%s]: %s", e.Kind, e.Component, e.Message)
}

func (e *MeshError) Unwrap() error { return e.Cause }

// Fatal reports whether this error kind is fatal per spec §7's propagation
// policy: ConvergenceWarning and CancelledError are recoverable step-status
// conditions, everything else propagates and degrades the engine.
func (e *MeshError) Fatal() bool {
	switch e.Kind {
	case KindConvergence, KindCancelled:
		return false
	default:
		return true
	}
}

func newError(kind Kind, component, message string, cause error) *MeshError {
	return &MeshError{Kind: kind, Component: component, Message: message, Cause: cause}
}

// NewConfigurationError constructs a KindConfiguration error.
func NewConfigurationError(component, message string) *MeshError {
	return newError(KindConfiguration, component, message, nil)
}

// NewCapacityError constructs a KindCapacity error.
func NewCapacityError(component, message string, cause error) *MeshError {
	return newError(KindCapacity, component, message, cause)
}

// NewProtocolError constructs a KindProtocol error.
func NewProtocolError(component, message string) *MeshError {
	return newError(KindProtocol, component, message, nil)
}

// NewConservationError constructs a KindConservation error.
func NewConservationError(component, message string) *MeshError {
	return newError(KindConservation, component, message, nil)
}

// NewConvergenceWarning constructs a KindConvergence error (non-fatal).
func NewConvergenceWarning(component, message string) *MeshError {
	return newError(KindConvergence, component, message, nil)
}

// NewTransportError constructs a KindTransport error.
func NewTransportError(component, message string, cause error) *MeshError {
	return newError(KindTransport, component, message, cause)
}

// NewCancelledError constructs a KindCancelled error (non-fatal).
func NewCancelledError(component, message string) *MeshError {
	return newError(KindCancelled, component, message, nil)
}
