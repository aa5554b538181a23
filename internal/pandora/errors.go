package pandora

import (
	"errors"
	"fmt"
)

// ResultError represents a Pandora response whose result oneof is not the success variant
// (for example ConnectResponse.peer_not_found or SecureResponse.pairing_failure).
type ResultError struct {
	Op      string // RPC name, e.g. "Host.Connect"
	Variant string // oneof variant name reported by the device
}

// Error implements the error interface
func (e *ResultError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Op == "" {
		return e.Variant
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Variant)
}

// Is allows errors.Is to compare ResultError values by Variant
func (e *ResultError) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*ResultError)
	if !ok {
		return false
	}
	return e.Variant == t.Variant
}

// Predefined sentinel errors for result variants
var (
	ErrPeerNotFound            = &ResultError{Variant: "peer_not_found"}
	ErrConnectionAlreadyExists = &ResultError{Variant: "connection_already_exists"}
	ErrPairingFailure          = &ResultError{Variant: "pairing_failure"}
	ErrAuthenticationFailure   = &ResultError{Variant: "authentication_failure"}
	ErrEncryptionFailure       = &ResultError{Variant: "encryption_failure"}
	ErrConnectionDied          = &ResultError{Variant: "connection_died"}
	ErrNotReached              = &ResultError{Variant: "not_reached"}
)

// Transport errors
var (
	// ErrUnavailable indicates the Pandora server is not reachable (restarting after a reset, or gone).
	ErrUnavailable = errors.New("pandora server unavailable")
	// ErrStreamClosed indicates a server stream ended while the caller still expected messages.
	ErrStreamClosed = errors.New("stream closed")
	// ErrUnsupported indicates the device does not implement the requested service.
	ErrUnsupported = errors.New("unsupported")
)

// ResultVariant returns the oneof variant carried by err, "success" for nil,
// and the empty string for errors that are not result errors.
func ResultVariant(err error) string {
	if err == nil {
		return "success"
	}
	var rerr *ResultError
	if errors.As(err, &rerr) {
		return rerr.Variant
	}
	return ""
}
