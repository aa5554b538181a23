package pairing

import (
	"errors"
	"fmt"

	"github.com/srg/btharness/internal/pandora"
)

var (
	// ErrUnexpectedMethod indicates a pairing event whose method does not match the association model.
	ErrUnexpectedMethod = errors.New("unexpected pairing method")
	// ErrTimeout indicates a pairing step that did not complete in time.
	ErrTimeout = errors.New("timed out")
	// ErrRoleMismatch indicates a procedure invoked with roles it does not support.
	ErrRoleMismatch = errors.New("unsupported role assignment")
	// ErrAnswerQueueFull indicates answers are produced faster than the device consumes them.
	ErrAnswerQueueFull = errors.New("pairing answer queue full")
)

// MethodError reports a pairing event received on side with an unexpected method.
type MethodError struct {
	Side Side
	Got  pandora.PairingMethod
	Want pandora.PairingMethod
}

// Error implements the error interface
func (e *MethodError) Error() string {
	return fmt.Sprintf("%s: pairing method %s, expected %s", e.Side, e.Got, e.Want)
}

// Is allows errors.Is(err, ErrUnexpectedMethod)
func (e *MethodError) Is(target error) bool {
	return target == ErrUnexpectedMethod
}

func expectMethod(side Side, ev *pandora.PairingEvent, want pandora.PairingMethod) error {
	if ev.Method != want {
		return &MethodError{Side: side, Got: ev.Method, Want: want}
	}
	return nil
}
